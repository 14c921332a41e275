package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEnumValidation(t *testing.T) {
	assert.True(t, RoleEnergySupplier.Valid())
	assert.False(t, ActorRole("CONSUMER").Valid())

	assert.True(t, ReasonMoveIn.Valid())
	assert.False(t, BusinessReason("AD_HOC").Valid())

	assert.True(t, DocNotifyWholesaleResult.Valid())
	assert.False(t, DocumentType("PRICE_LIST").Valid())

	assert.True(t, FormatEbixXML.Valid())
	assert.False(t, DocumentFormat("EDIFACT").Valid())
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "xml", FormatCIMXML.FileExtension())
	assert.Equal(t, "xml", FormatEbixXML.FileExtension())
	assert.Equal(t, "json", FormatJSON.FileExtension())
}

func TestMessageAndBundleShareKey(t *testing.T) {
	receiver := Actor{Number: "5790000701278", Role: RoleEnergySupplier}
	msg := OutgoingMessage{
		DocumentType:   DocNotifyEnergyResult,
		BusinessReason: ReasonBalanceFixing,
		Receiver:       receiver,
	}
	bundle := Bundle{
		Receiver:       receiver,
		DocumentType:   DocNotifyEnergyResult,
		BusinessReason: ReasonBalanceFixing,
	}
	assert.Equal(t, msg.Key(), bundle.Key())
}

func TestCommandPending(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cmd := InternalCommand{ID: uuid.New(), ScheduledAt: now}

	assert.True(t, cmd.Pending(now))
	assert.True(t, cmd.Pending(now.Add(time.Second)))
	assert.False(t, cmd.Pending(now.Add(-time.Second)))

	processed := now
	cmd.ProcessedAt = &processed
	assert.False(t, cmd.Pending(now.Add(time.Hour)))
}
