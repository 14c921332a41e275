package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mkthub/edi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeueLeavesBundleReadyWithoutStorageRef(t *testing.T) {
	ctx := context.Background()
	s := New()

	receiver := models.Actor{Number: "5790000701278", Role: models.RoleEnergySupplier}
	bundle := models.Bundle{
		ID:             uuid.New(),
		Receiver:       receiver,
		DocumentType:   models.DocNotifyEnergyResult,
		BusinessReason: models.ReasonBalanceFixing,
		State:          models.BundleStateReady,
		CreatedAt:      time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
	}
	s.bundles = append(s.bundles, &bundle)

	_, ok, err := s.Dequeue(ctx, receiver, bundle.ID)
	require.Error(t, err)
	assert.False(t, ok)

	// The failed dequeue must not consume the bundle.
	got, err := s.Get(ctx, bundle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BundleStateReady, got.State)
}
