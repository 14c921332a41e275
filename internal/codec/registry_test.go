package codec

import (
	"testing"

	"github.com/mkthub/edi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesEverySupportedCombination(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	supported := []Combination{
		{models.DocNotifyEnergyResult, models.FormatCIMXML},
		{models.DocRejectRequestEnergyResult, models.FormatCIMXML},
		{models.DocNotifyWholesaleResult, models.FormatCIMXML},
		{models.DocNotifyEnergyResult, models.FormatEbixXML},
		{models.DocNotifyEnergyResult, models.FormatJSON},
		{models.DocRejectRequestEnergyResult, models.FormatJSON},
		{models.DocNotifyWholesaleResult, models.FormatJSON},
	}
	for _, combo := range supported {
		writer, err := registry.Resolve(combo.DocumentType, combo.Format)
		require.NoError(t, err, "%s/%s", combo.DocumentType, combo.Format)
		assert.Equal(t, combo.DocumentType, writer.DocumentType())
		assert.Equal(t, combo.Format, writer.Format())
	}
	assert.Len(t, registry.Supported(), len(supported))
}

func TestRegistryRejectsUnsupportedCombination(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	// Ebix only renders energy results; the other types have no Ebix writer.
	_, err = registry.Resolve(models.DocNotifyWholesaleResult, models.FormatEbixXML)
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = registry.Resolve(models.DocRejectRequestEnergyResult, models.FormatEbixXML)
	assert.ErrorIs(t, err, ErrUnsupportedDocument)
}
