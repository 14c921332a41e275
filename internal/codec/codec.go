package codec

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/mkthub/edi/internal/models"
)

var (
	// ErrUnsupportedDocument is returned when no writer is registered for a
	// (document type, format) combination. This is a configuration error.
	ErrUnsupportedDocument = errors.New("unsupported document type and format combination")

	// ErrUnknownCode is returned when a code table has no wire code for a
	// domain value in the target format. Lookups never fall back to a default.
	ErrUnknownCode = errors.New("no wire code defined for domain value")
)

// DocumentHeader carries the header fields shared by every rendered document.
type DocumentHeader struct {
	MessageID         string
	Sender            models.Actor
	Receiver          models.Actor
	BusinessReason    models.BusinessReason
	CreatedAt         time.Time
	SettlementVersion *models.SettlementVersion
	ReasonCode        *string
}

// DocumentWriter renders a header plus the activity records of one document
// type into a specific wire format. Writers are pure: they only write to the
// supplied sink.
type DocumentWriter interface {
	DocumentType() models.DocumentType
	Format() models.DocumentFormat
	Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error
}

// EnergyResultSeries is the serialized activity record of a
// NotifyEnergyResult message.
type EnergyResultSeriesPeriod struct {
	Resolution string    `json:"resolution"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type EnergyResultSeries struct {
	TransactionID      string                   `json:"transaction_id"`
	GridArea           string                   `json:"grid_area"`
	MeteringPointType  models.MeteringPointType `json:"metering_point_type"`
	SettlementMethod   *string                  `json:"settlement_method,omitempty"`
	MeasureUnit        string                   `json:"measure_unit"`
	Period             EnergyResultSeriesPeriod `json:"period"`
	CalculationVersion int64                    `json:"calculation_version"`
	Points             []Point                  `json:"points"`
}

// Point is one observation in a time series. Quantity and Quality are
// optional; absent values are omitted from the rendered document entirely.
type Point struct {
	Position int                     `json:"position"`
	Quantity *float64                `json:"quantity,omitempty"`
	Quality  *models.QuantityQuality `json:"quality,omitempty"`
}

// RejectSeries is the serialized activity record of a
// RejectRequestEnergyResult message.
type RejectSeries struct {
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	ErrorCode             string `json:"error_code"`
	ErrorMessage          string `json:"error_message"`
}

// WholesaleSeries is the serialized activity record of a
// NotifyWholesaleResult message.
type WholesaleSeries struct {
	TransactionID      string                   `json:"transaction_id"`
	GridArea           string                   `json:"grid_area"`
	EnergySupplier     string                   `json:"energy_supplier"`
	ChargeType         *string                  `json:"charge_type,omitempty"`
	ChargeOwner        *string                  `json:"charge_owner,omitempty"`
	Currency           string                   `json:"currency"`
	MeasureUnit        string                   `json:"measure_unit"`
	Period             EnergyResultSeriesPeriod `json:"period"`
	CalculationVersion int64                    `json:"calculation_version"`
	Points             []WholesalePoint         `json:"points"`
}

// WholesalePoint is one priced observation in a wholesale series.
type WholesalePoint struct {
	Position int                     `json:"position"`
	Quantity *float64                `json:"quantity,omitempty"`
	Price    *float64                `json:"price,omitempty"`
	Amount   *float64                `json:"amount,omitempty"`
	Quality  *models.QuantityQuality `json:"quality,omitempty"`
}

// formatDecimal renders a quantity as fixed-point text without exponent or
// locale separators.
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatTime renders a timestamp in the canonical ISO-8601 UTC form used on
// the wire.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
