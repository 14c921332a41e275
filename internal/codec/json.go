package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/mkthub/edi/internal/models"
)

type jsonParty struct {
	Number string `json:"mRID"`
	Role   string `json:"marketRole"`
}

type jsonPoint struct {
	Position int     `json:"position"`
	Quantity *string `json:"quantity,omitempty"`
	Quality  *string `json:"quality,omitempty"`
}

type jsonPeriod struct {
	Resolution string      `json:"resolution"`
	Start      string      `json:"start"`
	End        string      `json:"end"`
	Points     []jsonPoint `json:"points"`
}

func jsonHeaderParty(actor models.Actor) (jsonParty, error) {
	role, err := roleCode(actor.Role)
	if err != nil {
		return jsonParty{}, err
	}
	return jsonParty{Number: actor.Number, Role: role}, nil
}

func writeJSONDocument(w io.Writer, rootName string, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{rootName: doc}); err != nil {
		return fmt.Errorf("failed to encode json document: %w", err)
	}
	return nil
}

// NotifyEnergyResult

type jsonEnergyDocument struct {
	MessageID         string             `json:"mRID"`
	Type              string             `json:"type"`
	ProcessType       string             `json:"processType"`
	Sender            jsonParty          `json:"sender"`
	Receiver          jsonParty          `json:"receiver"`
	CreatedAt         string             `json:"createdDateTime"`
	SettlementVersion *string            `json:"settlementVersion,omitempty"`
	Series            []jsonEnergySeries `json:"series"`
}

type jsonEnergySeries struct {
	TransactionID     string     `json:"mRID"`
	Version           string     `json:"version"`
	GridArea          string     `json:"gridArea"`
	MeteringPointType string     `json:"meteringPointType"`
	SettlementMethod  *string    `json:"settlementMethod,omitempty"`
	MeasureUnit       string     `json:"measureUnit"`
	Period            jsonPeriod `json:"period"`
}

type jsonEnergyResultWriter struct{}

func newJSONEnergyResultWriter() *jsonEnergyResultWriter { return &jsonEnergyResultWriter{} }

func (jsonEnergyResultWriter) DocumentType() models.DocumentType {
	return models.DocNotifyEnergyResult
}
func (jsonEnergyResultWriter) Format() models.DocumentFormat { return models.FormatJSON }

func (jw jsonEnergyResultWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	typeCode, err := cimDocumentTypeCode(models.DocNotifyEnergyResult)
	if err != nil {
		return err
	}
	processType, err := businessReasonCode(header.BusinessReason)
	if err != nil {
		return err
	}
	sender, err := jsonHeaderParty(header.Sender)
	if err != nil {
		return err
	}
	receiver, err := jsonHeaderParty(header.Receiver)
	if err != nil {
		return err
	}

	var settlementVersion *string
	if header.SettlementVersion != nil {
		code, err := settlementVersionCode(*header.SettlementVersion)
		if err != nil {
			return err
		}
		settlementVersion = &code
	}

	doc := jsonEnergyDocument{
		MessageID:         header.MessageID,
		Type:              typeCode,
		ProcessType:       processType,
		Sender:            sender,
		Receiver:          receiver,
		CreatedAt:         formatTime(header.CreatedAt),
		SettlementVersion: settlementVersion,
	}

	for _, record := range records {
		var series EnergyResultSeries
		if err := json.Unmarshal(record, &series); err != nil {
			return fmt.Errorf("failed to decode energy result record: %w", err)
		}

		pointType, err := meteringPointTypeCode(series.MeteringPointType)
		if err != nil {
			return err
		}

		points := make([]jsonPoint, len(series.Points))
		for i, p := range series.Points {
			point := jsonPoint{Position: p.Position}
			if p.Quantity != nil {
				quantity := formatDecimal(*p.Quantity)
				point.Quantity = &quantity
			}
			if p.Quality != nil {
				quality, err := cimQualityCode(*p.Quality)
				if err != nil {
					return err
				}
				point.Quality = &quality
			}
			points[i] = point
		}

		doc.Series = append(doc.Series, jsonEnergySeries{
			TransactionID:     series.TransactionID,
			Version:           strconv.FormatInt(series.CalculationVersion, 10),
			GridArea:          series.GridArea,
			MeteringPointType: pointType,
			SettlementMethod:  series.SettlementMethod,
			MeasureUnit:       series.MeasureUnit,
			Period: jsonPeriod{
				Resolution: series.Period.Resolution,
				Start:      formatTime(series.Period.Start),
				End:        formatTime(series.Period.End),
				Points:     points,
			},
		})
	}

	return writeJSONDocument(w, "NotifyEnergyResult_MarketDocument", doc)
}

// RejectRequestEnergyResult

type jsonRejectDocument struct {
	MessageID   string             `json:"mRID"`
	Type        string             `json:"type"`
	ProcessType string             `json:"processType"`
	Sender      jsonParty          `json:"sender"`
	Receiver    jsonParty          `json:"receiver"`
	CreatedAt   string             `json:"createdDateTime"`
	ReasonCode  *string            `json:"reasonCode,omitempty"`
	Series      []jsonRejectSeries `json:"series"`
}

type jsonRejectSeries struct {
	TransactionID string `json:"mRID"`
	OriginalID    string `json:"originalTransactionID"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

type jsonRejectRequestWriter struct{}

func newJSONRejectRequestWriter() *jsonRejectRequestWriter { return &jsonRejectRequestWriter{} }

func (jsonRejectRequestWriter) DocumentType() models.DocumentType {
	return models.DocRejectRequestEnergyResult
}
func (jsonRejectRequestWriter) Format() models.DocumentFormat { return models.FormatJSON }

func (jw jsonRejectRequestWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	typeCode, err := cimDocumentTypeCode(models.DocRejectRequestEnergyResult)
	if err != nil {
		return err
	}
	processType, err := businessReasonCode(header.BusinessReason)
	if err != nil {
		return err
	}
	sender, err := jsonHeaderParty(header.Sender)
	if err != nil {
		return err
	}
	receiver, err := jsonHeaderParty(header.Receiver)
	if err != nil {
		return err
	}

	doc := jsonRejectDocument{
		MessageID:   header.MessageID,
		Type:        typeCode,
		ProcessType: processType,
		Sender:      sender,
		Receiver:    receiver,
		CreatedAt:   formatTime(header.CreatedAt),
		ReasonCode:  header.ReasonCode,
	}

	for _, record := range records {
		var series RejectSeries
		if err := json.Unmarshal(record, &series); err != nil {
			return fmt.Errorf("failed to decode reject record: %w", err)
		}
		doc.Series = append(doc.Series, jsonRejectSeries{
			TransactionID: series.TransactionID,
			OriginalID:    series.OriginalTransactionID,
			ErrorCode:     series.ErrorCode,
			ErrorMessage:  series.ErrorMessage,
		})
	}

	return writeJSONDocument(w, "RejectRequestEnergyResult_MarketDocument", doc)
}

// NotifyWholesaleResult

type jsonWholesaleDocument struct {
	MessageID         string                `json:"mRID"`
	Type              string                `json:"type"`
	ProcessType       string                `json:"processType"`
	Sender            jsonParty             `json:"sender"`
	Receiver          jsonParty             `json:"receiver"`
	CreatedAt         string                `json:"createdDateTime"`
	SettlementVersion *string               `json:"settlementVersion,omitempty"`
	Series            []jsonWholesaleSeries `json:"series"`
}

type jsonWholesaleSeries struct {
	TransactionID  string               `json:"mRID"`
	Version        string               `json:"version"`
	GridArea       string               `json:"gridArea"`
	EnergySupplier string               `json:"energySupplier"`
	ChargeType     *string              `json:"chargeType,omitempty"`
	ChargeOwner    *string              `json:"chargeOwner,omitempty"`
	Currency       string               `json:"currency"`
	MeasureUnit    string               `json:"measureUnit"`
	Resolution     string               `json:"resolution"`
	Start          string               `json:"start"`
	End            string               `json:"end"`
	Points         []jsonWholesalePoint `json:"points"`
}

type jsonWholesalePoint struct {
	Position int     `json:"position"`
	Quantity *string `json:"quantity,omitempty"`
	Price    *string `json:"price,omitempty"`
	Amount   *string `json:"amount,omitempty"`
	Quality  *string `json:"quality,omitempty"`
}

type jsonWholesaleResultWriter struct{}

func newJSONWholesaleResultWriter() *jsonWholesaleResultWriter { return &jsonWholesaleResultWriter{} }

func (jsonWholesaleResultWriter) DocumentType() models.DocumentType {
	return models.DocNotifyWholesaleResult
}
func (jsonWholesaleResultWriter) Format() models.DocumentFormat { return models.FormatJSON }

func (jw jsonWholesaleResultWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	typeCode, err := cimDocumentTypeCode(models.DocNotifyWholesaleResult)
	if err != nil {
		return err
	}
	processType, err := businessReasonCode(header.BusinessReason)
	if err != nil {
		return err
	}
	sender, err := jsonHeaderParty(header.Sender)
	if err != nil {
		return err
	}
	receiver, err := jsonHeaderParty(header.Receiver)
	if err != nil {
		return err
	}

	var settlementVersion *string
	if header.SettlementVersion != nil {
		code, err := settlementVersionCode(*header.SettlementVersion)
		if err != nil {
			return err
		}
		settlementVersion = &code
	}

	doc := jsonWholesaleDocument{
		MessageID:         header.MessageID,
		Type:              typeCode,
		ProcessType:       processType,
		Sender:            sender,
		Receiver:          receiver,
		CreatedAt:         formatTime(header.CreatedAt),
		SettlementVersion: settlementVersion,
	}

	for _, record := range records {
		var series WholesaleSeries
		if err := json.Unmarshal(record, &series); err != nil {
			return fmt.Errorf("failed to decode wholesale record: %w", err)
		}

		points := make([]jsonWholesalePoint, len(series.Points))
		for i, p := range series.Points {
			point := jsonWholesalePoint{Position: p.Position}
			if p.Quantity != nil {
				quantity := formatDecimal(*p.Quantity)
				point.Quantity = &quantity
			}
			if p.Price != nil {
				price := formatDecimal(*p.Price)
				point.Price = &price
			}
			if p.Amount != nil {
				amount := formatDecimal(*p.Amount)
				point.Amount = &amount
			}
			if p.Quality != nil {
				quality, err := cimQualityCode(*p.Quality)
				if err != nil {
					return err
				}
				point.Quality = &quality
			}
			points[i] = point
		}

		doc.Series = append(doc.Series, jsonWholesaleSeries{
			TransactionID:  series.TransactionID,
			Version:        strconv.FormatInt(series.CalculationVersion, 10),
			GridArea:       series.GridArea,
			EnergySupplier: series.EnergySupplier,
			ChargeType:     series.ChargeType,
			ChargeOwner:    series.ChargeOwner,
			Currency:       series.Currency,
			MeasureUnit:    series.MeasureUnit,
			Resolution:     series.Period.Resolution,
			Start:          formatTime(series.Period.Start),
			End:            formatTime(series.Period.End),
			Points:         points,
		})
	}

	return writeJSONDocument(w, "NotifyWholesaleResult_MarketDocument", doc)
}
