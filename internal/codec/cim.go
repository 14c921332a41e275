package codec

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/mkthub/edi/internal/models"
)

// CIM constants fixed by the wire standard.
const (
	cimGLNScheme       = "A10"
	cimGridAreaScheme  = "NDK"
	cimBusinessSector  = "23"
	cimEnergyProduct   = "8716867000030"
	cimEnergyNamespace = "urn:ediel.org:measure:notifyenergyresult:0:1"
	cimRejectNamespace = "urn:ediel.org:measure:rejectrequestenergyresult:0:1"
	cimWholesaleNS     = "urn:ediel.org:measure:notifywholesaleresult:0:1"
)

type cimPartyID struct {
	Scheme string `xml:"codingScheme,attr"`
	Value  string `xml:",chardata"`
}

type cimTimeInterval struct {
	Start string `xml:"cim:start"`
	End   string `xml:"cim:end"`
}

type cimPoint struct {
	Position int     `xml:"cim:position"`
	Quantity *string `xml:"cim:quantity,omitempty"`
	Quality  *string `xml:"cim:quality,omitempty"`
}

type cimPeriod struct {
	Resolution   string          `xml:"cim:resolution"`
	TimeInterval cimTimeInterval `xml:"cim:timeInterval"`
	Points       []cimPoint      `xml:"cim:Point"`
}

// cimDocumentHeader is the common leading section of every CIM document.
type cimDocumentHeader struct {
	MessageID      string
	Type           string
	ProcessType    string
	SenderID       cimPartyID
	SenderRole     string
	ReceiverID     cimPartyID
	ReceiverRole   string
	CreatedAt      string
	BusinessSector string
}

func buildCIMHeader(docType models.DocumentType, header DocumentHeader) (cimDocumentHeader, error) {
	typeCode, err := cimDocumentTypeCode(docType)
	if err != nil {
		return cimDocumentHeader{}, err
	}
	processType, err := businessReasonCode(header.BusinessReason)
	if err != nil {
		return cimDocumentHeader{}, err
	}
	senderRole, err := roleCode(header.Sender.Role)
	if err != nil {
		return cimDocumentHeader{}, err
	}
	receiverRole, err := roleCode(header.Receiver.Role)
	if err != nil {
		return cimDocumentHeader{}, err
	}
	return cimDocumentHeader{
		MessageID:      header.MessageID,
		Type:           typeCode,
		ProcessType:    processType,
		SenderID:       cimPartyID{Scheme: cimGLNScheme, Value: header.Sender.Number},
		SenderRole:     senderRole,
		ReceiverID:     cimPartyID{Scheme: cimGLNScheme, Value: header.Receiver.Number},
		ReceiverRole:   receiverRole,
		CreatedAt:      formatTime(header.CreatedAt),
		BusinessSector: cimBusinessSector,
	}, nil
}

func writeCIMDocument(w io.Writer, doc any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode cim document: %w", err)
	}
	return nil
}

// NotifyEnergyResult

type cimEnergyDocument struct {
	XMLName        xml.Name          `xml:"cim:NotifyEnergyResult_MarketDocument"`
	Namespace      string            `xml:"xmlns:cim,attr"`
	MessageID      string            `xml:"cim:mRID"`
	Type           string            `xml:"cim:type"`
	ProcessType    string            `xml:"cim:process.processType"`
	BusinessSector string            `xml:"cim:businessSector.type"`
	SenderID       cimPartyID        `xml:"cim:sender_MarketParticipant.mRID"`
	SenderRole     string            `xml:"cim:sender_MarketParticipant.marketRole.type"`
	ReceiverID     cimPartyID        `xml:"cim:receiver_MarketParticipant.mRID"`
	ReceiverRole   string            `xml:"cim:receiver_MarketParticipant.marketRole.type"`
	CreatedAt      string            `xml:"cim:createdDateTime"`
	Series         []cimEnergySeries `xml:"cim:Series"`
}

type cimEnergySeries struct {
	TransactionID     string     `xml:"cim:mRID"`
	Version           string     `xml:"cim:version"`
	SettlementVersion *string    `xml:"cim:settlement_Series.version,omitempty"`
	MeteringPointType string     `xml:"cim:marketEvaluationPoint.type"`
	SettlementMethod  *string    `xml:"cim:marketEvaluationPoint.settlementMethod,omitempty"`
	GridArea          cimPartyID `xml:"cim:meteringGridArea_Domain.mRID"`
	Product           string     `xml:"cim:product"`
	MeasureUnit       string     `xml:"cim:quantity_Measure_Unit.name"`
	Period            cimPeriod  `xml:"cim:Period"`
}

type cimEnergyResultWriter struct{}

func newCIMEnergyResultWriter() *cimEnergyResultWriter { return &cimEnergyResultWriter{} }

func (cimEnergyResultWriter) DocumentType() models.DocumentType { return models.DocNotifyEnergyResult }
func (cimEnergyResultWriter) Format() models.DocumentFormat     { return models.FormatCIMXML }

func (cw cimEnergyResultWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	common, err := buildCIMHeader(models.DocNotifyEnergyResult, header)
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

	doc := cimEnergyDocument{
		Namespace:      cimEnergyNamespace,
		MessageID:      common.MessageID,
		Type:           common.Type,
		ProcessType:    common.ProcessType,
		BusinessSector: common.BusinessSector,
		SenderID:       common.SenderID,
		SenderRole:     common.SenderRole,
		ReceiverID:     common.ReceiverID,
		ReceiverRole:   common.ReceiverRole,
		CreatedAt:      common.CreatedAt,
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

		points := make([]cimPoint, len(series.Points))
		for i, p := range series.Points {
			point := cimPoint{Position: p.Position}
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

		doc.Series = append(doc.Series, cimEnergySeries{
			TransactionID:     series.TransactionID,
			Version:           strconv.FormatInt(series.CalculationVersion, 10),
			SettlementVersion: settlementVersion,
			MeteringPointType: pointType,
			SettlementMethod:  series.SettlementMethod,
			GridArea:          cimPartyID{Scheme: cimGridAreaScheme, Value: series.GridArea},
			Product:           cimEnergyProduct,
			MeasureUnit:       series.MeasureUnit,
			Period: cimPeriod{
				Resolution: series.Period.Resolution,
				TimeInterval: cimTimeInterval{
					Start: formatTime(series.Period.Start),
					End:   formatTime(series.Period.End),
				},
				Points: points,
			},
		})
	}

	return writeCIMDocument(w, doc)
}

// RejectRequestEnergyResult

type cimRejectDocument struct {
	XMLName        xml.Name          `xml:"cim:RejectRequestEnergyResult_MarketDocument"`
	Namespace      string            `xml:"xmlns:cim,attr"`
	MessageID      string            `xml:"cim:mRID"`
	Type           string            `xml:"cim:type"`
	ProcessType    string            `xml:"cim:process.processType"`
	BusinessSector string            `xml:"cim:businessSector.type"`
	SenderID       cimPartyID        `xml:"cim:sender_MarketParticipant.mRID"`
	SenderRole     string            `xml:"cim:sender_MarketParticipant.marketRole.type"`
	ReceiverID     cimPartyID        `xml:"cim:receiver_MarketParticipant.mRID"`
	ReceiverRole   string            `xml:"cim:receiver_MarketParticipant.marketRole.type"`
	CreatedAt      string            `xml:"cim:createdDateTime"`
	ReasonCode     *string           `xml:"cim:reason.code,omitempty"`
	Series         []cimRejectSeries `xml:"cim:Series"`
}

type cimRejectSeries struct {
	TransactionID string    `xml:"cim:mRID"`
	OriginalID    string    `xml:"cim:originalTransactionIDReference_Series.mRID"`
	Reason        cimReason `xml:"cim:Reason"`
}

type cimReason struct {
	Code string `xml:"cim:code"`
	Text string `xml:"cim:text"`
}

type cimRejectRequestWriter struct{}

func newCIMRejectRequestWriter() *cimRejectRequestWriter { return &cimRejectRequestWriter{} }

func (cimRejectRequestWriter) DocumentType() models.DocumentType {
	return models.DocRejectRequestEnergyResult
}
func (cimRejectRequestWriter) Format() models.DocumentFormat { return models.FormatCIMXML }

func (cw cimRejectRequestWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	common, err := buildCIMHeader(models.DocRejectRequestEnergyResult, header)
	if err != nil {
		return err
	}

	doc := cimRejectDocument{
		Namespace:      cimRejectNamespace,
		MessageID:      common.MessageID,
		Type:           common.Type,
		ProcessType:    common.ProcessType,
		BusinessSector: common.BusinessSector,
		SenderID:       common.SenderID,
		SenderRole:     common.SenderRole,
		ReceiverID:     common.ReceiverID,
		ReceiverRole:   common.ReceiverRole,
		CreatedAt:      common.CreatedAt,
		ReasonCode:     header.ReasonCode,
	}

	for _, record := range records {
		var series RejectSeries
		if err := json.Unmarshal(record, &series); err != nil {
			return fmt.Errorf("failed to decode reject record: %w", err)
		}
		doc.Series = append(doc.Series, cimRejectSeries{
			TransactionID: series.TransactionID,
			OriginalID:    series.OriginalTransactionID,
			Reason:        cimReason{Code: series.ErrorCode, Text: series.ErrorMessage},
		})
	}

	return writeCIMDocument(w, doc)
}

// NotifyWholesaleResult

type cimWholesaleDocument struct {
	XMLName        xml.Name             `xml:"cim:NotifyWholesaleResult_MarketDocument"`
	Namespace      string               `xml:"xmlns:cim,attr"`
	MessageID      string               `xml:"cim:mRID"`
	Type           string               `xml:"cim:type"`
	ProcessType    string               `xml:"cim:process.processType"`
	BusinessSector string               `xml:"cim:businessSector.type"`
	SenderID       cimPartyID           `xml:"cim:sender_MarketParticipant.mRID"`
	SenderRole     string               `xml:"cim:sender_MarketParticipant.marketRole.type"`
	ReceiverID     cimPartyID           `xml:"cim:receiver_MarketParticipant.mRID"`
	ReceiverRole   string               `xml:"cim:receiver_MarketParticipant.marketRole.type"`
	CreatedAt      string               `xml:"cim:createdDateTime"`
	Series         []cimWholesaleSeries `xml:"cim:Series"`
}

type cimWholesaleSeries struct {
	TransactionID     string             `xml:"cim:mRID"`
	Version           string             `xml:"cim:version"`
	SettlementVersion *string            `xml:"cim:settlement_Series.version,omitempty"`
	ChargeType        *string            `xml:"cim:chargeType.type,omitempty"`
	ChargeOwner       *cimPartyID        `xml:"cim:chargeTypeOwner_MarketParticipant.mRID,omitempty"`
	EnergySupplier    cimPartyID         `xml:"cim:energySupplier_MarketParticipant.mRID"`
	GridArea          cimPartyID         `xml:"cim:meteringGridArea_Domain.mRID"`
	Currency          string             `xml:"cim:currency_Unit.name"`
	MeasureUnit       string             `xml:"cim:quantity_Measure_Unit.name"`
	Period            cimWholesalePeriod `xml:"cim:Period"`
}

type cimWholesalePeriod struct {
	Resolution   string              `xml:"cim:resolution"`
	TimeInterval cimTimeInterval     `xml:"cim:timeInterval"`
	Points       []cimWholesalePoint `xml:"cim:Point"`
}

type cimWholesalePoint struct {
	Position int     `xml:"cim:position"`
	Quantity *string `xml:"cim:quantity,omitempty"`
	Price    *string `xml:"cim:price.amount,omitempty"`
	Amount   *string `xml:"cim:energySum_Quantity.quantity,omitempty"`
	Quality  *string `xml:"cim:quality,omitempty"`
}

type cimWholesaleResultWriter struct{}

func newCIMWholesaleResultWriter() *cimWholesaleResultWriter { return &cimWholesaleResultWriter{} }

func (cimWholesaleResultWriter) DocumentType() models.DocumentType {
	return models.DocNotifyWholesaleResult
}
func (cimWholesaleResultWriter) Format() models.DocumentFormat { return models.FormatCIMXML }

func (cw cimWholesaleResultWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	common, err := buildCIMHeader(models.DocNotifyWholesaleResult, header)
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

	doc := cimWholesaleDocument{
		Namespace:      cimWholesaleNS,
		MessageID:      common.MessageID,
		Type:           common.Type,
		ProcessType:    common.ProcessType,
		BusinessSector: common.BusinessSector,
		SenderID:       common.SenderID,
		SenderRole:     common.SenderRole,
		ReceiverID:     common.ReceiverID,
		ReceiverRole:   common.ReceiverRole,
		CreatedAt:      common.CreatedAt,
	}

	for _, record := range records {
		var series WholesaleSeries
		if err := json.Unmarshal(record, &series); err != nil {
			return fmt.Errorf("failed to decode wholesale record: %w", err)
		}

		points := make([]cimWholesalePoint, len(series.Points))
		for i, p := range series.Points {
			point := cimWholesalePoint{Position: p.Position}
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

		var chargeOwner *cimPartyID
		if series.ChargeOwner != nil {
			chargeOwner = &cimPartyID{Scheme: cimGLNScheme, Value: *series.ChargeOwner}
		}

		doc.Series = append(doc.Series, cimWholesaleSeries{
			TransactionID:     series.TransactionID,
			Version:           strconv.FormatInt(series.CalculationVersion, 10),
			SettlementVersion: settlementVersion,
			ChargeType:        series.ChargeType,
			ChargeOwner:       chargeOwner,
			EnergySupplier:    cimPartyID{Scheme: cimGLNScheme, Value: series.EnergySupplier},
			GridArea:          cimPartyID{Scheme: cimGridAreaScheme, Value: series.GridArea},
			Currency:          series.Currency,
			MeasureUnit:       series.MeasureUnit,
			Period: cimWholesalePeriod{
				Resolution: series.Period.Resolution,
				TimeInterval: cimTimeInterval{
					Start: formatTime(series.Period.Start),
					End:   formatTime(series.Period.End),
				},
				Points: points,
			},
		})
	}

	return writeCIMDocument(w, doc)
}
