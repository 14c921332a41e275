package codec

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/mkthub/edi/internal/models"
)

const (
	ebixEnergyNamespace  = "un:unece:260:data:EEM-DK_NotifyAggregatedEnergyTimeSeries:v3"
	ebixListAgency       = "260"
	ebixSchemeAgency     = "9"
	ebixDocumentTypeCode = "E31"
	ebixSeriesFunction   = "9"
)

type ebixCodeValue struct {
	ListAgency string `xml:"listAgencyIdentifier,attr"`
	Value      string `xml:",chardata"`
}

type ebixPartyID struct {
	SchemeAgency string `xml:"schemeAgencyIdentifier,attr"`
	Value        string `xml:",chardata"`
}

type ebixEnergyDocument struct {
	XMLName   xml.Name           `xml:"ns0:DK_NotifyAggregatedEnergyTimeSeries"`
	Namespace string             `xml:"xmlns:ns0,attr"`
	Header    ebixHeader         `xml:"ns0:HeaderEnergyDocument"`
	Context   ebixProcessContext `xml:"ns0:ProcessEnergyContext"`
	Series    []ebixSeries       `xml:"ns0:PayloadEnergyTimeSeries"`
}

type ebixHeader struct {
	Identification string        `xml:"ns0:Identification"`
	DocumentType   ebixCodeValue `xml:"ns0:DocumentType"`
	Creation       string        `xml:"ns0:Creation"`
	Sender         ebixParty     `xml:"ns0:SenderEnergyParty"`
	Recipient      ebixParty     `xml:"ns0:RecipientEnergyParty"`
}

type ebixParty struct {
	Identification ebixPartyID `xml:"ns0:Identification"`
}

type ebixProcessContext struct {
	BusinessProcess ebixCodeValue `xml:"ns0:EnergyBusinessProcess"`
	ProcessRole     ebixCodeValue `xml:"ns0:EnergyBusinessProcessRole"`
	Classification  ebixCodeValue `xml:"ns0:EnergyIndustryClassification"`
}

type ebixSeries struct {
	Identification string            `xml:"ns0:Identification"`
	Function       string            `xml:"ns0:Function"`
	Period         ebixPeriod        `xml:"ns0:ObservationTimeSeriesPeriod"`
	Product        ebixProduct       `xml:"ns0:IncludedProductCharacteristic"`
	PointDetail    ebixPointDetail   `xml:"ns0:DetailMeasurementMeteringPointCharacteristic"`
	GridArea       ebixGridArea      `xml:"ns0:MeteringGridAreaUsedDomainLocation"`
	Observations   []ebixObservation `xml:"ns0:IntervalEnergyObservation"`
}

type ebixPeriod struct {
	Resolution string `xml:"ns0:ResolutionDuration"`
	Start      string `xml:"ns0:Start"`
	End        string `xml:"ns0:End"`
}

type ebixProduct struct {
	Identification string `xml:"ns0:Identification"`
	UnitType       string `xml:"ns0:UnitType"`
}

type ebixPointDetail struct {
	TypeOfMeteringPoint string `xml:"ns0:TypeOfMeteringPoint"`
}

type ebixGridArea struct {
	Identification ebixPartyID `xml:"ns0:Identification"`
}

type ebixObservation struct {
	Position int     `xml:"ns0:Position"`
	Quantity *string `xml:"ns0:EnergyQuantity,omitempty"`
	Quality  *string `xml:"ns0:QuantityQuality,omitempty"`
}

type ebixEnergyResultWriter struct{}

func newEbixEnergyResultWriter() *ebixEnergyResultWriter { return &ebixEnergyResultWriter{} }

func (ebixEnergyResultWriter) DocumentType() models.DocumentType {
	return models.DocNotifyEnergyResult
}
func (ebixEnergyResultWriter) Format() models.DocumentFormat { return models.FormatEbixXML }

func (ew ebixEnergyResultWriter) Write(header DocumentHeader, records []json.RawMessage, w io.Writer) error {
	reason, err := businessReasonCode(header.BusinessReason)
	if err != nil {
		return err
	}
	receiverRole, err := roleCode(header.Receiver.Role)
	if err != nil {
		return err
	}

	doc := ebixEnergyDocument{
		Namespace: ebixEnergyNamespace,
		Header: ebixHeader{
			Identification: header.MessageID,
			DocumentType:   ebixCodeValue{ListAgency: ebixListAgency, Value: ebixDocumentTypeCode},
			Creation:       formatTime(header.CreatedAt),
			Sender:         ebixParty{Identification: ebixPartyID{SchemeAgency: ebixSchemeAgency, Value: header.Sender.Number}},
			Recipient:      ebixParty{Identification: ebixPartyID{SchemeAgency: ebixSchemeAgency, Value: header.Receiver.Number}},
		},
		Context: ebixProcessContext{
			BusinessProcess: ebixCodeValue{ListAgency: ebixListAgency, Value: reason},
			ProcessRole:     ebixCodeValue{ListAgency: ebixListAgency, Value: receiverRole},
			Classification:  ebixCodeValue{ListAgency: "6", Value: cimBusinessSector},
		},
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

		observations := make([]ebixObservation, len(series.Points))
		for i, p := range series.Points {
			obs := ebixObservation{Position: p.Position}
			if p.Quantity != nil {
				quantity := formatDecimal(*p.Quantity)
				obs.Quantity = &quantity
			}
			if p.Quality != nil {
				quality, err := ebixQualityCode(*p.Quality)
				if err != nil {
					return err
				}
				obs.Quality = &quality
			}
			observations[i] = obs
		}

		doc.Series = append(doc.Series, ebixSeries{
			Identification: series.TransactionID,
			Function:       ebixSeriesFunction,
			Period: ebixPeriod{
				Resolution: series.Period.Resolution,
				Start:      formatTime(series.Period.Start),
				End:        formatTime(series.Period.End),
			},
			Product:     ebixProduct{Identification: cimEnergyProduct, UnitType: series.MeasureUnit},
			PointDetail: ebixPointDetail{TypeOfMeteringPoint: pointType},
			GridArea: ebixGridArea{
				Identification: ebixPartyID{SchemeAgency: ebixSchemeAgency, Value: series.GridArea},
			},
			Observations: observations,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode ebix document: %w", err)
	}
	return nil
}
