package codec

import (
	"fmt"

	"github.com/mkthub/edi/internal/models"
)

// Code tables below are total functions over the closed domain enums. Every
// switch carries a default branch returning ErrUnknownCode so an unmapped
// value surfaces immediately instead of degrading to a fallback code.

func businessReasonCode(r models.BusinessReason) (string, error) {
	switch r {
	case models.ReasonPreliminaryAggregation:
		return "D03", nil
	case models.ReasonBalanceFixing:
		return "D04", nil
	case models.ReasonWholesaleFixing:
		return "D05", nil
	case models.ReasonCorrection:
		return "D32", nil
	case models.ReasonMoveIn:
		return "E65", nil
	default:
		return "", fmt.Errorf("business reason %q: %w", r, ErrUnknownCode)
	}
}

func roleCode(r models.ActorRole) (string, error) {
	switch r {
	case models.RoleEnergySupplier:
		return "DDQ", nil
	case models.RoleGridAccessProvider:
		return "DDM", nil
	case models.RoleBalanceResponsibleParty:
		return "DDK", nil
	case models.RoleMeteredDataResponsible:
		return "MDR", nil
	case models.RoleMeteredDataAdministrator:
		return "DGL", nil
	case models.RoleSystemOperator:
		return "EZ", nil
	default:
		return "", fmt.Errorf("actor role %q: %w", r, ErrUnknownCode)
	}
}

func cimDocumentTypeCode(d models.DocumentType) (string, error) {
	switch d {
	case models.DocNotifyEnergyResult:
		return "E31", nil
	case models.DocRejectRequestEnergyResult:
		return "ERR", nil
	case models.DocNotifyWholesaleResult:
		return "E33", nil
	default:
		return "", fmt.Errorf("document type %q: %w", d, ErrUnknownCode)
	}
}

func cimQualityCode(q models.QuantityQuality) (string, error) {
	switch q {
	case models.QualityMeasured:
		return "A04", nil
	case models.QualityEstimated:
		return "A03", nil
	case models.QualityCalculated:
		return "A06", nil
	case models.QualityMissing:
		return "A02", nil
	default:
		return "", fmt.Errorf("quantity quality %q: %w", q, ErrUnknownCode)
	}
}

// ebixQualityCode deliberately has no mapping for QualityCalculated: the Ebix
// code list does not define one, and emitting a substitute would corrupt the
// receiver's settlement.
func ebixQualityCode(q models.QuantityQuality) (string, error) {
	switch q {
	case models.QualityMeasured:
		return "E01", nil
	case models.QualityEstimated:
		return "56", nil
	case models.QualityMissing:
		return "QM", nil
	default:
		return "", fmt.Errorf("quantity quality %q: %w", q, ErrUnknownCode)
	}
}

func meteringPointTypeCode(t models.MeteringPointType) (string, error) {
	switch t {
	case models.MeteringPointConsumption:
		return "E17", nil
	case models.MeteringPointProduction:
		return "E18", nil
	case models.MeteringPointExchange:
		return "E20", nil
	default:
		return "", fmt.Errorf("metering point type %q: %w", t, ErrUnknownCode)
	}
}

func settlementVersionCode(v models.SettlementVersion) (string, error) {
	switch v {
	case models.SettlementFirstCorrection:
		return "D01", nil
	case models.SettlementSecondCorrection:
		return "D02", nil
	case models.SettlementThirdCorrection:
		return "D03", nil
	default:
		return "", fmt.Errorf("settlement version %q: %w", v, ErrUnknownCode)
	}
}
