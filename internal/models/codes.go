package models

// ActorRole defines the regulatory role a market participant acts in.
type ActorRole string

const (
	RoleEnergySupplier           ActorRole = "ENERGY_SUPPLIER"
	RoleGridAccessProvider       ActorRole = "GRID_ACCESS_PROVIDER"
	RoleBalanceResponsibleParty  ActorRole = "BALANCE_RESPONSIBLE_PARTY"
	RoleMeteredDataResponsible   ActorRole = "METERED_DATA_RESPONSIBLE"
	RoleMeteredDataAdministrator ActorRole = "METERED_DATA_ADMINISTRATOR"
	RoleSystemOperator           ActorRole = "SYSTEM_OPERATOR"
)

// Valid reports whether the role is a known member of the closed set.
func (r ActorRole) Valid() bool {
	switch r {
	case RoleEnergySupplier, RoleGridAccessProvider, RoleBalanceResponsibleParty,
		RoleMeteredDataResponsible, RoleMeteredDataAdministrator, RoleSystemOperator:
		return true
	}
	return false
}

// BusinessReason defines why a market message was produced.
type BusinessReason string

const (
	ReasonPreliminaryAggregation BusinessReason = "PRELIMINARY_AGGREGATION"
	ReasonBalanceFixing          BusinessReason = "BALANCE_FIXING"
	ReasonWholesaleFixing        BusinessReason = "WHOLESALE_FIXING"
	ReasonCorrection             BusinessReason = "CORRECTION"
	ReasonMoveIn                 BusinessReason = "MOVE_IN"
)

func (b BusinessReason) Valid() bool {
	switch b {
	case ReasonPreliminaryAggregation, ReasonBalanceFixing, ReasonWholesaleFixing,
		ReasonCorrection, ReasonMoveIn:
		return true
	}
	return false
}

// DocumentType defines the kind of market document a message belongs to.
type DocumentType string

const (
	DocNotifyEnergyResult        DocumentType = "NOTIFY_ENERGY_RESULT"
	DocRejectRequestEnergyResult DocumentType = "REJECT_REQUEST_ENERGY_RESULT"
	DocNotifyWholesaleResult     DocumentType = "NOTIFY_WHOLESALE_RESULT"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocNotifyEnergyResult, DocRejectRequestEnergyResult, DocNotifyWholesaleResult:
		return true
	}
	return false
}

// DocumentFormat defines the wire format a document is rendered in.
type DocumentFormat string

const (
	FormatCIMXML  DocumentFormat = "CIM_XML"
	FormatEbixXML DocumentFormat = "EBIX_XML"
	FormatJSON    DocumentFormat = "JSON"
)

func (f DocumentFormat) Valid() bool {
	switch f {
	case FormatCIMXML, FormatEbixXML, FormatJSON:
		return true
	}
	return false
}

// FileExtension returns the extension used for stored documents of this format.
func (f DocumentFormat) FileExtension() string {
	if f == FormatJSON {
		return "json"
	}
	return "xml"
}

// QuantityQuality qualifies how a point's quantity was obtained.
type QuantityQuality string

const (
	QualityMeasured   QuantityQuality = "MEASURED"
	QualityEstimated  QuantityQuality = "ESTIMATED"
	QualityCalculated QuantityQuality = "CALCULATED"
	QualityMissing    QuantityQuality = "MISSING"
)

// MeteringPointType defines the metering point category a series covers.
type MeteringPointType string

const (
	MeteringPointConsumption MeteringPointType = "CONSUMPTION"
	MeteringPointProduction  MeteringPointType = "PRODUCTION"
	MeteringPointExchange    MeteringPointType = "EXCHANGE"
)

// SettlementVersion distinguishes correction runs of the same settlement.
type SettlementVersion string

const (
	SettlementFirstCorrection  SettlementVersion = "FIRST_CORRECTION"
	SettlementSecondCorrection SettlementVersion = "SECOND_CORRECTION"
	SettlementThirdCorrection  SettlementVersion = "THIRD_CORRECTION"
)
