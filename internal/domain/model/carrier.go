package model

import "time"

// Carrier — запись реестра перевозчиков (таблица carrier_data).
// Все поля, кроме USDOT, nullable: реестр отдаёт неполные карточки.
type Carrier struct {
	USDOT string `json:"usdot"`

	EntityType       *string `json:"entity_type"`
	USDOTStatus      *string `json:"usdot_status"`
	LegalName        *string `json:"legal_name"`
	DBAName          *string `json:"dba_name"`
	PhysicalAddress  *string `json:"physical_address"`
	MailingAddress   *string `json:"mailing_address"`
	Phone            *string `json:"phone"`
	StateCarrierID   *string `json:"state_carrier_id"`
	MCMXFFNumbers    *string `json:"mc_mx_ff_numbers"`
	DUNSNumber       *string `json:"duns_number"`
	PowerUnits       *int64  `json:"power_units"`
	Drivers          *int64  `json:"drivers"`
	MCS150FormDate   *string `json:"mcs_150_form_date"`
	MCS150Mileage    *int64  `json:"mcs_150_mileage_year_mileage"`
	MCS150MileageYr  *int64  `json:"mcs_150_mileage_year_year"`
	OutOfServiceDate *string `json:"out_of_service_date"`

	OperatingAuthorityStatus *string `json:"operating_authority_status"`
	OperationClassification  *string `json:"operation_classification"`
	CarrierOperation         *string `json:"carrier_operation"`
	HMShipperOperation       *string `json:"hm_shipper_operation"`
	CargoCarried             *string `json:"cargo_carried"`

	// Инспекции США
	USAVehicleInspections      *int64  `json:"usa_vehicle_inspections"`
	USAVehicleOutOfService     *int64  `json:"usa_vehicle_out_of_service"`
	USAVehicleOutOfServicePct  *string `json:"usa_vehicle_out_of_service_percent"`
	USAVehicleNationalAverage  *string `json:"usa_vehicle_national_average"`
	USADriverInspections       *int64  `json:"usa_driver_inspections"`
	USADriverOutOfService      *int64  `json:"usa_driver_out_of_service"`
	USADriverOutOfServicePct   *string `json:"usa_driver_out_of_service_percent"`
	USADriverNationalAverage   *string `json:"usa_driver_national_average"`
	USAHazmatInspections       *int64  `json:"usa_hazmat_inspections"`
	USAHazmatOutOfService      *int64  `json:"usa_hazmat_out_of_service"`
	USAHazmatOutOfServicePct   *string `json:"usa_hazmat_out_of_service_percent"`
	USAHazmatNationalAverage   *string `json:"usa_hazmat_national_average"`
	USAIEPInspections          *int64  `json:"usa_iep_inspections"`
	USAIEPOutOfService         *int64  `json:"usa_iep_out_of_service"`
	USAIEPOutOfServicePct      *string `json:"usa_iep_out_of_service_percent"`
	USAIEPNationalAverage      *string `json:"usa_iep_national_average"`
	USACrashesTow              *int64  `json:"usa_crashes_tow"`
	USACrashesFatal            *int64  `json:"usa_crashes_fatal"`
	USACrashesInjury           *int64  `json:"usa_crashes_injury"`
	USACrashesTotal            *int64  `json:"usa_crashes_total"`

	// Инспекции Канады
	CanadaDriverOutOfService     *int64  `json:"canada_driver_out_of_service"`
	CanadaDriverOutOfServicePct  *string `json:"canada_driver_out_of_service_percent"`
	CanadaDriverInspections      *int64  `json:"canada_driver_inspections"`
	CanadaVehicleOutOfService    *int64  `json:"canada_vehicle_out_of_service"`
	CanadaVehicleOutOfServicePct *string `json:"canada_vehicle_out_of_service_percent"`
	CanadaVehicleInspections     *int64  `json:"canada_vehicle_inspections"`
	CanadaCrashesTow             *int64  `json:"canada_crashes_tow"`
	CanadaCrashesFatal           *int64  `json:"canada_crashes_fatal"`
	CanadaCrashesInjury          *int64  `json:"canada_crashes_injury"`
	CanadaCrashesTotal           *int64  `json:"canada_crashes_total"`

	SafetyRatingDate *string `json:"safety_rating_date"`
	SafetyReviewDate *string `json:"safety_review_date"`
	SafetyRating     *string `json:"safety_rating"`
	SafetyType       *string `json:"safety_type"`
	LatestUpdate     *string `json:"latest_update"`
	URL              *string `json:"url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CarrierField — колонка carrier_data и указатель на соответствующее поле.
// Ptr имеет тип **string или **int64.
type CarrierField struct {
	Column string
	Ptr    any
}

// Fields возвращает атрибуты реестра в порядке колонок таблицы (без usdot
// и служебных меток времени). Используется и репозиторием, и маппингом
// ответа реестра, поэтому порядок и имена должны совпадать с миграцией.
func (c *Carrier) Fields() []CarrierField {
	return []CarrierField{
		{"entity_type", &c.EntityType},
		{"usdot_status", &c.USDOTStatus},
		{"legal_name", &c.LegalName},
		{"dba_name", &c.DBAName},
		{"physical_address", &c.PhysicalAddress},
		{"mailing_address", &c.MailingAddress},
		{"phone", &c.Phone},
		{"state_carrier_id", &c.StateCarrierID},
		{"mc_mx_ff_numbers", &c.MCMXFFNumbers},
		{"duns_number", &c.DUNSNumber},
		{"power_units", &c.PowerUnits},
		{"drivers", &c.Drivers},
		{"mcs_150_form_date", &c.MCS150FormDate},
		{"mcs_150_mileage_year_mileage", &c.MCS150Mileage},
		{"mcs_150_mileage_year_year", &c.MCS150MileageYr},
		{"out_of_service_date", &c.OutOfServiceDate},
		{"operating_authority_status", &c.OperatingAuthorityStatus},
		{"operation_classification", &c.OperationClassification},
		{"carrier_operation", &c.CarrierOperation},
		{"hm_shipper_operation", &c.HMShipperOperation},
		{"cargo_carried", &c.CargoCarried},
		{"usa_vehicle_inspections", &c.USAVehicleInspections},
		{"usa_vehicle_out_of_service", &c.USAVehicleOutOfService},
		{"usa_vehicle_out_of_service_percent", &c.USAVehicleOutOfServicePct},
		{"usa_vehicle_national_average", &c.USAVehicleNationalAverage},
		{"usa_driver_inspections", &c.USADriverInspections},
		{"usa_driver_out_of_service", &c.USADriverOutOfService},
		{"usa_driver_out_of_service_percent", &c.USADriverOutOfServicePct},
		{"usa_driver_national_average", &c.USADriverNationalAverage},
		{"usa_hazmat_inspections", &c.USAHazmatInspections},
		{"usa_hazmat_out_of_service", &c.USAHazmatOutOfService},
		{"usa_hazmat_out_of_service_percent", &c.USAHazmatOutOfServicePct},
		{"usa_hazmat_national_average", &c.USAHazmatNationalAverage},
		{"usa_iep_inspections", &c.USAIEPInspections},
		{"usa_iep_out_of_service", &c.USAIEPOutOfService},
		{"usa_iep_out_of_service_percent", &c.USAIEPOutOfServicePct},
		{"usa_iep_national_average", &c.USAIEPNationalAverage},
		{"usa_crashes_tow", &c.USACrashesTow},
		{"usa_crashes_fatal", &c.USACrashesFatal},
		{"usa_crashes_injury", &c.USACrashesInjury},
		{"usa_crashes_total", &c.USACrashesTotal},
		{"canada_driver_out_of_service", &c.CanadaDriverOutOfService},
		{"canada_driver_out_of_service_percent", &c.CanadaDriverOutOfServicePct},
		{"canada_driver_inspections", &c.CanadaDriverInspections},
		{"canada_vehicle_out_of_service", &c.CanadaVehicleOutOfService},
		{"canada_vehicle_out_of_service_percent", &c.CanadaVehicleOutOfServicePct},
		{"canada_vehicle_inspections", &c.CanadaVehicleInspections},
		{"canada_crashes_tow", &c.CanadaCrashesTow},
		{"canada_crashes_fatal", &c.CanadaCrashesFatal},
		{"canada_crashes_injury", &c.CanadaCrashesInjury},
		{"canada_crashes_total", &c.CanadaCrashesTotal},
		{"safety_rating_date", &c.SafetyRatingDate},
		{"safety_review_date", &c.SafetyReviewDate},
		{"safety_rating", &c.SafetyRating},
		{"safety_type", &c.SafetyType},
		{"latest_update", &c.LatestUpdate},
		{"url", &c.URL},
	}
}

// CarrierColumns — имена колонок атрибутов в порядке Fields.
func CarrierColumns() []string {
	fields := (&Carrier{}).Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return cols
}

// DisplayName — имя для внешних систем: legal name, затем DBA.
func (c *Carrier) DisplayName() string {
	if c.LegalName != nil && *c.LegalName != "" {
		return *c.LegalName
	}
	if c.DBAName != nil && *c.DBAName != "" {
		return *c.DBAName
	}
	return "Unknown Carrier"
}

// CarrierLookup — результат запроса к реестру.
// При Success == false заполнен только Carrier.USDOT.
type CarrierLookup struct {
	Carrier Carrier
	Success bool
}

// FailedLookup возвращает неуспешный результат для номера.
func FailedLookup(usdot string) CarrierLookup {
	return CarrierLookup{Carrier: Carrier{USDOT: usdot}}
}
