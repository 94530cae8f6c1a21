package server

import (
	"github.com/hazardtrack/dts/modules/records/domain/fieldsdef"
)

var lossesUnitsEnum = []fieldsdef.EnumEntry{
	{Key: "number_count", Label: "Count"},
	{Key: "area_m2", Label: "Square Meters (m²)"},
	{Key: "area_km2", Label: "Square Kilometers (km²)"},
	{Key: "area_ha", Label: "Hectares"},
	{Key: "volume_l", Label: "Liters (L)"},
	{Key: "volume_m3", Label: "Cubic Meters (m³)"},
}

func lossesTypeEnumNotAgriculture(rc reqCtx) []fieldsdef.EnumEntry {
	return []fieldsdef.EnumEntry{
		{Key: "infrastructure_temporary", Label: rc.T("disaster_records.losses.infrastructure_temporary", "Infrastructure- temporary for service/production continuity", nil)},
		{Key: "production_service_delivery_and_availability", Label: rc.T("disaster_records.losses.production_service_delivery_and_availability", "Production, Service delivery and availability of/access to goods and services", nil)},
		{Key: "governance_and_decision_making", Label: rc.T("disaster_records.losses.governance_and_decision_making", "Governance and decision-making", nil)},
		{Key: "risk_and_vulnerabilities", Label: rc.T("disaster_records.losses.risk_and_vulnerabilities", "Risk and vulnerabilities", nil)},
		{Key: "other_losses", Label: rc.T("disaster_records.losses.other_losses", "Other losses", nil)},
		{Key: "employment_and_livelihoods_losses", Label: rc.T("disaster_records.losses.employment_and_livelihoods_losses", "Employment and Livelihoods losses", nil)},
	}
}

func lossesTypeEnumAgriculture(rc reqCtx) []fieldsdef.EnumEntry {
	entries := []fieldsdef.EnumEntry{
		lossesTypeEnumNotAgriculture(rc)[0],
		{Key: "production_losses", Label: rc.T("disaster_records.losses.production_losses", "Production losses", nil)},
	}
	return append(entries, lossesTypeEnumNotAgriculture(rc)[1:]...)
}

// lossesFieldsForPubOrPriv is the public/private value group: a unit, a
// count, a per-unit cost with its currency, and a total that can be
// overridden.
func lossesFieldsForPubOrPriv(rc reqCtx, pub bool, currencies []string) fieldsdef.Defs {
	pre := "private"
	if pub {
		pre = "public"
	}

	currencyEnum := make([]fieldsdef.EnumEntry, 0, len(currencies))
	for _, c := range currencies {
		currencyEnum = append(currencyEnum, fieldsdef.EnumEntry{Key: c, Label: c})
	}

	return fieldsdef.Defs{
		{
			Key:   pre + "Unit",
			Label: rc.T("disaster_records.losses.value_unit", "Value Unit", nil),
			Kind:  fieldsdef.KindEnum,
			Enum:  lossesUnitsEnum,
		},
		{
			Key:   pre + "Units",
			Label: rc.T("disaster_records.losses.value", "Value", nil),
			Kind:  fieldsdef.KindNumber,
		},
		{
			Key:   pre + "CostUnit",
			Label: rc.T("disaster_records.losses.cost_per_unit", "Cost per unit", nil),
			Kind:  fieldsdef.KindMoney,
		},
		{
			Key:   pre + "CostUnitCurrency",
			Label: rc.T("disaster_records.losses.cost_currency", "Cost currency", nil),
			Kind:  fieldsdef.KindEnumFlex,
			Enum:  currencyEnum,
		},
		{
			Key:   pre + "CostTotal",
			Label: rc.T("disaster_records.losses.total_cost", "Total cost", nil),
			Kind:  fieldsdef.KindMoney,
		},
		{
			Key:   pre + "CostTotalOverride",
			Label: rc.T("common.override", "Override", nil),
			Kind:  fieldsdef.KindBool,
		},
	}
}

// lossesFieldsDef depends on the tenant: the currency list drives the
// enum-flex cost currency fields.
func lossesFieldsDef(rc reqCtx, tenant Tenant) fieldsdef.Defs {
	currencies := currenciesForTenant(tenant)

	defs := fieldsdef.Defs{
		{Key: "recordId", Label: "", Kind: fieldsdef.KindUUID},
		{Key: "sectorId", Label: "", Kind: fieldsdef.KindOther},
		{Key: "sectorIsAgriculture", Label: "", Kind: fieldsdef.KindBool},
		{
			Key:   "typeNotAgriculture",
			Label: rc.T("common.type", "Type", nil),
			Kind:  fieldsdef.KindEnum,
			Enum:  lossesTypeEnumNotAgriculture(rc),
		},
		{
			Key:   "typeAgriculture",
			Label: rc.T("common.type", "Type", nil),
			Kind:  fieldsdef.KindEnum,
			Enum:  lossesTypeEnumAgriculture(rc),
		},
		{
			Key:   "description",
			Label: rc.T("common.description", "Description", nil),
			Kind:  fieldsdef.KindTextarea,
		},
	}

	defs = append(defs, lossesFieldsForPubOrPriv(rc, true, currencies)...)
	defs = append(defs, lossesFieldsForPubOrPriv(rc, false, currencies)...)

	return append(defs,
		fieldsdef.FieldDef{
			Key:      "spatialFootprint",
			Label:    rc.T("common.spatial_footprint", "Spatial footprint", nil),
			Kind:     fieldsdef.KindOther,
			PSQLType: "jsonb",
		},
		fieldsdef.FieldDef{
			Key:      "attachments",
			Label:    rc.T("common.attachments", "Attachments", nil),
			Kind:     fieldsdef.KindOther,
			PSQLType: "jsonb",
		},
		fieldsdef.FieldDef{Key: "apiImportId", Label: "", Kind: fieldsdef.KindOther},
	)
}

// lossesNormalize keeps the agriculture split consistent: a sector is
// either agricultural or not, so the opposite type is cleared whenever
// the flag is set.
func lossesNormalize(fields map[string]any) {
	isAgri, ok := fields["sectorIsAgriculture"].(bool)
	if !ok {
		return
	}
	if isAgri {
		if _, present := fields["typeNotAgriculture"]; present {
			fields["typeNotAgriculture"] = nil
		}
	} else {
		if _, present := fields["typeAgriculture"]; present {
			fields["typeAgriculture"] = nil
		}
	}
}

func lossesExtraValidate(fields map[string]any) map[string][]string {
	errs := map[string][]string{}
	for _, key := range []string{"publicUnits", "privateUnits"} {
		if n, ok := fields[key].(float64); ok && n < 0 {
			errs[key] = append(errs[key], "must be >= 0")
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

var lossesColumns = map[string]string{
	"recordId":                 "record_id",
	"sectorId":                 "sector_id",
	"sectorIsAgriculture":      "sector_is_agriculture",
	"typeNotAgriculture":       "type_not_agriculture",
	"typeAgriculture":          "type_agriculture",
	"description":              "description",
	"publicUnit":               "public_unit",
	"publicUnits":              "public_units",
	"publicCostUnit":           "public_cost_unit",
	"publicCostUnitCurrency":   "public_cost_unit_currency",
	"publicCostTotal":          "public_cost_total",
	"publicCostTotalOverride":  "public_cost_total_override",
	"privateUnit":              "private_unit",
	"privateUnits":             "private_units",
	"privateCostUnit":          "private_cost_unit",
	"privateCostUnitCurrency":  "private_cost_unit_currency",
	"privateCostTotal":         "private_cost_total",
	"privateCostTotalOverride": "private_cost_total_override",
	"spatialFootprint":         "spatial_footprint",
	"attachments":              "attachments",
	"apiImportId":              "api_import_id",
}

func newLossesAPI(store RecordStore) entityAPI {
	return entityAPI{
		base:          "losses",
		defs:          lossesFieldsDef,
		store:         store,
		normalize:     lossesNormalize,
		extraValidate: lossesExtraValidate,
	}
}
