package server

import (
	"github.com/hazardtrack/dts/modules/records/domain/fieldsdef"
)

// eventFieldsDef builds the disaster event definition set. Labels are
// localized per request; key order is the documented payload order.
func eventFieldsDef(rc reqCtx, _ Tenant) fieldsdef.Defs {
	return fieldsdef.Defs{
		{
			Key:      "nationalDisasterId",
			Label:    rc.T("disaster_events.national_disaster_id", "National Disaster ID", nil),
			Kind:     fieldsdef.KindText,
			CSVMatch: []string{"national disaster id"},
		},
		{
			Key:      "nameNational",
			Label:    rc.T("disaster_events.name_national", "National Name", nil),
			Kind:     fieldsdef.KindText,
			Required: true,
			CSVMatch: []string{"national name", "name"},
		},
		{
			Key:   "glide",
			Label: rc.T("disaster_events.glide", "GLIDE Number", nil),
			Kind:  fieldsdef.KindText,
		},
		{
			Key:      "startDate",
			Label:    rc.T("common.start_date", "Start Date", nil),
			Kind:     fieldsdef.KindDate,
			Required: true,
			CSVMatch: []string{"start date"},
		},
		{
			Key:      "endDate",
			Label:    rc.T("common.end_date", "End Date", nil),
			Kind:     fieldsdef.KindDate,
			CSVMatch: []string{"end date"},
		},
		{
			Key:   "durationDays",
			Label: rc.T("disaster_events.duration_days", "Duration in days", nil),
			Kind:  fieldsdef.KindNumber,
		},
		{
			Key:   "disasterDeclaration",
			Label: rc.T("disaster_events.disaster_declaration", "Disaster Declaration", nil),
			Kind:  fieldsdef.KindEnum,
			Enum: []fieldsdef.EnumEntry{
				{Key: "unknown", Label: rc.T("common.unknown", "Unknown", nil)},
				{Key: "yes", Label: rc.T("common.yes", "Yes", nil)},
				{Key: "no", Label: rc.T("common.no", "No", nil)},
			},
		},
		{
			Key:   "hadOfficialWarningOrWeatherAdvisory",
			Label: rc.T("disaster_events.had_official_warning", "Official warning or weather advisory issued", nil),
			Kind:  fieldsdef.KindBool,
		},
		{
			Key:   "hazardId",
			Label: rc.T("disaster_events.hazard", "Hazard", nil),
			Kind:  fieldsdef.KindUUID,
		},
		{
			Key:   "responseOperations",
			Label: rc.T("disaster_events.response_operations", "Response operations", nil),
			Kind:  fieldsdef.KindTextarea,
		},
		{
			Key:   "dataSource",
			Label: rc.T("common.data_source", "Data Source", nil),
			Kind:  fieldsdef.KindText,
		},
		{
			Key:   "recordingInstitution",
			Label: rc.T("disaster_events.recording_institution", "Recording Institution", nil),
			Kind:  fieldsdef.KindText,
		},
		{
			Key:   "effectsTotalUsd",
			Label: rc.T("disaster_events.effects_total_usd", "Total effects in USD", nil),
			Kind:  fieldsdef.KindMoney,
		},
		{
			Key:      "spatialFootprint",
			Label:    rc.T("common.spatial_footprint", "Spatial footprint", nil),
			Kind:     fieldsdef.KindOther,
			PSQLType: "jsonb",
		},
		{Key: "apiImportId", Label: "", Kind: fieldsdef.KindOther},
	}
}

var eventColumns = map[string]string{
	"nationalDisasterId":                  "national_disaster_id",
	"nameNational":                        "name_national",
	"glide":                               "glide",
	"startDate":                           "start_date",
	"endDate":                             "end_date",
	"durationDays":                        "duration_days",
	"disasterDeclaration":                 "disaster_declaration",
	"hadOfficialWarningOrWeatherAdvisory": "had_official_warning_or_weather_advisory",
	"hazardId":                            "hazard_id",
	"responseOperations":                  "response_operations",
	"dataSource":                          "data_source",
	"recordingInstitution":                "recording_institution",
	"effectsTotalUsd":                     "effects_total_usd",
	"spatialFootprint":                    "spatial_footprint",
	"apiImportId":                         "api_import_id",
}

func newEventAPI(store RecordStore) entityAPI {
	return entityAPI{
		base:  "disaster-events",
		defs:  eventFieldsDef,
		store: store,
	}
}
