package server

import (
	"github.com/hazardtrack/dts/modules/records/domain/fieldsdef"
)

func assetFieldsDef(rc reqCtx, _ Tenant) fieldsdef.Defs {
	return fieldsdef.Defs{
		{
			Key:   "sectorIds",
			Label: rc.T("common.sector", "Sector", nil),
			Kind:  fieldsdef.KindOther,
		},
		{
			Key:      "name",
			Label:    rc.T("common.name", "Name", nil),
			Kind:     fieldsdef.KindText,
			Required: true,
			CSVMatch: []string{"name"},
		},
		{
			Key:      "category",
			Label:    rc.T("common.category", "Category", nil),
			Kind:     fieldsdef.KindText,
			CSVMatch: []string{"category"},
		},
		{
			Key:      "nationalId",
			Label:    rc.T("common.national_id", "National ID", nil),
			Kind:     fieldsdef.KindText,
			CSVMatch: []string{"national id"},
		},
		{
			Key:   "notes",
			Label: rc.T("common.notes", "Notes", nil),
			Kind:  fieldsdef.KindTextarea,
		},
		{Key: "apiImportId", Label: "", Kind: fieldsdef.KindOther},
	}
}

var assetColumns = map[string]string{
	"sectorIds":   "sector_ids",
	"name":        "name",
	"category":    "category",
	"nationalId":  "national_id",
	"notes":       "notes",
	"apiImportId": "api_import_id",
}

func newAssetAPI(store RecordStore) entityAPI {
	return entityAPI{
		base:  "assets",
		defs:  assetFieldsDef,
		store: store,
	}
}
