// Package fieldsdef holds the declarative per-entity field metadata that
// drives payload validation, API documentation, and CSV column mapping.
// Definitions are built once per request (labels depend on the request
// language) and never mutated afterwards.
package fieldsdef

type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindNumber   Kind = "number"
	KindBool     Kind = "bool"
	KindDate     Kind = "date"
	KindUUID     Kind = "uuid"
	KindEnum     Kind = "enum"
	// KindEnumFlex allows values outside the enum list, for fields whose
	// allowed values change with configuration (currencies).
	KindEnumFlex Kind = "enum-flex"
	KindMoney    Kind = "money"
	KindJSON     Kind = "json"
	KindOther    Kind = "other"
)

type EnumEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type FieldDef struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Kind     Kind        `json:"type"`
	Required bool        `json:"required,omitempty"`
	Enum     []EnumEntry `json:"enumData,omitempty"`
	PSQLType string      `json:"psqlType,omitempty"`
	// CSVMatch lists the header aliases the CSV importer accepts for this
	// field; empty means the field is not importable.
	CSVMatch []string `json:"csvMatch,omitempty"`
}

// Defs preserves declaration order; that order is the contract for docs
// rendering and CSV headers.
type Defs []FieldDef

func (ds Defs) ByKey(key string) (FieldDef, bool) {
	for _, d := range ds {
		if d.Key == key {
			return d, true
		}
	}
	return FieldDef{}, false
}

func (ds Defs) Keys() []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Key)
	}
	return out
}

// CSVHeader lists the columns import/export matches on, in declaration order.
func CSVHeader(ds Defs) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		if len(d.CSVMatch) > 0 {
			out = append(out, d.Key)
		}
	}
	return out
}
