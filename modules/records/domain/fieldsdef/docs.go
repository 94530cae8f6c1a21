package fieldsdef

import (
	"encoding/json"
	"strings"

	"github.com/hazardtrack/dts/pkg/i18n"
)

// Fixed example values keep the rendered docs byte-for-byte stable.
const (
	exampleUUID = "f41bd013-23cc-41ba-91d2-4e325f785171"
	exampleDate = "2025-01-01T00:00:00Z"
	exampleID   = "01308f4d-a94e-41c9-8410-0321f7032d7c"
)

type pair struct {
	key   string
	value any
}

// PayloadExample renders a JSON object with one kind-appropriate example
// value per field, in declaration order.
func PayloadExample(defs Defs) string {
	return marshalOrdered(examplePairs(defs))
}

func examplePairs(defs Defs) []pair {
	out := make([]pair, 0, len(defs))
	for _, def := range defs {
		out = append(out, pair{key: def.Key, value: exampleValue(def)})
	}
	return out
}

func exampleValue(def FieldDef) any {
	switch def.Kind {
	case KindText, KindTextarea, KindOther:
		return "example string"
	case KindUUID:
		return exampleUUID
	case KindDate:
		return exampleDate
	case KindNumber:
		return 123
	case KindBool:
		return true
	case KindEnum, KindEnumFlex:
		if len(def.Enum) > 0 {
			return def.Enum[0].Key
		}
		return ""
	case KindJSON:
		return map[string]any{"k": "any json"}
	case KindMoney:
		return "100.01"
	default:
		return nil
	}
}

// marshalOrdered is a two-space-indented object marshal that keeps field
// order; encoding/json sorts map keys, which would break determinism
// against declaration order.
func marshalOrdered(pairs []pair) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, p := range pairs {
		kb, _ := json.Marshal(p.key)
		vb, _ := json.MarshalIndent(p.value, "  ", "  ")
		b.WriteString("  ")
		b.Write(kb)
		b.WriteString(": ")
		b.Write(vb)
		if i < len(pairs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// RenderDocs produces the plain-text API documentation for one entity:
// Add / Update / Delete / List endpoints with curl examples, followed by a
// JSON dump of the field definitions. Pure function of its inputs.
func RenderDocs(lang string, t i18n.Translator, host string, baseURL string, defs Defs) string {
	var parts []string
	line := func(s string) {
		parts = append(parts, s, "\n")
	}

	endpoint := func(name, urlPart, desc string, list bool) {
		line("")
		line("## " + name)
		path := "/" + lang + "/api/" + baseURL + "/" + urlPart
		line(path)
		line(desc)
		line("# Example ")
		url := host + path
		line(`export DTS_KEY=YOUR_KEY`)
		if list {
			url += "?page=1"
			line(`curl -H "X-Auth:$DTS_KEY" '` + url + `'`)
			return
		}
		var payload string
		switch urlPart {
		case "update":
			payload = marshalOrdered(append([]pair{{key: "id", value: exampleID}}, examplePairs(defs)...))
		case "delete":
			payload = marshalOrdered([]pair{{key: "id", value: exampleID}})
		default:
			payload = PayloadExample(defs)
		}
		line(`curl -H "X-Auth:$DTS_KEY" ` + url + ` -d '[` + payload + `]'`)
	}

	line("# Endpoints")
	endpoint("Add", "add",
		t("api_docs.add_desc", "Adds new records and returns ids, pass all required fields. Use for initial import only.", nil), false)
	endpoint("Update", "update",
		t("api_docs.update_desc", "Updates records by id, id is required, only fields that are passed are updated. Use for updates once initial import is done.", nil), false)
	endpoint("Delete", "delete",
		t("api_docs.delete_desc", "Deletes records by id, id is required.", nil), false)
	endpoint("List", "list",
		t("api_docs.list_desc", "List records.", nil), true)

	line("")
	line("# Fields")
	fieldsJSON, _ := json.MarshalIndent(defs, "", "  ")
	line(string(fieldsJSON))

	return strings.Join(parts, "")
}
