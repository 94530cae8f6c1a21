package fieldsdef

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validate checks a decoded JSON object against defs. Unknown keys are
// rejected, and with requireRequired set every required field must be
// present (create semantics; updates pass false and send a subset).
// The returned clean map carries only known keys with checked values.
// All offending fields are reported together, never just the first.
func Validate(raw map[string]any, defs Defs, requireRequired bool) (map[string]any, map[string][]string) {
	clean := make(map[string]any, len(raw))
	errs := map[string][]string{}
	addErr := func(key, msg string) {
		errs[key] = append(errs[key], msg)
	}

	for key, value := range raw {
		def, ok := defs.ByKey(key)
		if !ok {
			addErr(key, "unknown field")
			continue
		}
		if value == nil {
			if def.Required {
				addErr(key, "required field")
				continue
			}
			clean[key] = nil
			continue
		}
		checked, msg := checkKind(def, value)
		if msg != "" {
			addErr(key, msg)
			continue
		}
		clean[key] = checked
	}

	if requireRequired {
		for _, def := range defs {
			if !def.Required {
				continue
			}
			if _, present := raw[def.Key]; !present {
				addErr(def.Key, "required field")
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return clean, nil
}

func checkKind(def FieldDef, value any) (any, string) {
	switch def.Kind {
	case KindText, KindTextarea:
		s, ok := value.(string)
		if !ok {
			return nil, "expected a string"
		}
		return s, ""
	case KindNumber:
		n, ok := value.(float64)
		if !ok {
			return nil, "expected a number"
		}
		return n, ""
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, "expected a boolean"
		}
		return b, ""
	case KindDate:
		s, ok := value.(string)
		if !ok {
			return nil, "expected a date string"
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return s, ""
		}
		if _, err := time.Parse("2006-01-02", s); err == nil {
			return s, ""
		}
		return nil, "expected a date (YYYY-MM-DD or RFC 3339)"
	case KindUUID:
		s, ok := value.(string)
		if !ok {
			return nil, "expected a UUID string"
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, "expected a UUID"
		}
		return s, ""
	case KindEnum:
		s, ok := value.(string)
		if !ok {
			return nil, "expected a string"
		}
		for _, e := range def.Enum {
			if e.Key == s {
				return s, ""
			}
		}
		return nil, "must be one of: " + enumKeys(def.Enum)
	case KindEnumFlex:
		s, ok := value.(string)
		if !ok {
			return nil, "expected a string"
		}
		return s, ""
	case KindMoney:
		switch v := value.(type) {
		case string:
			if !moneyRe(v) {
				return nil, "expected a decimal amount"
			}
			return v, ""
		case float64:
			if v < 0 {
				return nil, "expected a non-negative amount"
			}
			return fmt.Sprintf("%.2f", v), ""
		default:
			return nil, "expected a decimal amount"
		}
	case KindJSON, KindOther:
		return value, ""
	default:
		return nil, "unsupported field kind"
	}
}

func enumKeys(entries []EnumEntry) string {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return strings.Join(keys, ", ")
}

// moneyRe matches non-negative decimals with up to two fraction digits.
func moneyRe(s string) bool {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || !digitsOnly(whole) {
		return false
	}
	if hasFrac {
		if frac == "" || len(frac) > 2 || !digitsOnly(frac) {
			return false
		}
	}
	return true
}

func digitsOnly(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
