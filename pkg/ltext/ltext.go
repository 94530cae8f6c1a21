// Package ltext handles language-keyed text maps, the jsonb name/description
// columns shared reference tables carry ({"en": "...", "fr": "..."}).
// Exactly one language is projected out per request.
package ltext

import (
	"encoding/json"
	"sort"
)

const defaultLang = "en"

// Map is a language-code-keyed set of display strings.
type Map map[string]string

// Resolve projects one language out of the map.
// Fallback order when the requested language is absent: the default
// language ("en"), then the lexicographically smallest key, then "".
// The original data is not guaranteed to carry "en" for every row, so the
// smallest-key step keeps imported taxonomies readable instead of blank.
func (m Map) Resolve(lang string) string {
	if len(m) == 0 {
		return ""
	}
	if s, ok := m[lang]; ok && s != "" {
		return s
	}
	if s, ok := m[defaultLang]; ok && s != "" {
		return s
	}
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return m[keys[0]]
}

// Scan implements the pgx text/jsonb scanning contract for Map columns.
func (m *Map) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, m)
	}
}

// SortByLocalized orders items by their resolved name. Localization happens
// before ordering: the order is locale-dependent and differs between
// languages, which is the behavior list pages rely on.
func SortByLocalized[T any](items []T, lang string, name func(T) Map) {
	sort.SliceStable(items, func(i, j int) bool {
		return name(items[i]).Resolve(lang) < name(items[j]).Resolve(lang)
	})
}
