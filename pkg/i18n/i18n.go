// Package i18n loads translation tables once per process and hands out
// per-request translator functions. Nothing here is mutated after Load, so
// translators can be shared across requests freely.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed locales/*.json
var embeddedLocales embed.FS

const defaultLang = "en"

type entry struct {
	DefaultMessage string `json:"defaultMessage"`
	Description    string `json:"description,omitempty"`
}

// Translator resolves one message: table for the request language, then the
// default-language table, then the literal fallback passed by the caller.
// {key} placeholders are expanded from replacements.
type Translator func(code string, fallback string, replacements map[string]any) string

type Bundle struct {
	langs map[string]map[string]string
}

// Load parses every embedded locale file. Called once at startup.
func Load() (*Bundle, error) {
	return loadFrom(embeddedLocales, "locales")
}

func loadFrom(fsys fs.FS, dir string) (*Bundle, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	b := &Bundle{langs: make(map[string]map[string]string, len(names))}
	for _, name := range names {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		var entries map[string]entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("i18n: %s: %w", name, err)
		}
		lang := strings.TrimSuffix(path.Base(name), ".json")
		flat := make(map[string]string, len(entries))
		for code, e := range entries {
			if e.DefaultMessage != "" {
				flat[code] = e.DefaultMessage
			}
		}
		b.langs[lang] = flat
	}
	return b, nil
}

// Languages lists the locale codes the bundle carries.
func (b *Bundle) Languages() []string {
	out := make([]string, 0, len(b.langs))
	for lang := range b.langs {
		out = append(out, lang)
	}
	return out
}

// Translator returns the lookup function for lang. With debug set the
// resolved language is appended to every message, which is how translators
// proofread pages in context.
func (b *Bundle) Translator(lang string, debug bool) Translator {
	table := b.langs[lang]
	fallbackTable := b.langs[defaultLang]
	return func(code string, fallback string, replacements map[string]any) string {
		msg, ok := table[code]
		if !ok {
			msg, ok = fallbackTable[code]
		}
		if !ok {
			msg = fallback
		}
		for key, value := range replacements {
			msg = strings.ReplaceAll(msg, "{"+key+"}", fmt.Sprint(value))
		}
		if debug {
			msg += " [" + lang + "]"
		}
		return msg
	}
}
