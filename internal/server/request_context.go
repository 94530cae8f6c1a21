package server

import (
	"strings"

	"github.com/hazardtrack/dts/pkg/httperr"
	"github.com/hazardtrack/dts/pkg/i18n"
)

// validLanguages is the fixed allow-list for the language path segment.
var validLanguages = []string{"en", "de"}

// reqCtx carries the per-request language and translator. It is built once
// per request from the path's language segment and discarded afterwards;
// nothing in it survives the request.
type reqCtx struct {
	Lang  string
	Debug bool
	T     i18n.Translator
}

// parseLanguageAndDebug splits an optional "-debug" suffix off the raw
// language segment and validates the remainder against the allow-list.
func parseLanguageAndDebug(raw string) (lang string, debug bool, err error) {
	lang = strings.TrimSpace(raw)
	if cut, ok := strings.CutSuffix(lang, "-debug"); ok {
		lang = cut
		debug = true
	}
	for _, v := range validLanguages {
		if lang == v {
			return lang, debug, nil
		}
	}
	return "", false, httperr.NewBadRequest("invalid language: " + raw)
}

func newReqContext(bundle *i18n.Bundle, rawLang string) (reqCtx, error) {
	lang, debug, err := parseLanguageAndDebug(rawLang)
	if err != nil {
		return reqCtx{}, err
	}
	return reqCtx{
		Lang:  lang,
		Debug: debug,
		T:     bundle.Translator(lang, debug),
	}, nil
}

// langSegment extracts the first path segment, which on API routes is the
// language (possibly with a -debug suffix).
func langSegment(path string) string {
	rest := strings.TrimPrefix(path, "/")
	seg, _, _ := strings.Cut(rest, "/")
	return seg
}
