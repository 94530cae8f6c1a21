package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
)

func testReqCtx(lang string) reqCtx {
	return reqCtx{
		Lang: lang,
		T: func(_ string, fallback string, replacements map[string]any) string {
			msg := fallback
			for key, value := range replacements {
				msg = strings.ReplaceAll(msg, "{"+key+"}", value.(string))
			}
			return msg
		},
	}
}

func testTenant() Tenant {
	return Tenant{ID: "11111111-1111-1111-1111-111111111111", Domain: "example.test", Name: "Example"}
}

func tenantRequest(method string, target string, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r.WithContext(withTenant(r.Context(), testTenant()))
}
