package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorJSONForPublicAPI(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/en/api/sectors", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	rr := httptest.NewRecorder()

	WriteError(rr, req, RouteClassPublicAPI, http.StatusNotFound, "not_found", "not found")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type = %q", ct)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Code != "not_found" || env.Message != "not found" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.TraceID != "0af7651916cd43dd8448eb211c80319c" {
		t.Fatalf("trace_id = %q", env.TraceID)
	}
	if env.Meta.Path != "/en/api/sectors" || env.Meta.Method != http.MethodGet {
		t.Fatalf("meta = %+v", env.Meta)
	}
}

func TestWriteFieldErrorsCarriesFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/en/api/disaster-records", nil)
	rr := httptest.NewRecorder()

	WriteFieldErrors(rr, req, RouteClassPublicAPI, http.StatusBadRequest, "validation_failed", "validation failed", map[string][]string{
		"startDate": {"required field"},
		"deaths":    {"expected a number"},
	})

	var env ErrorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Fields) != 2 {
		t.Fatalf("fields = %+v", env.Fields)
	}
	if env.Fields["deaths"][0] != "expected a number" {
		t.Fatalf("fields[deaths] = %+v", env.Fields["deaths"])
	}
}

func TestWriteErrorHTMLForUI(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/en/disaster-records", nil)
	rr := httptest.NewRecorder()

	WriteError(rr, req, RouteClassUI, http.StatusNotFound, "not_found", "not found")

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "not found") {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestWriteErrorJSONWhenAcceptHeaderAsks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/en/disaster-records", nil)
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()

	WriteError(rr, req, RouteClassUI, http.StatusNotFound, "not_found", "not found")

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type = %q", ct)
	}
}

func TestTraceIDFromRequestRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"garbage",
		"00-short-b7ad6b7169203331-01",
		"00-00000000000000000000000000000000-b7ad6b7169203331-01",
		"00-0AF7651916CD43DD8448EB211C80319Z-b7ad6b7169203331-01",
	}
	for _, tp := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tp != "" {
			req.Header.Set("traceparent", tp)
		}
		if got := traceIDFromRequest(req); got != "" {
			t.Errorf("traceparent %q: trace id = %q, want empty", tp, got)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusCreated, map[string]string{"id": "abc"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != "abc" {
		t.Fatalf("body = %+v", body)
	}
}
