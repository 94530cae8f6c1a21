package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler(t *testing.T) (http.Handler, *memoryUserStore, *memoryAPIKeyStore) {
	t.Helper()

	users := newMemoryUserStore()
	apiKeys := newMemoryAPIKeyStore()

	h, err := NewHandlerWithOptions(HandlerOptions{
		TenancyResolver: newStaticTenancyResolver(map[string]Tenant{
			"example.test": testTenant(),
		}),
		SectorStore:  newSectorMemoryStore(testSectors()),
		HipStore:     newHipMemoryStore(testHipData()),
		EventStore:   newMemoryRecordStore(),
		LossesStore:  newMemoryRecordStore(),
		AssetStore:   newMemoryRecordStore(),
		RuleStore:    newRuleMemoryStore(nil),
		UserStore:    users,
		SessionStore: newMemorySessionStore(),
		APIKeyStore:  apiKeys,
	})
	if err != nil {
		t.Fatalf("NewHandlerWithOptions: %v", err)
	}
	return h, users, apiKeys
}

func TestHandlerHealthSkipsTenantResolution(t *testing.T) {
	h, _, _ := newTestHandler(t)

	for _, path := range []string{"/health", "/healthz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://unknown.test"+path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestHandlerUnknownHostIsNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://unknown.test/en/api/sectors/list", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Code != "tenant_not_found" {
		t.Fatalf("code = %q", out.Code)
	}
}

func TestHandlerAnonymousCanReadReferenceData(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/en/api/sectors/list", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerAnonymousCannotReadRecords(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/en/api/disaster-events/list", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerUnknownLanguageIsNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/xx/api/sectors/list", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerAPIKeyGrantsRecordAccess(t *testing.T) {
	h, _, apiKeys := newTestHandler(t)
	apiKeys.AddKey("raw-key", Principal{
		ID: "p1", TenantID: testTenant().ID, RoleSlug: "data-entry", Status: "active",
	})

	r := httptest.NewRequest(http.MethodPost, "http://example.test/en/api/assets/add",
		strings.NewReader(`[{"name":"Bridge"}]`))
	r.Header.Set(apiKeyHeader, "raw-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body.String())
	}

	r = httptest.NewRequest(http.MethodGet, "http://example.test/en/api/assets/list", nil)
	r.Header.Set(apiKeyHeader, "raw-key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var out struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 1 {
		t.Fatalf("total = %d", out.Total)
	}
}

func TestHandlerInvalidAPIKeyIsUnauthorized(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, "http://example.test/en/api/assets/list", nil)
	r.Header.Set(apiKeyHeader, "no-such-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerLoginAndSessionFlow(t *testing.T) {
	h, users, _ := newTestHandler(t)
	if _, err := users.AddUser(testTenant().ID, "ops@example.test", "viewer", "hunter2"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "http://example.test/auth/login",
		strings.NewReader(`{"email":"ops@example.test","password":"hunter2"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}

	var sid *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sidCookieName {
			sid = c
		}
	}
	if sid == nil || sid.Value == "" {
		t.Fatal("sid cookie not set")
	}

	r = httptest.NewRequest(http.MethodGet, "http://example.test/en/api/disaster-events/list", nil)
	r.AddCookie(sid)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Viewer role reads but does not write.
	r = httptest.NewRequest(http.MethodPost, "http://example.test/en/api/disaster-events/add",
		strings.NewReader(`[{"nameNational":"Flood 2026","startDate":"2026-07-01"}]`))
	r.AddCookie(sid)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("add status = %d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "http://example.test/auth/logout", nil)
	r.AddCookie(sid)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "http://example.test/en/api/disaster-events/list", nil)
	r.AddCookie(sid)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("post-logout list status = %d", rec.Code)
	}
}

func TestHandlerWrongPasswordRejected(t *testing.T) {
	h, users, _ := newTestHandler(t)
	if _, err := users.AddUser(testTenant().ID, "ops@example.test", "viewer", "hunter2"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "http://example.test/auth/login",
		strings.NewReader(`{"email":"ops@example.test","password":"nope"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerDebugLanguageVariantRoutes(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/de-debug/api/sectors/list", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}
