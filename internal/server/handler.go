package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazardtrack/dts/internal/routing"
	"github.com/hazardtrack/dts/pkg/i18n"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	TenancyResolver TenancyResolver
	Bundle          *i18n.Bundle
	SectorStore     SectorStore
	HipStore        HipStore
	EventStore      RecordStore
	LossesStore     RecordStore
	AssetStore      RecordStore
	RuleStore       RuleStore
	UserStore       userStore
	SessionStore    sessionStore
	APIKeyStore     apiKeyStore
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	bundle := opts.Bundle
	if bundle == nil {
		b, err := i18n.Load()
		if err != nil {
			return nil, err
		}
		bundle = b
	}

	sectorStore := opts.SectorStore
	hipStore := opts.HipStore
	eventStore := opts.EventStore
	lossesStore := opts.LossesStore
	assetStore := opts.AssetStore
	ruleStore := opts.RuleStore
	users := opts.UserStore
	sessions := opts.SessionStore
	apiKeys := opts.APIKeyStore
	tenancyResolver := opts.TenancyResolver

	var pgPool *pgxpool.Pool
	needsPool := sectorStore == nil || hipStore == nil || eventStore == nil ||
		lossesStore == nil || assetStore == nil || ruleStore == nil || tenancyResolver == nil
	if needsPool {
		dsn := dbDSNFromEnv()
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return nil, err
		}
		pgPool = pool
	}

	if sectorStore == nil {
		sectorStore = newSectorPGStore(pgPool)
	}
	if hipStore == nil {
		hipStore = newHipPGStore(pgPool)
	}
	if eventStore == nil {
		eventStore = newRecordPGStore(pgPool, "disaster_events", eventColumns)
	}
	if lossesStore == nil {
		lossesStore = newRecordPGStore(pgPool, "losses", lossesColumns)
	}
	if assetStore == nil {
		assetStore = newRecordPGStore(pgPool, "assets", assetColumns)
	}
	if ruleStore == nil {
		ruleStore = newRulePGStore(pgPool)
	}
	if tenancyResolver == nil {
		tenancyResolver = newTenancyDBResolver(pgPool)
	}
	if users == nil {
		users = newUserStore(pgPool)
	}
	if sessions == nil {
		sessions = newSessionStore(pgPool)
	}
	if apiKeys == nil {
		apiKeys = newAPIKeyStore(pgPool)
	}

	authorizer, err := loadAuthorizer()
	if err != nil {
		return nil, err
	}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassUI, http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<!doctype html><title>DTS</title><p>Disaster tracking system</p>\n"))
	}))

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/auth/login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleAuthLogin(w, r, users, sessions)
	}))
	router.Handle(routing.RouteClassAuthn, http.MethodPost, "/auth/logout", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid, ok := readSID(r); ok {
			_ = sessions.Revoke(r.Context(), sid)
		}
		clearSIDCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, lv := range langVariants() {
		prefix := "/" + lv + "/api"

		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/sectors/list", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleSectorsAPI(w, r, rc, sectorStore)
		}))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/sectors/children", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleSectorChildrenAPI(w, r, rc, sectorStore)
		}))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/sectors/with-subsectors", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleSectorsWithSubsectorsAPI(w, r, rc, sectorStore)
		}))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/sectors/item", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleSectorItemAPI(w, r, rc, sectorStore)
		}))

		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/hip-hazards/types", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleHipTypesAPI(w, r, rc, hipStore)
		}))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/hip-hazards/hierarchy", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleHipHierarchyAPI(w, r, rc, hipStore)
		}))
		router.Handle(routing.RouteClassPublicAPI, http.MethodGet, prefix+"/hip-hazards/item", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleHipHazardItemAPI(w, r, rc, hipStore)
		}))

		registerEntityRoutes(router, bundle, prefix, newEventAPI(eventStore))
		registerEntityRoutes(router, bundle, prefix, newLossesAPI(lossesStore))
		registerEntityRoutes(router, bundle, prefix, newAssetAPI(assetStore))

		router.Handle(routing.RouteClassPublicAPI, http.MethodPost, prefix+"/rules/evaluate", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
			handleRulesEvaluateAPI(w, r, rc, ruleStore)
		}))
	}

	guarded := withTenantAndSession(classifier, tenancyResolver, users, sessions, apiKeys,
		withAuthz(classifier, authorizer, router))

	return guarded, nil
}

// langVariants returns every supported language segment, including the
// debug variants that suffix translations with their language tag.
func langVariants() []string {
	out := make([]string, 0, len(validLanguages)*2)
	out = append(out, validLanguages...)
	for _, lang := range validLanguages {
		out = append(out, lang+"-debug")
	}
	return out
}

func langHandler(bundle *i18n.Bundle, fn func(http.ResponseWriter, *http.Request, reqCtx)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, err := newReqContext(bundle, langSegment(r.URL.Path))
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusNotFound, "not_found", "not found")
			return
		}
		fn(w, r, rc)
	})
}

func registerEntityRoutes(router *routing.Router, bundle *i18n.Bundle, prefix string, e entityAPI) {
	base := prefix + "/" + e.base

	router.Handle(routing.RouteClassPublicAPI, http.MethodPost, base+"/add", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordAddAPI(w, r, rc, e)
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodPost, base+"/update", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordUpdateAPI(w, r, rc, e)
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodPost, base+"/delete", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordDeleteAPI(w, r, rc, e)
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, base+"/list", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordListAPI(w, r, rc, e)
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, base+"/item", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordItemAPI(w, r, rc, e)
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, base+"/docs", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordDocsAPI(w, r, rc, e)
	}))
	router.Handle(routing.RouteClassPublicAPI, http.MethodGet, base+"/csv-import-example", langHandler(bundle, func(w http.ResponseWriter, r *http.Request, rc reqCtx) {
		handleRecordCSVExampleAPI(w, r, rc, e)
	}))
}

func handleAuthLogin(w http.ResponseWriter, r *http.Request, users userStore, sessions sessionStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusUnprocessableEntity, "invalid_json", "invalid json")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusUnprocessableEntity, "invalid_form", "email and password required")
		return
	}

	p, ok, err := users.Authenticate(r.Context(), tenant.ID, email, req.Password)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusInternalServerError, "identity_error", "identity error")
		return
	}
	if !ok {
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusUnprocessableEntity, "invalid_credentials", "invalid credentials")
		return
	}

	expiresAt := time.Now().Add(sidTTLFromEnv())
	sid, err := sessions.Create(r.Context(), tenant.ID, p.ID, expiresAt, r.RemoteAddr, r.UserAgent())
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusInternalServerError, "session_error", "session error")
		return
	}
	setSIDCookie(w, sid)
	w.WriteHeader(http.StatusNoContent)
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}

// withTenantAndSession resolves the tenant from the request host and, when
// credentials are present, the acting principal. Requests without
// credentials continue anonymously; the authz layer decides what an
// anonymous caller may reach.
func withTenantAndSession(classifier *routing.Classifier, tenants TenancyResolver, users userStore, sessions sessionStore, apiKeys apiKeyStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" || pathHasPrefixSegment(path, "/assets") {
			next.ServeHTTP(w, r)
			return
		}

		tenantDomain := effectiveHost(r)
		t, ok, err := tenants.ResolveTenant(r.Context(), tenantDomain)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		r = r.WithContext(withTenant(r.Context(), t))

		if path == "/auth/login" && r.Method == http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
			p, ok, err := apiKeys.LookupKey(r.Context(), key)
			if err != nil {
				routing.WriteError(w, r, rc, http.StatusInternalServerError, "api_key_lookup_error", "api key lookup error")
				return
			}
			if !ok || p.TenantID != t.ID {
				routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			r = r.WithContext(withPrincipal(r.Context(), p))
			next.ServeHTTP(w, r)
			return
		}

		sid, ok := readSID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sess, ok, err := sessions.Lookup(r.Context(), sid)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "session_lookup_error", "session lookup error")
			return
		}
		if !ok || sess.TenantID != t.ID {
			clearSIDCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		p, ok, err := users.GetByID(r.Context(), t.ID, sess.PrincipalID)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "principal_lookup_error", "principal lookup error")
			return
		}
		if !ok || p.Status != "active" {
			clearSIDCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		r = r.WithContext(withPrincipal(r.Context(), p))

		next.ServeHTTP(w, r)
	})
}

func pathHasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/"
}
