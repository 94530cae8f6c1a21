package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazardtrack/dts/internal/routing"
	"github.com/hazardtrack/dts/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultAuthzModelPath()
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultAuthzPolicyPath()
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}

	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultAuthzModelPath() (string, error) {
	path := "config/access/model.conf"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz model not found")
}

func defaultAuthzPolicyPath() (string, error) {
	path := "config/access/policy.csv"
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: authz policy not found")
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		switch path {
		case "/health", "/healthz":
			next.ServeHTTP(w, r)
			return
		default:
			if pathHasPrefixSegment(path, "/assets") || path == "/" {
				next.ServeHTTP(w, r)
				return
			}
		}

		tenant, ok := currentTenant(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_missing", "tenant missing")
			return
		}

		roleSlug := authz.RoleAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			roleSlug = p.RoleSlug
		}

		subject := authz.SubjectFromRoleSlug(roleSlug)
		domain := authz.DomainFromTenantID(tenant.ID)

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		allowed, enforced, err := a.Authorize(subject, domain, object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authzRequirementForRoute maps a request to the object/action pair the
// policy speaks. Public API paths carry a leading language segment that
// the policy does not care about, so it is stripped first.
func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/auth/login", "/auth/logout":
		if method == http.MethodPost {
			return authz.ObjectAuthSession, authz.ActionAdmin, true
		}
		return "", "", false
	}

	rest, found := stripLangSegment(path)
	if !found {
		return "", "", false
	}

	base, part, found := splitAPIPath(rest)
	if !found {
		return "", "", false
	}

	switch base {
	case "sectors":
		if method == http.MethodGet {
			return authz.ObjectRefSectors, authz.ActionViewData, true
		}
		return "", "", false
	case "hip-hazards":
		if method == http.MethodGet {
			return authz.ObjectRefHazards, authz.ActionViewData, true
		}
		return "", "", false
	case "rules":
		if part == "evaluate" && method == http.MethodPost {
			return authz.ObjectRecordsRules, authz.ActionViewData, true
		}
		return "", "", false
	}

	var obj string
	switch base {
	case "disaster-events":
		obj = authz.ObjectRecordsEvents
	case "losses":
		obj = authz.ObjectRecordsLosses
	case "assets":
		obj = authz.ObjectRecordsAssets
	default:
		return "", "", false
	}

	switch part {
	case "add", "update", "delete":
		if method == http.MethodPost {
			return obj, authz.ActionEditData, true
		}
		return "", "", false
	case "list", "item", "docs", "csv-import-example":
		if method == http.MethodGet {
			return obj, authz.ActionViewData, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}

// stripLangSegment turns /{lang}/api/... into api/... and reports whether
// the path has that shape.
func stripLangSegment(path string) (string, bool) {
	segments := splitRouteSegments(path)
	if len(segments) < 3 {
		return "", false
	}
	if segments[1] != "api" {
		return "", false
	}
	return strings.Join(segments[1:], "/"), true
}

// splitAPIPath takes api/<base>/<part> and returns base and part.
func splitAPIPath(rest string) (base string, part string, ok bool) {
	segments := strings.Split(rest, "/")
	if len(segments) != 3 || segments[0] != "api" {
		return "", "", false
	}
	if segments[1] == "" || segments[2] == "" {
		return "", "", false
	}
	return segments[1], segments[2], true
}

func splitRouteSegments(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
