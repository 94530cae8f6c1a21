package authz

import (
	"os"
	"path/filepath"
	"testing"
)

const testModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (r.dom == p.dom || p.dom == "*") && r.obj == p.obj && r.act == p.act
`

const testPolicy = `p, role:admin, *, records.events, edit_data
p, role:viewer, *, records.events, view_data
`

func writeAuthzFixtures(t *testing.T) (modelPath string, policyPath string) {
	t.Helper()
	dir := t.TempDir()
	modelPath = filepath.Join(dir, "model.conf")
	policyPath = filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(modelPath, []byte(testModel), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policyPath, []byte(testPolicy), 0o600); err != nil {
		t.Fatal(err)
	}
	return modelPath, policyPath
}

func TestModeFromEnv(t *testing.T) {
	t.Run("default enforce", func(t *testing.T) {
		t.Setenv("AUTHZ_MODE", "")
		mode, err := ModeFromEnv()
		if err != nil {
			t.Fatal(err)
		}
		if mode != ModeEnforce {
			t.Fatalf("mode = %s", mode)
		}
	})
	t.Run("disabled requires opt-in", func(t *testing.T) {
		t.Setenv("AUTHZ_MODE", "disabled")
		t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
		if _, err := ModeFromEnv(); err == nil {
			t.Fatal("expected error")
		}
		t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
		mode, err := ModeFromEnv()
		if err != nil {
			t.Fatal(err)
		}
		if mode != ModeDisabled {
			t.Fatalf("mode = %s", mode)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv("AUTHZ_MODE", "bogus")
		if _, err := ModeFromEnv(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestSubjectFromRoleSlug(t *testing.T) {
	if got := SubjectFromRoleSlug(" Admin "); got != "role:admin" {
		t.Fatalf("got %q", got)
	}
	if got := SubjectFromRoleSlug(""); got != "role:anonymous" {
		t.Fatalf("got %q", got)
	}
}

func TestAuthorizeEnforce(t *testing.T) {
	modelPath, policyPath := writeAuthzFixtures(t)
	a, err := NewAuthorizer(modelPath, policyPath, ModeEnforce)
	if err != nil {
		t.Fatal(err)
	}

	allowed, enforced, err := a.Authorize("role:admin", "t1", ObjectRecordsEvents, ActionEditData)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	allowed, enforced, err = a.Authorize("role:viewer", "t1", ObjectRecordsEvents, ActionEditData)
	if err != nil {
		t.Fatal(err)
	}
	if allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}
}

func TestAuthorizeShadowNeverEnforces(t *testing.T) {
	modelPath, policyPath := writeAuthzFixtures(t)
	a, err := NewAuthorizer(modelPath, policyPath, ModeShadow)
	if err != nil {
		t.Fatal(err)
	}
	allowed, enforced, err := a.Authorize("role:viewer", "t1", ObjectRecordsEvents, ActionEditData)
	if err != nil {
		t.Fatal(err)
	}
	if allowed {
		t.Fatal("viewer must not be allowed edit_data")
	}
	if enforced {
		t.Fatal("shadow mode must not enforce")
	}
}
