package server

import (
	"context"
	"testing"
	"time"
)

func TestMemoryUserStoreAuthenticate(t *testing.T) {
	store := newMemoryUserStore()
	p, err := store.AddUser("t1", "ops@example.test", "data-entry", "hunter2")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	got, ok, err := store.Authenticate(context.Background(), "t1", "ops@example.test", "hunter2")
	if err != nil || !ok {
		t.Fatalf("Authenticate: ok=%v err=%v", ok, err)
	}
	if got.ID != p.ID || got.RoleSlug != "data-entry" {
		t.Fatalf("principal = %+v", got)
	}

	if _, ok, _ := store.Authenticate(context.Background(), "t1", "ops@example.test", "wrong"); ok {
		t.Fatal("wrong password accepted")
	}
	if _, ok, _ := store.Authenticate(context.Background(), "t2", "ops@example.test", "hunter2"); ok {
		t.Fatal("wrong tenant accepted")
	}
}

func TestMemoryUserStoreGetByIDScopedToTenant(t *testing.T) {
	store := newMemoryUserStore()
	p, _ := store.AddUser("t1", "ops@example.test", "viewer", "pw")

	if _, ok, _ := store.GetByID(context.Background(), "t2", p.ID); ok {
		t.Fatal("cross-tenant lookup succeeded")
	}
	got, ok, _ := store.GetByID(context.Background(), "t1", p.ID)
	if !ok || got.Email != "ops@example.test" {
		t.Fatalf("GetByID = %+v ok=%v", got, ok)
	}
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := newMemorySessionStore()

	sid, err := store.Create(context.Background(), "t1", "p1", time.Now().Add(-time.Minute), "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok, _ := store.Lookup(context.Background(), sid); ok {
		t.Fatal("expired session accepted")
	}

	sid, _ = store.Create(context.Background(), "t1", "p1", time.Now().Add(time.Hour), "", "")
	sess, ok, _ := store.Lookup(context.Background(), sid)
	if !ok || sess.PrincipalID != "p1" {
		t.Fatalf("Lookup = %+v ok=%v", sess, ok)
	}

	_ = store.Revoke(context.Background(), sid)
	if _, ok, _ := store.Lookup(context.Background(), sid); ok {
		t.Fatal("revoked session accepted")
	}
}

func TestMemoryAPIKeyStore(t *testing.T) {
	store := newMemoryAPIKeyStore()
	store.AddKey("key-1", Principal{ID: "p1", TenantID: "t1", RoleSlug: "data-entry", Status: "active"})
	store.AddKey("key-2", Principal{ID: "p2", TenantID: "t1", RoleSlug: "viewer", Status: "disabled"})

	p, ok, _ := store.LookupKey(context.Background(), "key-1")
	if !ok || p.ID != "p1" {
		t.Fatalf("LookupKey = %+v ok=%v", p, ok)
	}
	if _, ok, _ := store.LookupKey(context.Background(), "key-2"); ok {
		t.Fatal("inactive key accepted")
	}
	if _, ok, _ := store.LookupKey(context.Background(), "nope"); ok {
		t.Fatal("unknown key accepted")
	}
}

func TestNewSIDHashesToken(t *testing.T) {
	sid, sum, err := newSID()
	if err != nil {
		t.Fatalf("newSID: %v", err)
	}
	if sid == "" || len(sum) != 32 {
		t.Fatalf("sid=%q sum len=%d", sid, len(sum))
	}
}
