package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const sidCookieName = "sid"

// apiKeyHeader carries the raw API key on public API requests.
const apiKeyHeader = "X-Auth"

var sidRandReader io.Reader = rand.Reader

type Session struct {
	TenantID    string
	PrincipalID string
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

type sessionStore interface {
	Create(ctx context.Context, tenantID string, principalID string, expiresAt time.Time, ip string, userAgent string) (sid string, err error)
	Lookup(ctx context.Context, sid string) (Session, bool, error)
	Revoke(ctx context.Context, sid string) error
}

type userStore interface {
	Authenticate(ctx context.Context, tenantID string, email string, password string) (Principal, bool, error)
	GetByID(ctx context.Context, tenantID string, principalID string) (Principal, bool, error)
}

type apiKeyStore interface {
	LookupKey(ctx context.Context, rawKey string) (Principal, bool, error)
}

func sidTTLFromEnv() time.Duration {
	const defaultHours = 24 * 14

	v := os.Getenv("SID_TTL_HOURS")
	if v == "" {
		return time.Hour * defaultHours
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return time.Hour * defaultHours
	}
	return time.Hour * time.Duration(n)
}

func newSID() (sid string, tokenSha256 []byte, err error) {
	var b [32]byte
	if _, err := sidRandReader.Read(b[:]); err != nil {
		return "", nil, err
	}
	sid = base64.RawURLEncoding.EncodeToString(b[:])
	sum := sha256.Sum256([]byte(sid))
	return sid, sum[:], nil
}

func readSID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sidCookieName)
	if err != nil {
		return "", false
	}
	if c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func setSIDCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSIDCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type memoryUser struct {
	principal    Principal
	passwordHash []byte
}

type memoryUserStore struct {
	mu      sync.Mutex
	byEmail map[string]memoryUser
	byID    map[string]memoryUser
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byEmail: map[string]memoryUser{},
		byID:    map[string]memoryUser{},
	}
}

// AddUser hashes the password and registers the user; test and local-run
// seeding only.
func (s *memoryUserStore) AddUser(tenantID string, email string, roleSlug string, password string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, err
	}

	var idb [16]byte
	if _, err := sidRandReader.Read(idb[:]); err != nil {
		return Principal{}, err
	}
	p := Principal{
		ID:       base64.RawURLEncoding.EncodeToString(idb[:]),
		TenantID: tenantID,
		RoleSlug: roleSlug,
		Status:   "active",
		Email:    email,
	}
	u := memoryUser{principal: p, passwordHash: hash}
	s.byEmail[tenantID+"|"+email] = u
	s.byID[p.ID] = u
	return p, nil
}

func (s *memoryUserStore) Authenticate(_ context.Context, tenantID string, email string, password string) (Principal, bool, error) {
	s.mu.Lock()
	u, ok := s.byEmail[tenantID+"|"+email]
	s.mu.Unlock()
	if !ok {
		return Principal{}, false, nil
	}
	if u.principal.Status != "active" {
		return Principal{}, false, nil
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return Principal{}, false, nil
	}
	return u.principal, true, nil
}

func (s *memoryUserStore) GetByID(_ context.Context, tenantID string, principalID string) (Principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[principalID]
	if !ok {
		return Principal{}, false, nil
	}
	if u.principal.TenantID != tenantID {
		return Principal{}, false, nil
	}
	return u.principal, true, nil
}

type memorySessionStore struct {
	mu    sync.Mutex
	bySID map[string]Session
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{
		bySID: map[string]Session{},
	}
}

func (s *memorySessionStore) Create(_ context.Context, tenantID string, principalID string, expiresAt time.Time, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sid, _, err := newSID()
	if err != nil {
		return "", err
	}
	s.bySID[sid] = Session{
		TenantID:    tenantID,
		PrincipalID: principalID,
		ExpiresAt:   expiresAt,
	}
	return sid, nil
}

func (s *memorySessionStore) Lookup(_ context.Context, sid string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.bySID[sid]
	if !ok {
		return Session{}, false, nil
	}
	if v.RevokedAt != nil {
		return Session{}, false, nil
	}
	if time.Now().After(v.ExpiresAt) {
		return Session{}, false, nil
	}
	return v, true, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bySID, sid)
	return nil
}

type memoryAPIKeyStore struct {
	mu    sync.Mutex
	byKey map[string]Principal
}

func newMemoryAPIKeyStore() *memoryAPIKeyStore {
	return &memoryAPIKeyStore{byKey: map[string]Principal{}}
}

func (s *memoryAPIKeyStore) AddKey(rawKey string, p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[rawKey] = p
}

func (s *memoryAPIKeyStore) LookupKey(_ context.Context, rawKey string) (Principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byKey[rawKey]
	if !ok {
		return Principal{}, false, nil
	}
	if p.Status != "active" {
		return Principal{}, false, nil
	}
	return p, true, nil
}

type queryExecer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgUserStore struct {
	q queryExecer
}

func newUserStore(pool *pgxpool.Pool) userStore {
	if pool == nil {
		return newMemoryUserStore()
	}
	return &pgUserStore{q: pool}
}

func (s *pgUserStore) Authenticate(ctx context.Context, tenantID string, email string, password string) (Principal, bool, error) {
	var p Principal
	var hash []byte
	err := s.q.QueryRow(ctx, `
SELECT id::text, country_accounts_id::text, email, role_slug, status, password_hash
FROM users
WHERE country_accounts_id = $1::uuid AND email = $2;
`, tenantID, email).Scan(&p.ID, &p.TenantID, &p.Email, &p.RoleSlug, &p.Status, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, err
	}
	if p.Status != "active" {
		return Principal{}, false, nil
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Principal{}, false, nil
	}
	return p, true, nil
}

func (s *pgUserStore) GetByID(ctx context.Context, tenantID string, principalID string) (Principal, bool, error) {
	var p Principal
	err := s.q.QueryRow(ctx, `
SELECT id::text, country_accounts_id::text, email, role_slug, status
FROM users
WHERE country_accounts_id = $1::uuid AND id = $2::uuid;
`, tenantID, principalID).Scan(&p.ID, &p.TenantID, &p.Email, &p.RoleSlug, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, err
	}
	return p, true, nil
}

type pgSessionStore struct {
	q queryExecer
}

func newSessionStore(pool *pgxpool.Pool) sessionStore {
	if pool == nil {
		return newMemorySessionStore()
	}
	return &pgSessionStore{q: pool}
}

func (s *pgSessionStore) Create(ctx context.Context, tenantID string, principalID string, expiresAt time.Time, ip string, userAgent string) (string, error) {
	sid, tokenSha256, err := newSID()
	if err != nil {
		return "", err
	}
	_, err = s.q.Exec(ctx, `
INSERT INTO sessions (token_sha256, country_accounts_id, user_id, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6);
`, tokenSha256, tenantID, principalID, expiresAt, ip, userAgent)
	if err != nil {
		return "", err
	}
	return sid, nil
}

func (s *pgSessionStore) Lookup(ctx context.Context, sid string) (Session, bool, error) {
	sum := sha256.Sum256([]byte(sid))
	var out Session
	var revokedAt *time.Time
	err := s.q.QueryRow(ctx, `
SELECT country_accounts_id::text, user_id::text, expires_at, revoked_at
FROM sessions
WHERE token_sha256 = $1;
`, sum[:]).Scan(&out.TenantID, &out.PrincipalID, &out.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	out.RevokedAt = revokedAt
	if out.RevokedAt != nil {
		return Session{}, false, nil
	}
	if time.Now().After(out.ExpiresAt) {
		return Session{}, false, nil
	}
	return out, true, nil
}

func (s *pgSessionStore) Revoke(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(sid))
	_, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE token_sha256 = $1;`, sum[:])
	return err
}

type pgAPIKeyStore struct {
	q queryExecer
}

func newAPIKeyStore(pool *pgxpool.Pool) apiKeyStore {
	if pool == nil {
		return newMemoryAPIKeyStore()
	}
	return &pgAPIKeyStore{q: pool}
}

// LookupKey resolves a raw key to its owning user. Keys are stored
// hashed, same as session tokens.
func (s *pgAPIKeyStore) LookupKey(ctx context.Context, rawKey string) (Principal, bool, error) {
	sum := sha256.Sum256([]byte(rawKey))
	var p Principal
	err := s.q.QueryRow(ctx, `
SELECT u.id::text, u.country_accounts_id::text, u.email, u.role_slug, u.status
FROM api_keys k
JOIN users u ON u.id = k.user_id
WHERE k.key_sha256 = $1 AND k.revoked_at IS NULL;
`, sum[:]).Scan(&p.ID, &p.TenantID, &p.Email, &p.RoleSlug, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, err
	}
	if p.Status != "active" {
		return Principal{}, false, nil
	}
	return p, true, nil
}
