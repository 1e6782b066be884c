package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"idurar.org/internal/domain"
	"idurar.org/internal/obs"
)

func newKeyFixture(t *testing.T, store *InMemory, perms []string, expires *time.Time) IssuedAPIKey {
	t.Helper()
	km, err := NewKeyManager(store)
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	issued, err := km.Generate(context.Background(), GenerateRequest{Name: "ci", Permissions: perms, Expires: expires})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return issued
}

func TestResolveAPIKeyCoarsePermission(t *testing.T) {
	store := NewInMemory()
	readOnly := newKeyFixture(t, store, []string{"read"}, nil)
	writeOnly := newKeyFixture(t, store, []string{"write"}, nil)
	r, _ := NewResolver(store, nil)
	ctx := context.Background()

	ac, err := r.ResolveAPIKey(ctx, readOnly.Key, http.MethodGet)
	if err != nil {
		t.Fatalf("read key on GET: %v", err)
	}
	if ac.Kind != KindAPIKey || ac.ID != readOnly.ID {
		t.Fatalf("unexpected context: %+v", ac)
	}
	if _, err := r.ResolveAPIKey(ctx, readOnly.Key, http.MethodPost); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("read key on POST: expected forbidden, got %v", err)
	}
	if _, err := r.ResolveAPIKey(ctx, writeOnly.Key, http.MethodGet); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("write key on GET: expected forbidden, got %v", err)
	}
	if _, err := r.ResolveAPIKey(ctx, writeOnly.Key, http.MethodDelete); err != nil {
		t.Fatalf("write key on DELETE: %v", err)
	}
	r.Wait()
}

func TestResolveAPIKeyRejections(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := newKeyFixture(t, store, []string{"read"}, &past)
	revokedFuture := newKeyFixture(t, store, []string{"read"}, &future)
	revokedNever := newKeyFixture(t, store, []string{"read"}, nil)
	inactive := newKeyFixture(t, store, []string{"read"}, nil)

	km, _ := NewKeyManager(store)
	if _, err := km.Revoke(ctx, revokedFuture.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := km.Revoke(ctx, revokedNever.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.SetAPIKeyStatus(ctx, inactive.ID, KeyStatusInactive); err != nil {
		t.Fatalf("SetAPIKeyStatus: %v", err)
	}

	r, _ := NewResolver(store, nil, WithClock(func() time.Time { return now }))
	cases := []struct {
		name string
		key  string
		want error
	}{
		{"missing", "", ErrMissingCredentials},
		{"unknown", "pk_test_nope", ErrInvalidKey},
		{"expired", expired.Key, ErrKeyExpired},
		{"revoked with future expiry", revokedFuture.Key, ErrInvalidKey},
		{"revoked without expiry", revokedNever.Key, ErrInvalidKey},
		{"inactive", inactive.Key, ErrInvalidKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.ResolveAPIKey(ctx, tc.key, http.MethodGet)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Fatalf("expected unauthenticated class, got %v", err)
			}
		})
	}
}

func TestResolveAPIKeyRecordsLastUsed(t *testing.T) {
	store := NewInMemory()
	issued := newKeyFixture(t, store, []string{"read"}, nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _ := NewResolver(store, nil, WithClock(func() time.Time { return at }))

	if _, err := r.ResolveAPIKey(context.Background(), issued.Key, http.MethodGet); err != nil {
		t.Fatalf("ResolveAPIKey: %v", err)
	}
	r.Wait()
	got, _ := store.GetAPIKey(context.Background(), issued.ID)
	if got.LastUsed == nil || !got.LastUsed.Equal(at) {
		t.Fatalf("expected lastUsed %v, got %v", at, got.LastUsed)
	}
}

type failingTouchStore struct {
	*InMemory
}

func (failingTouchStore) TouchAPIKey(context.Context, string, time.Time) error {
	return errors.New("disk full")
}

func TestResolveAPIKeySwallowsTouchFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	mem := NewInMemory()
	issued := newKeyFixture(t, mem, []string{"read"}, nil)
	r, _ := NewResolver(failingTouchStore{mem}, nil)

	if _, err := r.ResolveAPIKey(context.Background(), issued.Key, http.MethodGet); err != nil {
		t.Fatalf("touch failure must not fail the request: %v", err)
	}
	r.Wait()
	if logs.FilterMessage("api key lastUsed update failed").Len() != 1 {
		t.Fatalf("expected warning to be logged, got %v", logs.All())
	}
}

func TestResolveSessionAndAuthorize(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	tokens, _ := NewTokenIssuer("secret")
	sessions, _ := NewSessions(store, tokens)
	roles, _ := NewRoleManager(store)

	owner, err := sessions.CreateAdmin(ctx, "owner@example.com", "password-1", "Owner", OwnerRole)
	if err != nil {
		t.Fatalf("CreateAdmin owner: %v", err)
	}
	viewer, err := roles.Create(ctx, "Viewer", "", []string{PermInvoiceView})
	if err != nil {
		t.Fatalf("Create role: %v", err)
	}
	clerk, err := sessions.CreateAdmin(ctx, "clerk@example.com", "password-2", "Clerk", viewer.ID)
	if err != nil {
		t.Fatalf("CreateAdmin clerk: %v", err)
	}

	r, _ := NewResolver(store, tokens)

	ownerToken, _, _ := tokens.Issue(owner.ID)
	ownerAC, err := r.ResolveSession(ctx, ownerToken)
	if err != nil {
		t.Fatalf("ResolveSession owner: %v", err)
	}
	for _, perm := range []string{PermAdminDelete, PermSettingsEdit, "anything_at_all"} {
		if err := r.Authorize(ctx, ownerAC, perm); err != nil {
			t.Fatalf("owner denied %s: %v", perm, err)
		}
	}

	clerkToken, _, _ := tokens.Issue(clerk.ID)
	clerkAC, err := r.ResolveSession(ctx, clerkToken)
	if err != nil {
		t.Fatalf("ResolveSession clerk: %v", err)
	}
	if err := r.Authorize(ctx, clerkAC, PermInvoiceView); err != nil {
		t.Fatalf("clerk denied invoice_view: %v", err)
	}
	if err := r.Authorize(ctx, clerkAC, PermInvoiceEdit); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	dangling := AuthContext{Kind: KindAdmin, ID: clerk.ID, Role: "missing-role"}
	if err := r.Authorize(ctx, dangling, PermInvoiceView); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected role not found, got %v", err)
	}

	keyAC := AuthContext{Kind: KindAPIKey, ID: "k", Permissions: []string{"read"}}
	if err := r.Authorize(ctx, keyAC, PermAdminDelete); err != nil {
		t.Fatalf("api key principals pass fine-grained checks: %v", err)
	}

	if _, err := r.ResolveSession(ctx, "garbage"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for garbage token, got %v", err)
	}
	orphan, _, _ := tokens.Issue("nobody")
	if _, err := r.ResolveSession(ctx, orphan); !errors.Is(err, ErrUserNotFound) || !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected user not found for unknown admin, got %v", err)
	}
}

func TestRequiredKeyPermission(t *testing.T) {
	cases := map[string]string{
		http.MethodGet:    KeyPermRead,
		http.MethodPost:   KeyPermWrite,
		http.MethodPatch:  KeyPermWrite,
		http.MethodDelete: KeyPermWrite,
		http.MethodHead:   KeyPermWrite,
	}
	for method, want := range cases {
		if got := RequiredKeyPermission(method); got != want {
			t.Fatalf("%s: got %s, want %s", method, got, want)
		}
	}
}
