package auth

import (
	"context"
	"errors"
	"testing"

	"idurar.org/internal/domain"
)

func TestLoginAndOwnerBootstrap(t *testing.T) {
	store := NewInMemory()
	tokens, _ := NewTokenIssuer("secret")
	sessions, _ := NewSessions(store, tokens)
	ctx := context.Background()

	owner, created, err := sessions.EnsureOwner(ctx, "Owner@Example.com", "correct-horse", "Owner")
	if err != nil || !created {
		t.Fatalf("EnsureOwner: created=%v err=%v", created, err)
	}
	if !owner.IsOwner() || owner.Email != "owner@example.com" {
		t.Fatalf("unexpected owner: %+v", owner)
	}
	again, created, err := sessions.EnsureOwner(ctx, "owner@example.com", "correct-horse", "Owner")
	if err != nil || created || again.ID != owner.ID {
		t.Fatalf("EnsureOwner must be idempotent: %v %v", created, err)
	}

	sess, err := sessions.Login(ctx, "OWNER@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := tokens.Parse(sess.Token)
	if err != nil || claims.Subject != owner.ID {
		t.Fatalf("token does not identify owner: %v", err)
	}

	if _, err := sessions.Login(ctx, "owner@example.com", "wrong-password"); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("expected invalid login, got %v", err)
	}
	if _, err := sessions.Login(ctx, "ghost@example.com", "whatever-pass"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := sessions.Login(ctx, "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateAdminValidation(t *testing.T) {
	store := NewInMemory()
	tokens, _ := NewTokenIssuer("secret")
	sessions, _ := NewSessions(store, tokens)
	ctx := context.Background()

	if _, err := sessions.CreateAdmin(ctx, "not-an-email", "password-1", "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := sessions.CreateAdmin(ctx, "a@b.c", "short", "", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
	if _, err := sessions.CreateAdmin(ctx, "a@b.c", "password-1", "", ""); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if _, err := sessions.CreateAdmin(ctx, "A@B.C", "password-1", "", ""); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestRegisterAdmin(t *testing.T) {
	store := NewInMemory()
	tokens, _ := NewTokenIssuer("secret")
	sessions, _ := NewSessions(store, tokens)
	roles, _ := NewRoleManager(store)
	ctx := context.Background()
	role, _ := roles.Create(ctx, "Clerk", "", []string{PermInvoiceView})

	a, err := sessions.Register(ctx, "clerk@example.com", "password-1", "Clerk", role.ID)
	if err != nil || a.Role != role.ID || a.IsOwner() {
		t.Fatalf("Register: %+v %v", a, err)
	}
	if _, err := sessions.Register(ctx, "boss@example.com", "password-1", "Boss", OwnerRole); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("owner grant must be refused, got %v", err)
	}
	if _, err := sessions.Register(ctx, "nobody@example.com", "password-1", "Nobody", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing role, got %v", err)
	}
	if _, err := sessions.Register(ctx, "clerk@example.com", "password-1", "Clerk", role.ID); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}
