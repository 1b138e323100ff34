package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bingopos/backend/internal/domain"
)

type cashierStub struct {
	mu       sync.Mutex
	password string
	actor    domain.Actor
	inactive bool
	resolved int
}

func (s *cashierStub) Authenticate(_ context.Context, username string, password string) (domain.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username != s.actor.Username || password != s.password || s.inactive {
		return domain.Actor{}, errors.New("invalid credentials")
	}
	return s.actor, nil
}

func (s *cashierStub) ResolveActor(_ context.Context, cashierID string) (domain.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved++
	if cashierID != s.actor.ID || s.inactive {
		return domain.Actor{}, errors.New("cashier is not active")
	}
	return s.actor, nil
}

func newCashierStub() *cashierStub {
	return &cashierStub{
		password: "caja12345",
		actor: domain.Actor{
			ID:          "cash-1",
			Username:    "caja1",
			Name:        "Caja Uno",
			Permissions: []string{domain.PermVerifyRemote},
		},
	}
}

func TestAuthManagerLoginIssuesToken(t *testing.T) {
	stub := newCashierStub()
	manager := NewAuthManager("test-secret", time.Hour, stub)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "caja1", Password: "caja12345"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.CashierID != "cash-1" || resp.FullName != "Caja Uno" {
		t.Fatalf("unexpected login response %+v", resp)
	}
	if strings.Count(resp.AccessToken, ".") != 2 {
		t.Fatalf("expected a JWT, got %q", resp.AccessToken)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID != "cash-1" || !actor.Can(domain.PermVerifyRemote) {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthManagerRejectsBadCredentials(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newCashierStub())

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "caja1", Password: "nope"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: " ", Password: "caja12345"}); err == nil {
		t.Fatalf("expected empty username to fail")
	}
}

func TestAuthManagerRejectsExpiredAndForeignTokens(t *testing.T) {
	stub := newCashierStub()
	manager := NewAuthManager("test-secret", time.Minute, stub)
	issuedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "caja1", Password: "caja12345"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	other := NewAuthManager("another-secret", time.Hour, stub)
	other.now = func() time.Time { return issuedAt }
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}
}

func TestAuthManagerResolveReloadsCashier(t *testing.T) {
	stub := newCashierStub()
	manager := NewAuthManager("test-secret", time.Hour, stub)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "caja1", Password: "caja12345"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.Resolve(context.Background(), resp.AccessToken); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stub.mu.Lock()
	stub.inactive = true
	stub.mu.Unlock()

	if _, err := manager.Resolve(context.Background(), resp.AccessToken); err == nil {
		t.Fatalf("expected deactivated cashier to be rejected")
	}
	if stub.resolved != 2 {
		t.Fatalf("expected two store lookups, got %d", stub.resolved)
	}
}
