package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// AllPermissions is granted to the bootstrap administrator.
var AllPermissions = []string{
	domain.PermDashboard,
	domain.PermArticles,
	domain.PermCashiers,
	domain.PermReturns,
	domain.PermVerifyRemote,
	domain.PermAIAnalysis,
	domain.PermLogs,
}

// Bootstrap creates the first administrator when no cashier exists yet.
// It reports whether a cashier was created.
func (s *Service) Bootstrap(ctx context.Context, username string, password string) (bool, error) {
	existing, err := s.repo.ListCashiers(ctx)
	if err != nil {
		return false, storageFailure("list cashiers", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	cashier, err := s.buildCashier(domain.CashierRequest{
		Username:    username,
		FullName:    "Administrador",
		Password:    password,
		Permissions: AllPermissions,
	}, true)
	if err != nil {
		return false, err
	}
	created, err := s.repo.CreateCashier(ctx, cashier)
	if err != nil {
		return false, storageFailure("create bootstrap cashier", err)
	}
	s.logAudit(ctx, domain.SystemActor, "cashier_bootstrap", "cashier", created.ID, "username="+created.Username)
	return true, nil
}

// Authenticate checks credentials and returns the cashier as an actor.
// Unknown users, wrong passwords and inactive cashiers all yield
// ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Actor, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	cashier, err := s.repo.GetCashierByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logAudit(ctx, domain.Actor{}, "login_failed", "cashier", username, "unknown user")
			return domain.Actor{}, ErrUnauthorized
		}
		return domain.Actor{}, storageFailure("get cashier", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cashier.PasswordHash), []byte(password)); err != nil {
		s.logAudit(ctx, domain.Actor{ID: cashier.ID, Name: cashier.FullName}, "login_failed", "cashier", cashier.ID, "wrong password")
		return domain.Actor{}, ErrUnauthorized
	}
	if !cashier.Active {
		s.logAudit(ctx, domain.Actor{ID: cashier.ID, Name: cashier.FullName}, "login_failed", "cashier", cashier.ID, "inactive")
		return domain.Actor{}, fmt.Errorf("%w: cashier is inactive", ErrUnauthorized)
	}

	actor := actorFor(*cashier)
	s.logAudit(ctx, actor, "login_success", "cashier", cashier.ID, "")
	return actor, nil
}

// ResolveActor reloads a cashier named by a token so that deactivation and
// permission changes apply before the token expires.
func (s *Service) ResolveActor(ctx context.Context, cashierID string) (domain.Actor, error) {
	cashier, err := s.repo.GetCashier(ctx, cashierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{}, ErrUnauthorized
		}
		return domain.Actor{}, storageFailure("get cashier", err)
	}
	if !cashier.Active {
		return domain.Actor{}, ErrUnauthorized
	}
	return actorFor(*cashier), nil
}

func (s *Service) ListCashiers(ctx context.Context, actor domain.Actor) ([]domain.Cashier, error) {
	if err := require(actor, domain.PermCashiers); err != nil {
		return nil, err
	}
	cashiers, err := s.repo.ListCashiers(ctx)
	if err != nil {
		return nil, storageFailure("list cashiers", err)
	}
	return cashiers, nil
}

func (s *Service) CreateCashier(ctx context.Context, req domain.CashierRequest, actor domain.Actor) (domain.Cashier, error) {
	if err := require(actor, domain.PermCashiers); err != nil {
		return domain.Cashier{}, err
	}
	cashier, err := s.buildCashier(req, true)
	if err != nil {
		return domain.Cashier{}, err
	}
	created, err := s.repo.CreateCashier(ctx, cashier)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Cashier{}, invalid(ErrInvalidCashier, "username %s is already taken", cashier.Username)
		}
		return domain.Cashier{}, storageFailure("create cashier", err)
	}

	s.logAudit(ctx, actor, "cashier_created", "cashier", created.ID, fmt.Sprintf("username=%s,permissions=%s", created.Username, strings.Join(created.Permissions, "|")))
	return *created, nil
}

// UpdateCashier replaces name, username, permissions and status. An empty
// password keeps the current one.
func (s *Service) UpdateCashier(ctx context.Context, cashierID string, req domain.CashierRequest, actor domain.Actor) (domain.Cashier, error) {
	if err := require(actor, domain.PermCashiers); err != nil {
		return domain.Cashier{}, err
	}
	existing, err := s.repo.GetCashier(ctx, cashierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Cashier{}, fmt.Errorf("%w: cashier %s", ErrNotFound, cashierID)
		}
		return domain.Cashier{}, storageFailure("get cashier", err)
	}

	keepHash := strings.TrimSpace(req.Password) == ""
	next, err := s.buildCashier(req, !keepHash)
	if err != nil {
		return domain.Cashier{}, err
	}
	next.ID = existing.ID
	next.CreatedAt = existing.CreatedAt
	if keepHash {
		next.PasswordHash = existing.PasswordHash
	}
	if req.Active == nil {
		next.Active = existing.Active
	}
	if next.ID == actor.ID && (!next.Active || !slices.Contains(next.Permissions, domain.PermCashiers)) {
		return domain.Cashier{}, invalid(ErrInvalidCashier, "you cannot deactivate yourself or drop your own cashier permission")
	}

	updated, err := s.repo.UpdateCashier(ctx, next)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Cashier{}, invalid(ErrInvalidCashier, "username %s is already taken", next.Username)
		}
		return domain.Cashier{}, storageFailure("update cashier", err)
	}

	s.logAudit(ctx, actor, "cashier_updated", "cashier", updated.ID, fmt.Sprintf("username=%s,active=%t,password_changed=%t", updated.Username, updated.Active, !keepHash))
	return *updated, nil
}

// buildCashier validates req. The password is hashed only when withPassword
// is set.
func (s *Service) buildCashier(req domain.CashierRequest, withPassword bool) (domain.Cashier, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	fullName := strings.TrimSpace(req.FullName)
	if len(username) < 3 {
		return domain.Cashier{}, invalid(ErrInvalidCashier, "username must have at least 3 characters")
	}
	if len([]rune(fullName)) < 3 {
		return domain.Cashier{}, invalid(ErrInvalidCashier, "full name must have at least 3 characters")
	}
	if withPassword && len(req.Password) < 6 {
		return domain.Cashier{}, invalid(ErrInvalidCashier, "password must have at least 6 characters")
	}

	permissions := make([]string, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		p = strings.TrimSpace(p)
		if !slices.Contains(AllPermissions, p) {
			return domain.Cashier{}, invalid(ErrInvalidCashier, "unknown permission %q", p)
		}
		if !slices.Contains(permissions, p) {
			permissions = append(permissions, p)
		}
	}

	hash := []byte(nil)
	if withPassword {
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost); err != nil {
			return domain.Cashier{}, fmt.Errorf("hash password: %w", err)
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return domain.Cashier{
		ID:           xid.New("cash"),
		Username:     username,
		FullName:     fullName,
		PasswordHash: string(hash),
		Active:       active,
		Permissions:  permissions,
		CreatedAt:    s.clock(),
	}, nil
}

func actorFor(c domain.Cashier) domain.Actor {
	return domain.Actor{
		ID:          c.ID,
		Username:    c.Username,
		Name:        c.FullName,
		Permissions: slices.Clone(c.Permissions),
	}
}
