package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/presence"
)

// GetCashierWarning tells the booth whether remote payments are piling up.
func (s *Service) GetCashierWarning(ctx context.Context, actor domain.Actor) (domain.CashierWarning, error) {
	if actor.ID == "" {
		return domain.CashierWarning{}, ErrUnauthorized
	}

	pending, err := s.repo.CountRemoteOrdersByStatus(ctx, domain.OrderStatusPending)
	if err != nil {
		return domain.CashierWarning{}, storageFailure("count pending remote orders", err)
	}
	snap, err := s.presence.Snapshot(ctx)
	if err != nil {
		log.Printf("[presence] WARN: snapshot failed: %v", err)
		snap = domain.PresenceSnapshot{}
	}

	in := domain.CashierWarningInput{
		PendingOrders:      pending,
		CompletedCustomers: snap.Completed,
	}
	if facts, err := s.loadDashboardFacts(ctx); err == nil {
		in.AvgVerificationMins = averageVerification(facts.sales, facts.completed)
	} else {
		log.Printf("[alert] WARN: verification average unavailable: %v", err)
	}
	return s.alerts.Evaluate(ctx, in), nil
}

// UpdatePresence records a customer's place in the remote order flow.
// The state inactive forgets the session.
func (s *Service) UpdatePresence(ctx context.Context, req domain.PresenceRequest) error {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return invalid(ErrInvalidRequest, "session id is required")
	}
	state := strings.ToLower(strings.TrimSpace(req.State))
	if state == domain.PresenceInactive {
		if err := s.presence.Remove(ctx, sessionID); err != nil {
			return storageFailure("remove presence", err)
		}
		return nil
	}
	if err := s.presence.Touch(ctx, sessionID, state); err != nil {
		if errors.Is(err, presence.ErrUnknownState) {
			return invalid(ErrInvalidRequest, "unknown presence state %q", req.State)
		}
		return storageFailure("touch presence", err)
	}
	return nil
}

func (s *Service) PresenceSnapshot(ctx context.Context, actor domain.Actor) (domain.PresenceSnapshot, error) {
	if actor.ID == "" {
		return domain.PresenceSnapshot{}, ErrUnauthorized
	}
	snap, err := s.presence.Snapshot(ctx)
	if err != nil {
		return domain.PresenceSnapshot{}, storageFailure("presence snapshot", err)
	}
	return snap, nil
}
