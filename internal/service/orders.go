package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/refcode"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// CreateRemoteOrder registers a customer's pre-payment under a fresh reference
// code. The order reserves stock until it is completed or cancelled.
func (s *Service) CreateRemoteOrder(ctx context.Context, req domain.RemoteOrderRequest) (domain.RemoteOrder, error) {
	details, customer, err := s.prepareOrder(ctx, req, "")
	if err != nil {
		return domain.RemoteOrder{}, err
	}

	budget := &refcode.Attempts{}
	for {
		code, err := s.codes.Next(ctx, budget)
		if err != nil {
			if errors.Is(err, refcode.ErrExhausted) {
				log.Printf("[orders] ERROR: reference code space exhausted after %d attempts", refcode.MaxAttempts)
				return domain.RemoteOrder{}, ErrCodeGenerationExhausted
			}
			return domain.RemoteOrder{}, storageFailure("generate reference code", err)
		}

		created, err := s.repo.CreateRemoteOrder(ctx, domain.RemoteOrder{
			ID:               xid.New("ord"),
			Code:             code,
			Details:          details,
			Total:            req.Total,
			Status:           domain.OrderStatusPending,
			CustomerDocument: customer.Document,
			CustomerPhone:    customer.Phone,
			CreatedAt:        s.clock(),
		})
		if errors.Is(err, store.ErrConflict) {
			// another order took the code between the check and the insert
			continue
		}
		if err != nil {
			return domain.RemoteOrder{}, storageFailure("create remote order", err)
		}

		s.metrics.RemoteOrderEvent("created")
		s.logAudit(ctx, domain.Actor{}, "remote_order_created", "remote_order", created.ID, fmt.Sprintf("code=%s,total=%d", created.Code, created.Total))
		return *created, nil
	}
}

// UpdateRemoteOrder replaces the details of an order that is still pending.
// The pending check is part of the write itself.
func (s *Service) UpdateRemoteOrder(ctx context.Context, orderID string, req domain.RemoteOrderRequest) (domain.RemoteOrder, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.RemoteOrder{}, ErrOrderNotEditable
	}

	details, customer, err := s.prepareOrder(ctx, req, orderID)
	if err != nil {
		return domain.RemoteOrder{}, err
	}

	updated, err := s.repo.UpdatePendingRemoteOrder(ctx, domain.RemoteOrder{
		ID:               orderID,
		Details:          details,
		Total:            req.Total,
		CustomerDocument: customer.Document,
		CustomerPhone:    customer.Phone,
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleState) || errors.Is(err, store.ErrNotFound) {
			return domain.RemoteOrder{}, fmt.Errorf("%w: order %s is missing or no longer pending", ErrOrderNotEditable, orderID)
		}
		return domain.RemoteOrder{}, storageFailure("update remote order", err)
	}

	s.logAudit(ctx, domain.Actor{}, "remote_order_updated", "remote_order", updated.ID, fmt.Sprintf("code=%s,total=%d", updated.Code, updated.Total))
	return *updated, nil
}

func (s *Service) prepareOrder(ctx context.Context, req domain.RemoteOrderRequest, reference string) (domain.OrderDetails, domain.CustomerInfo, error) {
	if req.Total <= 0 {
		return nil, domain.CustomerInfo{}, invalid(ErrInvalidOrder, "total must be greater than zero")
	}
	items, sum, err := s.normalizeLines(ctx, ErrInvalidOrder, req.Details)
	if err != nil {
		return nil, domain.CustomerInfo{}, err
	}
	if sum != req.Total {
		return nil, domain.CustomerInfo{}, invalid(ErrInvalidOrder, "total %d does not match items %d", req.Total, sum)
	}
	customer := customerInfo(req.Customer)

	if err := s.screenOrder(ctx, domain.FraudCheckInput{
		Total:         req.Total,
		PaymentMethod: domain.PaymentRemote,
		Items:         items,
		Reference:     reference,
		Customer:      customer,
	}); err != nil {
		return nil, domain.CustomerInfo{}, err
	}
	return domain.OrderDetails(items), customer, nil
}

// screenOrder fails open: a checker error lets the order through.
func (s *Service) screenOrder(ctx context.Context, in domain.FraudCheckInput) error {
	if s.fraud == nil {
		return nil
	}
	verdict, err := s.fraud.CheckOrder(ctx, in)
	if err != nil {
		log.Printf("[fraud] WARN: order pre-check failed, accepting order total=%d: %v", in.Total, err)
		return nil
	}
	if !verdict.Safe {
		s.metrics.RemoteOrderEvent("rejected")
		return fmt.Errorf("%w: %s", ErrOrderRejected, verdict.Reason)
	}
	return nil
}

func (s *Service) FindRemoteOrdersByCode(ctx context.Context, code string) ([]domain.RemoteOrder, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return []domain.RemoteOrder{}, nil
	}
	orders, err := s.repo.FindRemoteOrdersByCode(ctx, code)
	if err != nil {
		return nil, storageFailure("find remote orders by code", err)
	}
	return orders, nil
}

func (s *Service) FindRemoteOrdersByCustomer(ctx context.Context, documentOrPhone string) ([]domain.RemoteOrder, error) {
	documentOrPhone = strings.TrimSpace(documentOrPhone)
	if documentOrPhone == "" {
		return []domain.RemoteOrder{}, nil
	}
	orders, err := s.repo.FindRemoteOrdersByCustomer(ctx, documentOrPhone)
	if err != nil {
		return nil, storageFailure("find remote orders by customer", err)
	}
	return orders, nil
}

func (s *Service) ListPendingRemoteOrders(ctx context.Context) ([]domain.RemoteOrder, error) {
	orders, err := s.repo.ListRemoteOrdersByStatus(ctx, domain.OrderStatusPending)
	if err != nil {
		return nil, storageFailure("list pending remote orders", err)
	}
	return orders, nil
}

// CancelRemoteOrder releases the stock held by a pending order.
func (s *Service) CancelRemoteOrder(ctx context.Context, orderID string, actor domain.Actor) (domain.RemoteOrder, error) {
	if err := require(actor, domain.PermVerifyRemote); err != nil {
		return domain.RemoteOrder{}, err
	}

	order, err := s.repo.GetRemoteOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RemoteOrder{}, ErrOrderNotFound
		}
		return domain.RemoteOrder{}, storageFailure("get remote order", err)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.RemoteOrder{}, fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyProcessed, order.Code, order.Status)
	}

	now := s.clock()
	if err := s.repo.MarkRemoteOrderCancelled(ctx, order.ID, now); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return domain.RemoteOrder{}, fmt.Errorf("%w: order %s changed state or already has a sale", ErrOrderAlreadyProcessed, order.Code)
		}
		return domain.RemoteOrder{}, storageFailure("cancel remote order", err)
	}

	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	s.metrics.RemoteOrderEvent("cancelled")
	s.logAudit(ctx, actor, "remote_order_cancelled", "remote_order", order.ID, fmt.Sprintf("code=%s,total=%d", order.Code, order.Total))
	return *order, nil
}

// ExpireStaleRemoteOrders cancels pending orders created before now-olderThan
// and returns how many it moved. An order that changes state concurrently, or
// that was paid but never flipped to completada, is skipped.
func (s *Service) ExpireStaleRemoteOrders(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	pending, err := s.repo.ListRemoteOrdersByStatus(ctx, domain.OrderStatusPending)
	if err != nil {
		return 0, storageFailure("list pending remote orders", err)
	}

	now := s.clock()
	cutoff := now.Add(-olderThan)
	expired := 0
	for _, order := range pending {
		if !order.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.repo.MarkRemoteOrderCancelled(ctx, order.ID, now); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				continue
			}
			return expired, storageFailure("expire remote order", err)
		}
		expired++
		s.metrics.RemoteOrderEvent("expired")
		s.logAudit(ctx, domain.SystemActor, "remote_order_expired", "remote_order", order.ID, fmt.Sprintf("code=%s,created_at=%s", order.Code, order.CreatedAt.Format(time.RFC3339)))
	}
	return expired, nil
}

// RefreshPendingGauge publishes the number of orders awaiting verification.
func (s *Service) RefreshPendingGauge(ctx context.Context) error {
	count, err := s.repo.CountRemoteOrdersByStatus(ctx, domain.OrderStatusPending)
	if err != nil {
		return storageFailure("count pending remote orders", err)
	}
	s.metrics.SetPendingRemoteOrders(count)
	return nil
}
