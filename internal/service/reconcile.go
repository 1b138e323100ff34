package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// CompleteRemoteOrder turns a pending remote order into a booth sale.
//
// The sale is written first and the order is flipped second, in two separate
// store calls. If the flip fails after the sale exists nothing is undone: the
// payment stays recorded and an inconsistent-state audit entry is left for
// manual follow-up.
func (s *Service) CompleteRemoteOrder(ctx context.Context, orderID string, actor domain.Actor) (domain.Sale, error) {
	if actor.ID == "" {
		return domain.Sale{}, ErrUnauthorized
	}

	order, err := s.repo.GetRemoteOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Sale{}, storageFailure("get remote order", err)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Sale{}, fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyProcessed, order.Code, order.Status)
	}
	if order.DetailsUnreadable || len(order.Details) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: order %s has unreadable details", ErrInvalidOrder, order.Code)
	}

	sale, err := s.persistSale(ctx, domain.Sale{
		ID:             xid.New("sale"),
		CashierID:      actor.ID,
		CashierName:    actor.Name,
		PaymentMethod:  domain.PaymentRemote,
		Subtotal:       order.Total,
		AmountTendered: order.Total,
		Change:         0,
		RemoteOrderID:  order.ID,
		CreatedAt:      s.clock(),
		Items:          toSaleLines(order.Details),
	}, actor)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Sale{}, fmt.Errorf("%w: order %s was completed concurrently", ErrOrderAlreadyProcessed, order.Code)
		}
		s.metrics.RemoteOrderEvent("failed")
		s.logAudit(ctx, actor, "remote_order_reconciliation_failed", "remote_order", order.ID, fmt.Sprintf("code=%s,error=%v", order.Code, err))
		return domain.Sale{}, storageFailure("record remote order sale", err)
	}

	if err := s.repo.MarkRemoteOrderCompleted(ctx, order.ID, sale.ID, s.clock()); err != nil {
		log.Printf("[reconcile] ERROR: sale %s recorded but remote order %s (code %s) was not completed: %v", sale.ID, order.ID, order.Code, err)
		s.metrics.InconsistentState()
		s.logAudit(ctx, actor, "remote_order_inconsistent_state", "remote_order", order.ID, fmt.Sprintf("code=%s,sale_id=%s,error=%v", order.Code, sale.ID, err))
		return *sale, &InconsistentStateError{OrderID: order.ID, OrderCode: order.Code, SaleID: sale.ID, Err: err}
	}

	s.metrics.RemoteOrderEvent("completed")
	s.logAudit(ctx, actor, "remote_order_completed", "remote_order", order.ID, fmt.Sprintf("code=%s,sale_id=%s,total=%d", order.Code, sale.ID, order.Total))
	return *sale, nil
}
