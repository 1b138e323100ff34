package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// RecordReturn puts units back into stock and refunds them at the current
// article price.
func (s *Service) RecordReturn(ctx context.Context, req domain.ReturnRequest, actor domain.Actor) (domain.Return, error) {
	if err := require(actor, domain.PermReturns); err != nil {
		return domain.Return{}, err
	}

	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.Return{}, invalid(ErrInvalidReturn, "product is required")
	}
	if req.Quantity < 1 {
		return domain.Return{}, invalid(ErrInvalidReturn, "quantity must be at least 1")
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Return{}, invalid(ErrInvalidReturn, "product %s does not exist", productID)
		}
		return domain.Return{}, storageFailure("get product", err)
	}

	ret := domain.Return{
		ID:           xid.New("ret"),
		ProductID:    product.ID,
		ProductName:  product.Name,
		Quantity:     req.Quantity,
		RefundAmount: product.Price * int64(req.Quantity),
		CashierID:    actor.ID,
		CashierName:  actor.Name,
		CreatedAt:    s.clock(),
	}
	created, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		s.logAudit(ctx, actor, "return_failed", "return", ret.ID, fmt.Sprintf("product=%s,qty=%d,error=%v", product.ID, req.Quantity, err))
		return domain.Return{}, storageFailure("record return", err)
	}
	if created.ProductName == "" {
		created.ProductName = product.Name
	}
	if created.CashierName == "" {
		created.CashierName = actor.Name
	}

	s.logAudit(ctx, actor, "return_recorded", "return", created.ID, fmt.Sprintf("product=%s,qty=%d,refund=%d", product.ID, created.Quantity, created.RefundAmount))
	return *created, nil
}

func (s *Service) ListReturns(ctx context.Context, actor domain.Actor) ([]domain.Return, error) {
	if err := require(actor, domain.PermReturns); err != nil {
		return nil, err
	}
	return s.loadReturns(ctx)
}

func (s *Service) loadReturns(ctx context.Context) ([]domain.Return, error) {
	returns, err := s.repo.ListReturns(ctx)
	if err != nil {
		return nil, storageFailure("list returns", err)
	}
	names, err := s.cashierNames(ctx)
	if err != nil {
		return nil, err
	}
	for i := range returns {
		if returns[i].CashierName == "" {
			returns[i].CashierName = names[returns[i].CashierID]
		}
	}
	return returns, nil
}
