package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/ledger"
)

// GetAvailableStock derives availability for every product. The four facts
// are read concurrently; if any read fails no partial picture is returned.
func (s *Service) GetAvailableStock(ctx context.Context) ([]domain.ProductStock, error) {
	var (
		products []domain.Product
		lines    []domain.SaleLine
		returns  []domain.Return
		pending  []domain.RemoteOrder
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if products, err = s.repo.ListProducts(gctx); err != nil {
			return fmt.Errorf("products: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if lines, err = s.repo.ListSaleLines(gctx); err != nil {
			return fmt.Errorf("sale lines: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if returns, err = s.repo.ListReturns(gctx); err != nil {
			return fmt.Errorf("returns: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if pending, err = s.repo.ListRemoteOrdersByStatus(gctx, domain.OrderStatusPending); err != nil {
			return fmt.Errorf("pending remote orders: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, storageFailure("compute stock", err)
	}

	stock, err := ledger.Compute(products, lines, returns, pending)
	if err != nil {
		var unreadable *ledger.UnreadableOrderError
		if errors.As(err, &unreadable) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
		}
		return nil, err
	}
	return stock, nil
}

// ListCustomerArticles is the public menu: active articles shown to customers.
func (s *Service) ListCustomerArticles(ctx context.Context) ([]domain.ProductStock, error) {
	stock, err := s.GetAvailableStock(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ProductStock, 0, len(stock))
	for _, item := range stock {
		if item.Active && item.VisibleToCustomer {
			out = append(out, item)
		}
	}
	return out, nil
}
