package service

import (
	"context"
	"fmt"
	"strings"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/xid"
)

// RecordSale persists a booth sale with all its lines as one unit. The fraud
// check runs after the sale is committed and can only leave an audit entry.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest, actor domain.Actor) (domain.Sale, error) {
	if actor.ID == "" {
		return domain.Sale{}, ErrUnauthorized
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method != domain.PaymentCash && method != domain.PaymentRemote {
		return domain.Sale{}, invalid(ErrInvalidSale, "unsupported payment method %q", req.PaymentMethod)
	}
	items, subtotal, err := s.normalizeLines(ctx, ErrInvalidSale, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.Subtotal != 0 && req.Subtotal != subtotal {
		return domain.Sale{}, invalid(ErrInvalidSale, "subtotal %d does not match items %d", req.Subtotal, subtotal)
	}

	tendered := req.AmountTendered
	change := int64(0)
	if method == domain.PaymentCash {
		if tendered < subtotal {
			return domain.Sale{}, invalid(ErrInvalidSale, "amount tendered %d is below subtotal %d", tendered, subtotal)
		}
		change = tendered - subtotal
	} else {
		tendered = subtotal
	}

	sale, err := s.persistSale(ctx, domain.Sale{
		ID:             xid.New("sale"),
		CashierID:      actor.ID,
		CashierName:    actor.Name,
		PaymentMethod:  method,
		Subtotal:       subtotal,
		AmountTendered: tendered,
		Change:         change,
		CreatedAt:      s.clock(),
		Items:          toSaleLines(items),
	}, actor)
	if err != nil {
		return domain.Sale{}, storageFailure("record sale", err)
	}

	s.dispatchFraudCheck(*sale, items, actor)
	return *sale, nil
}

// persistSale is the only writer of sales. Audit entries are best effort.
func (s *Service) persistSale(ctx context.Context, sale domain.Sale, actor domain.Actor) (*domain.Sale, error) {
	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		s.logAudit(ctx, actor, "sale_failed", "sale", sale.ID, fmt.Sprintf("method=%s,subtotal=%d,error=%v", sale.PaymentMethod, sale.Subtotal, err))
		return nil, err
	}
	s.metrics.SaleRecorded(created.PaymentMethod)
	s.logAudit(ctx, actor, "sale_recorded", "sale", created.ID, fmt.Sprintf("method=%s,subtotal=%d,items=%d", created.PaymentMethod, created.Subtotal, len(created.Items)))
	return created, nil
}

func (s *Service) dispatchFraudCheck(sale domain.Sale, items []domain.LineItem, actor domain.Actor) {
	if s.fraud == nil {
		return
	}
	s.tasks.Go("fraud_check_post_sale", func(ctx context.Context) {
		verdict, err := s.fraud.CheckOrder(ctx, domain.FraudCheckInput{
			Total:         sale.Subtotal,
			PaymentMethod: sale.PaymentMethod,
			Items:         items,
			Reference:     sale.ID,
		})
		if err != nil {
			s.logAudit(ctx, actor, "fraud_check_error", "sale", sale.ID, err.Error())
			return
		}
		if !verdict.Safe {
			s.metrics.FraudAlert()
			s.logAudit(ctx, actor, "fraud_alert_post_sale", "sale", sale.ID, verdict.Reason)
		}
	})
}

func (s *Service) ListSales(ctx context.Context, actor domain.Actor) ([]domain.Sale, error) {
	if err := require(actor, domain.PermDashboard); err != nil {
		return nil, err
	}
	sales, err := s.loadSales(ctx)
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// loadSales returns every sale newest first with its lines attached.
func (s *Service) loadSales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, storageFailure("list sales", err)
	}
	lines, err := s.repo.ListSaleLines(ctx)
	if err != nil {
		return nil, storageFailure("list sale lines", err)
	}

	names, err := s.cashierNames(ctx)
	if err != nil {
		return nil, err
	}

	bySale := make(map[string][]domain.SaleLine, len(sales))
	for _, line := range lines {
		bySale[line.SaleID] = append(bySale[line.SaleID], line)
	}
	for i := range sales {
		if sales[i].CashierName == "" {
			sales[i].CashierName = names[sales[i].CashierID]
		}
		if items, ok := bySale[sales[i].ID]; ok {
			sales[i].Items = items
		} else if sales[i].Items == nil {
			sales[i].Items = []domain.SaleLine{}
		}
	}
	return sales, nil
}

func (s *Service) cashierNames(ctx context.Context) (map[string]string, error) {
	cashiers, err := s.repo.ListCashiers(ctx)
	if err != nil {
		return nil, storageFailure("list cashiers", err)
	}
	names := make(map[string]string, len(cashiers))
	for _, c := range cashiers {
		names[c.ID] = c.FullName
	}
	return names, nil
}
