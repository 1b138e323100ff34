package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"bingopos/backend/internal/domain"
)

type dashboardFacts struct {
	sales     []domain.Sale
	returns   []domain.Return
	completed []domain.RemoteOrder
	pending   int
	products  []domain.Product
}

func (s *Service) loadDashboardFacts(ctx context.Context) (dashboardFacts, error) {
	var facts dashboardFacts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		facts.sales, err = s.loadSales(gctx)
		return err
	})
	g.Go(func() (err error) {
		facts.returns, err = s.loadReturns(gctx)
		return err
	})
	g.Go(func() (err error) {
		if facts.completed, err = s.repo.ListRemoteOrdersByStatus(gctx, domain.OrderStatusCompleted); err != nil {
			return storageFailure("list completed remote orders", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if facts.pending, err = s.repo.CountRemoteOrdersByStatus(gctx, domain.OrderStatusPending); err != nil {
			return storageFailure("count pending remote orders", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if facts.products, err = s.repo.ListProducts(gctx); err != nil {
			return storageFailure("list products", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return dashboardFacts{}, err
	}
	return facts, nil
}

func (s *Service) GetDashboard(ctx context.Context, actor domain.Actor) (domain.Dashboard, error) {
	if err := require(actor, domain.PermDashboard); err != nil {
		return domain.Dashboard{}, err
	}
	facts, err := s.loadDashboardFacts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return buildDashboard(facts), nil
}

// buildDashboard assumes every return is refunded in cash.
func buildDashboard(f dashboardFacts) domain.Dashboard {
	d := domain.Dashboard{
		SalesCount:            len(f.sales),
		SalesByCashier:        []domain.CashierTotal{},
		SalePaceByCashier:     []domain.CashierPace{},
		CompletedRemoteOrders: len(f.completed),
		PendingRemoteOrders:   f.pending,
	}

	gross := int64(0)
	byCashier := make(map[string]int64)
	for _, sale := range f.sales {
		gross += sale.Subtotal
		switch sale.PaymentMethod {
		case domain.PaymentCash:
			d.TotalCash += sale.Subtotal
		case domain.PaymentRemote:
			d.TotalRemote += sale.Subtotal
		}
		byCashier[cashierLabel(sale)] += sale.Subtotal
	}
	for _, ret := range f.returns {
		d.TotalReturns += ret.RefundAmount
	}
	d.TotalRevenue = gross - d.TotalReturns
	d.TotalCash -= d.TotalReturns

	for name, total := range byCashier {
		d.SalesByCashier = append(d.SalesByCashier, domain.CashierTotal{Name: name, Total: total})
	}
	slices.SortFunc(d.SalesByCashier, func(a, b domain.CashierTotal) int {
		if a.Total != b.Total {
			if a.Total > b.Total {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})

	d.AvgVerificationMins = averageVerification(f.sales, f.completed)
	d.SalePaceByCashier = salePace(f.sales)
	return d
}

// averageVerification measures how long a completed remote order waited,
// from creation until its sale (or its completion stamp when the sale is
// not found). Nil when nothing was completed.
func averageVerification(sales []domain.Sale, completed []domain.RemoteOrder) *float64 {
	saleByOrder := make(map[string]domain.Sale, len(completed))
	for _, sale := range sales {
		if sale.RemoteOrderID != "" {
			saleByOrder[sale.RemoteOrderID] = sale
		}
	}

	total := 0.0
	n := 0
	for _, order := range completed {
		var minutes float64
		if sale, ok := saleByOrder[order.ID]; ok {
			minutes = sale.CreatedAt.Sub(order.CreatedAt).Minutes()
		} else if order.CompletedAt != nil {
			minutes = order.CompletedAt.Sub(order.CreatedAt).Minutes()
		} else {
			continue
		}
		if minutes < 0 {
			continue
		}
		total += minutes
		n++
	}
	if n == 0 {
		return nil
	}
	avg := total / float64(n)
	return &avg
}

// salePace is the mean gap between consecutive sales of each cashier with at
// least two sales, fastest first.
func salePace(sales []domain.Sale) []domain.CashierPace {
	byCashier := make(map[string][]domain.Sale)
	for _, sale := range sales {
		label := cashierLabel(sale)
		byCashier[label] = append(byCashier[label], sale)
	}

	out := make([]domain.CashierPace, 0, len(byCashier))
	for name, list := range byCashier {
		if len(list) < 2 {
			continue
		}
		slices.SortFunc(list, func(a, b domain.Sale) int { return a.CreatedAt.Compare(b.CreatedAt) })
		span := list[len(list)-1].CreatedAt.Sub(list[0].CreatedAt).Seconds()
		out = append(out, domain.CashierPace{Name: name, AvgSeconds: span / float64(len(list)-1)})
	}
	slices.SortFunc(out, func(a, b domain.CashierPace) int {
		if a.AvgSeconds != b.AvgSeconds {
			if a.AvgSeconds < b.AvgSeconds {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func cashierLabel(sale domain.Sale) string {
	if sale.CashierName != "" {
		return sale.CashierName
	}
	if sale.CashierID != "" {
		return sale.CashierID
	}
	return "Desconocido"
}

func (s *Service) GetArticleSales(ctx context.Context, actor domain.Actor) ([]domain.ArticleSales, error) {
	if err := require(actor, domain.PermDashboard); err != nil {
		return nil, err
	}
	facts, err := s.loadDashboardFacts(ctx)
	if err != nil {
		return nil, err
	}
	return articleSales(facts.products, facts.sales), nil
}

// articleSales lists every product, best seller first.
func articleSales(products []domain.Product, sales []domain.Sale) []domain.ArticleSales {
	index := make(map[string]int, len(products))
	out := make([]domain.ArticleSales, 0, len(products))
	for _, p := range products {
		index[p.ID] = len(out)
		out = append(out, domain.ArticleSales{ProductID: p.ID, Name: p.Name, ImageURL: p.ImageURL})
	}
	for _, sale := range sales {
		for _, line := range sale.Items {
			i, ok := index[line.ProductID]
			if !ok {
				index[line.ProductID] = len(out)
				i = len(out)
				out = append(out, domain.ArticleSales{ProductID: line.ProductID, Name: line.ProductName})
			}
			out[i].UnitsSold += line.Quantity
			out[i].Revenue += line.Subtotal
		}
	}
	slices.SortStableFunc(out, func(a, b domain.ArticleSales) int { return b.UnitsSold - a.UnitsSold })
	return out
}

func (s *Service) AnalyzeDashboard(ctx context.Context, req domain.AnalysisRequest, actor domain.Actor) (domain.AnalysisResponse, error) {
	if err := require(actor, domain.PermAIAnalysis); err != nil {
		return domain.AnalysisResponse{}, err
	}
	if s.assistant == nil {
		return domain.AnalysisResponse{}, ErrAssistantUnavailable
	}
	facts, err := s.loadDashboardFacts(ctx)
	if err != nil {
		return domain.AnalysisResponse{}, err
	}

	recent := facts.sales
	if len(recent) > 50 {
		recent = recent[:50]
	}
	analysis, err := s.assistant.AnalyzeDashboard(ctx, domain.AnalysisInput{
		Question:    strings.TrimSpace(req.Question),
		Dashboard:   buildDashboard(facts),
		Articles:    articleSales(facts.products, facts.sales),
		RecentSales: recent,
		Returns:     facts.returns,
	})
	if err != nil {
		return domain.AnalysisResponse{}, fmt.Errorf("%w: %w", ErrAssistantUnavailable, err)
	}
	s.logAudit(ctx, actor, "ai_analysis", "dashboard", "", truncate(req.Question, 200))
	return domain.AnalysisResponse{Analysis: analysis}, nil
}

func truncate(v string, n int) string {
	r := []rune(strings.TrimSpace(v))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
