package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if _, err := s.CreateProduct(context.Background(), domain.Product{ID: "p-1", Name: "Empanada", Price: 2500, Active: true, InitialStock: 50}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return s
}

func TestCreateSaleIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSale(ctx, domain.Sale{
		ID:            "sale-broken",
		CashierID:     "c-1",
		PaymentMethod: domain.PaymentCash,
		Subtotal:      5000,
		Items: []domain.SaleLine{
			{ProductID: "p-1", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
			{ProductID: "p-missing", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
		},
	})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record, got %v", err)
	}

	sales, err := s.ListSales(ctx)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale header, got %d", len(sales))
	}
	lines, err := s.ListSaleLines(ctx)
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(lines))
	}
}

func TestRemoteOrderSaleGuardAndFlip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.CreateRemoteOrder(ctx, domain.RemoteOrder{
		ID:      "ord-1",
		Code:    "482913",
		Details: domain.OrderDetails{{ProductID: "p-1", Quantity: 2, UnitPrice: 2500, Subtotal: 5000}},
		Total:   5000,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.CreateRemoteOrder(ctx, domain.RemoteOrder{ID: "ord-2", Code: "482913", Total: 1}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate code conflict, got %v", err)
	}

	sale := domain.Sale{
		CashierID:      "c-1",
		PaymentMethod:  domain.PaymentRemote,
		Subtotal:       5000,
		AmountTendered: 5000,
		RemoteOrderID:  order.ID,
		Items:          []domain.SaleLine{{ProductID: "p-1", Quantity: 2, UnitPrice: 2500, Subtotal: 5000}},
	}
	created, err := s.CreateSale(ctx, sale)
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if _, err := s.CreateSale(ctx, sale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected second sale for order to conflict, got %v", err)
	}

	if err := s.MarkRemoteOrderCompleted(ctx, order.ID, created.ID, time.Now()); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := s.MarkRemoteOrderCompleted(ctx, order.ID, created.ID, time.Now()); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected stale state on second flip, got %v", err)
	}

	got, err := s.GetRemoteOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusCompleted || got.SaleID != created.ID || got.CompletedAt == nil {
		t.Fatalf("unexpected order after flip: %+v", got)
	}
	if _, err := s.UpdatePendingRemoteOrder(ctx, *got); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected completed order to be locked, got %v", err)
	}
}

func TestOrderWithSaleStaysPendingForFollowUp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.CreateRemoteOrder(ctx, domain.RemoteOrder{
		ID:      "ord-paid",
		Code:    "731204",
		Details: domain.OrderDetails{{ProductID: "p-1", Quantity: 1, UnitPrice: 2500, Subtotal: 2500}},
		Total:   2500,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.Sale{
		CashierID:      "c-1",
		PaymentMethod:  domain.PaymentRemote,
		Subtotal:       2500,
		AmountTendered: 2500,
		RemoteOrderID:  order.ID,
		Items:          []domain.SaleLine{{ProductID: "p-1", Quantity: 1, UnitPrice: 2500, Subtotal: 2500}},
	}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	if err := s.MarkRemoteOrderCancelled(ctx, order.ID, time.Now()); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected cancel of a paid order to be refused, got %v", err)
	}
	edited := *order
	edited.Total = 1
	if _, err := s.UpdatePendingRemoteOrder(ctx, edited); !errors.Is(err, store.ErrStaleState) {
		t.Fatalf("expected edit of a paid order to be refused, got %v", err)
	}

	got, err := s.GetRemoteOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusPending || got.Total != 2500 {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestFindOrdersNewestFirstAndLegacyDetails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"ord-a", "ord-b"} {
		if _, err := s.CreateRemoteOrder(ctx, domain.RemoteOrder{
			ID:               id,
			Code:             "10000" + string(rune('1'+i)),
			Details:          domain.OrderDetails{{ProductID: "p-1", Quantity: 1, UnitPrice: 2500, Subtotal: 2500}},
			Total:            2500,
			CustomerDocument: "1020304050",
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_orders (id, code, details, total, status, customer_phone, created_at)
		VALUES ('ord-legacy', '777777', ?, 2500, 'pendiente', '3001234567', ?)
	`, `"[{\"product_id\":\"p-1\",\"quantity\":3,\"unit_price\":2500,\"subtotal\":7500}]"`, formatTime(base)); err != nil {
		t.Fatalf("insert legacy order: %v", err)
	}

	orders, err := s.FindRemoteOrdersByCustomer(ctx, "1020304050")
	if err != nil {
		t.Fatalf("find by customer: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != "ord-b" {
		t.Fatalf("expected newest first, got %+v", orders)
	}

	legacy, err := s.FindRemoteOrdersByCustomer(ctx, "3001234567")
	if err != nil {
		t.Fatalf("find legacy: %v", err)
	}
	if len(legacy) != 1 || legacy[0].DetailsUnreadable || legacy[0].Details[0].Quantity != 3 {
		t.Fatalf("expected legacy details decoded, got %+v", legacy)
	}

	none, err := s.FindRemoteOrdersByCode(ctx, "999999")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result without error, got %v %v", none, err)
	}
}
