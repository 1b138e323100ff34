package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BINGOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BINGOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestCreateSaleRollsBackHeaderWhenLineFails(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, Name: "Empanada IT", Price: 2500, Active: true, InitialStock: 10}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err := s.CreateSale(ctx, domain.Sale{
		ID:             saleID,
		CashierID:      "cashier-it",
		PaymentMethod:  domain.PaymentCash,
		Subtotal:       5000,
		AmountTendered: 5000,
		Items: []domain.SaleLine{
			{ProductID: productID, Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
			{ProductID: "missing-" + productID, Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
		},
	})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record for unknown product, got %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales WHERE id = $1`, saleID).Scan(&count); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no sale header after failed line, got %d", count)
	}
}

func TestConcurrentSalesForOneRemoteOrderKeepOne(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	orderID := fmt.Sprintf("ord-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id IN (SELECT id FROM sales WHERE remote_order_id = $1)`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE remote_order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM remote_orders WHERE id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, Name: "Gaseosa IT", Price: 3000, Active: true, InitialStock: 10}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	details := domain.OrderDetails{{ProductID: productID, Quantity: 2, UnitPrice: 3000, Subtotal: 6000}}
	if _, err := s.CreateRemoteOrder(ctx, domain.RemoteOrder{ID: orderID, Code: fmt.Sprintf("%d", stamp%900000+100000), Details: details, Total: 6000}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSale(ctx, domain.Sale{
				CashierID:      "cashier-it",
				PaymentMethod:  domain.PaymentRemote,
				Subtotal:       6000,
				AmountTendered: 6000,
				RemoteOrderID:  orderID,
				Items:          []domain.SaleLine{{ProductID: productID, Quantity: 2, UnitPrice: 3000, Subtotal: 6000}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, conflicted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", succeeded, conflicted)
	}
}

func TestLegacyDoubleEncodedDetailsAreRead(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	orderID := fmt.Sprintf("ord-legacy-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM remote_orders WHERE id = $1`, orderID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_orders (id, code, details, total, status)
		VALUES ($1, $2, to_jsonb($3::text), 3000, 'pendiente')
	`, orderID, fmt.Sprintf("L%d", stamp), `[{"product_id":"p-1","quantity":1,"unit_price":3000,"subtotal":3000}]`); err != nil {
		t.Fatalf("insert legacy order: %v", err)
	}

	order, err := s.GetRemoteOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.DetailsUnreadable || len(order.Details) != 1 || order.Details[0].Quantity != 1 {
		t.Fatalf("expected legacy details decoded, got %+v", order)
	}
}
