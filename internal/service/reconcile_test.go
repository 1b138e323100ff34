package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/store/memory"
)

func createCartonOrder(t *testing.T, svc *Service) domain.RemoteOrder {
	t.Helper()
	order, err := svc.CreateRemoteOrder(context.Background(), domain.RemoteOrderRequest{
		Details:  []domain.LineItem{line("prod-carton", 2, 5000)},
		Total:    10000,
		Customer: domain.CustomerInfo{Phone: "3109876543"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestCompleteRemoteOrderHappyPath(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	order := createCartonOrder(t, svc)

	sale, err := svc.CompleteRemoteOrder(ctx, order.ID, testBooth)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sale.Subtotal != 10000 || sale.AmountTendered != 10000 || sale.Change != 0 || sale.PaymentMethod != domain.PaymentRemote {
		t.Fatalf("unexpected sale header %+v", sale)
	}
	if len(sale.Items) != 1 || sale.Items[0].Quantity != 2 || sale.Items[0].UnitPrice != 5000 {
		t.Fatalf("unexpected sale lines %+v", sale.Items)
	}

	stored, err := repo.GetRemoteOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != domain.OrderStatusCompleted || stored.SaleID != sale.ID || stored.CompletedAt == nil {
		t.Fatalf("unexpected order after completion %+v", stored)
	}
	if _, ok := findAudit(auditActions(t, repo), "remote_order_completed"); !ok {
		t.Fatalf("expected remote_order_completed audit entry")
	}
}

func TestCompleteRemoteOrderIsIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	order := createCartonOrder(t, svc)

	if _, err := svc.CompleteRemoteOrder(ctx, order.ID, testBooth); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if _, err := svc.CompleteRemoteOrder(ctx, order.ID, testBooth); !errors.Is(err, ErrOrderAlreadyProcessed) {
		t.Fatalf("expected ErrOrderAlreadyProcessed, got %v", err)
	}
	sales, _ := repo.ListSales(ctx)
	if len(sales) != 1 {
		t.Fatalf("expected exactly one sale, got %d", len(sales))
	}
}

func TestCompleteRemoteOrderErrors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	order := createCartonOrder(t, svc)

	if _, err := svc.CompleteRemoteOrder(ctx, order.ID, domain.Actor{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.CompleteRemoteOrder(ctx, "ord-missing", testBooth); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestConcurrentCompletionHasOneWinner(t *testing.T) {
	for round := 0; round < 20; round++ {
		svc, repo := newTestService()
		order := createCartonOrder(t, svc)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.CompleteRemoteOrder(context.Background(), order.ID, testBooth)
			}(i)
		}
		close(start)
		wg.Wait()

		wins, already := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrOrderAlreadyProcessed):
				already++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if wins != 1 || already != 1 {
			t.Fatalf("round %d: expected one winner and one refusal, got %d/%d", round, wins, already)
		}
		sales, _ := repo.ListSales(context.Background())
		if len(sales) != 1 {
			t.Fatalf("round %d: expected one sale, got %d", round, len(sales))
		}
	}
}

type stuckFlipStore struct {
	*memory.Store
	err error
}

func (s stuckFlipStore) MarkRemoteOrderCompleted(context.Context, string, string, time.Time) error {
	return s.err
}

func TestCompleteRemoteOrderPartialFailure(t *testing.T) {
	for _, flipErr := range []error{store.ErrStaleState, errors.New("connection lost")} {
		repo := stuckFlipStore{Store: memory.NewSeeded(), err: flipErr}
		svc := New(repo, WithTaskRunner(InlineRunner{}))
		ctx := context.Background()
		order := createCartonOrder(t, svc)

		sale, err := svc.CompleteRemoteOrder(ctx, order.ID, testBooth)
		if !errors.Is(err, ErrInconsistentState) {
			t.Fatalf("expected ErrInconsistentState, got %v", err)
		}
		var inconsistent *InconsistentStateError
		if !errors.As(err, &inconsistent) || inconsistent.SaleID == "" || inconsistent.OrderCode != order.Code {
			t.Fatalf("expected details in error, got %#v", err)
		}
		if !strings.Contains(err.Error(), "manual follow-up") {
			t.Fatalf("expected message asking for follow-up, got %q", err.Error())
		}
		if sale.ID != inconsistent.SaleID {
			t.Fatalf("expected recorded sale to be returned, got %q", sale.ID)
		}

		sales, _ := repo.ListSales(ctx)
		if len(sales) != 1 || sales[0].ID != inconsistent.SaleID {
			t.Fatalf("sale must not be rolled back, got %+v", sales)
		}
		entry, ok := findAudit(auditActions(t, repo), "remote_order_inconsistent_state")
		if !ok {
			t.Fatalf("expected inconsistent state audit entry")
		}
		if !strings.Contains(entry.Detail, order.Code) || !strings.Contains(entry.Detail, inconsistent.SaleID) {
			t.Fatalf("audit entry must name order code and sale id, got %q", entry.Detail)
		}
	}
}

type brokenSaleStore struct {
	*memory.Store
}

func (brokenSaleStore) CreateSale(context.Context, domain.Sale) (*domain.Sale, error) {
	return nil, errors.New("disk full")
}

func TestCompleteRemoteOrderSaleFailureKeepsOrderPending(t *testing.T) {
	repo := brokenSaleStore{Store: memory.NewSeeded()}
	svc := New(repo, WithTaskRunner(InlineRunner{}))
	ctx := context.Background()
	order := createCartonOrder(t, svc)

	if _, err := svc.CompleteRemoteOrder(ctx, order.ID, testBooth); !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
	stored, _ := repo.GetRemoteOrder(ctx, order.ID)
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", stored.Status)
	}
	if _, ok := findAudit(auditActions(t, repo), "remote_order_reconciliation_failed"); !ok {
		t.Fatalf("expected remote_order_reconciliation_failed audit entry")
	}
}

type unreadableStore struct {
	*memory.Store
}

func (u unreadableStore) GetRemoteOrder(ctx context.Context, id string) (*domain.RemoteOrder, error) {
	order, err := u.Store.GetRemoteOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Details = nil
	order.DetailsUnreadable = true
	return order, nil
}

func TestCompleteRemoteOrderUnreadableDetails(t *testing.T) {
	repo := unreadableStore{Store: memory.NewSeeded()}
	svc := New(repo, WithTaskRunner(InlineRunner{}))
	order := createCartonOrder(t, svc)

	if _, err := svc.CompleteRemoteOrder(context.Background(), order.ID, testBooth); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	sales, _ := repo.ListSales(context.Background())
	if len(sales) != 0 {
		t.Fatalf("expected no sale, got %d", len(sales))
	}
}

func TestPaidPendingOrderCannotBeCancelledOrEdited(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	clock := now
	repo := stuckFlipStore{Store: memory.NewSeeded(), err: store.ErrStaleState}
	svc := New(repo, WithTaskRunner(InlineRunner{}), WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	order := createCartonOrder(t, svc)

	if _, err := svc.CompleteRemoteOrder(ctx, order.ID, testBooth); !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}

	if _, err := svc.CancelRemoteOrder(ctx, order.ID, testAdmin); !errors.Is(err, ErrOrderAlreadyProcessed) {
		t.Fatalf("expected ErrOrderAlreadyProcessed, got %v", err)
	}
	edit := domain.RemoteOrderRequest{Details: []domain.LineItem{line("prod-carton", 1, 5000)}, Total: 5000}
	if _, err := svc.UpdateRemoteOrder(ctx, order.ID, edit); !errors.Is(err, ErrOrderNotEditable) {
		t.Fatalf("expected ErrOrderNotEditable, got %v", err)
	}

	clock = now.Add(2 * time.Hour)
	expired, err := svc.ExpireStaleRemoteOrders(ctx, time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 0 {
		t.Fatalf("paid order must not expire, got %d", expired)
	}

	stored, err := repo.GetRemoteOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Status != domain.OrderStatusPending || stored.Total != 10000 {
		t.Fatalf("order must stay pending and untouched for follow-up, got %+v", stored)
	}
}
