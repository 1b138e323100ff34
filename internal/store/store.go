package store

import (
	"context"
	"errors"
	"time"

	"bingopos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique constraint hit: a reused reference code,
	// a second sale for the same remote order, a taken username.
	ErrConflict = errors.New("conflict")
	// ErrStaleState reports a conditional write that matched no row because
	// the record was no longer in the expected state.
	ErrStaleState    = errors.New("stale state")
	ErrInvalidRecord = errors.New("invalid record")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// CreateSale writes the header and every line, or nothing. When the sale
	// carries a RemoteOrderID the order must still be pending and must not
	// already have a sale; otherwise ErrConflict.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSaleLines(ctx context.Context) ([]domain.SaleLine, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	ListReturns(ctx context.Context) ([]domain.Return, error)

	RemoteOrderCodeExists(ctx context.Context, code string) (bool, error)
	CreateRemoteOrder(ctx context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error)
	GetRemoteOrder(ctx context.Context, id string) (*domain.RemoteOrder, error)
	// UpdatePendingRemoteOrder replaces details, total and customer info only
	// while the order is pending and no sale refers to it. ErrStaleState
	// otherwise.
	UpdatePendingRemoteOrder(ctx context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error)
	FindRemoteOrdersByCode(ctx context.Context, code string) ([]domain.RemoteOrder, error)
	FindRemoteOrdersByCustomer(ctx context.Context, value string) ([]domain.RemoteOrder, error)
	ListRemoteOrdersByStatus(ctx context.Context, status string) ([]domain.RemoteOrder, error)
	CountRemoteOrdersByStatus(ctx context.Context, status string) (int, error)
	// MarkRemoteOrderCompleted and MarkRemoteOrderCancelled only move a pending
	// order. ErrStaleState when nothing matched. A pending order that already
	// has a sale (its completion flip failed) cannot be cancelled.
	MarkRemoteOrderCompleted(ctx context.Context, id string, saleID string, at time.Time) error
	MarkRemoteOrderCancelled(ctx context.Context, id string, at time.Time) error

	CreateCashier(ctx context.Context, cashier domain.Cashier) (*domain.Cashier, error)
	UpdateCashier(ctx context.Context, cashier domain.Cashier) (*domain.Cashier, error)
	GetCashier(ctx context.Context, id string) (*domain.Cashier, error)
	GetCashierByUsername(ctx context.Context, username string) (*domain.Cashier, error)
	ListCashiers(ctx context.Context) ([]domain.Cashier, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	AppendConversationMessage(ctx context.Context, msg domain.ConversationMessage) error
	ListConversationMessages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error)
	ListRecentConversationMessages(ctx context.Context, limit int) ([]domain.ConversationMessage, error)
}
