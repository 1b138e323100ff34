package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// Store keeps every fact in process memory. Used for tests and for running
// the booth without a database.
type Store struct {
	mu            sync.RWMutex
	products      []domain.Product
	sales         []domain.Sale
	returns       []domain.Return
	orders        []domain.RemoteOrder
	saleByOrderID map[string]string
	cashiers      []domain.Cashier
	auditLogs     []domain.AuditLog
	conversations []domain.ConversationMessage
}

func New() *Store {
	return &Store{
		products:      make([]domain.Product, 0, 16),
		sales:         make([]domain.Sale, 0, 128),
		returns:       make([]domain.Return, 0, 16),
		orders:        make([]domain.RemoteOrder, 0, 64),
		saleByOrderID: make(map[string]string),
		cashiers:      make([]domain.Cashier, 0, 8),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		conversations: make([]domain.ConversationMessage, 0, 64),
	}
}

// NewSeeded returns a store with the usual bingo food stand catalogue.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for i, p := range []struct {
		id    string
		name  string
		price int64
		stock int
	}{
		{"prod-empanada", "Empanada", 2500, 200},
		{"prod-gaseosa", "Gaseosa", 3000, 150},
		{"prod-perro", "Perro caliente", 6000, 80},
		{"prod-crispetas", "Crispetas", 2000, 120},
		{"prod-carton", "Cartón de bingo", 5000, 500},
	} {
		s.products = append(s.products, domain.Product{
			ID:                p.id,
			Name:              p.name,
			Price:             p.price,
			Active:            true,
			VisibleToCustomer: true,
			InitialStock:      p.stock,
			CreatedAt:         now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.products)
	slices.SortStableFunc(out, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.ID == id {
			dup := p
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	for _, p := range s.products {
		if p.ID == product.ID {
			return nil, fmt.Errorf("%w: product %s exists", store.ErrConflict, product.ID)
		}
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products = append(s.products, product)
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.products {
		if p.ID == product.ID {
			product.CreatedAt = p.CreatedAt
			s.products[i] = product
			return &product, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale without lines", store.ErrInvalidRecord)
	}
	for _, line := range sale.Items {
		if !s.hasProductLocked(line.ProductID) {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrInvalidRecord, line.ProductID)
		}
	}
	if sale.RemoteOrderID != "" {
		idx := s.orderIndexLocked(sale.RemoteOrderID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: remote order %s", store.ErrInvalidRecord, sale.RemoteOrderID)
		}
		if _, taken := s.saleByOrderID[sale.RemoteOrderID]; taken || s.orders[idx].Status != domain.OrderStatusPending {
			return nil, fmt.Errorf("%w: remote order %s already has a sale", store.ErrConflict, sale.RemoteOrderID)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	items := make([]domain.SaleLine, len(sale.Items))
	for i, line := range sale.Items {
		line.SaleID = sale.ID
		items[i] = line
	}
	sale.Items = items
	s.sales = append(s.sales, sale)
	if sale.RemoteOrderID != "" {
		s.saleByOrderID[sale.RemoteOrderID] = sale.ID
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for i := len(s.sales) - 1; i >= 0; i-- {
		out = append(out, *cloneSale(s.sales[i]))
	}
	slices.SortStableFunc(out, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) ListSaleLines(_ context.Context) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleLine, 0, len(s.sales)*2)
	for _, sale := range s.sales {
		out = append(out, sale.Items...)
	}
	return out, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasProductLocked(ret.ProductID) {
		return nil, fmt.Errorf("%w: unknown product %s", store.ErrInvalidRecord, ret.ProductID)
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	s.returns = append(s.returns, ret)
	return &ret, nil
}

func (s *Store) ListReturns(_ context.Context) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Return, 0, len(s.returns))
	for i := len(s.returns) - 1; i >= 0; i-- {
		out = append(out, s.returns[i])
	}
	slices.SortStableFunc(out, func(a, b domain.Return) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) RemoteOrderCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateRemoteOrder(_ context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.Code == order.Code {
			return nil, fmt.Errorf("%w: reference code %s in use", store.ErrConflict, order.Code)
		}
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	order = cloneOrder(order)
	s.orders = append(s.orders, order)
	dup := cloneOrder(order)
	return &dup, nil
}

func (s *Store) GetRemoteOrder(_ context.Context, id string) (*domain.RemoteOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.orderIndexLocked(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(s.orders[idx])
	return &dup, nil
}

func (s *Store) UpdatePendingRemoteOrder(_ context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.orderIndexLocked(order.ID)
	if idx < 0 || !s.openLocked(idx) {
		return nil, store.ErrStaleState
	}
	current := s.orders[idx]
	current.Details = slices.Clone(order.Details)
	current.Total = order.Total
	current.CustomerDocument = order.CustomerDocument
	current.CustomerPhone = order.CustomerPhone
	s.orders[idx] = current
	dup := cloneOrder(current)
	return &dup, nil
}

func (s *Store) FindRemoteOrdersByCode(_ context.Context, code string) ([]domain.RemoteOrder, error) {
	return s.filterOrders(func(o domain.RemoteOrder) bool { return o.Code == code }), nil
}

func (s *Store) FindRemoteOrdersByCustomer(_ context.Context, value string) ([]domain.RemoteOrder, error) {
	value = strings.TrimSpace(value)
	return s.filterOrders(func(o domain.RemoteOrder) bool {
		return value != "" && (o.CustomerDocument == value || o.CustomerPhone == value)
	}), nil
}

func (s *Store) ListRemoteOrdersByStatus(_ context.Context, status string) ([]domain.RemoteOrder, error) {
	return s.filterOrders(func(o domain.RemoteOrder) bool { return o.Status == status }), nil
}

func (s *Store) CountRemoteOrdersByStatus(_ context.Context, status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.orders {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkRemoteOrderCompleted(_ context.Context, id string, saleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.orderIndexLocked(id)
	if idx < 0 || s.orders[idx].Status != domain.OrderStatusPending {
		return store.ErrStaleState
	}
	completedAt := at.UTC()
	s.orders[idx].Status = domain.OrderStatusCompleted
	s.orders[idx].SaleID = saleID
	s.orders[idx].CompletedAt = &completedAt
	return nil
}

func (s *Store) MarkRemoteOrderCancelled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.orderIndexLocked(id)
	if idx < 0 || !s.openLocked(idx) {
		return store.ErrStaleState
	}
	cancelledAt := at.UTC()
	s.orders[idx].Status = domain.OrderStatusCancelled
	s.orders[idx].CancelledAt = &cancelledAt
	return nil
}

// openLocked reports whether the order is pending with no sale recorded for it.
func (s *Store) openLocked(idx int) bool {
	if s.orders[idx].Status != domain.OrderStatusPending {
		return false
	}
	_, sold := s.saleByOrderID[s.orders[idx].ID]
	return !sold
}

func (s *Store) CreateCashier(_ context.Context, cashier domain.Cashier) (*domain.Cashier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cashiers {
		if c.Username == cashier.Username {
			return nil, fmt.Errorf("%w: username %s taken", store.ErrConflict, cashier.Username)
		}
	}
	if cashier.ID == "" {
		cashier.ID = xid.New("cashier")
	}
	if cashier.CreatedAt.IsZero() {
		cashier.CreatedAt = time.Now().UTC()
	}
	cashier.Permissions = slices.Clone(cashier.Permissions)
	s.cashiers = append(s.cashiers, cashier)
	return cloneCashier(cashier), nil
}

func (s *Store) UpdateCashier(_ context.Context, cashier domain.Cashier) (*domain.Cashier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.cashiers {
		if c.ID == cashier.ID {
			idx = i
		} else if c.Username == cashier.Username {
			return nil, fmt.Errorf("%w: username %s taken", store.ErrConflict, cashier.Username)
		}
	}
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	cashier.CreatedAt = s.cashiers[idx].CreatedAt
	cashier.Permissions = slices.Clone(cashier.Permissions)
	s.cashiers[idx] = cashier
	return cloneCashier(cashier), nil
}

func (s *Store) GetCashier(_ context.Context, id string) (*domain.Cashier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cashiers {
		if c.ID == id {
			return cloneCashier(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetCashierByUsername(_ context.Context, username string) (*domain.Cashier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cashiers {
		if c.Username == username {
			return cloneCashier(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCashiers(_ context.Context) ([]domain.Cashier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Cashier, 0, len(s.cashiers))
	for _, c := range s.cashiers {
		out = append(out, *cloneCashier(c))
	}
	slices.SortFunc(out, func(a, b domain.Cashier) int {
		return cmpString(a.FullName, b.FullName)
	})
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, min(limit, len(s.auditLogs)))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.auditLogs[i])
	}
	return out, nil
}

func (s *Store) AppendConversationMessage(_ context.Context, msg domain.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = xid.New("msg")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.conversations = append(s.conversations, msg)
	return nil
}

// ListConversationMessages returns one session oldest first.
func (s *Store) ListConversationMessages(_ context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ConversationMessage, 0, 16)
	for _, msg := range s.conversations {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// ListRecentConversationMessages returns the latest messages of all
// sessions, newest first.
func (s *Store) ListRecentConversationMessages(_ context.Context, limit int) ([]domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ConversationMessage, 0, min(limit, len(s.conversations)))
	for i := len(s.conversations) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.conversations[i])
	}
	return out, nil
}

func (s *Store) hasProductLocked(id string) bool {
	for _, p := range s.products {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) orderIndexLocked(id string) int {
	for i, o := range s.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// filterOrders returns matches newest first.
func (s *Store) filterOrders(match func(domain.RemoteOrder) bool) []domain.RemoteOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RemoteOrder, 0, 8)
	for i := len(s.orders) - 1; i >= 0; i-- {
		if match(s.orders[i]) {
			out = append(out, cloneOrder(s.orders[i]))
		}
	}
	slices.SortStableFunc(out, func(a, b domain.RemoteOrder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) *domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return &dup
}

func cloneOrder(src domain.RemoteOrder) domain.RemoteOrder {
	dup := src
	dup.Details = slices.Clone(src.Details)
	if dup.Details == nil {
		dup.Details = domain.OrderDetails{}
	}
	if src.CompletedAt != nil {
		at := *src.CompletedAt
		dup.CompletedAt = &at
	}
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return dup
}

func cloneCashier(src domain.Cashier) *domain.Cashier {
	dup := src
	dup.Permissions = slices.Clone(src.Permissions)
	return &dup
}
