package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, price, COALESCE(image_url, ''), active, visible_to_customer, initial_stock, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Active, &p.VisibleToCustomer, &p.InitialStock, &p.CreatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, image_url, active, visible_to_customer, initial_stock, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, product.ID, product.Name, product.Price, nullIfEmpty(product.ImageURL), product.Active, product.VisibleToCustomer, product.InitialStock, product.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, image_url = $4, active = $5, visible_to_customer = $6, initial_stock = $7
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Price, nullIfEmpty(product.ImageURL), product.Active, product.VisibleToCustomer, product.InitialStock))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &updated, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale without lines", store.ErrInvalidRecord)
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	// Read committed is enough: the order row lock serializes completions and
	// the partial unique index on remote_order_id backs it up.
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.RemoteOrderID != "" {
		var status string
		err := pgTx.QueryRowContext(ctx, `SELECT status FROM remote_orders WHERE id = $1 FOR UPDATE`, sale.RemoteOrderID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: remote order %s", store.ErrInvalidRecord, sale.RemoteOrderID)
		}
		if err != nil {
			return nil, err
		}
		if status != domain.OrderStatusPending {
			return nil, fmt.Errorf("%w: remote order %s is %s", store.ErrConflict, sale.RemoteOrderID, status)
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, cashier_id, payment_method, subtotal, amount_tendered, change_given, remote_order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sale.ID, sale.CashierID, sale.PaymentMethod, sale.Subtotal, sale.AmountTendered, sale.Change, nullIfEmpty(sale.RemoteOrderID), sale.CreatedAt); err != nil {
		return nil, mapError(err)
	}

	items := make([]domain.SaleLine, len(sale.Items))
	for i, line := range sale.Items {
		line.SaleID = sale.ID
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, sale.ID, i+1, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
			return nil, mapError(err)
		}
		items[i] = line
	}
	sale.Items = items

	if err := pgTx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier_id, payment_method, subtotal, amount_tendered, change_given, COALESCE(remote_order_id, ''), created_at
		FROM sales
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 128)
	index := make(map[string]int)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CashierID, &sale.PaymentMethod, &sale.Subtotal, &sale.AmountTendered, &sale.Change, &sale.RemoteOrderID, &sale.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		sale.Items = []domain.SaleLine{}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	lines, err := s.ListSaleLines(ctx)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if i, ok := index[line.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, line)
		}
	}
	return sales, nil
}

func (s *Store) ListSaleLines(ctx context.Context) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sl.sale_id, sl.product_id, COALESCE(p.name, ''), sl.quantity, sl.unit_price, sl.subtotal
		FROM sale_lines sl
		LEFT JOIN products p ON p.id = sl.product_id
		ORDER BY sl.sale_id, sl.line_no
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 256)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.SaleID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO returns (id, product_id, quantity, refund_amount, cashier_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ret.ID, ret.ProductID, ret.Quantity, ret.RefundAmount, ret.CashierID, ret.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context) ([]domain.Return, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.product_id, COALESCE(p.name, ''), r.quantity, r.refund_amount, r.cashier_id, r.created_at
		FROM returns r
		LEFT JOIN products p ON p.id = r.product_id
		ORDER BY r.created_at DESC, r.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Return, 0, 32)
	for rows.Next() {
		var ret domain.Return
		if err := rows.Scan(&ret.ID, &ret.ProductID, &ret.ProductName, &ret.Quantity, &ret.RefundAmount, &ret.CashierID, &ret.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}

func (s *Store) RemoteOrderCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM remote_orders WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (s *Store) CreateRemoteOrder(ctx context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error) {
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_orders (id, code, details, total, status, customer_document, customer_phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.Code, order.Details, order.Total, order.Status, nullIfEmpty(order.CustomerDocument), nullIfEmpty(order.CustomerPhone), order.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

const orderColumns = `id, code, details, total, status, COALESCE(customer_document, ''), COALESCE(customer_phone, ''), COALESCE(sale_id, ''), created_at, completed_at, cancelled_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.RemoteOrder, error) {
	var (
		o           domain.RemoteOrder
		rawDetails  []byte
		completedAt sql.NullTime
		cancelledAt sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.Code, &rawDetails, &o.Total, &o.Status, &o.CustomerDocument, &o.CustomerPhone, &o.SaleID, &o.CreatedAt, &completedAt, &cancelledAt); err != nil {
		return o, err
	}
	details, err := domain.DecodeOrderDetails(rawDetails)
	if err != nil {
		log.Printf("[postgres] WARN: remote order %s has unreadable details: %v", o.ID, err)
		details = domain.OrderDetails{}
		o.DetailsUnreadable = true
	}
	o.Details = details
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		o.CompletedAt = &at
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		o.CancelledAt = &at
	}
	return o, nil
}

func (s *Store) queryOrders(ctx context.Context, where string, args ...any) ([]domain.RemoteOrder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM remote_orders WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RemoteOrder, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) GetRemoteOrder(ctx context.Context, id string) (*domain.RemoteOrder, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM remote_orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) UpdatePendingRemoteOrder(ctx context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenOrder(ctx, tx, order.ID); err != nil {
		return nil, err
	}
	updated, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE remote_orders
		SET details = $2, total = $3, customer_document = $4, customer_phone = $5
		WHERE id = $1 AND status = $6
		RETURNING `+orderColumns,
		order.ID, order.Details, order.Total, nullIfEmpty(order.CustomerDocument), nullIfEmpty(order.CustomerPhone), domain.OrderStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrStaleState
	}
	if err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return &updated, nil
}

// lockOpenOrder locks a pending order and checks that no sale refers to it.
// The sales lookup runs after the lock is granted, so it sees a sale that
// committed while this transaction waited.
func lockOpenOrder(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM remote_orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrStaleState
	}
	if err != nil {
		return err
	}
	if status != domain.OrderStatusPending {
		return store.ErrStaleState
	}
	var sold bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE remote_order_id = $1)`, id).Scan(&sold); err != nil {
		return err
	}
	if sold {
		return store.ErrStaleState
	}
	return nil
}

func (s *Store) FindRemoteOrdersByCode(ctx context.Context, code string) ([]domain.RemoteOrder, error) {
	return s.queryOrders(ctx, `code = $1`, code)
}

func (s *Store) FindRemoteOrdersByCustomer(ctx context.Context, value string) ([]domain.RemoteOrder, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return []domain.RemoteOrder{}, nil
	}
	return s.queryOrders(ctx, `customer_document = $1 OR customer_phone = $1`, value)
}

func (s *Store) ListRemoteOrdersByStatus(ctx context.Context, status string) ([]domain.RemoteOrder, error) {
	return s.queryOrders(ctx, `status = $1`, status)
}

func (s *Store) CountRemoteOrdersByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM remote_orders WHERE status = $1`, status).Scan(&count)
	return count, err
}

func (s *Store) MarkRemoteOrderCompleted(ctx context.Context, id string, saleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE remote_orders
		SET status = $2, sale_id = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`, id, domain.OrderStatusCompleted, saleID, at.UTC(), domain.OrderStatusPending)
	return conditionalResult(res, err)
}

func (s *Store) MarkRemoteOrderCancelled(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOpenOrder(ctx, tx, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE remote_orders
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.OrderStatusCancelled, at.UTC(), domain.OrderStatusPending)
	if err := conditionalResult(res, err); err != nil {
		return err
	}
	return mapError(tx.Commit())
}

const cashierColumns = `id, username, full_name, password_hash, active, permissions, created_at`

func scanCashier(row interface{ Scan(...any) error }) (domain.Cashier, error) {
	var (
		c     domain.Cashier
		perms []byte
	)
	if err := row.Scan(&c.ID, &c.Username, &c.FullName, &c.PasswordHash, &c.Active, &perms, &c.CreatedAt); err != nil {
		return c, err
	}
	c.Permissions = []string{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &c.Permissions); err != nil {
			return c, fmt.Errorf("decode permissions of cashier %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodePermissions(perms []string) string {
	if perms == nil {
		perms = []string{}
	}
	raw, _ := json.Marshal(perms)
	return string(raw)
}

func (s *Store) CreateCashier(ctx context.Context, cashier domain.Cashier) (*domain.Cashier, error) {
	if cashier.ID == "" {
		cashier.ID = xid.New("cashier")
	}
	if cashier.CreatedAt.IsZero() {
		cashier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashiers (id, username, full_name, password_hash, active, permissions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, cashier.ID, cashier.Username, cashier.FullName, cashier.PasswordHash, cashier.Active, encodePermissions(cashier.Permissions), cashier.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &cashier, nil
}

func (s *Store) UpdateCashier(ctx context.Context, cashier domain.Cashier) (*domain.Cashier, error) {
	updated, err := scanCashier(s.db.QueryRowContext(ctx, `
		UPDATE cashiers
		SET username = $2, full_name = $3, password_hash = $4, active = $5, permissions = $6
		WHERE id = $1
		RETURNING `+cashierColumns,
		cashier.ID, cashier.Username, cashier.FullName, cashier.PasswordHash, cashier.Active, encodePermissions(cashier.Permissions)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &updated, nil
}

func (s *Store) GetCashier(ctx context.Context, id string) (*domain.Cashier, error) {
	c, err := scanCashier(s.db.QueryRowContext(ctx, `SELECT `+cashierColumns+` FROM cashiers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCashierByUsername(ctx context.Context, username string) (*domain.Cashier, error) {
	c, err := scanCashier(s.db.QueryRowContext(ctx, `SELECT `+cashierColumns+` FROM cashiers WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCashiers(ctx context.Context) ([]domain.Cashier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cashierColumns+` FROM cashiers ORDER BY full_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Cashier, 0, 8)
	for rows.Next() {
		c, err := scanCashier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, cashier_id, cashier_name, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, nullIfEmpty(entry.CashierID), nullIfEmpty(entry.CashierName), entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(cashier_id, ''), COALESCE(cashier_name, ''), action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.CashierID, &e.CashierName, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendConversationMessage(ctx context.Context, msg domain.ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = xid.New("msg")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, session_id, sender, message, customer_document, customer_phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.SessionID, msg.Sender, msg.Message, nullIfEmpty(msg.CustomerDocument), nullIfEmpty(msg.CustomerPhone), msg.CreatedAt)
	return err
}

const messageColumns = `id, session_id, sender, message, COALESCE(customer_document, ''), COALESCE(customer_phone, ''), created_at`

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]domain.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ConversationMessage, 0, 32)
	for rows.Next() {
		var m domain.ConversationMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Message, &m.CustomerDocument, &m.CustomerPhone, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListConversationMessages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM conversation_messages WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
}

func (s *Store) ListRecentConversationMessages(ctx context.Context, limit int) ([]domain.ConversationMessage, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM conversation_messages ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func conditionalResult(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrStaleState
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "23503", "23514":
			return fmt.Errorf("%w: %s", store.ErrInvalidRecord, pgErr.Message)
		}
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
