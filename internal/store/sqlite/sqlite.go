// Package sqlite is the single-file store for running one booth laptop
// without a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sqlx.DB
}

// Open connects to path (":memory:" for a throwaway database) and applies
// the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type productRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	Price             int64  `db:"price"`
	ImageURL          string `db:"image_url"`
	Active            bool   `db:"active"`
	VisibleToCustomer bool   `db:"visible_to_customer"`
	InitialStock      int    `db:"initial_stock"`
	CreatedAt         string `db:"created_at"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:                r.ID,
		Name:              r.Name,
		Price:             r.Price,
		ImageURL:          r.ImageURL,
		Active:            r.Active,
		VisibleToCustomer: r.VisibleToCustomer,
		InitialStock:      r.InitialStock,
		CreatedAt:         parseTime(r.CreatedAt),
	}
}

func productToRow(p domain.Product) productRow {
	return productRow{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price,
		ImageURL:          p.ImageURL,
		Active:            p.Active,
		VisibleToCustomer: p.VisibleToCustomer,
		InitialStock:      p.InitialStock,
		CreatedAt:         formatTime(p.CreatedAt),
	}
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM products ORDER BY name, id`); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM products WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (id, name, price, image_url, active, visible_to_customer, initial_stock, created_at)
		VALUES (:id, :name, :price, :image_url, :active, :visible_to_customer, :initial_stock, :created_at)
	`, productToRow(product))
	if err != nil {
		return nil, mapError(err)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name, price = :price, image_url = :image_url, active = :active,
			visible_to_customer = :visible_to_customer, initial_stock = :initial_stock
		WHERE id = :id
	`, productToRow(product))
	if err != nil {
		return nil, mapError(err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

type saleRow struct {
	ID             string         `db:"id"`
	CashierID      string         `db:"cashier_id"`
	PaymentMethod  string         `db:"payment_method"`
	Subtotal       int64          `db:"subtotal"`
	AmountTendered int64          `db:"amount_tendered"`
	Change         int64          `db:"change_given"`
	RemoteOrderID  sql.NullString `db:"remote_order_id"`
	CreatedAt      string         `db:"created_at"`
}

type saleLineRow struct {
	SaleID      string `db:"sale_id"`
	LineNo      int    `db:"line_no"`
	ProductID   string `db:"product_id"`
	ProductName string `db:"product_name"`
	Quantity    int    `db:"quantity"`
	UnitPrice   int64  `db:"unit_price"`
	Subtotal    int64  `db:"subtotal"`
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

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if sale.RemoteOrderID != "" {
		var status string
		err := tx.GetContext(ctx, &status, `SELECT status FROM remote_orders WHERE id = ?`, sale.RemoteOrderID)
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

	header := saleRow{
		ID:             sale.ID,
		CashierID:      sale.CashierID,
		PaymentMethod:  sale.PaymentMethod,
		Subtotal:       sale.Subtotal,
		AmountTendered: sale.AmountTendered,
		Change:         sale.Change,
		RemoteOrderID:  sql.NullString{String: sale.RemoteOrderID, Valid: sale.RemoteOrderID != ""},
		CreatedAt:      formatTime(sale.CreatedAt),
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO sales (id, cashier_id, payment_method, subtotal, amount_tendered, change_given, remote_order_id, created_at)
		VALUES (:id, :cashier_id, :payment_method, :subtotal, :amount_tendered, :change_given, :remote_order_id, :created_at)
	`, header); err != nil {
		return nil, mapError(err)
	}

	items := make([]domain.SaleLine, len(sale.Items))
	for i, line := range sale.Items {
		line.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sale.ID, i+1, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
			return nil, mapError(err)
		}
		items[i] = line
	}
	sale.Items = items

	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sales ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Sale{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	query, args, err := sqlx.In(`
		SELECT sl.sale_id, sl.line_no, sl.product_id, COALESCE(p.name, '') AS product_name, sl.quantity, sl.unit_price, sl.subtotal
		FROM sale_lines sl
		LEFT JOIN products p ON p.id = sl.product_id
		WHERE sl.sale_id IN (?)
		ORDER BY sl.sale_id, sl.line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	var lines []saleLineRow
	if err := s.db.SelectContext(ctx, &lines, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	bySale := make(map[string][]domain.SaleLine, len(rows))
	for _, l := range lines {
		bySale[l.SaleID] = append(bySale[l.SaleID], l.toDomain())
	}

	out := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		items := bySale[r.ID]
		if items == nil {
			items = []domain.SaleLine{}
		}
		out = append(out, domain.Sale{
			ID:             r.ID,
			CashierID:      r.CashierID,
			PaymentMethod:  r.PaymentMethod,
			Subtotal:       r.Subtotal,
			AmountTendered: r.AmountTendered,
			Change:         r.Change,
			RemoteOrderID:  r.RemoteOrderID.String,
			CreatedAt:      parseTime(r.CreatedAt),
			Items:          items,
		})
	}
	return out, nil
}

func (l saleLineRow) toDomain() domain.SaleLine {
	return domain.SaleLine{
		SaleID:      l.SaleID,
		ProductID:   l.ProductID,
		ProductName: l.ProductName,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice,
		Subtotal:    l.Subtotal,
	}
}

func (s *Store) ListSaleLines(ctx context.Context) ([]domain.SaleLine, error) {
	var rows []saleLineRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT sl.sale_id, sl.line_no, sl.product_id, COALESCE(p.name, '') AS product_name, sl.quantity, sl.unit_price, sl.subtotal
		FROM sale_lines sl
		LEFT JOIN products p ON p.id = sl.product_id
		ORDER BY sl.sale_id, sl.line_no
	`); err != nil {
		return nil, err
	}
	out := make([]domain.SaleLine, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type returnRow struct {
	ID           string `db:"id"`
	ProductID    string `db:"product_id"`
	ProductName  string `db:"product_name"`
	Quantity     int    `db:"quantity"`
	RefundAmount int64  `db:"refund_amount"`
	CashierID    string `db:"cashier_id"`
	CreatedAt    string `db:"created_at"`
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
		VALUES (?, ?, ?, ?, ?, ?)
	`, ret.ID, ret.ProductID, ret.Quantity, ret.RefundAmount, ret.CashierID, formatTime(ret.CreatedAt))
	if err != nil {
		return nil, mapError(err)
	}
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context) ([]domain.Return, error) {
	var rows []returnRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT r.id, r.product_id, COALESCE(p.name, '') AS product_name, r.quantity, r.refund_amount, r.cashier_id, r.created_at
		FROM returns r
		LEFT JOIN products p ON p.id = r.product_id
		ORDER BY r.created_at DESC, r.id DESC
	`); err != nil {
		return nil, err
	}
	out := make([]domain.Return, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Return{
			ID:           r.ID,
			ProductID:    r.ProductID,
			ProductName:  r.ProductName,
			Quantity:     r.Quantity,
			RefundAmount: r.RefundAmount,
			CashierID:    r.CashierID,
			CreatedAt:    parseTime(r.CreatedAt),
		})
	}
	return out, nil
}

type orderRow struct {
	ID               string         `db:"id"`
	Code             string         `db:"code"`
	Details          string         `db:"details"`
	Total            int64          `db:"total"`
	Status           string         `db:"status"`
	CustomerDocument string         `db:"customer_document"`
	CustomerPhone    string         `db:"customer_phone"`
	SaleID           string         `db:"sale_id"`
	CreatedAt        string         `db:"created_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
	CancelledAt      sql.NullString `db:"cancelled_at"`
}

func (r orderRow) toDomain() domain.RemoteOrder {
	o := domain.RemoteOrder{
		ID:               r.ID,
		Code:             r.Code,
		Total:            r.Total,
		Status:           r.Status,
		CustomerDocument: r.CustomerDocument,
		CustomerPhone:    r.CustomerPhone,
		SaleID:           r.SaleID,
		CreatedAt:        parseTime(r.CreatedAt),
	}
	details, err := domain.DecodeOrderDetails([]byte(r.Details))
	if err != nil {
		log.Printf("[sqlite] WARN: remote order %s has unreadable details: %v", r.ID, err)
		details = domain.OrderDetails{}
		o.DetailsUnreadable = true
	}
	o.Details = details
	if r.CompletedAt.Valid {
		at := parseTime(r.CompletedAt.String)
		o.CompletedAt = &at
	}
	if r.CancelledAt.Valid {
		at := parseTime(r.CancelledAt.String)
		o.CancelledAt = &at
	}
	return o
}

func (s *Store) RemoteOrderCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM remote_orders WHERE code = ?`, code); err != nil {
		return false, err
	}
	return count > 0, nil
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
	details, err := order.Details.Value()
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remote_orders (id, code, details, total, status, customer_document, customer_phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, order.Code, details, order.Total, order.Status, order.CustomerDocument, order.CustomerPhone, formatTime(order.CreatedAt))
	if err != nil {
		return nil, mapError(err)
	}
	return &order, nil
}

func (s *Store) GetRemoteOrder(ctx context.Context, id string) (*domain.RemoteOrder, error) {
	var row orderRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM remote_orders WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o := row.toDomain()
	return &o, nil
}

func (s *Store) UpdatePendingRemoteOrder(ctx context.Context, order domain.RemoteOrder) (*domain.RemoteOrder, error) {
	details, err := order.Details.Value()
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE remote_orders
		SET details = ?, total = ?, customer_document = ?, customer_phone = ?
		WHERE id = ? AND status = ?
		AND NOT EXISTS (SELECT 1 FROM sales WHERE sales.remote_order_id = remote_orders.id)
	`, details, order.Total, order.CustomerDocument, order.CustomerPhone, order.ID, domain.OrderStatusPending)
	if err := conditionalResult(res, err); err != nil {
		return nil, err
	}
	return s.GetRemoteOrder(ctx, order.ID)
}

func (s *Store) selectOrders(ctx context.Context, where string, args ...any) ([]domain.RemoteOrder, error) {
	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM remote_orders WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...); err != nil {
		return nil, err
	}
	out := make([]domain.RemoteOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) FindRemoteOrdersByCode(ctx context.Context, code string) ([]domain.RemoteOrder, error) {
	return s.selectOrders(ctx, `code = ?`, code)
}

func (s *Store) FindRemoteOrdersByCustomer(ctx context.Context, value string) ([]domain.RemoteOrder, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return []domain.RemoteOrder{}, nil
	}
	return s.selectOrders(ctx, `customer_document = ? OR customer_phone = ?`, value, value)
}

func (s *Store) ListRemoteOrdersByStatus(ctx context.Context, status string) ([]domain.RemoteOrder, error) {
	return s.selectOrders(ctx, `status = ?`, status)
}

func (s *Store) CountRemoteOrdersByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM remote_orders WHERE status = ?`, status)
	return count, err
}

func (s *Store) MarkRemoteOrderCompleted(ctx context.Context, id string, saleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE remote_orders SET status = ?, sale_id = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, domain.OrderStatusCompleted, saleID, formatTime(at), id, domain.OrderStatusPending)
	return conditionalResult(res, err)
}

func (s *Store) MarkRemoteOrderCancelled(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE remote_orders SET status = ?, cancelled_at = ?
		WHERE id = ? AND status = ?
		AND NOT EXISTS (SELECT 1 FROM sales WHERE sales.remote_order_id = remote_orders.id)
	`, domain.OrderStatusCancelled, formatTime(at), id, domain.OrderStatusPending)
	return conditionalResult(res, err)
}

type cashierRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	FullName     string `db:"full_name"`
	PasswordHash string `db:"password_hash"`
	Active       bool   `db:"active"`
	Permissions  string `db:"permissions"`
	CreatedAt    string `db:"created_at"`
}

func (r cashierRow) toDomain() (domain.Cashier, error) {
	c := domain.Cashier{
		ID:           r.ID,
		Username:     r.Username,
		FullName:     r.FullName,
		PasswordHash: r.PasswordHash,
		Active:       r.Active,
		Permissions:  []string{},
		CreatedAt:    parseTime(r.CreatedAt),
	}
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &c.Permissions); err != nil {
			return c, fmt.Errorf("decode permissions of cashier %s: %w", r.ID, err)
		}
	}
	return c, nil
}

func cashierToRow(c domain.Cashier) cashierRow {
	perms := c.Permissions
	if perms == nil {
		perms = []string{}
	}
	raw, _ := json.Marshal(perms)
	return cashierRow{
		ID:           c.ID,
		Username:     c.Username,
		FullName:     c.FullName,
		PasswordHash: c.PasswordHash,
		Active:       c.Active,
		Permissions:  string(raw),
		CreatedAt:    formatTime(c.CreatedAt),
	}
}

func (s *Store) CreateCashier(ctx context.Context, cashier domain.Cashier) (*domain.Cashier, error) {
	if cashier.ID == "" {
		cashier.ID = xid.New("cashier")
	}
	if cashier.CreatedAt.IsZero() {
		cashier.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO cashiers (id, username, full_name, password_hash, active, permissions, created_at)
		VALUES (:id, :username, :full_name, :password_hash, :active, :permissions, :created_at)
	`, cashierToRow(cashier)); err != nil {
		return nil, mapError(err)
	}
	return &cashier, nil
}

func (s *Store) UpdateCashier(ctx context.Context, cashier domain.Cashier) (*domain.Cashier, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE cashiers
		SET username = :username, full_name = :full_name, password_hash = :password_hash,
			active = :active, permissions = :permissions
		WHERE id = :id
	`, cashierToRow(cashier))
	if err != nil {
		return nil, mapError(err)
	}
	if err := affectedOrNotFound(res); err != nil {
		return nil, err
	}
	return s.GetCashier(ctx, cashier.ID)
}

func (s *Store) getCashier(ctx context.Context, where string, arg string) (*domain.Cashier, error) {
	var row cashierRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM cashiers WHERE `+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCashier(ctx context.Context, id string) (*domain.Cashier, error) {
	return s.getCashier(ctx, `id = ?`, id)
}

func (s *Store) GetCashierByUsername(ctx context.Context, username string) (*domain.Cashier, error) {
	return s.getCashier(ctx, `username = ?`, username)
}

func (s *Store) ListCashiers(ctx context.Context) ([]domain.Cashier, error) {
	var rows []cashierRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM cashiers ORDER BY full_name, id`); err != nil {
		return nil, err
	}
	out := make([]domain.Cashier, 0, len(rows))
	for _, r := range rows {
		c, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type auditRow struct {
	ID          string `db:"id"`
	CashierID   string `db:"cashier_id"`
	CashierName string `db:"cashier_name"`
	Action      string `db:"action"`
	EntityType  string `db:"entity_type"`
	EntityID    string `db:"entity_id"`
	Detail      string `db:"detail"`
	CreatedAt   string `db:"created_at"`
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, cashier_id, cashier_name, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :cashier_id, :cashier_name, :action, :entity_type, :entity_id, :detail, :created_at)
	`, auditRow{
		ID:          entry.ID,
		CashierID:   entry.CashierID,
		CashierName: entry.CashierName,
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Detail:      entry.Detail,
		CreatedAt:   formatTime(entry.CreatedAt),
	})
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM audit_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}
	out := make([]domain.AuditLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AuditLog{
			ID:          r.ID,
			CashierID:   r.CashierID,
			CashierName: r.CashierName,
			Action:      r.Action,
			EntityType:  r.EntityType,
			EntityID:    r.EntityID,
			Detail:      r.Detail,
			CreatedAt:   parseTime(r.CreatedAt),
		})
	}
	return out, nil
}

type messageRow struct {
	ID               string `db:"id"`
	SessionID        string `db:"session_id"`
	Sender           string `db:"sender"`
	Message          string `db:"message"`
	CustomerDocument string `db:"customer_document"`
	CustomerPhone    string `db:"customer_phone"`
	CreatedAt        string `db:"created_at"`
}

func (r messageRow) toDomain() domain.ConversationMessage {
	return domain.ConversationMessage{
		ID:               r.ID,
		SessionID:        r.SessionID,
		Sender:           r.Sender,
		Message:          r.Message,
		CustomerDocument: r.CustomerDocument,
		CustomerPhone:    r.CustomerPhone,
		CreatedAt:        parseTime(r.CreatedAt),
	}
}

func (s *Store) AppendConversationMessage(ctx context.Context, msg domain.ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = xid.New("msg")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO conversation_messages (id, session_id, sender, message, customer_document, customer_phone, created_at)
		VALUES (:id, :session_id, :sender, :message, :customer_document, :customer_phone, :created_at)
	`, messageRow{
		ID:               msg.ID,
		SessionID:        msg.SessionID,
		Sender:           msg.Sender,
		Message:          msg.Message,
		CustomerDocument: msg.CustomerDocument,
		CustomerPhone:    msg.CustomerPhone,
		CreatedAt:        formatTime(msg.CreatedAt),
	})
	return err
}

func (s *Store) selectMessages(ctx context.Context, query string, args ...any) ([]domain.ConversationMessage, error) {
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]domain.ConversationMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListConversationMessages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	return s.selectMessages(ctx, `SELECT * FROM conversation_messages WHERE session_id = ? ORDER BY created_at, id`, sessionID)
}

func (s *Store) ListRecentConversationMessages(ctx context.Context, limit int) ([]domain.ConversationMessage, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.selectMessages(ctx, `SELECT * FROM conversation_messages ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
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

func affectedOrNotFound(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", store.ErrConflict, sqliteErr.Error())
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %s", store.ErrInvalidRecord, sqliteErr.Error())
		}
	}
	return err
}
