package sqlite

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL CHECK (price > 0),
		image_url TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		visible_to_customer INTEGER NOT NULL DEFAULT 1,
		initial_stock INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS cashiers (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		permissions TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS remote_orders (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		details TEXT NOT NULL,
		total INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pendiente',
		customer_document TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		sale_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		completed_at TEXT,
		cancelled_at TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS remote_orders_status_idx ON remote_orders (status, created_at);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		cashier_id TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		subtotal INTEGER NOT NULL,
		amount_tendered INTEGER NOT NULL,
		change_given INTEGER NOT NULL,
		remote_order_id TEXT UNIQUE REFERENCES remote_orders (id),
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		sale_id TEXT NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products (id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price INTEGER NOT NULL,
		subtotal INTEGER NOT NULL,
		PRIMARY KEY (sale_id, line_no)
	);`,
	`CREATE TABLE IF NOT EXISTS returns (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products (id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		refund_amount INTEGER NOT NULL,
		cashier_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		cashier_id TEXT NOT NULL DEFAULT '',
		cashier_name TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		customer_document TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS conversation_messages_session_idx ON conversation_messages (session_id, created_at);`,
}

// Migrate creates the schema if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite schema statement %d: %w", i, err)
		}
	}
	return nil
}
