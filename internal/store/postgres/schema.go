package postgres

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price BIGINT NOT NULL CHECK (price > 0),
		image_url TEXT,
		active BOOLEAN NOT NULL DEFAULT true,
		visible_to_customer BOOLEAN NOT NULL DEFAULT true,
		initial_stock INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cashiers (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		permissions JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS remote_orders (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		details JSONB NOT NULL,
		total BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pendiente',
		customer_document TEXT,
		customer_phone TEXT,
		sale_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS remote_orders_status_idx ON remote_orders (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS remote_orders_customer_idx ON remote_orders (customer_document, customer_phone)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		cashier_id TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		subtotal BIGINT NOT NULL,
		amount_tendered BIGINT NOT NULL,
		change_given BIGINT NOT NULL,
		remote_order_id TEXT REFERENCES remote_orders (id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sales_remote_order_uniq ON sales (remote_order_id) WHERE remote_order_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		sale_id TEXT NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products (id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price BIGINT NOT NULL,
		subtotal BIGINT NOT NULL,
		PRIMARY KEY (sale_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS returns (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products (id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		refund_amount BIGINT NOT NULL,
		cashier_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		cashier_id TEXT,
		cashier_name TEXT,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		customer_document TEXT,
		customer_phone TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS conversation_messages_session_idx ON conversation_messages (session_id, created_at)`,
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
