package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the orders table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
    id            TEXT PRIMARY KEY,
    customer_name TEXT NOT NULL,
    phone_number  TEXT NOT NULL,
    address       TEXT NOT NULL,
    delivery_at   TEXT NOT NULL,
    items         JSONB NOT NULL DEFAULT '[]',
    status        TEXT NOT NULL DEFAULT 'created',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Line items are
// serialised as JSONB. Each Append is a single INSERT, so concurrent
// sessions cannot interleave partial records.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore using the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] before
// issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the orders table if it does
// not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("order: migrate: %w", err)
	}
	return nil
}

// Append inserts a new order record.
func (s *PostgresStore) Append(ctx context.Context, o Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("order: marshal items: %w", err)
	}

	const query = `
		INSERT INTO orders (id, customer_name, phone_number, address, delivery_at, items, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if _, err := s.db.Exec(ctx, query,
		o.ID, o.CustomerName, o.PhoneNumber, o.Address, o.DeliveryAt,
		itemsJSON, string(o.Status), o.CreatedAt,
	); err != nil {
		return fmt.Errorf("order: append: %w", err)
	}
	return nil
}

// List returns all orders, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]Order, error) {
	const query = `
		SELECT id, customer_name, phone_number, address, delivery_at, items, status, created_at
		FROM orders
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		var itemsJSON []byte
		var status string
		if err := rows.Scan(&o.ID, &o.CustomerName, &o.PhoneNumber, &o.Address,
			&o.DeliveryAt, &itemsJSON, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("order: list scan: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("order: unmarshal items: %w", err)
		}
		o.Status = Status(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	return orders, nil
}

// UpdateStatus sets the status of an existing order. The UPDATE is naturally
// idempotent; repeated identical updates leave the row unchanged.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) (bool, error) {
	if !status.IsValid() {
		return false, fmt.Errorf("order: invalid status %q", status)
	}

	const query = `UPDATE orders SET status = $2 WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, id, string(status))
	if err != nil {
		return false, fmt.Errorf("order: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
