// Package store persists orders, customers and the dish catalog in
// PostgreSQL, with an optional Redis read-through cache for the menu and a
// write-behind queue that keeps persistence off the conversation path.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/core/ordering"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL persistence layer.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open migrates the schema and connects a pool. The URL must be a pgx
// connection string.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		return nil, errors.New("store: database url is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := migrate(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("postgres store ready")
	return &Store{pool: pool, logger: logger}, nil
}

// migrate applies the embedded migrations over a throwaway database/sql
// connection; the pgx pool itself never sees goose.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SaveOrder writes one finalized order, its lines, and the customer record
// in a single transaction. Repeat saves of the same order ID are upserts.
func (s *Store) SaveOrder(ctx context.Context, order *ordering.Order) error {
	if order == nil {
		return errors.New("store: nil order")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO customers (phone, name, address, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (phone) DO UPDATE SET
		   name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END,
		   address = CASE WHEN EXCLUDED.address <> '' THEN EXCLUDED.address ELSE customers.address END,
		   updated_at = now()`,
		order.CustomerPhone,
		order.CustomerName,
		order.DeliveryAddress,
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (
			id, restaurant_id, customer_phone, customer_name, order_type,
			payment_method, status, payment_ref, delivery_address, scheduled_for,
			special_instructions, subtotal, tax, total, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			payment_ref = EXCLUDED.payment_ref`,
		order.ID,
		order.RestaurantID,
		order.CustomerPhone,
		order.CustomerName,
		string(order.Type),
		string(order.PaymentMethod),
		string(order.Status),
		order.PaymentRef,
		order.DeliveryAddress,
		order.ScheduledFor,
		order.SpecialInstructions,
		order.Totals.Subtotal,
		order.Totals.Tax,
		order.Totals.Total,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, order.ID); err != nil {
		return fmt.Errorf("delete prior order items: %w", err)
	}
	for i, item := range order.Items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (
				id, order_id, line_no, dish_id, name, quantity, unit_price, line_total, customizations
			) VALUES (
				$1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb
			)`,
			item.ID,
			order.ID,
			i,
			item.DishID,
			item.Name,
			item.Quantity,
			item.UnitPrice,
			item.LineTotal,
			customizationsJSON(item.Customizations),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecentOrders returns a customer's order history, newest first.
func (s *Store) RecentOrders(ctx context.Context, phone string, limit int) ([]ordering.OrderSummary, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT o.id, o.created_at, o.total, o.status,
		        COALESCE(array_agg(i.name ORDER BY i.line_no) FILTER (WHERE i.id IS NOT NULL), '{}')
		   FROM orders o
		   LEFT JOIN order_items i ON i.order_id = o.id
		  WHERE o.customer_phone = $1
		  GROUP BY o.id
		  ORDER BY o.created_at DESC
		  LIMIT $2`,
		phone,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent orders: %w", err)
	}
	defer rows.Close()

	out := make([]ordering.OrderSummary, 0, limit)
	for rows.Next() {
		var sum ordering.OrderSummary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.Total, &sum.Status, &sum.ItemNames); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return out, nil
}

// LoadMenu reads a restaurant's dish catalog in (category, name) order.
func (s *Store) LoadMenu(ctx context.Context, restaurantID string) ([]menu.Dish, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, category, price, veg, available, customizations::text, image_url
		   FROM dishes
		  WHERE restaurant_id = $1
		  ORDER BY category, name`,
		restaurantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query dishes: %w", err)
	}
	defer rows.Close()

	dishes := make([]menu.Dish, 0, 32)
	for rows.Next() {
		var (
			d       menu.Dish
			customs string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Category, &d.Price, &d.Veg, &d.Available, &customs, &d.ImageURL); err != nil {
			return nil, fmt.Errorf("scan dish row: %w", err)
		}
		d.Customizations = parseCustomizations(customs)
		dishes = append(dishes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dish rows: %w", err)
	}
	return dishes, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("store: not connected")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func customizationsJSON(customs []string) string {
	if len(customs) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(customs)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func parseCustomizations(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var customs []string
	if err := json.Unmarshal([]byte(raw), &customs); err != nil {
		return nil
	}
	return customs
}
