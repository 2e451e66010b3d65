package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buildtall-systems/orderflow/internal/fsm"
)

var orderSM = fsm.NewOrderStateMachine()

// ErrOrderNotFound indicates the order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrInvalidStateTransition indicates an invalid order status transition was
// attempted.
var ErrInvalidStateTransition = errors.New("invalid order status transition")

// Order represents a customer order with its line items.
type Order struct {
	ID            int64
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	Items         []OrderItem
	TotalCents    int64
	Status        string
	CreatedAt     time.Time
	ProcessedAt   sql.NullTime
	FulfilledAt   sql.NullTime
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	ProductName    string
	Sku            string
	Quantity       int
	UnitPriceCents int64
}

// LineTotalCents returns quantity x unit price for the line.
func (i OrderItem) LineTotalCents() int64 {
	return int64(i.Quantity) * i.UnitPriceCents
}

// CreateOrder inserts an order and its items in one transaction. The order
// number is derived from the current time in milliseconds; the total is
// computed once here and never recomputed on read.
func (db *DB) CreateOrder(ctx context.Context, customerName, customerEmail string, items []OrderItem) (*Order, error) {
	var total int64
	for _, item := range items {
		total += item.LineTotalCents()
	}

	// The time-derived order number must be unique; retry on the rare
	// collision of two orders in the same millisecond.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		orderNumber := fmt.Sprintf("ORD-%d", time.Now().UnixMilli())
		order, err := db.insertOrder(ctx, orderNumber, customerName, customerEmail, total, items)
		if err == nil {
			return order, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
		time.Sleep(time.Millisecond)
	}
	return nil, fmt.Errorf("allocating order number: %w", lastErr)
}

func (db *DB) insertOrder(ctx context.Context, orderNumber, customerName, customerEmail string, total int64, items []OrderItem) (*Order, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_number, customer_name, customer_email, total_cents, status)
		VALUES (?, ?, ?, ?, 'Pending')
	`, orderNumber, customerName, customerEmail, total)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	order := &Order{
		ID:            orderID,
		OrderNumber:   orderNumber,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		TotalCents:    total,
		Status:        fsm.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, sku, quantity, unit_price_cents)
			VALUES (?, ?, ?, ?, ?, ?)
		`, orderID, item.ProductID, item.ProductName, item.Sku, item.Quantity, item.UnitPriceCents)
		if err != nil {
			return nil, fmt.Errorf("creating order item for product %d: %w", item.ProductID, err)
		}
		itemID, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("getting order item id: %w", err)
		}
		item.ID = itemID
		item.OrderID = orderID
		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return order, nil
}

// GetOrderByID returns the order with its items.
func (db *DB) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	return db.getOrder(ctx, `WHERE id = ?`, id)
}

// GetOrderByNumber returns the order with its items.
func (db *DB) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	return db.getOrder(ctx, `WHERE order_number = ?`, orderNumber)
}

func (db *DB) getOrder(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	err := db.QueryRowContext(ctx, `
		SELECT id, order_number, customer_name, customer_email, total_cents, status, created_at, processed_at, fulfilled_at
		FROM orders `+where,
		arg,
	).Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.TotalCents, &o.Status, &o.CreatedAt, &o.ProcessedAt, &o.FulfilledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}

	items, err := db.getOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (db *DB) getOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, sku, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = ?
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Sku, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}

// GetPendingOrders lists orders still in Pending status, oldest first.
func (db *DB) GetPendingOrders(ctx context.Context) ([]*Order, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_number, customer_name, customer_email, total_cents, status, created_at, processed_at, fulfilled_at
		FROM orders
		WHERE status = ?
		ORDER BY created_at
	`, fsm.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("querying pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.TotalCents, &o.Status, &o.CreatedAt, &o.ProcessedAt, &o.FulfilledAt); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	for _, o := range orders {
		items, err := db.getOrderItems(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to status. Setting the current status
// again is an idempotent no-op; any other move must be a legal forward
// transition. The first move to Processing or Fulfilled stamps the matching
// timestamp.
func (db *DB) UpdateOrderStatus(ctx context.Context, id int64, status string) (*Order, error) {
	if !fsm.IsValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, status)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order status: %w", err)
	}

	if current != status {
		if !orderSM.CanTransition(current, status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current, status)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id); err != nil {
			return nil, fmt.Errorf("updating order status: %w", err)
		}

		switch status {
		case fsm.StatusProcessing:
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET processed_at = CURRENT_TIMESTAMP WHERE id = ? AND processed_at IS NULL
			`, id); err != nil {
				return nil, fmt.Errorf("stamping processed_at: %w", err)
			}
		case fsm.StatusFulfilled:
			if _, err := tx.ExecContext(ctx, `
				UPDATE orders SET fulfilled_at = CURRENT_TIMESTAMP WHERE id = ? AND fulfilled_at IS NULL
			`, id); err != nil {
				return nil, fmt.Errorf("stamping fulfilled_at: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return db.GetOrderByID(ctx, id)
}

// isUniqueViolation checks if the error indicates a UNIQUE constraint hit.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
