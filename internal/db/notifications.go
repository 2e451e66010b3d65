package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	NotificationTypeFulfilled = "order_fulfilled"
	NotificationTypeFailed    = "order_failed"
)

const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// ErrNotificationNotFound indicates the notification does not exist.
var ErrNotificationNotFound = errors.New("notification not found")

// Notification is one customer-facing message derived from a fulfillment
// event.
type Notification struct {
	ID            int64
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	Type          string
	Subject       string
	Body          string
	Status        string
	CreatedAt     time.Time
	SentAt        sql.NullTime
}

// CreateNotification persists n in Pending status and returns its id.
func (db *DB) CreateNotification(ctx context.Context, n *Notification) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO notifications (order_number, customer_name, customer_email, type, subject, body, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.OrderNumber, n.CustomerName, n.CustomerEmail, n.Type, n.Subject, n.Body, NotificationStatusPending)
	if err != nil {
		return 0, fmt.Errorf("creating notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting notification id: %w", err)
	}
	n.ID = id
	n.Status = NotificationStatusPending
	return id, nil
}

// MarkNotificationSent stamps the notification Sent.
func (db *DB) MarkNotificationSent(ctx context.Context, id int64) error {
	return db.setNotificationStatus(ctx, id, NotificationStatusSent, true)
}

// MarkNotificationFailed downgrades the notification to Failed. No further
// automatic retries happen after that.
func (db *DB) MarkNotificationFailed(ctx context.Context, id int64) error {
	return db.setNotificationStatus(ctx, id, NotificationStatusFailed, false)
}

func (db *DB) setNotificationStatus(ctx context.Context, id int64, status string, stampSent bool) error {
	query := `UPDATE notifications SET status = ? WHERE id = ?`
	if stampSent {
		query = `UPDATE notifications SET status = ?, sent_at = CURRENT_TIMESTAMP WHERE id = ?`
	}
	result, err := db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating notification %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// GetPendingNotifications returns up to limit Pending notifications, oldest
// first, for the retry sweep.
func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_number, customer_name, customer_email, type, subject, body, status, created_at, sent_at
		FROM notifications
		WHERE status = ?
		ORDER BY created_at
		LIMIT ?
	`, NotificationStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.OrderNumber, &n.CustomerName, &n.CustomerEmail, &n.Type, &n.Subject, &n.Body, &n.Status, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return notifications, nil
}

// GetNotification returns one notification by id.
func (db *DB) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	err := db.QueryRowContext(ctx, `
		SELECT id, order_number, customer_name, customer_email, type, subject, body, status, created_at, sent_at
		FROM notifications
		WHERE id = ?
	`, id).Scan(&n.ID, &n.OrderNumber, &n.CustomerName, &n.CustomerEmail, &n.Type, &n.Subject, &n.Body, &n.Status, &n.CreatedAt, &n.SentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	return &n, nil
}
