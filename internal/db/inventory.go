package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InventoryItem is one row of the stock ledger.
type InventoryItem struct {
	ID                int64
	ProductID         int64
	Sku               string
	QuantityOnHand    int
	QuantityReserved  int
	WarehouseLocation string
	LastUpdated       time.Time
}

// QuantityAvailable is on-hand stock minus outstanding reservations.
func (i InventoryItem) QuantityAvailable() int {
	return i.QuantityOnHand - i.QuantityReserved
}

// ReservationLine names one product/quantity of a reservation request.
type ReservationLine struct {
	ProductID int64  `json:"productId"`
	Sku       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// ReservationConfirmation records one successfully held or released line.
type ReservationConfirmation struct {
	Sku               string `json:"sku"`
	QuantityReserved  int    `json:"quantityReserved"`
	WarehouseLocation string `json:"warehouseLocation"`
}

// ReservationResult is the structured outcome of a reserve or release call.
// Business rejections (unknown product, insufficient stock) are reported
// here with Success=false, not as errors.
type ReservationResult struct {
	Success       bool                      `json:"success"`
	OrderNumber   string                    `json:"orderNumber"`
	FailureReason string                    `json:"failureReason,omitempty"`
	Confirmations []ReservationConfirmation `json:"confirmations"`
}

// GetInventoryItems lists the full stock ledger.
func (db *DB) GetInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, product_id, sku, quantity_on_hand, quantity_reserved, warehouse_location, last_updated
		FROM inventory_items
		ORDER BY product_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var item InventoryItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Sku, &item.QuantityOnHand, &item.QuantityReserved, &item.WarehouseLocation, &item.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inventory items: %w", err)
	}
	return items, nil
}

// ErrItemNotFound indicates no stock ledger row exists for the product.
var ErrItemNotFound = errors.New("inventory item not found")

// GetInventoryItemByProduct returns the ledger row for productID.
func (db *DB) GetInventoryItemByProduct(ctx context.Context, productID int64) (*InventoryItem, error) {
	var item InventoryItem
	err := db.QueryRowContext(ctx, `
		SELECT id, product_id, sku, quantity_on_hand, quantity_reserved, warehouse_location, last_updated
		FROM inventory_items
		WHERE product_id = ?
	`, productID).Scan(&item.ID, &item.ProductID, &item.Sku, &item.QuantityOnHand, &item.QuantityReserved, &item.WarehouseLocation, &item.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying inventory item: %w", err)
	}
	return &item, nil
}

// CheckAvailability reports available stock for productID and whether it
// covers quantity. A missing product is zero availability, not an error.
func (db *DB) CheckAvailability(ctx context.Context, productID int64, quantity int) (int, bool, error) {
	item, err := db.GetInventoryItemByProduct(ctx, productID)
	if errors.Is(err, ErrItemNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	available := item.QuantityAvailable()
	return available, available >= quantity, nil
}

// ReserveInventory holds stock for every line of an order, all-or-nothing.
// The lines are checked and updated inside one transaction; the first
// unknown product or insufficient line aborts the whole unit of work and no
// partial reservation is left committed.
func (db *DB) ReserveInventory(ctx context.Context, orderNumber string, lines []ReservationLine) (*ReservationResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	confirmations := make([]ReservationConfirmation, 0, len(lines))
	for _, line := range lines {
		var item InventoryItem
		err := tx.QueryRowContext(ctx, `
			SELECT id, sku, quantity_on_hand, quantity_reserved, warehouse_location
			FROM inventory_items
			WHERE product_id = ?
		`, line.ProductID).Scan(&item.ID, &item.Sku, &item.QuantityOnHand, &item.QuantityReserved, &item.WarehouseLocation)
		if errors.Is(err, sql.ErrNoRows) {
			return &ReservationResult{
				Success:       false,
				OrderNumber:   orderNumber,
				FailureReason: fmt.Sprintf("Product %d (SKU: %s) not found in inventory", line.ProductID, line.Sku),
			}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("querying inventory for product %d: %w", line.ProductID, err)
		}

		available := item.QuantityAvailable()
		if available < line.Quantity {
			return &ReservationResult{
				Success:       false,
				OrderNumber:   orderNumber,
				FailureReason: fmt.Sprintf("Insufficient stock for %s. Requested: %d, Available: %d", item.Sku, line.Quantity, available),
			}, nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_items
			SET quantity_reserved = quantity_reserved + ?, last_updated = CURRENT_TIMESTAMP
			WHERE id = ?
		`, line.Quantity, item.ID); err != nil {
			return nil, fmt.Errorf("reserving product %d: %w", line.ProductID, err)
		}

		confirmations = append(confirmations, ReservationConfirmation{
			Sku:               item.Sku,
			QuantityReserved:  line.Quantity,
			WarehouseLocation: item.WarehouseLocation,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &ReservationResult{
		Success:       true,
		OrderNumber:   orderNumber,
		Confirmations: confirmations,
	}, nil
}

// ReleaseInventory is the best-effort compensating operation for a prior
// reservation. Unknown products are skipped, and the released amount per
// line is capped at what is actually reserved, so quantity_reserved never
// goes negative.
func (db *DB) ReleaseInventory(ctx context.Context, orderNumber string, lines []ReservationLine) (*ReservationResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	confirmations := make([]ReservationConfirmation, 0, len(lines))
	for _, line := range lines {
		var item InventoryItem
		err := tx.QueryRowContext(ctx, `
			SELECT id, sku, quantity_reserved, warehouse_location
			FROM inventory_items
			WHERE product_id = ?
		`, line.ProductID).Scan(&item.ID, &item.Sku, &item.QuantityReserved, &item.WarehouseLocation)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying inventory for product %d: %w", line.ProductID, err)
		}

		release := line.Quantity
		if release > item.QuantityReserved {
			release = item.QuantityReserved
		}
		if release > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE inventory_items
				SET quantity_reserved = quantity_reserved - ?, last_updated = CURRENT_TIMESTAMP
				WHERE id = ?
			`, release, item.ID); err != nil {
				return nil, fmt.Errorf("releasing product %d: %w", line.ProductID, err)
			}
		}

		confirmations = append(confirmations, ReservationConfirmation{
			Sku:               item.Sku,
			QuantityReserved:  release,
			WarehouseLocation: item.WarehouseLocation,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &ReservationResult{
		Success:       true,
		OrderNumber:   orderNumber,
		Confirmations: confirmations,
	}, nil
}
