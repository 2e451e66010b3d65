package db

import (
	"context"
	"strings"
	"testing"
)

func reservedFor(t *testing.T, db *DB, productID int64) int {
	t.Helper()
	item, err := db.GetInventoryItemByProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetInventoryItemByProduct(%d) error: %v", productID, err)
	}
	return item.QuantityReserved
}

func TestCheckAvailability(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name           string
		productID      int64
		quantity       int
		wantAvailable  int
		wantSufficient bool
	}{
		{
			name:           "plenty of stock",
			productID:      1,
			quantity:       3,
			wantAvailable:  150,
			wantSufficient: true,
		},
		{
			name:           "exact amount",
			productID:      3,
			quantity:       75,
			wantAvailable:  75,
			wantSufficient: true,
		},
		{
			name:           "more than on hand",
			productID:      3,
			quantity:       76,
			wantAvailable:  75,
			wantSufficient: false,
		},
		{
			name:           "missing product is zero availability",
			productID:      999,
			quantity:       1,
			wantAvailable:  0,
			wantSufficient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available, sufficient, err := db.CheckAvailability(ctx, tt.productID, tt.quantity)
			if err != nil {
				t.Fatalf("CheckAvailability() error: %v", err)
			}
			if available != tt.wantAvailable {
				t.Errorf("available = %d, want %d", available, tt.wantAvailable)
			}
			if sufficient != tt.wantSufficient {
				t.Errorf("sufficient = %v, want %v", sufficient, tt.wantSufficient)
			}
		})
	}
}

func TestReserveInventorySuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	result, err := db.ReserveInventory(ctx, "ORD-1", []ReservationLine{
		{ProductID: 1, Sku: "ELEC-WBH-001", Quantity: 3},
		{ProductID: 2, Sku: "ELEC-ULC-002", Quantity: 5},
	})
	if err != nil {
		t.Fatalf("ReserveInventory() error: %v", err)
	}
	if !result.Success {
		t.Fatalf("reservation failed: %s", result.FailureReason)
	}
	if len(result.Confirmations) != 2 {
		t.Fatalf("got %d confirmations, want 2", len(result.Confirmations))
	}
	if result.Confirmations[0].Sku != "ELEC-WBH-001" || result.Confirmations[0].WarehouseLocation != "A-1-01" {
		t.Errorf("first confirmation = %+v", result.Confirmations[0])
	}

	if got := reservedFor(t, db, 1); got != 3 {
		t.Errorf("product 1 reserved = %d, want 3", got)
	}
	if got := reservedFor(t, db, 2); got != 5 {
		t.Errorf("product 2 reserved = %d, want 5", got)
	}
}

func TestReserveInventoryAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// First line is reservable, second is not; the first must be rolled
	// back with the rest.
	result, err := db.ReserveInventory(ctx, "ORD-2", []ReservationLine{
		{ProductID: 1, Sku: "ELEC-WBH-001", Quantity: 2},
		{ProductID: 3, Sku: "ELEC-MGK-003", Quantity: 999},
	})
	if err != nil {
		t.Fatalf("ReserveInventory() error: %v", err)
	}
	if result.Success {
		t.Fatal("reservation succeeded, want failure")
	}
	if !strings.Contains(result.FailureReason, "Insufficient stock for ELEC-MGK-003") {
		t.Errorf("failure reason = %q, want it to name ELEC-MGK-003", result.FailureReason)
	}
	if !strings.Contains(result.FailureReason, "Requested: 999") || !strings.Contains(result.FailureReason, "Available: 75") {
		t.Errorf("failure reason = %q, want requested/available counts", result.FailureReason)
	}

	if got := reservedFor(t, db, 1); got != 0 {
		t.Errorf("product 1 reserved = %d after rollback, want 0", got)
	}
	if got := reservedFor(t, db, 3); got != 0 {
		t.Errorf("product 3 reserved = %d after rollback, want 0", got)
	}
}

func TestReserveInventoryUnknownProduct(t *testing.T) {
	db := newTestDB(t)

	result, err := db.ReserveInventory(context.Background(), "ORD-3", []ReservationLine{
		{ProductID: 999, Sku: "MISSING-999", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ReserveInventory() error: %v", err)
	}
	if result.Success {
		t.Fatal("reservation succeeded, want failure")
	}
	if !strings.Contains(result.FailureReason, "Product 999") || !strings.Contains(result.FailureReason, "MISSING-999") {
		t.Errorf("failure reason = %q, want it to name product 999 and its SKU", result.FailureReason)
	}
}

func TestReserveThenReleaseRestoresCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lines := []ReservationLine{
		{ProductID: 1, Sku: "ELEC-WBH-001", Quantity: 4},
		{ProductID: 5, Sku: "CLTH-WRS-005", Quantity: 7},
	}

	result, err := db.ReserveInventory(ctx, "ORD-4", lines)
	if err != nil {
		t.Fatalf("ReserveInventory() error: %v", err)
	}
	if !result.Success {
		t.Fatalf("reservation failed: %s", result.FailureReason)
	}

	released, err := db.ReleaseInventory(ctx, "ORD-4", lines)
	if err != nil {
		t.Fatalf("ReleaseInventory() error: %v", err)
	}
	if !released.Success {
		t.Fatalf("release failed: %s", released.FailureReason)
	}

	if got := reservedFor(t, db, 1); got != 0 {
		t.Errorf("product 1 reserved = %d after release, want 0", got)
	}
	if got := reservedFor(t, db, 5); got != 0 {
		t.Errorf("product 5 reserved = %d after release, want 0", got)
	}
}

func TestReleaseInventorySkipsUnknownAndCapsAtReserved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.ReserveInventory(ctx, "ORD-5", []ReservationLine{
		{ProductID: 2, Sku: "ELEC-ULC-002", Quantity: 3},
	}); err != nil {
		t.Fatalf("ReserveInventory() error: %v", err)
	}

	// Release more than is reserved, plus a line for a product that does
	// not exist. Neither may fail the call or drive reserved negative.
	result, err := db.ReleaseInventory(ctx, "ORD-5", []ReservationLine{
		{ProductID: 2, Sku: "ELEC-ULC-002", Quantity: 50},
		{ProductID: 999, Sku: "MISSING-999", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ReleaseInventory() error: %v", err)
	}
	if !result.Success {
		t.Fatalf("release failed: %s", result.FailureReason)
	}
	if len(result.Confirmations) != 1 {
		t.Fatalf("got %d confirmations, want 1 (unknown product skipped)", len(result.Confirmations))
	}
	if result.Confirmations[0].QuantityReserved != 3 {
		t.Errorf("released %d, want 3 (capped at reserved)", result.Confirmations[0].QuantityReserved)
	}

	if got := reservedFor(t, db, 2); got != 0 {
		t.Errorf("product 2 reserved = %d, want 0", got)
	}
}
