package fsm

import (
	"context"
	"testing"
)

func TestOrderStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		name          string
		currentStatus string
		targetStatus  string
	}{
		{
			name:          "pending to processing",
			currentStatus: StatusPending,
			targetStatus:  StatusProcessing,
		},
		{
			name:          "pending to payment validated",
			currentStatus: StatusPending,
			targetStatus:  StatusPaymentValidated,
		},
		{
			name:          "payment validated to processing",
			currentStatus: StatusPaymentValidated,
			targetStatus:  StatusProcessing,
		},
		{
			name:          "processing to inventory reserved",
			currentStatus: StatusProcessing,
			targetStatus:  StatusInventoryReserved,
		},
		{
			name:          "inventory reserved to fulfilled",
			currentStatus: StatusInventoryReserved,
			targetStatus:  StatusFulfilled,
		},
		{
			name:          "fulfilled to shipped",
			currentStatus: StatusFulfilled,
			targetStatus:  StatusShipped,
		},
		{
			name:          "processing to failed",
			currentStatus: StatusProcessing,
			targetStatus:  StatusFailed,
		},
		{
			name:          "inventory reserved to failed",
			currentStatus: StatusInventoryReserved,
			targetStatus:  StatusFailed,
		},
		{
			name:          "pending to cancelled",
			currentStatus: StatusPending,
			targetStatus:  StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			osm := NewOrderStateMachine()

			newStatus, err := osm.Transition(context.Background(), tt.currentStatus, tt.targetStatus)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if newStatus != tt.targetStatus {
				t.Errorf("got status %q, want %q", newStatus, tt.targetStatus)
			}
		})
	}
}

func TestOrderStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name          string
		currentStatus string
		targetStatus  string
	}{
		{
			name:          "pending straight to fulfilled",
			currentStatus: StatusPending,
			targetStatus:  StatusFulfilled,
		},
		{
			name:          "fulfilled back to processing",
			currentStatus: StatusFulfilled,
			targetStatus:  StatusProcessing,
		},
		{
			name:          "failed is terminal",
			currentStatus: StatusFailed,
			targetStatus:  StatusProcessing,
		},
		{
			name:          "fulfilled cannot fail",
			currentStatus: StatusFulfilled,
			targetStatus:  StatusFailed,
		},
		{
			name:          "cancelled is terminal",
			currentStatus: StatusCancelled,
			targetStatus:  StatusProcessing,
		},
		{
			name:          "processing cannot be cancelled",
			currentStatus: StatusProcessing,
			targetStatus:  StatusCancelled,
		},
		{
			name:          "unknown target status",
			currentStatus: StatusPending,
			targetStatus:  "Archived",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			osm := NewOrderStateMachine()

			if osm.CanTransition(tt.currentStatus, tt.targetStatus) {
				t.Errorf("CanTransition(%q, %q) = true, want false", tt.currentStatus, tt.targetStatus)
			}
			if _, err := osm.Transition(context.Background(), tt.currentStatus, tt.targetStatus); err == nil {
				t.Errorf("Transition(%q, %q) succeeded, want error", tt.currentStatus, tt.targetStatus)
			}
		})
	}
}

func TestOrderStateMachine_AvailableStatuses(t *testing.T) {
	osm := NewOrderStateMachine()

	got := osm.AvailableStatuses(StatusProcessing)
	want := map[string]bool{StatusInventoryReserved: true, StatusFailed: true}
	if len(got) != len(want) {
		t.Fatalf("AvailableStatuses(Processing) = %v, want %v", got, want)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected reachable status %q from Processing", s)
		}
	}

	if got := osm.AvailableStatuses(StatusFailed); len(got) != 0 {
		t.Errorf("AvailableStatuses(Failed) = %v, want none", got)
	}
}
