package fsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
)

// OrderStateMachine validates order status transitions. Statuses only move
// forward; once an order is Fulfilled, Failed or Cancelled the saga applies
// no further transitions.
type OrderStateMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

func NewOrderStateMachine() *OrderStateMachine {
	osm := &OrderStateMachine{}
	osm.fsm = fsm.NewFSM(
		StatusPending,
		fsm.Events{
			{Name: EventValidatePayment, Src: []string{StatusPending}, Dst: StatusPaymentValidated},
			{Name: EventStartProcessing, Src: []string{StatusPending, StatusPaymentValidated}, Dst: StatusProcessing},
			{Name: EventReserveInventory, Src: []string{StatusProcessing}, Dst: StatusInventoryReserved},
			{Name: EventFulfill, Src: []string{StatusInventoryReserved}, Dst: StatusFulfilled},
			{Name: EventShip, Src: []string{StatusFulfilled}, Dst: StatusShipped},
			{Name: EventFail, Src: []string{StatusPending, StatusPaymentValidated, StatusProcessing, StatusInventoryReserved}, Dst: StatusFailed},
			{Name: EventCancel, Src: []string{StatusPending, StatusPaymentValidated}, Dst: StatusCancelled},
		},
		fsm.Callbacks{},
	)
	return osm
}

// eventFor maps a target status to the event that reaches it.
func eventFor(target string) (string, bool) {
	switch target {
	case StatusPaymentValidated:
		return EventValidatePayment, true
	case StatusProcessing:
		return EventStartProcessing, true
	case StatusInventoryReserved:
		return EventReserveInventory, true
	case StatusFulfilled:
		return EventFulfill, true
	case StatusShipped:
		return EventShip, true
	case StatusFailed:
		return EventFail, true
	case StatusCancelled:
		return EventCancel, true
	}
	return "", false
}

// CanTransition reports whether an order in currentStatus may move to
// targetStatus.
func (osm *OrderStateMachine) CanTransition(currentStatus, targetStatus string) bool {
	event, ok := eventFor(targetStatus)
	if !ok {
		return false
	}
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentStatus)
	return osm.fsm.Can(event)
}

// Transition moves an order from currentStatus to targetStatus, returning
// the resulting status or an error if the step is not a legal forward move.
func (osm *OrderStateMachine) Transition(ctx context.Context, currentStatus, targetStatus string) (string, error) {
	event, ok := eventFor(targetStatus)
	if !ok {
		return "", fmt.Errorf("unknown order status %q", targetStatus)
	}
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentStatus)
	if err := osm.fsm.Event(ctx, event); err != nil {
		return "", err
	}
	return osm.fsm.Current(), nil
}

// AvailableStatuses lists the statuses reachable from currentStatus in one
// step.
func (osm *OrderStateMachine) AvailableStatuses(currentStatus string) []string {
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentStatus)
	events := osm.fsm.AvailableTransitions()
	statuses := make([]string, 0, len(events))
	for _, event := range events {
		switch event {
		case EventValidatePayment:
			statuses = append(statuses, StatusPaymentValidated)
		case EventStartProcessing:
			statuses = append(statuses, StatusProcessing)
		case EventReserveInventory:
			statuses = append(statuses, StatusInventoryReserved)
		case EventFulfill:
			statuses = append(statuses, StatusFulfilled)
		case EventShip:
			statuses = append(statuses, StatusShipped)
		case EventFail:
			statuses = append(statuses, StatusFailed)
		case EventCancel:
			statuses = append(statuses, StatusCancelled)
		}
	}
	return statuses
}
