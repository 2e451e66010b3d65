package fsm

// Order statuses as they appear on the wire. The saga drives Pending through
// Processing and InventoryReserved to Fulfilled or Failed; PaymentValidated,
// Shipped and Cancelled are set by other collaborators.
const (
	StatusPending           = "Pending"
	StatusPaymentValidated  = "PaymentValidated"
	StatusProcessing        = "Processing"
	StatusInventoryReserved = "InventoryReserved"
	StatusFulfilled         = "Fulfilled"
	StatusShipped           = "Shipped"
	StatusFailed            = "Failed"
	StatusCancelled         = "Cancelled"
)

const (
	EventValidatePayment  = "validate_payment"
	EventStartProcessing  = "start_processing"
	EventReserveInventory = "reserve_inventory"
	EventFulfill          = "fulfill"
	EventShip             = "ship"
	EventFail             = "fail"
	EventCancel           = "cancel"
)

// IsValidStatus reports whether s is one of the known order statuses.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPaymentValidated, StatusProcessing,
		StatusInventoryReserved, StatusFulfilled, StatusShipped,
		StatusFailed, StatusCancelled:
		return true
	}
	return false
}
