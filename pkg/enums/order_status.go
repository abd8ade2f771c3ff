package enums

// OrderStatus tracks an order from checkout to delivery.
type OrderStatus string

const (
	// OrderStatusPending is set when checkout starts and until payment is confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted is set once by the fulfillment claim.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusFailed marks an abandoned checkout: the payment session could
	// not be created, expired unpaid, or stayed pending past its TTL.
	OrderStatusFailed OrderStatus = "failed"
)

var orderStatuses = set[OrderStatus]{OrderStatusPending, OrderStatusCompleted, OrderStatusFailed}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}
