package domain

// PlaceOrderRequest is sent to the exchange adapter. ClientID is the
// idempotency key: exchanges that support client order ids reject or echo a
// repeated submission instead of filling twice.
type PlaceOrderRequest struct {
	ClientID  string
	Symbol    string
	Side      OrderSide
	Quantity  float64
	PriceHint float64
}

// OrderAck is the exchange's response to a placed order.
type OrderAck struct {
	ExchangeOrderID string
	Status          OrderStatus
	FilledQuantity  float64
	FilledPrice     float64
	Fee             float64
}

// OrderStatusReport is the exchange's answer to a status query by client id,
// used to resolve UNKNOWN orders during reconciliation.
type OrderStatusReport struct {
	Status         OrderStatus
	FilledQuantity float64
	FilledPrice    float64
	Fee            float64
}
