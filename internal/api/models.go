package api

import (
	"encoding/json"

	"ordersync/internal/order"
)

// OrdersQuery selects one page of orders in a status
type OrdersQuery struct {
	Status order.Status
	Page   int
	Limit  int
	Search string
	Sort   string
}

// ordersResponse is the raw page payload. Entries are decoded one by one so
// a single malformed order does not poison the page.
type ordersResponse struct {
	Orders      []json.RawMessage `json:"orders"`
	TotalPages  int               `json:"totalPages"`
	UnreadCount int               `json:"unreadCount"`
}

// Page is a decoded page of orders
type Page struct {
	Orders      []order.Order
	TotalPages  int
	UnreadCount int
	// Rejected counts entries dropped because they failed validation
	Rejected int
}

// orderResponse wraps a single order
type orderResponse struct {
	Order json.RawMessage `json:"order"`
}

// UpdateStatusRequest represents the request to change an order's status
type UpdateStatusRequest struct {
	Status order.Status `json:"status"`
}

// UpdatePaymentStatusRequest represents the request to settle a payment
type UpdatePaymentStatusRequest struct {
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
}

// MarkReadRequest represents the request to flag an order as read
type MarkReadRequest struct {
	Role order.Role `json:"role"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
