package models

import (
	"strings"
	"time"
)

// Order statuses used by the storefront
const (
	OrderPending    = "pending"
	OrderPaid       = "paid"
	OrderConfirmed  = "confirmed"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// Order is a read-only snapshot of a customer order
type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Status         string      `json:"status"`
	TotalPrice     float64     `json:"total_price"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Items          []OrderItem `json:"items"`
	CreatedAt      time.Time   `json:"created_at"`
}

// OrderItem is one line of an order
type OrderItem struct {
	ProductName string `json:"product_name"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	Quantity    int    `json:"quantity"`
}

// ShortCode is the 8 character code shown to customers
func (o Order) ShortCode() string {
	id := o.ID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return strings.ToUpper(id)
}
