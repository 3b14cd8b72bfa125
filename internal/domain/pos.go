package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Point of sale
// ============================================================

// Product is a sellable catalog item.
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Active     bool            `json:"active"`
	CategoryID string          `json:"categoryId,omitempty"`
}

// OrderStatus is the lifecycle state of a sale.
type OrderStatus string

const (
	OrderPaid   OrderStatus = "PAID"
	OrderVoided OrderStatus = "VOIDED"
)

// OrderItem is one line of a sale.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal is UnitPrice * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a completed sale. Voiding keeps it for audit.
type Order struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branchId,omitempty"`
	DateKey       string          `json:"dateKey"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Status        OrderStatus     `json:"status"`
	VoidReason    string          `json:"voidReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// OrderLine is a line of CreateOrderRequest.
type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest is the body for POST /orders.
type CreateOrderRequest struct {
	DateKey       string        `json:"dateKey"`
	Items         []OrderLine   `json:"items"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	BranchID      string        `json:"branchId,omitempty"`
}

// VoidOrderRequest is the body for POST /orders/{id}/void.
type VoidOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CheckoutResult is a completed sale plus the change owed to the customer.
type CheckoutResult struct {
	Order  *Order          `json:"order"`
	Change decimal.Decimal `json:"change"`
}
