// Package domain defines the entities the cash console works with.
// The backend owns every one of them; the console only reads them and
// submits mutations.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend transmits amounts as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// ============================================================
// Cash day
// ============================================================

// CashDayStatus is the lifecycle state of a cash day.
type CashDayStatus string

const (
	CashDayOpen   CashDayStatus = "OPEN"
	CashDayClosed CashDayStatus = "CLOSED"
)

// IsValid checks if the status is a known CashDayStatus.
func (s CashDayStatus) IsValid() bool {
	return s == CashDayOpen || s == CashDayClosed
}

func (s CashDayStatus) String() string {
	return string(s)
}

// CashDay is the ledger scope of one branch register for one date key.
// Exactly one exists per (branch, date key); it only moves OPEN -> CLOSED.
type CashDay struct {
	ID           string           `json:"id"`
	BranchID     string           `json:"branchId,omitempty"`
	DateKey      string           `json:"dateKey"`
	Status       CashDayStatus    `json:"status"`
	OpeningCash  decimal.Decimal  `json:"openingCash"`
	ExpectedCash decimal.Decimal  `json:"expectedCash"`
	CountedCash  *decimal.Decimal `json:"countedCash"`
	DiffCash     *decimal.Decimal `json:"diffCash"`
	OpenedAt     time.Time        `json:"openedAt"`
	ClosedAt     *time.Time       `json:"closedAt,omitempty"`
	CloseNote    string           `json:"closeNote,omitempty"`
}

// IsOpen reports whether movements can still be recorded.
func (d *CashDay) IsOpen() bool {
	return d != nil && d.Status == CashDayOpen
}

// ============================================================
// Movements
// ============================================================

// MovementType is the direction of a cash movement.
type MovementType string

const (
	MovementIncome  MovementType = "INCOME"
	MovementExpense MovementType = "EXPENSE"
)

// IsValid checks if the type is a known MovementType.
func (t MovementType) IsValid() bool {
	return t == MovementIncome || t == MovementExpense
}

// PaymentMethod is how the money moved.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodCard     PaymentMethod = "CARD"
	MethodOther    PaymentMethod = "OTHER"
)

// IsValid checks if the method is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCard, MethodOther:
		return true
	}
	return false
}

// CashMovement is a single income or expense recorded in a cash day.
// Once voided it is immutable and excluded from active totals.
type CashMovement struct {
	ID         string          `json:"id"`
	CashDayID  string          `json:"cashDayId"`
	Type       MovementType    `json:"type"`
	Method     PaymentMethod   `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	CategoryID *string         `json:"categoryId,omitempty"`
	Concept    string          `json:"concept"`
	Note       string          `json:"note,omitempty"`
	Voided     bool            `json:"voided"`
	VoidReason string          `json:"voidReason,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// SignedAmount returns the amount as it contributes to net totals.
func (m CashMovement) SignedAmount() decimal.Decimal {
	if m.Type == MovementExpense {
		return m.Amount.Neg()
	}
	return m.Amount
}

// FinanceCategory classifies movements.
type FinanceCategory struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ============================================================
// Summary (server-computed read model)
// ============================================================

// Totals aggregates a set of movements.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
	CashNet decimal.Decimal `json:"cashNet"`
}

// MethodTotal is the net of active movements for one payment method.
type MethodTotal struct {
	Method  PaymentMethod   `json:"method"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// CategoryTotal is the net of active movements for one category.
type CategoryTotal struct {
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Net          decimal.Decimal `json:"net"`
}

// CashSummary is recomputed by the backend on every fetch. The console
// never recomputes it.
type CashSummary struct {
	DateKey      string          `json:"dateKey"`
	Totals       Totals          `json:"totals"`
	ExpectedCash decimal.Decimal `json:"expectedCash"`
	ByMethod     []MethodTotal   `json:"byMethod"`
	ByCategory   []CategoryTotal `json:"byCategory"`
}

// ============================================================
// Requests
// ============================================================

// OpenCashDayRequest is the body for POST /cash/days.
type OpenCashDayRequest struct {
	DateKey     string          `json:"dateKey"`
	OpeningCash decimal.Decimal `json:"openingCash"`
	BranchID    string          `json:"branchId,omitempty"`
}

// CreateMovementRequest is the body for POST /cash/days/{dateKey}/movements.
type CreateMovementRequest struct {
	Type       MovementType    `json:"type"`
	Method     PaymentMethod   `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	CategoryID *string         `json:"categoryId,omitempty"`
	Concept    string          `json:"concept"`
	Note       string          `json:"note,omitempty"`
	BranchID   string          `json:"branchId,omitempty"`
}

// VoidMovementRequest is the body for POST /cash/movements/{id}/void.
type VoidMovementRequest struct {
	Reason  string `json:"reason,omitempty"`
	DateKey string `json:"dateKey"`
}

// CloseCashDayRequest is the body for POST /cash/days/{dateKey}/close.
type CloseCashDayRequest struct {
	CountedCash   decimal.Decimal `json:"countedCash"`
	AdminOverride bool            `json:"adminOverride"`
	CloseNote     string          `json:"closeNote,omitempty"`
	BranchID      string          `json:"branchId,omitempty"`
}
