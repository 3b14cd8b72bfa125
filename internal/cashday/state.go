package cashday

import (
	"github.com/boddenberg/cash-console-bfa/internal/domain"
)

// MovementDraft holds the movement form exactly as typed.
type MovementDraft struct {
	Type       domain.MovementType  `json:"type"`
	Method     domain.PaymentMethod `json:"method"`
	Amount     string               `json:"amount"`
	CategoryID string               `json:"categoryId,omitempty"`
	Concept    string               `json:"concept"`
	Note       string               `json:"note,omitempty"`
}

// EmptyDraft is the form after a successful submit.
func EmptyDraft() MovementDraft {
	return MovementDraft{Type: domain.MovementIncome, Method: domain.MethodCash}
}

// Filters narrows the movement table. Zero values match everything.
type Filters struct {
	Query      string               `json:"query,omitempty"`
	Type       domain.MovementType  `json:"type,omitempty"`
	Method     domain.PaymentMethod `json:"method,omitempty"`
	CategoryID string               `json:"categoryId,omitempty"`
	ShowVoided bool                 `json:"showVoided"`
}

// OpenModal is the open-day dialog.
type OpenModal struct {
	Visible     bool   `json:"visible"`
	OpeningCash string `json:"openingCash"`
}

// CloseModal is the close-day dialog.
type CloseModal struct {
	Visible       bool   `json:"visible"`
	CountedCash   string `json:"countedCash"`
	AdminOverride bool   `json:"adminOverride"`
	CloseNote     string `json:"closeNote,omitempty"`
}

// VoidModal is the void confirmation dialog.
type VoidModal struct {
	Visible    bool   `json:"visible"`
	MovementID string `json:"movementId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ErrorState is the last failure shown to the operator.
type ErrorState struct {
	Message string `json:"message"`
	// Permission marks forbidden-style failures; write controls hide.
	Permission bool `json:"permission"`
}

// State is everything the console shows for one cash day.
type State struct {
	DateKey    string                   `json:"dateKey"`
	Day        *domain.CashDay          `json:"day"`
	Summary    *domain.CashSummary      `json:"summary"`
	Movements  []domain.CashMovement    `json:"movements"`
	Categories []domain.FinanceCategory `json:"categories"`

	Draft   MovementDraft `json:"draft"`
	Filters Filters       `json:"filters"`

	Open  OpenModal  `json:"openModal"`
	Close CloseModal `json:"closeModal"`
	Void  VoidModal  `json:"voidModal"`

	Loading bool   `json:"loading"`
	Busy    bool   `json:"busy"`
	BusyOp  string `json:"busyOp,omitempty"`

	Error   *ErrorState `json:"error"`
	Success string      `json:"success,omitempty"`

	// WriteAllowed is the actor's role-derived write permission.
	WriteAllowed bool `json:"-"`
}

// CanWrite reports whether write controls should be offered. A permission
// failure hides them until the next action clears it.
func (s State) CanWrite() bool {
	return s.WriteAllowed && (s.Error == nil || !s.Error.Permission)
}

// clone copies the slices and pointers the reducer may replace, so a
// snapshot never aliases controller state.
func (s State) clone() State {
	out := s
	if s.Day != nil {
		d := *s.Day
		out.Day = &d
	}
	if s.Summary != nil {
		sm := *s.Summary
		out.Summary = &sm
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	out.Movements = append([]domain.CashMovement(nil), s.Movements...)
	out.Categories = append([]domain.FinanceCategory(nil), s.Categories...)
	return out
}
