package cashday

import (
	"strings"

	"github.com/boddenberg/cash-console-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// FilterMovements returns the movements matching f, in input order. The
// result is always a subset of movements.
func FilterMovements(movements []domain.CashMovement, f Filters) []domain.CashMovement {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.CashMovement, 0, len(movements))

	for _, m := range movements {
		if m.Voided && !f.ShowVoided {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.Method != "" && m.Method != f.Method {
			continue
		}
		if f.CategoryID != "" && (m.CategoryID == nil || *m.CategoryID != f.CategoryID) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(m.Concept), query) &&
			!strings.Contains(strings.ToLower(m.Note), query) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SumTotals adds up the active (non-voided) movements. It is meant for
// filtered views only; the day's authoritative totals come from the
// backend summary.
func SumTotals(movements []domain.CashMovement) domain.Totals {
	t := domain.Totals{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Net:     decimal.Zero,
		CashNet: decimal.Zero,
	}
	for _, m := range movements {
		if m.Voided {
			continue
		}
		switch m.Type {
		case domain.MovementIncome:
			t.Income = t.Income.Add(m.Amount)
		case domain.MovementExpense:
			t.Expense = t.Expense.Add(m.Amount)
		}
		t.Net = t.Net.Add(m.SignedAmount())
		if m.Method == domain.MethodCash {
			t.CashNet = t.CashNet.Add(m.SignedAmount())
		}
	}
	return t
}
