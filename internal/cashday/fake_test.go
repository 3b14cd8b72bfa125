package cashday_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/client"

	"github.com/shopspring/decimal"
)

// fakeCash is an in-memory CashAPI that applies the backend's ledger rules
// and counts calls per operation.
type fakeCash struct {
	mu         sync.Mutex
	calls      map[string]int
	days       map[string]*domain.CashDay
	movements  map[string][]domain.CashMovement
	categories []domain.FinanceCategory
	fail       map[string]error
	// block, when set, holds CreateMovement until closed.
	block chan struct{}
	seq   int
}

func newFakeCash() *fakeCash {
	return &fakeCash{
		calls:      map[string]int{},
		days:       map[string]*domain.CashDay{},
		movements:  map[string][]domain.CashMovement{},
		categories: []domain.FinanceCategory{{ID: "cat-food", Name: "Food", Active: true}},
		fail:       map[string]error{},
	}
}

func apiError(status int, msg string) error {
	return &client.APIError{Status: status, StatusText: http.StatusText(status), Message: msg}
}

func (f *fakeCash) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.fail[op]
}

func (f *fakeCash) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeCash) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeCash) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeCash) expected(dateKey string) decimal.Decimal {
	day := f.days[dateKey]
	exp := day.OpeningCash
	for _, m := range f.movements[dateKey] {
		if !m.Voided && m.Method == domain.MethodCash {
			exp = exp.Add(m.SignedAmount())
		}
	}
	return exp
}

func (f *fakeCash) GetCashDay(_ context.Context, dateKey, _ string) (*domain.CashDay, error) {
	if err := f.enter("GetCashDay"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	day, ok := f.days[dateKey]
	if !ok {
		return nil, nil
	}
	cp := *day
	cp.ExpectedCash = f.expected(dateKey)
	return &cp, nil
}

func (f *fakeCash) GetSummary(_ context.Context, dateKey, _ string) (*domain.CashSummary, error) {
	if err := f.enter("GetSummary"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.days[dateKey]; !ok {
		return nil, nil
	}
	var active []domain.CashMovement
	for _, m := range f.movements[dateKey] {
		if !m.Voided {
			active = append(active, m)
		}
	}
	totals := domain.Totals{Income: decimal.Zero, Expense: decimal.Zero, Net: decimal.Zero, CashNet: decimal.Zero}
	for _, m := range active {
		if m.Type == domain.MovementIncome {
			totals.Income = totals.Income.Add(m.Amount)
		} else {
			totals.Expense = totals.Expense.Add(m.Amount)
		}
		totals.Net = totals.Net.Add(m.SignedAmount())
		if m.Method == domain.MethodCash {
			totals.CashNet = totals.CashNet.Add(m.SignedAmount())
		}
	}
	return &domain.CashSummary{DateKey: dateKey, Totals: totals, ExpectedCash: f.expected(dateKey)}, nil
}

func (f *fakeCash) ListMovements(_ context.Context, dateKey, _ string) ([]domain.CashMovement, error) {
	if err := f.enter("ListMovements"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CashMovement(nil), f.movements[dateKey]...), nil
}

func (f *fakeCash) ListCategories(context.Context) ([]domain.FinanceCategory, error) {
	if err := f.enter("ListCategories"); err != nil {
		return nil, err
	}
	return f.categories, nil
}

func (f *fakeCash) OpenCashDay(_ context.Context, req *domain.OpenCashDayRequest) (*domain.CashDay, error) {
	if err := f.enter("OpenCashDay"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.days[req.DateKey]; ok {
		return nil, apiError(http.StatusConflict, "Cash day already exists for "+req.DateKey)
	}
	day := &domain.CashDay{
		ID:           "day-" + req.DateKey,
		DateKey:      req.DateKey,
		Status:       domain.CashDayOpen,
		OpeningCash:  req.OpeningCash,
		ExpectedCash: req.OpeningCash,
		OpenedAt:     time.Now(),
	}
	f.days[req.DateKey] = day
	cp := *day
	return &cp, nil
}

func (f *fakeCash) CreateMovement(_ context.Context, dateKey string, req *domain.CreateMovementRequest) (*domain.CashMovement, error) {
	if err := f.enter("CreateMovement"); err != nil {
		return nil, err
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	day, ok := f.days[dateKey]
	if !ok || !day.IsOpen() {
		return nil, apiError(http.StatusConflict, "Cash day is not open")
	}
	f.seq++
	mv := domain.CashMovement{
		ID:         fmt.Sprintf("mv-%d", f.seq),
		CashDayID:  day.ID,
		Type:       req.Type,
		Method:     req.Method,
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
		Concept:    req.Concept,
		Note:       req.Note,
		CreatedAt:  time.Now(),
	}
	f.movements[dateKey] = append(f.movements[dateKey], mv)
	return &mv, nil
}

func (f *fakeCash) VoidMovement(_ context.Context, id string, req *domain.VoidMovementRequest) (*domain.CashMovement, error) {
	if err := f.enter("VoidMovement"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.movements[req.DateKey]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].Voided {
			return nil, apiError(http.StatusConflict, "Movement already voided")
		}
		list[i].Voided = true
		list[i].VoidReason = req.Reason
		mv := list[i]
		return &mv, nil
	}
	return nil, apiError(http.StatusNotFound, "Movement not found")
}

func (f *fakeCash) CloseCashDay(_ context.Context, dateKey string, req *domain.CloseCashDayRequest) (*domain.CashDay, error) {
	if err := f.enter("CloseCashDay"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	day, ok := f.days[dateKey]
	if !ok {
		return nil, apiError(http.StatusNotFound, "Cash day not found")
	}
	if !day.IsOpen() {
		return nil, apiError(http.StatusConflict, "Cash day already closed")
	}
	expected := f.expected(dateKey)
	diff := req.CountedCash.Sub(expected)
	if !diff.IsZero() && !req.AdminOverride {
		return nil, apiError(http.StatusUnprocessableEntity, "Counted cash differs from expected: admin override required")
	}
	now := time.Now()
	counted := req.CountedCash
	day.Status = domain.CashDayClosed
	day.ExpectedCash = expected
	day.CountedCash = &counted
	day.DiffCash = &diff
	day.ClosedAt = &now
	day.CloseNote = req.CloseNote
	cp := *day
	return &cp, nil
}
