package fakebackend

import (
	"net/http"
	"strings"

	"github.com/boddenberg/cash-console-bfa/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// expectedCash is opening cash plus the cash net of active movements.
// Callers hold s.mu.
func (s *Server) expectedCash(day *domain.CashDay) decimal.Decimal {
	exp := day.OpeningCash
	for _, m := range s.moves[day.ID] {
		if !m.Voided && m.Method == domain.MethodCash {
			exp = exp.Add(m.SignedAmount())
		}
	}
	return exp
}

// lookupDay resolves the day a request targets, writing the error itself
// when it cannot. Callers hold s.mu.
func (s *Server) lookupDay(w http.ResponseWriter, r *http.Request, dateKey, branchID string) (*domain.CashDay, bool) {
	branch, ok := branchFor(actorFrom(r.Context()), branchID)
	if !ok {
		writeError(w, http.StatusForbidden, "Not allowed to access branch "+branchID)
		return nil, false
	}
	day, ok := s.days[dayKey(branch, dateKey)]
	if !ok {
		return nil, true
	}
	return day, true
}

func (s *Server) getDay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.lookupDay(w, r, chi.URLParam(r, "dateKey"), r.URL.Query().Get("branchId"))
	if !ok {
		return
	}
	if day == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	out := *day
	if out.Status == domain.CashDayOpen {
		out.ExpectedCash = s.expectedCash(day)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dateKey := chi.URLParam(r, "dateKey")
	day, ok := s.lookupDay(w, r, dateKey, r.URL.Query().Get("branchId"))
	if !ok {
		return
	}
	if day == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	summary := domain.CashSummary{
		DateKey: dateKey,
		Totals: domain.Totals{
			Income: decimal.Zero, Expense: decimal.Zero, Net: decimal.Zero, CashNet: decimal.Zero,
		},
		ExpectedCash: s.expectedCash(day),
		ByMethod:     []domain.MethodTotal{},
		ByCategory:   []domain.CategoryTotal{},
	}
	byMethod := map[domain.PaymentMethod]*domain.MethodTotal{}
	byCategory := map[string]*domain.CategoryTotal{}

	for _, m := range s.moves[day.ID] {
		if m.Voided {
			continue
		}
		signed := m.SignedAmount()
		t := &summary.Totals
		mt, ok := byMethod[m.Method]
		if !ok {
			mt = &domain.MethodTotal{Method: m.Method, Income: decimal.Zero, Expense: decimal.Zero, Net: decimal.Zero}
			byMethod[m.Method] = mt
		}
		if m.Type == domain.MovementIncome {
			t.Income = t.Income.Add(m.Amount)
			mt.Income = mt.Income.Add(m.Amount)
		} else {
			t.Expense = t.Expense.Add(m.Amount)
			mt.Expense = mt.Expense.Add(m.Amount)
		}
		t.Net = t.Net.Add(signed)
		mt.Net = mt.Net.Add(signed)
		if m.Method == domain.MethodCash {
			t.CashNet = t.CashNet.Add(signed)
		}
		if m.CategoryID != nil {
			ct, ok := byCategory[*m.CategoryID]
			if !ok {
				ct = &domain.CategoryTotal{CategoryID: *m.CategoryID, CategoryName: s.categoryName(*m.CategoryID), Net: decimal.Zero}
				byCategory[*m.CategoryID] = ct
			}
			ct.Net = ct.Net.Add(signed)
		}
	}

	for _, method := range []domain.PaymentMethod{domain.MethodCash, domain.MethodTransfer, domain.MethodCard, domain.MethodOther} {
		if mt, ok := byMethod[method]; ok {
			summary.ByMethod = append(summary.ByMethod, *mt)
		}
	}
	for _, c := range s.cats {
		if ct, ok := byCategory[c.ID]; ok {
			summary.ByCategory = append(summary.ByCategory, *ct)
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) categoryName(id string) string {
	for _, c := range s.cats {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.lookupDay(w, r, chi.URLParam(r, "dateKey"), r.URL.Query().Get("branchId"))
	if !ok {
		return
	}
	out := []domain.CashMovement{}
	if day != nil {
		includeVoided := r.URL.Query().Get("includeVoided") == "true"
		for _, m := range s.moves[day.ID] {
			if m.Voided && !includeVoided {
				continue
			}
			out = append(out, m)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.cats)
}

func (s *Server) openDay(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	var req domain.OpenCashDayRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := domain.ValidateDateKey(req.DateKey); err != nil {
		writeError(w, http.StatusBadRequest, "dateKey must be YYYY-MM-DD")
		return
	}
	if req.OpeningCash.IsNegative() {
		writeError(w, http.StatusBadRequest, "openingCash must not be negative")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := branchFor(actor, req.BranchID)
	if !ok {
		writeError(w, http.StatusForbidden, "Not allowed to access branch "+req.BranchID)
		return
	}
	key := dayKey(branch, req.DateKey)
	if _, exists := s.days[key]; exists {
		writeError(w, http.StatusConflict, "Cash day already exists for "+req.DateKey)
		return
	}

	day := &domain.CashDay{
		ID:           uuid.NewString(),
		BranchID:     branch,
		DateKey:      req.DateKey,
		Status:       domain.CashDayOpen,
		OpeningCash:  req.OpeningCash,
		ExpectedCash: req.OpeningCash,
		OpenedAt:     s.now().UTC(),
	}
	s.days[key] = day
	writeJSON(w, http.StatusCreated, day)
}

// addMovement appends to an open day. Callers hold s.mu.
func (s *Server) addMovement(day *domain.CashDay, req domain.CreateMovementRequest) domain.CashMovement {
	mv := domain.CashMovement{
		ID:         uuid.NewString(),
		CashDayID:  day.ID,
		Type:       req.Type,
		Method:     req.Method,
		Amount:     req.Amount,
		CategoryID: req.CategoryID,
		Concept:    req.Concept,
		Note:       req.Note,
		CreatedAt:  s.now().UTC(),
	}
	s.moves[day.ID] = append(s.moves[day.ID], mv)
	return mv
}

func (s *Server) createMovement(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	var req domain.CreateMovementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var problems []string
	if !req.Type.IsValid() {
		problems = append(problems, "type must be INCOME or EXPENSE")
	}
	if !req.Method.IsValid() {
		problems = append(problems, "method is invalid")
	}
	if !req.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if strings.TrimSpace(req.Concept) == "" {
		problems = append(problems, "concept should not be empty")
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": problems, "error": "Bad Request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.lookupDay(w, r, chi.URLParam(r, "dateKey"), req.BranchID)
	if !ok {
		return
	}
	if day == nil || !day.IsOpen() {
		writeError(w, http.StatusConflict, "Cash day is not open")
		return
	}
	writeJSON(w, http.StatusCreated, s.addMovement(day, req))
}

func (s *Server) voidMovement(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	var req domain.VoidMovementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := chi.URLParam(r, "id")
	for dayID, list := range s.moves {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			day := s.dayByID(dayID)
			if day != nil && !day.IsOpen() && !actor.IsPrivileged() {
				writeError(w, http.StatusForbidden, "Cash day is closed; override required to void")
				return
			}
			if list[i].Voided {
				writeError(w, http.StatusConflict, "Movement already voided")
				return
			}
			list[i].Voided = true
			list[i].VoidReason = req.Reason
			writeJSON(w, http.StatusOK, list[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "Movement not found")
}

func (s *Server) dayByID(id string) *domain.CashDay {
	for _, d := range s.days {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (s *Server) closeDay(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	var req domain.CloseCashDayRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CountedCash.IsNegative() {
		writeError(w, http.StatusBadRequest, "countedCash must not be negative")
		return
	}
	if req.AdminOverride && !actor.IsPrivileged() {
		writeError(w, http.StatusForbidden, "Insufficient role for admin override")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.lookupDay(w, r, chi.URLParam(r, "dateKey"), req.BranchID)
	if !ok {
		return
	}
	if day == nil {
		writeError(w, http.StatusNotFound, "Cash day not found")
		return
	}
	if !day.IsOpen() {
		writeError(w, http.StatusConflict, "Cash day already closed")
		return
	}

	expected := s.expectedCash(day)
	diff := req.CountedCash.Sub(expected)
	if diff.Abs().GreaterThan(s.tolerance) && !req.AdminOverride {
		writeError(w, http.StatusUnprocessableEntity,
			"Counted cash differs from expected by "+diff.StringFixed(2)+": admin override required")
		return
	}

	now := s.now().UTC()
	counted := req.CountedCash
	day.Status = domain.CashDayClosed
	day.ExpectedCash = expected
	day.CountedCash = &counted
	day.DiffCash = &diff
	day.ClosedAt = &now
	day.CloseNote = req.CloseNote
	writeJSON(w, http.StatusOK, day)
}
