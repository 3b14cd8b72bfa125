package fakebackend

import (
	"net/http"
	"sort"
	"strings"

	"github.com/boddenberg/cash-console-bfa/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *Server) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("search"))
	activeOnly := r.URL.Query().Get("active") == "true"

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Product{}
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) product(id string) (domain.Product, bool) {
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

// createOrder prices the lines server side and records the sale as an
// income movement of the open cash day.
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	var req domain.CreateOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Items) == 0 || !req.PaymentMethod.IsValid() {
		writeError(w, http.StatusBadRequest, "items and a valid paymentMethod are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.lookupDay(w, r, req.DateKey, req.BranchID)
	if !ok {
		return
	}
	if day == nil || !day.IsOpen() {
		writeError(w, http.StatusConflict, "Cash day is not open")
		return
	}

	order := &domain.Order{
		ID:            uuid.NewString(),
		BranchID:      day.BranchID,
		DateKey:       req.DateKey,
		Total:         decimal.Zero,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.OrderPaid,
		CreatedAt:     s.now().UTC(),
	}
	for _, line := range req.Items {
		p, ok := s.product(line.ProductID)
		if !ok || !p.Active || line.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "invalid order line for product "+line.ProductID)
			return
		}
		item := domain.OrderItem{ProductID: p.ID, Name: p.Name, Quantity: line.Quantity, UnitPrice: p.Price}
		order.Items = append(order.Items, item)
		order.Total = order.Total.Add(item.Subtotal())
	}

	salesCategory := "cat-sales"
	mv := s.addMovement(day, domain.CreateMovementRequest{
		Type:       domain.MovementIncome,
		Method:     req.PaymentMethod,
		Amount:     order.Total,
		CategoryID: &salesCategory,
		Concept:    "Sale " + order.ID[:8],
	})
	s.orders[order.ID] = order
	s.saleMove[order.ID] = mv.ID
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	branch, ok := branchFor(actor, r.URL.Query().Get("branchId"))
	if !ok {
		writeError(w, http.StatusForbidden, "Not allowed to access branch")
		return
	}
	dateKey := r.URL.Query().Get("dateKey")

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Order{}
	for _, o := range s.orders {
		if o.BranchID == branch && (dateKey == "" || o.DateKey == dateKey) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) voidOrder(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.CanWrite() {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return
	}
	var req domain.VoidOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	if order.Status == domain.OrderVoided {
		writeError(w, http.StatusConflict, "Order already voided")
		return
	}
	order.Status = domain.OrderVoided
	order.VoidReason = req.Reason

	if mvID, ok := s.saleMove[order.ID]; ok {
		for dayID, list := range s.moves {
			for i := range list {
				if list[i].ID == mvID {
					list[i].Voided = true
					list[i].VoidReason = "order voided"
				}
			}
			s.moves[dayID] = list
		}
	}
	writeJSON(w, http.StatusOK, order)
}
