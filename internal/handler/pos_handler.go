package handler

import (
	"net/http"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/pos"
	"github.com/boddenberg/cash-console-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 3. Point of sale
// ============================================================

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type setQuantityRequest struct {
	Quantity string `json:"quantity" validate:"required"`
}

type checkoutRequest struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod" validate:"required"`
	Received      string               `json:"received"`
}

type voidSaleRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func cartFor(console *service.Console, r *http.Request) *pos.Cart {
	return console.Cart(SessionFromContext(r.Context()), r.URL.Query().Get("branch"))
}

func searchProductsHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pos/products")
		defer span.End()

		products, err := cartFor(console, r).Search(ctx, r.URL.Query().Get("search"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, products)
	}
}

func getCartHandler(console *service.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cartFor(console, r).Snapshot())
	}
}

func clearCartHandler(console *service.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart := cartFor(console, r)
		cart.Clear()
		writeJSON(w, http.StatusOK, cart.Snapshot())
	}
}

func addCartItemHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		cart := cartFor(console, r)
		if err := cart.Add(req.ProductID, req.Quantity); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart.Snapshot())
	}
}

func setCartQuantityHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setQuantityRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		cart := cartFor(console, r)
		if err := cart.SetQuantity(chi.URLParam(r, "productId"), req.Quantity); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart.Snapshot())
	}
}

func removeCartItemHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart := cartFor(console, r)
		if err := cart.Remove(chi.URLParam(r, "productId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cart.Snapshot())
	}
}

func checkoutHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pos/checkout")
		defer span.End()

		var req checkoutRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		result, err := cartFor(console, r).Checkout(ctx, req.PaymentMethod, req.Received)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("pos.order_id", result.Order.ID))
		writeJSON(w, http.StatusCreated, result)
	}
}

func listSalesHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pos/sales")
		defer span.End()

		orders, err := cartFor(console, r).Sales(ctx, r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

func voidSaleHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pos/sales/{id}/void")
		defer span.End()

		var req voidSaleRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		order, err := cartFor(console, r).VoidSale(ctx, chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}
