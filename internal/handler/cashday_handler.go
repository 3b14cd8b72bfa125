package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/boddenberg/cash-console-bfa/internal/cashday"
	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 2. Cash day reconciliation
//
// Every route takes ?branch= (honoured for admins only) and ?date=
// (YYYY-MM-DD, defaults to the date the controller is on).
// ============================================================

type openDayRequest struct {
	OpeningCash string `json:"openingCash" validate:"required"`
}

type movementRequest struct {
	Type       domain.MovementType  `json:"type" validate:"required"`
	Method     domain.PaymentMethod `json:"method" validate:"required"`
	Amount     string               `json:"amount" validate:"required"`
	CategoryID string               `json:"categoryId"`
	Concept    string               `json:"concept" validate:"required,max=200"`
	Note       string               `json:"note" validate:"max=500"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type closeRequest struct {
	CountedCash   string `json:"countedCash" validate:"required"`
	AdminOverride bool   `json:"adminOverride"`
	CloseNote     string `json:"closeNote" validate:"max=500"`
}

// controllerFor returns the session's controller positioned on ?date= and
// loaded on first use.
func controllerFor(ctx context.Context, console *service.Console, r *http.Request) (*cashday.Controller, error) {
	sess := SessionFromContext(ctx)
	ctrl, created := console.CashDay(sess, r.URL.Query().Get("branch"))

	var err error
	if date := r.URL.Query().Get("date"); date != "" && date != ctrl.Snapshot().DateKey {
		err = ctrl.SelectDate(ctx, date)
	} else if created {
		err = ctrl.Load(ctx)
	}
	if err != nil && !loadFailure(err) {
		return nil, err
	}
	return ctrl, nil
}

// loadFailure reports errors that the controller already records in its
// state; the view is still served so the operator sees the message.
func loadFailure(err error) bool {
	var validation *domain.ErrValidation
	return !sessionLost(err) && !errors.As(err, &validation)
}

func getCashDayHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/cash-day")
		defer span.End()

		sess := SessionFromContext(ctx)
		ctrl, _ := console.CashDay(sess, r.URL.Query().Get("branch"))

		var err error
		if date := r.URL.Query().Get("date"); date != "" && date != ctrl.Snapshot().DateKey {
			err = ctrl.SelectDate(ctx, date)
		} else {
			err = ctrl.Load(ctx)
		}
		if err != nil && !loadFailure(err) {
			handleServiceError(w, err, logger)
			return
		}

		view := ctrl.View()
		span.SetAttributes(attribute.String("cash.date_key", view.DateKey))
		writeJSON(w, http.StatusOK, view)
	}
}

func setFiltersHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctrl, err := controllerFor(ctx, console, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var f cashday.Filters
		if err := decodeBody(r, &f); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl.SetFilters(f)
		writeJSON(w, http.StatusOK, ctrl.View())
	}
}

func dismissMessagesHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctrl, err := controllerFor(r.Context(), console, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl.DismissMessages()
		writeJSON(w, http.StatusOK, ctrl.View())
	}
}

func openDayHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cash-day/open")
		defer span.End()

		var req openDayRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl, err := controllerFor(ctx, console, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ctrl.ShowOpenDay()
		ctrl.SetOpeningCash(req.OpeningCash)
		if err := ctrl.OpenDay(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, ctrl.View())
	}
}

func createMovementHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cash-day/movements")
		defer span.End()

		var req movementRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl, err := controllerFor(ctx, console, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ctrl.SetDraft(cashday.MovementDraft{
			Type:       req.Type,
			Method:     req.Method,
			Amount:     req.Amount,
			CategoryID: req.CategoryID,
			Concept:    req.Concept,
			Note:       req.Note,
		})
		if err := ctrl.CreateMovement(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, ctrl.View())
	}
}

func voidMovementHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cash-day/movements/{id}/void")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("cash.movement_id", id))

		var req voidRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl, err := controllerFor(ctx, console, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := ctrl.RequestVoid(id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl.SetVoidReason(req.Reason)
		if err := ctrl.ConfirmVoid(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ctrl.View())
	}
}

func closeDayHandler(console *service.Console, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cash-day/close")
		defer span.End()

		var req closeRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ctrl, err := controllerFor(ctx, console, r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ctrl.ShowCloseDay()
		ctrl.SetCloseDraft(cashday.CloseModal{
			Visible:       true,
			CountedCash:   req.CountedCash,
			AdminOverride: req.AdminOverride,
			CloseNote:     req.CloseNote,
		})
		if err := ctrl.CloseDay(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ctrl.View())
	}
}
