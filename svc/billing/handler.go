// Package billing exposes the billing engine's public operations over HTTP.
//
// Caller identity arrives in the X-Account-ID header as a UUID; real
// deployments put an authenticating proxy or signature scheme in front of
// this surface, since account addressing is outside the engine's scope.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

const accountHeader = "X-Account-ID"

type handler struct {
	svc billing.Service
	log *slog.Logger
}

// Routes mounts the billing API onto a chi router.
func Routes(svc billing.Service, log *slog.Logger) http.Handler {
	if svc == nil {
		panic("billing: Service is required")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Post("/plans", h.createPlan)
	r.Get("/plans/{planID}", h.getPlan)
	r.Post("/subscriptions", h.createSubscription)
	r.Get("/subscriptions/{subID}", h.getSubscription)
	r.Post("/subscriptions/{subID}/charge", h.chargeSubscription)
	r.Post("/subscriptions/{subID}/cancel", h.cancelSubscription)
	r.Post("/subscriptions/{subID}/uncancel", h.uncancelSubscription)
	r.Post("/subscriptions/{subID}/close", h.closeSubscription)
	return r
}

type createPlanRequest struct {
	Code                string `json:"code"`
	Price               int64  `json:"price"`
	Term                string `json:"term"` // Go duration string, e.g. "168h"
	SettlementAccountID string `json:"settlement_account_id"`
}

func (h *handler) createPlan(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json", err)
		return
	}
	term, err := time.ParseDuration(req.Term)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_term", err)
		return
	}
	settlement, err := uuid.Parse(req.SettlementAccountID)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_settlement_account", err)
		return
	}

	plan, err := h.svc.CreatePlan(r.Context(), owner, req.Code, req.Price, term, settlement)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, planPayload(plan))
}

func (h *handler) getPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := h.pathID(w, r, "planID")
	if !ok {
		return
	}
	plan, err := h.svc.GetPlan(r.Context(), planID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, planPayload(plan))
}

type createSubscriptionRequest struct {
	PlanID          string `json:"plan_id"`
	DelegatedAmount int64  `json:"delegated_amount"`
}

func (h *handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	subscriber, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json", err)
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_plan_id", err)
		return
	}

	sub, err := h.svc.CreateSubscription(r.Context(), subscriber, planID, req.DelegatedAmount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, subscriptionPayload(sub))
}

func (h *handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.pathID(w, r, "subID")
	if !ok {
		return
	}
	sub, err := h.svc.GetSubscription(r.Context(), subID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, subscriptionPayload(sub))
}

func (h *handler) chargeSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := h.pathID(w, r, "subID")
	if !ok {
		return
	}
	// No caller check: charging is permissionless.
	res, err := h.svc.ChargeSubscription(r.Context(), subID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, chargePayload(res))
}

func (h *handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.subscriberAction(w, r, h.svc.CancelSubscription)
}

func (h *handler) uncancelSubscription(w http.ResponseWriter, r *http.Request) {
	h.subscriberAction(w, r, h.svc.UncancelSubscription)
}

func (h *handler) closeSubscription(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	subID, ok := h.pathID(w, r, "subID")
	if !ok {
		return
	}
	res, err := h.svc.CloseSubscription(r.Context(), caller, subID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, closurePayload(res))
}

func (h *handler) subscriberAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, callerID, subID uuid.UUID) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	subID, ok := h.pathID(w, r, "subID")
	if !ok {
		return
	}
	if err := action(r.Context(), caller, subID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	sub, err := h.svc.GetSubscription(r.Context(), subID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, subscriptionPayload(sub))
}

func (h *handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(accountHeader))
	if err != nil {
		h.writeError(w, r, http.StatusUnauthorized, "missing_account_id", err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_"+param, err)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps the engine's sentinel taxonomy onto HTTP statuses.
func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrPlanNotFound), errors.Is(err, billing.ErrSubscriptionNotFound):
		h.writeError(w, r, http.StatusNotFound, "not_found", err)
	case errors.Is(err, billing.ErrDuplicatePlan):
		h.writeError(w, r, http.StatusConflict, "duplicate_plan", err)
	case errors.Is(err, billing.ErrInvalidPlanConfig), errors.Is(err, billing.ErrInvalidAuthorization):
		h.writeError(w, r, http.StatusUnprocessableEntity, "invalid_request", err)
	case errors.Is(err, billing.ErrUnauthorized):
		h.writeError(w, r, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, billing.ErrNotDue):
		h.writeError(w, r, http.StatusTooEarly, "not_due", err)
	case errors.Is(err, billing.ErrNotCancelled), errors.Is(err, billing.ErrAlreadyClosed),
		errors.Is(err, billing.ErrStaleSubscription):
		h.writeError(w, r, http.StatusConflict, "conflict", err)
	default:
		h.log.ErrorContext(r.Context(), "unexpected service error", slog.Any("error", err))
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	detail := errorDetail{Code: code}
	if err != nil {
		detail.Message = err.Error()
	}
	h.writeJSON(w, status, errorResponse{Error: detail})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}
