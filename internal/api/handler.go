package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticket-inventory/internal/admission"
	"ticket-inventory/internal/audit"
	"ticket-inventory/internal/engine"
	"ticket-inventory/internal/inventory"
	"ticket-inventory/internal/logger"
	"ticket-inventory/internal/utils"
)

// Handler is the thin HTTP adapter over the engine. Authentication happens
// upstream; the caller's identity arrives in headers and is passed through as
// the actor on every operation.
type Handler struct {
	Inventory *inventory.Service
	Admission *admission.Service
	Audit     *audit.Log
	Logger    *logger.Logger
}

func NewHandler(inv *inventory.Service, adm *admission.Service, trail *audit.Log, log *logger.Logger) *Handler {
	return &Handler{Inventory: inv, Admission: adm, Audit: trail, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/events/{eventID}", func(r chi.Router) {
		r.Post("/tickets", h.IssueTicket)
		r.Post("/capacity", h.IncreaseCapacity)
		r.Get("/audit", h.EventAudit)
	})
	r.Route("/tickets/{ticketID}", func(r chi.Router) {
		r.Post("/cancel", h.CancelTicket)
		r.Post("/reinstate", h.ReinstateTicket)
		r.Delete("/", h.DeleteTicket)
		r.Get("/audit", h.TicketAudit)
	})
	r.Post("/admission/scan", h.Scan)
}

func actorFromRequest(r *http.Request) engine.Actor {
	return engine.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Role: r.Header.Get("X-Actor-Role"),
	}
}

type issueRequest struct {
	HolderUserID string `json:"holder_user_id"`
	GuestName    string `json:"guest_name"`
	GuestEmail   string `json:"guest_email"`
	GuestPhone   string `json:"guest_phone"`
	Price        int64  `json:"price"`
}

func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}

	holder := engine.HolderRef{
		UserID:     req.HolderUserID,
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		GuestPhone: req.GuestPhone,
	}
	if err := holder.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return
	}
	if req.Price < 0 {
		h.writeError(w, http.StatusBadRequest, "price cannot be negative", "BAD_REQUEST")
		return
	}
	ticket, err := h.Inventory.IssueTicket(r.Context(), eventID, holder, req.Price, actorFromRequest(r))
	if err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("ticket issued", ticket))
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.Inventory.CancelTicket(r.Context(), ticketID, actorFromRequest(r))
	if err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket cancelled", ticket))
}

func (h *Handler) ReinstateTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	ticket, err := h.Inventory.ReinstateTicket(r.Context(), ticketID, actorFromRequest(r))
	if err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket reinstated", ticket))
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	if err := h.Inventory.DeleteTicket(r.Context(), ticketID, actorFromRequest(r)); err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket deleted", nil))
}

type capacityRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) IncreaseCapacity(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req capacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}
	if req.Delta <= 0 {
		h.writeError(w, http.StatusBadRequest, "delta must be positive", "BAD_REQUEST")
		return
	}
	if err := h.Inventory.IncreaseCapacity(r.Context(), eventID, req.Delta, actorFromRequest(r)); err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("capacity increased", nil))
}

type scanRequest struct {
	Code string `json:"code"`
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}
	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "code is required", "BAD_REQUEST")
		return
	}

	result, err := h.Admission.Admit(r.Context(), req.Code, actorFromRequest(r))
	if err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket admitted", result))
}

func (h *Handler) TicketAudit(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	entries, err := h.Audit.EntriesForTicket(r.Context(), ticketID)
	if err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("audit entries", entries))
}

func (h *Handler) EventAudit(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	entries, err := h.Audit.EntriesForEvent(r.Context(), eventID)
	if err != nil {
		h.writeOutcome(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("audit entries", entries))
}

// writeOutcome maps engine results to response classes: expected business
// outcomes are 4xx and never hit the error log, everything else is 5xx.
func (h *Handler) writeOutcome(w http.ResponseWriter, err error) {
	code := engine.OutcomeCode(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("API", err.Error())
	}
	h.writeError(w, status, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrTicketNotFound), errors.Is(err, engine.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientCapacity):
		return http.StatusConflict
	case errors.Is(err, engine.ErrTicketAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEventNotActive),
		errors.Is(err, engine.ErrEventNotStarted),
		errors.Is(err, engine.ErrEventEnded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	var invalid *engine.InvalidTransitionError
	if errors.As(err, &invalid) {
		return http.StatusConflict
	}
	var notAdmissible *engine.NotAdmissibleError
	if errors.As(err, &notAdmissible) {
		return http.StatusUnprocessableEntity
	}
	if engine.IsBusinessOutcome(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, utils.ErrorResponse(message, code))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
