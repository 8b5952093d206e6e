package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/fitmarket/payment-orchestration/internal"
	"github.com/fitmarket/payment-orchestration/internal/clientcontext"
	"github.com/fitmarket/payment-orchestration/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	Service ServiceAPI
	Logger  *slog.Logger
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Service:     service,
		Logger:      logger,
	}
}

// CreateSession handles POST /api/v1/checkout/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateSession: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	meta := clientcontext.RequestMeta{
		Host:      r.Host,
		UserAgent: r.UserAgent(),
	}

	resp, err := h.Service.CreateSession(r.Context(), &req, meta)
	if err != nil {
		h.Logger.Error("CreateSession: service error",
			"error", err,
			"business_type", req.BusinessType)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateSession: session created",
		"session_id", resp.SessionID,
		"redirect_action", string(resp.RedirectAction))

	h.WriteJSON(w, http.StatusCreated, resp)
}

// VerifySession handles GET /api/v1/checkout/sessions/{id}/verify
func (h *Handler) VerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		h.HandleError(w, errors.NewValidationError("session id is required", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.VerifySession(r.Context(), sessionID)
	if err != nil {
		h.Logger.Error("VerifySession: service error", "error", err, "session_id", sessionID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		h.HandleError(w, errors.NewValidationError("session id is required", errors.ErrCodeValidationFailed))
		return
	}

	view, err := h.Service.GetSession(sessionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}
