package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// MessageRouter is the part of Router the HTTP surface needs.
type MessageRouter interface {
	Route(ctx context.Context, msg InboundMessage) (Outcome, error)
}

// Handler exposes the conversation engine over HTTP for simulation and
// integration tests.
type Handler struct {
	router MessageRouter
	logger *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(router MessageRouter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		router: router,
		logger: logger,
	}
}

// MessageRequest is the body of POST /conversations/message.
type MessageRequest struct {
	Sender      string `json:"sender"`
	Message     string `json:"message"`
	DisplayName string `json:"display_name,omitempty"`
}

// Message handles POST /conversations/message.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Sender) == "" {
		http.Error(w, "sender is required", http.StatusBadRequest)
		return
	}

	out, err := h.router.Route(r.Context(), InboundMessage{
		Sender:      req.Sender,
		Body:        req.Message,
		DisplayName: req.DisplayName,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrSenderRequired) {
			http.Error(w, "sender is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to process message", "sender", req.Sender, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, out)
		return
	}

	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
