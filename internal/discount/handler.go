package discount

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/platform/httpx"
	"github.com/paintstock/paintstock/internal/shared"
)

const heartbeatInterval = 15 * time.Second

// Handler wires HTTP endpoints for discount authorization.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the request/resolve routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleRequest)
	r.Get("/pending", h.handlePending)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/approve", h.handleResolve(true))
	r.Post("/{id}/reject", h.handleResolve(false))
}

// MountStreams registers the long-lived event stream routes. They must not sit
// behind a request timeout.
func (h *Handler) MountStreams(r chi.Router) {
	r.Get("/events", h.handleFeed)
	r.Get("/{id}/events", h.handleWatch)
}

type requestPayload struct {
	RequesterID   int64   `json:"requester_id" validate:"required,gt=0"`
	RequesterName string  `json:"requester_name" validate:"max=120"`
	BranchID      int64   `json:"branch_id" validate:"required,gt=0"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Type          string  `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Reason        string  `json:"reason" validate:"max=500"`
}

type resolvePayload struct {
	ResolverID int64 `json:"resolver_id" validate:"required,gt=0"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	var p requestPayload
	if err := httpx.DecodeAndValidate(r, h.validator, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Request(r.Context(), RequestInput{
		RequesterID:   p.RequesterID,
		RequesterName: p.RequesterName,
		BranchID:      p.BranchID,
		Amount:        p.Amount,
		Type:          Type(p.Type),
		Reason:        p.Reason,
	})
	if err != nil {
		h.fail(w, "request discount", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) handleResolve(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var p resolvePayload
		if err := httpx.DecodeAndValidate(r, h.validator, &p); err != nil {
			httpx.RespondError(w, err)
			return
		}
		req, err := h.service.Resolve(r.Context(), id, approve, p.ResolverID)
		if err != nil {
			h.fail(w, "resolve discount", err)
			return
		}
		httpx.JSON(w, http.StatusOK, req)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get discount", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	branchID, err := httpx.Int64Query(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	reqs, err := h.service.ListPending(r.Context(), branchID)
	if err != nil {
		h.fail(w, "list pending discounts", err)
		return
	}
	if reqs == nil {
		reqs = []Request{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.Watch(r.Context(), id)
	if err != nil {
		h.fail(w, "watch discount", err)
		return
	}
	h.stream(w, r, sub)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.WatchAll(r.Context())
	if err != nil {
		h.fail(w, "watch discount feed", err)
		return
	}
	h.stream(w, r, sub)
}

// stream writes events as Server-Sent Events until the subscription or the
// client goes away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, sub *Subscription) {
	defer sub.Close()
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Streaming Unsupported", "")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(evt.Request)
			if err != nil {
				h.logger.Error("encode discount event", slog.Any("error", err))
				return
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.Request.ID, evt.Kind, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.Invalid("invalid discount id %q", raw)
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsDomain(err) || errors.Is(err, shared.ErrPersistence) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
