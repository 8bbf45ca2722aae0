package restock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/platform/httpx"
	"github.com/paintstock/paintstock/internal/shared"
)

// IdempotencyHeader carries the client-generated retry key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for movement orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers movement order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/{action}", h.handleAdvance)
}

type lineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

type createRequest struct {
	Kind           string        `json:"kind" validate:"required,oneof=restock_sheet restock_request transfer supply_order"`
	SourceBranchID int64         `json:"source_branch_id" validate:"gte=0"`
	DestBranchID   int64         `json:"dest_branch_id" validate:"required,gt=0"`
	Items          []lineRequest `json:"items" validate:"required,min=1,dive"`
	Note           string        `json:"note" validate:"max=500"`
	ActorID        int64         `json:"actor_id" validate:"gte=0"`
}

type advanceRequest struct {
	ActorID int64 `json:"actor_id" validate:"gte=0"`
}

type orderResponse struct {
	Order
	StatusLabel string  `json:"status_label"`
	TotalAmount float64 `json:"total_amount"`
}

type advanceResponse struct {
	Order    orderResponse `json:"order"`
	Lines    []LineResult  `json:"lines,omitempty"`
	Replayed bool          `json:"replayed"`
}

func present(o Order) orderResponse {
	return orderResponse{Order: o, StatusLabel: Label(o.Kind, o.Status), TotalAmount: o.TotalAmount()}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		Kind:           Kind(req.Kind),
		SourceBranchID: req.SourceBranchID,
		DestBranchID:   req.DestBranchID,
		Note:           req.Note,
		ActorID:        req.ActorID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, LineInput(item))
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create movement order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, present(order))
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req advanceRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Advance(r.Context(), AdvanceInput{
		OrderID:        id,
		Action:         Action(chi.URLParam(r, "action")),
		ActorID:        req.ActorID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, "advance movement order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, advanceResponse{Order: present(result.Order), Lines: result.Lines, Replayed: result.Replayed})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get movement order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, present(order))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	var err error
	if filter.BranchID, err = httpx.Int64Query(r, "branch_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter.Kind = Kind(q.Get("kind"))
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, Status(strings.TrimSpace(st)))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, shared.Invalid("invalid limit %q", raw))
			return
		}
	}
	orders, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movement orders", err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = present(o)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out})
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.Invalid("invalid order id %q", raw)
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsDomain(err) || errors.Is(err, shared.ErrPersistence) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
