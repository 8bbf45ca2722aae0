package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/paintstock/paintstock/internal/platform/httpx"
	"github.com/paintstock/paintstock/internal/shared"
)

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleHistory)
	r.Post("/adjust", h.handleAdjust)
	r.Put("/stock-take", h.handleStockTake)
	r.Post("/transfer", h.handleTransfer)
	r.Post("/consumption", h.handleConsumption)
	r.Get("/{branchID}", h.handleListBranch)
	r.Get("/{branchID}/{productID}", h.handleGetEntry)
}

type entryResponse struct {
	Entry
	Available int64 `json:"available"`
}

func toResponse(e Entry) entryResponse {
	return entryResponse{Entry: e, Available: e.Available()}
}

type adjustRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	Delta     int64  `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,oneof=manual restock sale transfer consumption stock_take"`
	RefID     string `json:"ref_id" validate:"max=64"`
	Note      string `json:"note" validate:"max=500"`
	ActorID   int64  `json:"actor_id" validate:"gte=0"`
}

type stockTakeRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	Note      string `json:"note" validate:"max=500"`
	ActorID   int64  `json:"actor_id" validate:"gte=0"`
}

type transferRequest struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	FromBranchID int64  `json:"from_branch_id" validate:"required,gt=0"`
	ToBranchID   int64  `json:"to_branch_id" validate:"required,gt=0,nefield=FromBranchID"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
	RefID        string `json:"ref_id" validate:"max=64"`
	Note         string `json:"note" validate:"max=500"`
	ActorID      int64  `json:"actor_id" validate:"gte=0"`
}

type consumptionRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	branchID, err := httpx.Int64Param(r, "branchID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := httpx.Int64Param(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), productID, branchID)
	if err != nil {
		h.fail(w, "get inventory entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) handleListBranch(w http.ResponseWriter, r *http.Request) {
	branchID, err := httpx.Int64Param(r, "branchID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.ListBranch(r.Context(), branchID)
	if err != nil {
		h.fail(w, "list branch inventory", err)
		return
	}
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = toResponse(e)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branch_id": branchID, "entries": out})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Adjust(r.Context(), AdjustInput{
		ProductID: req.ProductID,
		BranchID:  req.BranchID,
		Delta:     req.Delta,
		Reason:    Reason(req.Reason),
		RefID:     req.RefID,
		Note:      req.Note,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.fail(w, "adjust inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) handleStockTake(w http.ResponseWriter, r *http.Request) {
	var req stockTakeRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.SetQuantity(r.Context(), SetInput(req))
	if err != nil {
		h.fail(w, "stock take", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to, err := h.service.Transfer(r.Context(), TransferInput(req))
	if err != nil {
		h.fail(w, "transfer inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"from": toResponse(from), "to": toResponse(to)})
}

func (h *Handler) handleConsumption(w http.ResponseWriter, r *http.Request) {
	var req consumptionRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.RecordConsumption(r.Context(), ConsumptionInput(req))
	if err != nil {
		h.fail(w, "record consumption", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(entry))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.fail(w, "inventory history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func parseHistoryFilter(r *http.Request) (HistoryFilter, error) {
	var filter HistoryFilter
	var err error
	if filter.BranchID, err = httpx.Int64Query(r, "branch_id"); err != nil {
		return filter, err
	}
	if filter.ProductID, err = httpx.Int64Query(r, "product_id"); err != nil {
		return filter, err
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			return filter, shared.Invalid("invalid from date %q", raw)
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, shared.Invalid("invalid to date %q", raw)
		}
		// Set to end of day
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			return filter, shared.Invalid("invalid limit %q", raw)
		}
	}
	return filter, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsDomain(err) || errors.Is(err, shared.ErrPersistence) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
