package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/platform/httpx"
	"github.com/paintstock/paintstock/internal/shared"
)

// IdempotencyHeader carries the client-generated retry key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}/client", h.handleAttachClient)
}

type lineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type discountRequest struct {
	Type      string  `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	RequestID string  `json:"request_id" validate:"omitempty,uuid"`
}

type saleRequest struct {
	BranchID       int64            `json:"branch_id" validate:"required,gt=0"`
	Items          []lineRequest    `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  string           `json:"payment_method" validate:"required,oneof=cash card transfer"`
	PaymentType    string           `json:"payment_type" validate:"omitempty,oneof=cash credit"`
	ClientID       int64            `json:"client_id" validate:"gte=0"`
	CashierID      int64            `json:"cashier_id" validate:"gte=0"`
	Discount       *discountRequest `json:"discount"`
	IdempotencyKey string           `json:"idempotency_key" validate:"max=128"`
}

type attachClientRequest struct {
	ClientID int64 `json:"client_id" validate:"required,gt=0"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := SaleInput{
		BranchID:       req.BranchID,
		PaymentMethod:  PaymentMethod(req.PaymentMethod),
		PaymentType:    PaymentType(req.PaymentType),
		ClientID:       req.ClientID,
		CashierID:      req.CashierID,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = req.IdempotencyKey
	}
	if input.PaymentType == "" {
		input.PaymentType = PaymentTypeCash
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, LineInput(line))
	}
	if d := req.Discount; d != nil {
		input.Discount = &DiscountInput{Type: discount.Type(d.Type), Amount: d.Amount}
		if d.RequestID != "" {
			input.Discount.RequestID = uuid.MustParse(d.RequestID)
		}
	}
	receipt, err := h.service.ProcessSale(r.Context(), input)
	if err != nil {
		h.fail(w, "process sale", err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, receipt)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter SaleFilter
	var err error
	if filter.BranchID, err = httpx.Int64Query(r, "branch_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.RespondError(w, shared.Invalid("invalid from date %q", raw))
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("invalid to date %q", raw))
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, shared.Invalid("invalid limit %q", raw))
			return
		}
	}
	sales, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	if sales == nil {
		sales = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (h *Handler) handleAttachClient(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req attachClientRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.AttachClient(r.Context(), id, req.ClientID)
	if err != nil {
		h.fail(w, "attach client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.Invalid("invalid sale id %q", raw)
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsDomain(err) || errors.Is(err, shared.ErrPersistence) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
