package folio

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paintstock/paintstock/internal/platform/httpx"
)

// Handler exposes folio allocation for collaborators that print documents
// outside the engine (returns, coin change).
type Handler struct {
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers folio routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{branchID}/{docType}", h.handleCurrent)
	r.Post("/{branchID}/{docType}/next", h.handleNext)
}

type folioResponse struct {
	BranchID int64   `json:"branch_id"`
	DocType  DocType `json:"doc_type"`
	Value    int64   `json:"value"`
	Display  string  `json:"display"`
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Next, http.StatusCreated)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Current, http.StatusOK)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, branchID int64, docType DocType) (int64, error), status int) {
	branchID, err := httpx.Int64Param(r, "branchID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docType := DocType(chi.URLParam(r, "docType"))
	value, err := op(r.Context(), branchID, docType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, folioResponse{BranchID: branchID, DocType: docType, Value: value, Display: Format(branchID, docType, value)})
}
