// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/paintstock/paintstock/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stockErr *shared.InsufficientStockError
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &stockErr):
		JSON(w, http.StatusConflict, InsufficientStockProblem{
			ProblemDetail: ProblemDetail{
				Type:   "insufficient-stock",
				Title:  "Insufficient Stock",
				Status: http.StatusConflict,
				Detail: stockErr.Error(),
			},
			ProductID: stockErr.ProductID,
			BranchID:  stockErr.BranchID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.As(err, &validationErrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", validationErrs.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		ProblemType(w, http.StatusConflict, "insufficient-stock", "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrPersistence):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// InsufficientStockProblem extends the problem document with ledger coordinates.
type InsufficientStockProblem struct {
	ProblemDetail
	ProductID int64 `json:"product_id"`
	BranchID  int64 `json:"branch_id"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}
