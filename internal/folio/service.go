package folio

import (
	"context"

	"github.com/paintstock/paintstock/internal/shared"
)

// Service validates requests before they reach the Sequencer.
type Service struct {
	seq Sequencer
}

// NewService builds Service.
func NewService(seq Sequencer) *Service {
	return &Service{seq: seq}
}

// Next allocates the next folio for branch and document type.
func (s *Service) Next(ctx context.Context, branchID int64, docType DocType) (int64, error) {
	if err := validate(branchID, docType); err != nil {
		return 0, err
	}
	value, err := s.seq.Next(ctx, branchID, docType)
	if err != nil {
		return 0, shared.Persistence(err)
	}
	return value, nil
}

// Current reads the last allocated folio without consuming one.
func (s *Service) Current(ctx context.Context, branchID int64, docType DocType) (int64, error) {
	if err := validate(branchID, docType); err != nil {
		return 0, err
	}
	value, err := s.seq.Current(ctx, branchID, docType)
	if err != nil {
		return 0, shared.Persistence(err)
	}
	return value, nil
}

func validate(branchID int64, docType DocType) error {
	if branchID <= 0 {
		return shared.Invalid("folio: branch required")
	}
	if !docType.Valid() {
		return shared.Invalid("folio: unknown document type %q", docType)
	}
	return nil
}
