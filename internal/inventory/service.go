package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/observability"
	"github.com/paintstock/paintstock/internal/shared"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, productID, branchID int64) (Entry, error)
	ListBranch(ctx context.Context, branchID int64) ([]Entry, error)
	History(ctx context.Context, filter HistoryFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates standalone ledger operations.
type Service struct {
	repo    RepositoryPort
	catalog catalog.Reader
	audit   AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog catalog.Reader, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, logger: logger, metrics: metrics}
}

// GetQuantity returns the on-hand quantity. A never-stocked pair reads as zero.
func (s *Service) GetQuantity(ctx context.Context, productID, branchID int64) (int64, error) {
	entry, err := s.GetEntry(ctx, productID, branchID)
	if err != nil {
		return 0, err
	}
	return entry.Quantity, nil
}

// GetEntry returns quantity and reservation for one pair.
func (s *Service) GetEntry(ctx context.Context, productID, branchID int64) (Entry, error) {
	if productID <= 0 || branchID <= 0 {
		return Entry{}, shared.Invalid("inventory: product and branch required")
	}
	entry, err := s.repo.GetEntry(ctx, productID, branchID)
	if err != nil {
		return Entry{}, shared.Persistence(err)
	}
	return entry, nil
}

// ListBranch lists the stock held at a branch.
func (s *Service) ListBranch(ctx context.Context, branchID int64) ([]Entry, error) {
	if branchID <= 0 {
		return nil, shared.Invalid("inventory: branch required")
	}
	if _, err := s.catalog.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListBranch(ctx, branchID)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	return entries, nil
}

// Adjust applies a signed delta. The result may never drop below zero or below
// the reserved quantity.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Entry, error) {
	if input.Delta == 0 {
		return Entry{}, shared.Invalid("inventory: delta must be non zero")
	}
	reason := input.Reason
	if reason == "" {
		reason = ReasonManual
	}
	if !reason.Valid() || reason == ReasonReserve || reason == ReasonRelease {
		return Entry{}, shared.Invalid("inventory: reason %q not allowed for adjustments", input.Reason)
	}
	if err := s.checkPair(ctx, input.ProductID, input.BranchID); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = ApplyDelta(ctx, tx, Mutation{
			ProductID: input.ProductID,
			BranchID:  input.BranchID,
			Quantity:  input.Delta,
			Reason:    reason,
			RefID:     input.RefID,
			Note:      input.Note,
			ActorID:   input.ActorID,
		})
		return err
	})
	if err = s.finish(reason, err); err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "inventory:adjust", entry, map[string]any{
		"delta":  input.Delta,
		"reason": string(reason),
		"ref_id": input.RefID,
	})
	return entry, nil
}

// SetQuantity overwrites the on-hand quantity after a physical count.
func (s *Service) SetQuantity(ctx context.Context, input SetInput) (Entry, error) {
	if input.Quantity < 0 {
		return Entry{}, shared.Invalid("inventory: quantity must be zero or positive")
	}
	if err := s.checkPair(ctx, input.ProductID, input.BranchID); err != nil {
		return Entry{}, err
	}
	var (
		entry    Entry
		previous int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, input.ProductID, input.BranchID)
		if err != nil {
			return err
		}
		previous = current.Quantity
		if input.Quantity < current.Reserved {
			return shared.Conflict("inventory: %d units of product %d are reserved for shipment", current.Reserved, input.ProductID)
		}
		delta := input.Quantity - current.Quantity
		if delta == 0 {
			entry = current
			return nil
		}
		entry, err = ApplyDelta(ctx, tx, Mutation{
			ProductID: input.ProductID,
			BranchID:  input.BranchID,
			Quantity:  delta,
			Reason:    ReasonStockTake,
			Note:      input.Note,
			ActorID:   input.ActorID,
		})
		return err
	})
	if err = s.finish(ReasonStockTake, err); err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.ActorID, "inventory:stock_take", entry, map[string]any{
		"previous": previous,
		"counted":  input.Quantity,
	})
	return entry, nil
}

// Transfer moves stock between two branches in one transaction.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Entry, Entry, error) {
	if input.Quantity <= 0 {
		return Entry{}, Entry{}, shared.Invalid("inventory: transfer quantity must be positive")
	}
	if input.FromBranchID == input.ToBranchID {
		return Entry{}, Entry{}, shared.Invalid("inventory: source and destination branch must differ")
	}
	if err := s.checkPair(ctx, input.ProductID, input.FromBranchID); err != nil {
		return Entry{}, Entry{}, err
	}
	if _, err := s.catalog.GetBranch(ctx, input.ToBranchID); err != nil {
		return Entry{}, Entry{}, err
	}
	var from, to Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := LockEntries(ctx, tx, input.ProductID, input.FromBranchID, input.ToBranchID); err != nil {
			return err
		}
		var err error
		from, err = ApplyDelta(ctx, tx, Mutation{
			ProductID: input.ProductID,
			BranchID:  input.FromBranchID,
			Quantity:  -input.Quantity,
			Reason:    ReasonTransfer,
			RefID:     input.RefID,
			Note:      fmt.Sprintf("to branch %d %s", input.ToBranchID, input.Note),
			ActorID:   input.ActorID,
		})
		if err != nil {
			return err
		}
		to, err = ApplyDelta(ctx, tx, Mutation{
			ProductID: input.ProductID,
			BranchID:  input.ToBranchID,
			Quantity:  input.Quantity,
			Reason:    ReasonTransfer,
			RefID:     input.RefID,
			Note:      fmt.Sprintf("from branch %d %s", input.FromBranchID, input.Note),
			ActorID:   input.ActorID,
		})
		return err
	})
	if err = s.finish(ReasonTransfer, err); err != nil {
		return Entry{}, Entry{}, err
	}
	s.record(ctx, input.ActorID, "inventory:transfer", from, map[string]any{
		"to_branch_id": input.ToBranchID,
		"quantity":     input.Quantity,
		"ref_id":       input.RefID,
	})
	return from, to, nil
}

// RecordConsumption decrements stock used internally by the branch and keeps
// the product cost at the time of use.
func (s *Service) RecordConsumption(ctx context.Context, input ConsumptionInput) (Entry, error) {
	if input.Quantity <= 0 {
		return Entry{}, shared.Invalid("inventory: consumption quantity must be positive")
	}
	if input.UserID <= 0 {
		return Entry{}, shared.Invalid("inventory: user required")
	}
	if input.BranchID <= 0 {
		return Entry{}, shared.Invalid("inventory: branch required")
	}
	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.catalog.GetBranch(ctx, input.BranchID); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = ApplyDelta(ctx, tx, Mutation{
			ProductID: input.ProductID,
			BranchID:  input.BranchID,
			Quantity:  -input.Quantity,
			Reason:    ReasonConsumption,
			Note:      input.Reason,
			UnitCost:  product.CostPrice,
			ActorID:   input.UserID,
		})
		return err
	})
	if err = s.finish(ReasonConsumption, err); err != nil {
		return Entry{}, err
	}
	s.record(ctx, input.UserID, "inventory:consumption", entry, map[string]any{
		"quantity":   input.Quantity,
		"unit_cost":  product.CostPrice,
		"total_cost": product.CostPrice * float64(input.Quantity),
		"reason":     input.Reason,
	})
	return entry, nil
}

// History lists ledger movements.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Movement, error) {
	if filter.BranchID == 0 && filter.ProductID == 0 {
		return nil, shared.Invalid("inventory: branch or product filter required")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Invalid("inventory: invalid date range")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	movements, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	return movements, nil
}

func (s *Service) checkPair(ctx context.Context, productID, branchID int64) error {
	if productID <= 0 || branchID <= 0 {
		return shared.Invalid("inventory: product and branch required")
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return err
	}
	if _, err := s.catalog.GetBranch(ctx, branchID); err != nil {
		return err
	}
	return nil
}

func (s *Service) finish(reason Reason, err error) error {
	s.metrics.ObserveMutation(string(reason), observability.Outcome(err, errors.Is(err, shared.ErrInsufficientStock)))
	if err == nil {
		return nil
	}
	if !shared.IsDomain(err) {
		s.logger.Error("inventory mutation failed", slog.String("reason", string(reason)), slog.Any("error", err))
	}
	return shared.Persistence(err)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entry Entry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	meta["product_id"] = entry.ProductID
	meta["branch_id"] = entry.BranchID
	meta["quantity"] = entry.Quantity
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityInventory,
		EntityID: fmt.Sprintf("%d:%d", entry.ProductID, entry.BranchID),
		Meta:     meta,
	})
}
