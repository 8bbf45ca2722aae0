package restock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/folio"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/observability"
	"github.com/paintstock/paintstock/internal/shared"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxKeyLength     = 128
)

// TxRepository exposes the operations an order transition performs inside one
// transaction, ledger rows included.
type TxRepository interface {
	inventory.TxRepository
	NextFolio(ctx context.Context, branchID int64, docType folio.DocType) (int64, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	UpdateLine(ctx context.Context, orderID uuid.UUID, line Line) error
	LookupResult(ctx context.Context, key string) ([]byte, bool, error)
	SaveResult(ctx context.Context, key string, result []byte) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	GetEntry(ctx context.Context, productID, branchID int64) (inventory.Entry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups lifecycle settings.
type Config struct {
	// ReserveOnShip earmarks source stock when an order ships so it cannot be
	// sold while in transit.
	ReserveOnShip bool
}

// Service drives movement orders through their lifecycle.
type Service struct {
	repo          RepositoryPort
	catalog       catalog.Reader
	audit         AuditPort
	logger        *slog.Logger
	metrics       *observability.Metrics
	reserveOnShip bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog catalog.Reader, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		catalog:       catalog,
		audit:         audit,
		logger:        logger,
		metrics:       metrics,
		reserveOnShip: cfg.ReserveOnShip,
	}
}

// Create opens a pending order and allocates its folio. The ledger is untouched.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if !input.Kind.Valid() {
		return Order{}, shared.Invalid("restock: unknown kind %q", input.Kind)
	}
	if input.DestBranchID <= 0 {
		return Order{}, shared.Invalid("restock: destination branch required")
	}
	if input.SourceBranchID < 0 {
		return Order{}, shared.Invalid("restock: invalid source branch")
	}
	if len(input.Items) == 0 {
		return Order{}, shared.Invalid("restock: at least one line required")
	}
	ids := make([]int64, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID <= 0 {
			return Order{}, shared.Invalid("restock: product required")
		}
		if item.Quantity <= 0 {
			return Order{}, shared.Invalid("restock: quantity for product %d must be positive", item.ProductID)
		}
		if item.UnitCost < 0 {
			return Order{}, shared.Invalid("restock: unit cost for product %d must not be negative", item.ProductID)
		}
		ids = append(ids, item.ProductID)
	}

	source := input.SourceBranchID
	if input.Kind.External() {
		if source != 0 {
			return Order{}, shared.Invalid("restock: supply orders come from a supplier, not branch %d", source)
		}
	} else if source == 0 {
		if input.Kind == KindTransfer {
			return Order{}, shared.Invalid("restock: transfers need a source branch")
		}
		warehouse, err := s.catalog.DefaultWarehouse(ctx)
		if err != nil {
			return Order{}, err
		}
		source = warehouse.ID
	}
	if source == input.DestBranchID {
		return Order{}, shared.Invalid("restock: source and destination branch must differ")
	}
	branches := []int64{input.DestBranchID}
	if source != 0 {
		branches = append(branches, source)
	}
	for _, id := range branches {
		branch, err := s.catalog.GetBranch(ctx, id)
		if err != nil {
			return Order{}, err
		}
		if !branch.Active() {
			return Order{}, shared.Invalid("restock: branch %d is inactive", id)
		}
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:             uuid.New(),
		Kind:           input.Kind,
		SourceBranchID: source,
		DestBranchID:   input.DestBranchID,
		Status:         StatusPending,
		Note:           input.Note,
		CreatedBy:      input.ActorID,
		CreatedAt:      time.Now().UTC(),
	}
	for _, item := range input.Items {
		cost := item.UnitCost
		if cost == 0 {
			cost = products[item.ProductID].CostPrice
		}
		order.Lines = append(order.Lines, Line{ProductID: item.ProductID, Quantity: item.Quantity, UnitCost: cost})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order.Folio, err = tx.NextFolio(ctx, order.FolioBranch(), order.Kind.DocType())
		if err != nil {
			return err
		}
		order, err = tx.InsertOrder(ctx, order)
		return err
	})
	if err != nil {
		s.logger.Error("create movement order", slog.String("kind", string(input.Kind)), slog.Any("error", err))
		return Order{}, shared.Persistence(err)
	}
	s.logger.Info("movement order created",
		slog.String("order_id", order.ID.String()),
		slog.String("kind", string(order.Kind)),
		slog.Int64("folio", order.Folio))
	s.record(ctx, input.ActorID, "movement_orders:create", order, map[string]any{
		"kind":   string(order.Kind),
		"folio":  order.Folio,
		"source": order.SourceBranchID,
		"dest":   order.DestBranchID,
	})
	return order, nil
}

// Advance applies one lifecycle action. Arrival confirmation commits each line
// in its own transaction and reports per-line outcomes; the order completes
// once every line is confirmed.
func (s *Service) Advance(ctx context.Context, input AdvanceInput) (AdvanceResult, error) {
	if input.OrderID == uuid.Nil {
		return AdvanceResult{}, shared.Invalid("restock: order id required")
	}
	if !input.Action.Valid() {
		return AdvanceResult{}, shared.Invalid("restock: unknown action %q", input.Action)
	}
	if len(input.IdempotencyKey) > maxKeyLength {
		return AdvanceResult{}, shared.Invalid("restock: idempotency key too long")
	}

	var (
		result AdvanceResult
		err    error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		if input.Action == ActionConfirmArrival {
			result, err = s.confirmArrival(ctx, input)
		} else {
			result, err = s.transition(ctx, input)
		}
		// A concurrent retry stored its result first; the next attempt replays it.
		if !errors.Is(err, shared.ErrIdempotencyConflict) || input.IdempotencyKey == "" {
			break
		}
	}
	s.metrics.ObserveTransition(string(input.Action), observability.Outcome(err, errors.Is(err, shared.ErrInsufficientStock)))
	if err != nil {
		if !shared.IsDomain(err) {
			s.logger.Error("advance movement order",
				slog.String("order_id", input.OrderID.String()),
				slog.String("action", string(input.Action)),
				slog.Any("error", err))
		}
		return AdvanceResult{}, shared.Persistence(err)
	}
	if result.Replayed {
		return result, nil
	}
	s.logger.Info("movement order advanced",
		slog.String("order_id", result.Order.ID.String()),
		slog.String("action", string(input.Action)),
		slog.String("status", string(result.Order.Status)))
	meta := map[string]any{"status": string(result.Order.Status)}
	if len(result.Lines) > 0 {
		meta["lines"] = result.Lines
	}
	s.record(ctx, input.ActorID, "movement_orders:"+string(input.Action), result.Order, meta)
	return result, nil
}

func (s *Service) transition(ctx context.Context, input AdvanceInput) (AdvanceResult, error) {
	var result AdvanceResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = AdvanceResult{}
		replayed, found, err := replay(ctx, tx, input)
		if err != nil || found {
			result = replayed
			return err
		}

		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		next, ok := Next(order.Status, input.Action)
		if !ok {
			return shared.Conflict("restock: cannot %s order %s in status %s", input.Action, order.ID, order.Status)
		}
		now := time.Now().UTC()
		switch input.Action {
		case ActionApprove:
			order.ApprovedAt = &now
		case ActionShip:
			order.ShippedAt = &now
			if s.reserveOnShip && !order.Kind.External() {
				if err := s.reserve(ctx, tx, &order, input.ActorID); err != nil {
					return err
				}
			}
		case ActionCancel, ActionReject:
			order.CancelledAt = &now
			if order.Status == StatusShipped {
				if order.AnyConfirmed() {
					return shared.Conflict("restock: order %s is partially received and cannot be cancelled", order.ID)
				}
				if err := s.release(ctx, tx, &order, input.ActorID); err != nil {
					return err
				}
			}
		}
		order.Status = next
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		result.Order = order
		return saveResult(ctx, tx, input.IdempotencyKey, result)
	})
	return result, err
}

func (s *Service) reserve(ctx context.Context, tx TxRepository, order *Order, actorID int64) error {
	keys := make([]inventory.Key, len(order.Lines))
	for i, l := range order.Lines {
		keys[i] = inventory.Key{ProductID: l.ProductID, BranchID: order.SourceBranchID}
	}
	if err := inventory.LockKeys(ctx, tx, keys...); err != nil {
		return err
	}
	for i, l := range order.Lines {
		if _, err := inventory.Reserve(ctx, tx, inventory.Mutation{
			ProductID: l.ProductID,
			BranchID:  order.SourceBranchID,
			Quantity:  l.Quantity,
			RefID:     order.ID.String(),
			ActorID:   actorID,
		}); err != nil {
			return err
		}
		order.Lines[i].Reserved = true
		if err := tx.UpdateLine(ctx, order.ID, order.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

// release hands reserved source stock back when a shipped order is cancelled.
func (s *Service) release(ctx context.Context, tx TxRepository, order *Order, actorID int64) error {
	var keys []inventory.Key
	for _, l := range order.Lines {
		if l.Reserved {
			keys = append(keys, inventory.Key{ProductID: l.ProductID, BranchID: order.SourceBranchID})
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := inventory.LockKeys(ctx, tx, keys...); err != nil {
		return err
	}
	for i, l := range order.Lines {
		if !l.Reserved {
			continue
		}
		if _, err := inventory.Release(ctx, tx, inventory.Mutation{
			ProductID: l.ProductID,
			BranchID:  order.SourceBranchID,
			Quantity:  l.Quantity,
			RefID:     order.ID.String(),
			ActorID:   actorID,
		}); err != nil {
			return err
		}
		order.Lines[i].Reserved = false
		if err := tx.UpdateLine(ctx, order.ID, order.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) confirmArrival(ctx context.Context, input AdvanceInput) (AdvanceResult, error) {
	if input.IdempotencyKey != "" {
		var (
			result AdvanceResult
			found  bool
		)
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			result, found, err = replay(ctx, tx, input)
			return err
		})
		if err != nil || found {
			return result, err
		}
	}

	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if _, ok := Next(order.Status, ActionConfirmArrival); !ok {
		return AdvanceResult{}, shared.Conflict("restock: cannot confirm arrival of order %s in status %s", order.ID, order.Status)
	}

	results := make([]LineResult, 0, len(order.Lines))
	for _, line := range order.Lines {
		res, err := s.confirmLine(ctx, order, line, input.ActorID)
		if err != nil {
			return AdvanceResult{}, err
		}
		results = append(results, res)
	}

	var result AdvanceResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status == StatusShipped && len(current.Pending()) == 0 {
			now := time.Now().UTC()
			current.Status = StatusCompleted
			current.CompletedAt = &now
			if err := tx.UpdateOrder(ctx, current); err != nil {
				return err
			}
		}
		result = AdvanceResult{Order: current, Lines: results}
		// Partial confirmations stay retryable under the same key.
		if current.Status != StatusCompleted {
			return nil
		}
		return saveResult(ctx, tx, input.IdempotencyKey, result)
	})
	return result, err
}

// confirmLine moves one line from source to destination atomically. Stock
// shortfalls and store failures become line outcomes; cancellation and a
// concurrent status change abort the whole confirmation.
func (s *Service) confirmLine(ctx context.Context, order Order, line Line, actorID int64) (LineResult, error) {
	res := LineResult{LineID: line.ID, ProductID: line.ProductID, Quantity: line.Quantity}
	reason := inventory.ReasonRestock
	if order.Kind == KindTransfer {
		reason = inventory.ReasonTransfer
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != StatusShipped {
			return shared.Conflict("restock: order %s is %s", order.ID, current.Status)
		}
		var l Line
		for _, candidate := range current.Lines {
			if candidate.ID == line.ID {
				l = candidate
			}
		}
		if l.ID == 0 {
			return shared.NotFound("restock: line %d of order %s", line.ID, order.ID)
		}
		external := current.Kind.External()
		locked := []int64{current.DestBranchID}
		if !external {
			locked = append(locked, current.SourceBranchID)
		}
		if err := inventory.LockEntries(ctx, tx, l.ProductID, locked...); err != nil {
			return err
		}
		if l.Confirmed() {
			var src inventory.Entry
			if !external {
				if src, err = tx.GetEntryForUpdate(ctx, l.ProductID, current.SourceBranchID); err != nil {
					return err
				}
			}
			dst, err := tx.GetEntryForUpdate(ctx, l.ProductID, current.DestBranchID)
			if err != nil {
				return err
			}
			res.Outcome, res.SourceQuantity, res.DestQuantity = OutcomeAlreadyConfirmed, src.Quantity, dst.Quantity
			return nil
		}

		out := inventory.Mutation{
			ProductID: l.ProductID,
			BranchID:  current.SourceBranchID,
			Quantity:  l.Quantity,
			Reason:    reason,
			RefID:     current.ID.String(),
			UnitCost:  l.UnitCost,
			ActorID:   actorID,
		}
		var src inventory.Entry
		switch {
		case external:
		case l.Reserved:
			src, err = inventory.ConsumeReserved(ctx, tx, out)
		default:
			out.Quantity = -l.Quantity
			src, err = inventory.ApplyDelta(ctx, tx, out)
		}
		if err != nil {
			return err
		}
		dst, err := inventory.ApplyDelta(ctx, tx, inventory.Mutation{
			ProductID: l.ProductID,
			BranchID:  current.DestBranchID,
			Quantity:  l.Quantity,
			Reason:    reason,
			RefID:     current.ID.String(),
			UnitCost:  l.UnitCost,
			ActorID:   actorID,
		})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		l.ConfirmedAt = &now
		if err := tx.UpdateLine(ctx, current.ID, l); err != nil {
			return err
		}
		res.Outcome, res.SourceQuantity, res.DestQuantity = OutcomeConfirmed, src.Quantity, dst.Quantity
		return nil
	})
	switch {
	case err == nil:
		s.metrics.ObserveMutation(string(reason), "ok")
		return res, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrNotFound):
		return LineResult{}, err
	case errors.Is(err, shared.ErrInsufficientStock):
		s.metrics.ObserveMutation(string(reason), "insufficient_stock")
		res.Outcome = OutcomeInsufficientStock
		res.Error = err.Error()
	default:
		s.metrics.ObserveMutation(string(reason), "error")
		s.logger.Error("confirm movement order line",
			slog.String("order_id", order.ID.String()),
			slog.Int64("line_id", line.ID),
			slog.Any("error", err))
		res.Outcome = OutcomeError
		res.Error = shared.UserSafeMessage(shared.Persistence(err))
	}
	s.fillQuantities(ctx, order, &res)
	return res, nil
}

func (s *Service) fillQuantities(ctx context.Context, order Order, res *LineResult) {
	if !order.Kind.External() {
		if src, err := s.repo.GetEntry(ctx, res.ProductID, order.SourceBranchID); err == nil {
			res.SourceQuantity = src.Quantity
		}
	}
	if dst, err := s.repo.GetEntry(ctx, res.ProductID, order.DestBranchID); err == nil {
		res.DestQuantity = dst.Quantity
	}
}

// Get returns one order with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	if id == uuid.Nil {
		return Order{}, shared.Invalid("restock: order id required")
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, shared.Persistence(err)
	}
	return order, nil
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.Invalid("restock: unknown kind %q", filter.Kind)
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, shared.Invalid("restock: unknown status %q", st)
		}
	}
	if filter.BranchID < 0 {
		return nil, shared.Invalid("restock: invalid branch")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	orders, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	return orders, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, order Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityOrder,
		EntityID: order.ID.String(),
		Meta:     meta,
	})
}

func replay(ctx context.Context, tx TxRepository, input AdvanceInput) (AdvanceResult, bool, error) {
	if input.IdempotencyKey == "" {
		return AdvanceResult{}, false, nil
	}
	raw, found, err := tx.LookupResult(ctx, input.IdempotencyKey)
	if err != nil || !found {
		return AdvanceResult{}, false, err
	}
	var result AdvanceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return AdvanceResult{}, false, err
	}
	if result.Order.ID != input.OrderID {
		return AdvanceResult{}, false, shared.Conflict("restock: idempotency key %q belongs to another order", input.IdempotencyKey)
	}
	result.Replayed = true
	return result, true, nil
}

func saveResult(ctx context.Context, tx TxRepository, key string, result AdvanceResult) error {
	if key == "" {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return tx.SaveResult(ctx, key, raw)
}
