package sales

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/observability"
	"github.com/paintstock/paintstock/internal/shared"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	maxIdemAttempts  = 2
)

// TxRepository exposes the operations a checkout performs inside one transaction.
type TxRepository interface {
	inventory.TxRepository
	FindByIdempotencyKey(ctx context.Context, key string) (Sale, bool, error)
	NextFolio(ctx context.Context, branchID int64) (int64, error)
	ConsumeDiscount(ctx context.Context, id uuid.UUID, branchID int64, saleID uuid.UUID) (discount.Request, error)
	InsertSale(ctx context.Context, sale Sale) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error)
	AttachClient(ctx context.Context, saleID uuid.UUID, clientID int64) (Sale, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups sale settings.
type Config struct {
	TaxRate float64
}

// Service processes checkouts.
type Service struct {
	repo    RepositoryPort
	catalog catalog.Reader
	audit   AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	taxRate float64
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog catalog.Reader, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, logger: logger, metrics: metrics, taxRate: cfg.TaxRate}
}

// ProcessSale validates the cart, decrements stock and records the sale in one
// transaction. Either every line is decremented and the sale exists, or nothing
// changed.
func (s *Service) ProcessSale(ctx context.Context, input SaleInput) (Receipt, error) {
	lines, err := s.validate(input)
	if err != nil {
		return Receipt{}, err
	}
	input.Items = lines

	branch, err := s.catalog.GetBranch(ctx, input.BranchID)
	if err != nil {
		return Receipt{}, err
	}
	if !branch.Active() {
		return Receipt{}, shared.Invalid("sales: branch %d is inactive", branch.ID)
	}
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return Receipt{}, err
	}
	items, wholesale := PriceLines(lines, products)

	var receipt Receipt
	for attempt := 1; attempt <= maxIdemAttempts; attempt++ {
		receipt, err = s.checkout(ctx, input, items, wholesale)
		// A concurrent request with the same key committed first; the next
		// attempt replays it.
		if errors.Is(err, shared.ErrIdempotencyConflict) && input.IdempotencyKey != "" {
			continue
		}
		break
	}
	if err != nil {
		s.metrics.ObserveSale(observability.Outcome(err, errors.Is(err, shared.ErrInsufficientStock)))
		if !shared.IsDomain(err) {
			s.logger.Error("process sale", slog.Int64("branch_id", input.BranchID), slog.Any("error", err))
		}
		return Receipt{}, shared.Persistence(err)
	}

	if receipt.Replayed {
		s.metrics.ObserveSale("replayed")
	} else {
		s.metrics.ObserveSale("ok")
		s.logger.Info("sale processed",
			slog.String("sale_id", receipt.SaleID.String()),
			slog.Int64("branch_id", input.BranchID),
			slog.Int64("folio", receipt.Folio),
			slog.Float64("total", receipt.Total))
		s.record(ctx, input.CashierID, "sales:create", receipt.SaleID, map[string]any{
			"branch_id": input.BranchID,
			"folio":     receipt.Folio,
			"total":     receipt.Total,
		})
	}

	if input.ClientID > 0 {
		if _, err := s.AttachClient(ctx, receipt.SaleID, input.ClientID); err != nil {
			s.logger.Warn("attach client to sale",
				slog.String("sale_id", receipt.SaleID.String()),
				slog.Int64("client_id", input.ClientID),
				slog.Any("error", err))
			receipt.ClientAttachError = shared.UserSafeMessage(err)
		}
	}
	return receipt, nil
}

// sameCart reports whether both carts hold the same quantity of each product.
func sameCart(a, b []Item) bool {
	counts := make(map[int64]int64, len(a))
	for _, it := range a {
		counts[it.ProductID] += it.Quantity
	}
	for _, it := range b {
		counts[it.ProductID] -= it.Quantity
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func (s *Service) checkout(ctx context.Context, input SaleInput, items []Item, wholesale bool) (Receipt, error) {
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt = Receipt{}
		if input.IdempotencyKey != "" {
			prior, found, err := tx.FindByIdempotencyKey(ctx, input.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if prior.BranchID != input.BranchID || !sameCart(prior.Items, items) {
					return shared.Conflict("sales: idempotency key %q was used for a different sale", input.IdempotencyKey)
				}
				quantities := make(map[int64]int64, len(prior.Items))
				for _, it := range prior.Items {
					entry, err := tx.GetEntryForUpdate(ctx, it.ProductID, prior.BranchID)
					if err != nil {
						return err
					}
					quantities[it.ProductID] = entry.Quantity
				}
				receipt = receiptFor(prior, quantities)
				receipt.Replayed = true
				return nil
			}
		}

		sale := Sale{
			ID:             uuid.New(),
			BranchID:       input.BranchID,
			CashierID:      input.CashierID,
			Items:          items,
			PaymentMethod:  input.PaymentMethod,
			PaymentType:    input.PaymentType,
			IsWholesale:    wholesale,
			IdempotencyKey: input.IdempotencyKey,
			CreatedAt:      time.Now().UTC(),
		}

		var (
			discountType   discount.Type
			discountAmount float64
		)
		if d := input.Discount; d != nil {
			discountType, discountAmount = d.Type, d.Amount
			if d.RequestID != uuid.Nil {
				req, err := tx.ConsumeDiscount(ctx, d.RequestID, input.BranchID, sale.ID)
				if err != nil {
					return err
				}
				discountType, discountAmount = req.Type, req.Amount
				sale.DiscountRequestID = &req.ID
			}
		}
		totals := ComputeTotals(items, discountType, discountAmount, s.taxRate)
		sale.Subtotal = totals.Subtotal
		sale.DiscountAmount = totals.Discount
		sale.TaxAmount = totals.Tax
		sale.Total = totals.Total

		keys := make([]inventory.Key, len(items))
		for i, it := range items {
			keys[i] = inventory.Key{ProductID: it.ProductID, BranchID: input.BranchID}
		}
		if err := inventory.LockKeys(ctx, tx, keys...); err != nil {
			return err
		}
		quantities := make(map[int64]int64, len(items))
		for _, it := range items {
			entry, err := inventory.ApplyDelta(ctx, tx, inventory.Mutation{
				ProductID: it.ProductID,
				BranchID:  input.BranchID,
				Quantity:  -it.Quantity,
				Reason:    inventory.ReasonSale,
				RefID:     sale.ID.String(),
				ActorID:   input.CashierID,
			})
			if err != nil {
				return err
			}
			quantities[it.ProductID] = entry.Quantity
		}

		folio, err := tx.NextFolio(ctx, input.BranchID)
		if err != nil {
			return err
		}
		sale.Folio = folio
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		receipt = receiptFor(sale, quantities)
		return nil
	})
	return receipt, err
}

func (s *Service) validate(input SaleInput) ([]LineInput, error) {
	if input.BranchID <= 0 {
		return nil, shared.Invalid("sales: branch required")
	}
	if len(input.Items) == 0 {
		return nil, shared.Invalid("sales: cart is empty")
	}
	for _, line := range input.Items {
		if line.ProductID <= 0 {
			return nil, shared.Invalid("sales: product required")
		}
		if line.Quantity <= 0 {
			return nil, shared.Invalid("sales: quantity for product %d must be positive", line.ProductID)
		}
	}
	if !input.PaymentMethod.Valid() {
		return nil, shared.Invalid("sales: unknown payment method %q", input.PaymentMethod)
	}
	if !input.PaymentType.Valid() {
		return nil, shared.Invalid("sales: unknown payment type %q", input.PaymentType)
	}
	if input.ClientID < 0 {
		return nil, shared.Invalid("sales: invalid client")
	}
	if d := input.Discount; d != nil && d.RequestID == uuid.Nil {
		if err := discount.ValidateAmount(d.Type, d.Amount); err != nil {
			return nil, err
		}
	}
	if len(input.IdempotencyKey) > 128 {
		return nil, shared.Invalid("sales: idempotency key too long")
	}
	return mergeLines(input.Items), nil
}

// GetSale returns one sale with its items.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	if id == uuid.Nil {
		return Sale{}, shared.Invalid("sales: sale id required")
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return Sale{}, shared.Persistence(err)
	}
	return sale, nil
}

// ListSales lists sales newest first. A zero BranchID lists every branch.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
	if filter.BranchID < 0 {
		return nil, shared.Invalid("sales: invalid branch")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Invalid("sales: invalid date range")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	return sales, nil
}

// AttachClient links a client to a committed sale. Attaching the same client
// again succeeds; a different client is a conflict.
func (s *Service) AttachClient(ctx context.Context, saleID uuid.UUID, clientID int64) (Sale, error) {
	if saleID == uuid.Nil {
		return Sale{}, shared.Invalid("sales: sale id required")
	}
	if clientID <= 0 {
		return Sale{}, shared.Invalid("sales: client required")
	}
	sale, err := s.repo.AttachClient(ctx, saleID, clientID)
	if err != nil {
		return Sale{}, shared.Persistence(err)
	}
	s.record(ctx, 0, "sales:attach_client", saleID, map[string]any{"client_id": clientID})
	return sale, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, saleID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntitySale,
		EntityID: saleID.String(),
		Meta:     meta,
	})
}
