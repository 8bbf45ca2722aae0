package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/paintstock/paintstock/internal/catalog"
	jobmetrics "github.com/paintstock/paintstock/internal/jobs"
)

const scanConcurrency = 4

// Shortage is one product whose available stock fell below its minimum.
type Shortage struct {
	BranchID  int64  `json:"branch_id"`
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Available int64  `json:"available"`
	MinStock  int64  `json:"min_stock"`
	MaxStock  int64  `json:"max_stock"`
	// Suggested is the quantity that refills the branch to its maximum.
	Suggested int64 `json:"suggested"`
}

// LowStockSource reads branch stock against reorder thresholds.
type LowStockSource interface {
	ActiveBranches(ctx context.Context) ([]int64, error)
	Shortages(ctx context.Context, branchID int64) ([]Shortage, error)
}

// LowStockScanJob reports reorder suggestions per branch.
type LowStockScanJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockScanJob{
		Source:  source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() {
		err = tracker.End(err)
	}()

	shortages, err := j.Scan(ctx, payload.BranchIDs...)
	if err != nil {
		j.Logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	for _, s := range shortages {
		j.Logger.Warn("product below minimum stock",
			slog.Int64("branch_id", s.BranchID),
			slog.Int64("product_id", s.ProductID),
			slog.String("sku", s.SKU),
			slog.Int64("available", s.Available),
			slog.Int64("min_stock", s.MinStock),
			slog.Int64("suggested", s.Suggested))
	}
	j.Logger.Info("completed low stock scan",
		slog.Int("shortages", len(shortages)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Scan checks the given branches, or every active branch when none are given,
// and returns shortages ordered by branch then product.
func (j *LowStockScanJob) Scan(ctx context.Context, branchIDs ...int64) ([]Shortage, error) {
	if len(branchIDs) == 0 {
		var err error
		if branchIDs, err = j.Source.ActiveBranches(ctx); err != nil {
			return nil, err
		}
	}
	var (
		mu  sync.Mutex
		out []Shortage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, branchID := range branchIDs {
		g.Go(func() error {
			found, err := j.Source.Shortages(gctx, branchID)
			if err != nil {
				return err
			}
			for i := range found {
				found[i].Suggested = suggest(found[i])
			}
			j.Metrics.SetLowStock(branchID, len(found))
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].BranchID != out[b].BranchID {
			return out[a].BranchID < out[b].BranchID
		}
		return out[a].ProductID < out[b].ProductID
	})
	return out, nil
}

func suggest(s Shortage) int64 {
	target := max(s.MaxStock, s.MinStock)
	if target <= s.Available {
		return 0
	}
	return target - s.Available
}

// PostgresLowStock reads thresholds from the catalog and stock from the ledger.
type PostgresLowStock struct {
	Pool *pgxpool.Pool
}

// ActiveBranches lists branches that may transact.
func (p PostgresLowStock) ActiveBranches(ctx context.Context) ([]int64, error) {
	branches, err := catalog.NewRepository(p.Pool).ListActiveBranches(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(branches))
	for _, b := range branches {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// Shortages lists products with a minimum whose available stock is below it.
// Never-stocked products count as zero.
func (p PostgresLowStock) Shortages(ctx context.Context, branchID int64) ([]Shortage, error) {
	rows, err := p.Pool.Query(ctx, `SELECT p.id, p.sku, p.name, COALESCE(e.quantity - e.reserved, 0), p.min_stock, p.max_stock
FROM products p
LEFT JOIN inventory_entries e ON e.product_id = p.id AND e.branch_id = $1
WHERE p.min_stock > 0 AND COALESCE(e.quantity - e.reserved, 0) < p.min_stock
ORDER BY p.id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Shortage
	for rows.Next() {
		s := Shortage{BranchID: branchID}
		if err := rows.Scan(&s.ProductID, &s.SKU, &s.Name, &s.Available, &s.MinStock, &s.MaxStock); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
