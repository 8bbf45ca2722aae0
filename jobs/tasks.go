package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskLowStockScan compares branch stock with product reorder thresholds.
	TaskLowStockScan = "inventory:low_stock_scan"
)

// IdempotencyCleanupPayload overrides the configured retention when set.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than,omitempty"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// LowStockScanPayload limits the scan to some branches. Empty scans every
// active branch.
type LowStockScanPayload struct {
	BranchIDs []int64 `json:"branch_ids,omitempty"`
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask(branchIDs ...int64) (*asynq.Task, error) {
	data, err := json.Marshal(LowStockScanPayload{BranchIDs: branchIDs})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
