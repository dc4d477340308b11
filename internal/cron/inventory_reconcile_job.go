package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/gemtrade-backend/internal/ledger"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/metrics"
)

const defaultDriftReportLimit = 100

type InventoryReconcileJobParams struct {
	Logger  *logger.Logger
	Audit   ledger.AuditRepository
	Metrics *metrics.MaintenanceMetrics
	Limit   int
}

// NewInventoryReconcileJob checks stock against the movement ledger.
// Quantity drift is only reported; fixing it takes an adjustment movement.
// The availability flag is derived from quantity and is repaired in place.
func NewInventoryReconcileJob(params InventoryReconcileJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("inventory reconcile: logger is required")
	case params.Audit == nil:
		return nil, errors.New("inventory reconcile: audit repository is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultDriftReportLimit
	}
	return &inventoryReconcileJob{
		logg:    params.Logger,
		audit:   params.Audit,
		metrics: params.Metrics,
		limit:   limit,
	}, nil
}

type inventoryReconcileJob struct {
	logg    *logger.Logger
	audit   ledger.AuditRepository
	metrics *metrics.MaintenanceMetrics
	limit   int
}

func (j *inventoryReconcileJob) Name() string { return "inventory-reconcile" }

func (j *inventoryReconcileJob) Run(ctx context.Context) error {
	drift, err := j.audit.FindQuantityDrift(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("find quantity drift: %w", err)
	}
	j.metrics.SetDrift(len(drift))
	for _, d := range drift {
		j.logg.Warn(j.logg.WithFields(j.logg.WithItem(ctx, d.ItemID.String(), d.GemCode), map[string]any{
			"quantity":        d.Quantity,
			"ledger_quantity": d.LedgerQuantity,
		}), "inventory quantity disagrees with ledger")
	}

	repaired, err := j.audit.RepairAvailability(ctx)
	if err != nil {
		return fmt.Errorf("repair availability: %w", err)
	}
	j.metrics.AddRepaired(repaired)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"drifted_items":         len(drift),
		"availability_repaired": repaired,
	}), "inventory reconcile complete")
	return nil
}
