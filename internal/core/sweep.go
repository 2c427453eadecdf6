package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the overdue sweep hourly.
const DefaultSweepSchedule = "@every 1h"

// OverdueGauge receives the number of overdue actions after each sweep.
type OverdueGauge interface {
	SetOverdueActions(n int)
}

// OverdueSweeper periodically reports failure modes whose mitigation is past
// its due date. It never modifies rows.
type OverdueSweeper struct {
	svc    *Service
	logger Logger
	gauge  OverdueGauge

	mu   sync.Mutex
	cron *cron.Cron
}

// NewOverdueSweeper builds a sweeper over svc. gauge may be nil.
func NewOverdueSweeper(svc *Service, logger Logger, gauge OverdueGauge) *OverdueSweeper {
	if logger == nil {
		logger = noopLogger{}
	}
	return &OverdueSweeper{svc: svc, logger: logger, gauge: gauge}
}

// RunOnce performs a single sweep against the service clock and returns the
// overdue rows.
func (w *OverdueSweeper) RunOnce(ctx context.Context) ([]FailureMode, error) {
	today := w.svc.Today()
	rows, err := w.svc.ListOverdue(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list overdue actions: %w", err)
	}
	for _, row := range rows {
		owner := ""
		if row.ActionOwner != nil {
			owner = *row.ActionOwner
		}
		w.logger.Warn("overdue action",
			"failure_mode_id", row.ID,
			"analysis_id", row.AnalysisID,
			"due_date", row.DueDate.String(),
			"action_owner", owner,
			"action_status", string(row.ActionStatus),
		)
	}
	if w.gauge != nil {
		w.gauge.SetOverdueActions(len(rows))
	}
	w.logger.Info("overdue sweep finished", "date", today.String(), "overdue", len(rows))
	return rows, nil
}

// Start schedules RunOnce with a cron schedule such as "@every 1h" or
// "0 6 * * *". An empty schedule uses DefaultSweepSchedule.
func (w *OverdueSweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return fmt.Errorf("overdue sweeper already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("overdue sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule overdue sweep %q: %w", schedule, err)
	}
	c.Start()
	w.cron = c
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to
// expire.
func (w *OverdueSweeper) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
