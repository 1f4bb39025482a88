package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/receipt"
)

const (
	pruneSpec  = "0 0 3 * * *"
	jobTimeout = time.Minute
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Store is the part of the repository the scheduled jobs touch.
type Store interface {
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	PruneReceiptCounters(ctx context.Context, before string) (int, error)
}

type Scheduler struct {
	store         Store
	calendar      *receipt.Calendar
	logger        *zap.Logger
	lowStockSpec  string
	retentionDays int
	sched         *cron.Cron
}

func New(store Store, calendar *receipt.Calendar, log *zap.Logger, lowStockSpec string, retentionDays int) *Scheduler {
	if retentionDays < 1 {
		retentionDays = 35
	}
	return &Scheduler{
		store:         store,
		calendar:      calendar,
		logger:        logger.OrNop(log),
		lowStockSpec:  lowStockSpec,
		retentionDays: retentionDays,
	}
}

// Start registers both jobs and starts the cron loop. An empty low-stock spec
// disables the sweep.
func (s *Scheduler) Start() error {
	s.sched = cron.New(cron.WithLocation(s.calendar.Location()), cron.WithParser(cronParser))

	if s.lowStockSpec != "" {
		if _, err := s.sched.AddFunc(s.lowStockSpec, func() { s.run("low_stock_sweep", s.RunLowStockSweep) }); err != nil {
			return fmt.Errorf("schedule low stock sweep %q: %w", s.lowStockSpec, err)
		}
	}
	if _, err := s.sched.AddFunc(pruneSpec, func() { s.run("prune_receipt_counters", s.PruneCounters) }); err != nil {
		return fmt.Errorf("schedule counter pruning: %w", err)
	}

	s.sched.Start()
	s.logger.Info("scheduler started",
		zap.String("low_stock_cron", s.lowStockSpec),
		zap.Int("counter_retention_days", s.retentionDays),
	)
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.sched == nil {
		return
	}
	select {
	case <-s.sched.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("job panicked", zap.String("job", name), zap.Any("panic", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := job(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *Scheduler) RunLowStockSweep(ctx context.Context) error {
	products, err := s.store.ListLowStockProducts(ctx)
	if err != nil {
		return fmt.Errorf("list low stock products: %w", err)
	}
	for _, p := range products {
		s.logger.Warn("low stock",
			zap.String("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock),
			zap.Int("low_stock_alert", p.LowStockAlert),
		)
	}
	s.logger.Info("low stock sweep finished", zap.Int("products", len(products)))
	return nil
}

// PruneCounters drops receipt counters older than the retention window.
func (s *Scheduler) PruneCounters(ctx context.Context) error {
	before := s.calendar.DaysAgo(s.retentionDays)
	pruned, err := s.store.PruneReceiptCounters(ctx, before)
	if err != nil {
		return fmt.Errorf("prune receipt counters: %w", err)
	}
	s.logger.Info("receipt counters pruned", zap.String("before", before), zap.Int("rows", pruned))
	return nil
}
