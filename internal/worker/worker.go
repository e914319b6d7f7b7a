package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"karmacash/internal/amqp"
	"karmacash/internal/core"
	"karmacash/internal/log"
	"karmacash/internal/services"
	"karmacash/internal/sheets"
	"karmacash/internal/storage"
)

// Consumer delivers recalculation messages until the context is cancelled.
type Consumer interface {
	ConsumeRecalculations(ctx context.Context, handler func(*amqp.RecalculationMessage) error) error
}

// Worker drives the background side of the service: it consumes
// recalculation messages and periodically re-expands every budget's active
// rules so the generation window keeps sliding forward.
type Worker struct {
	storage        *storage.SQLiteRepository
	recalculator   *services.Recalculator
	expander       *services.Expander
	consumer       Consumer
	exporter       sheets.SummaryExporter
	expandInterval time.Duration
	logger         *log.Logger
}

func New(repo *storage.SQLiteRepository, recalculator *services.Recalculator, expander *services.Expander, consumer Consumer, exporter sheets.SummaryExporter, expandInterval time.Duration, logger *log.Logger) *Worker {
	return &Worker{
		storage:        repo,
		recalculator:   recalculator,
		expander:       expander,
		consumer:       consumer,
		exporter:       exporter,
		expandInterval: expandInterval,
		logger:         logger.WithComponent(log.ComponentWorker),
	}
}

// Run blocks until ctx is cancelled or a loop fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.ConsumeRecalculations(ctx, func(msg *amqp.RecalculationMessage) error {
				return w.HandleRecalculation(ctx, msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		return w.expansionLoop(ctx)
	})

	return g.Wait()
}

// HandleRecalculation recomputes the month named by the message and mirrors
// the result to the exporter. A message with a malformed month key is
// dropped rather than requeued: it will never become valid.
func (w *Worker) HandleRecalculation(ctx context.Context, msg *amqp.RecalculationMessage) error {
	summary, err := w.recalculator.Recalculate(ctx, msg.BudgetID, msg.Month)
	if err != nil {
		if errors.Is(err, core.ErrInvalidMonthKey) {
			w.logger.Warn("dropping message with invalid month",
				log.FieldBudgetID, msg.BudgetID,
				log.FieldMonth, msg.Month,
			)
			return nil
		}
		return fmt.Errorf("recalculate %s %s: %w", msg.BudgetID, msg.Month, err)
	}

	if w.exporter != nil {
		if err := w.exporter.Export(ctx, summary); err != nil {
			w.logger.Warn("summary export failed",
				log.FieldBudgetID, msg.BudgetID,
				log.FieldMonth, msg.Month,
				log.FieldError, err,
			)
		}
	}
	return nil
}

func (w *Worker) expansionLoop(ctx context.Context) error {
	// First pass right away so a restarted worker catches up immediately.
	w.ExpandAllBudgets(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.expandInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			w.ExpandAllBudgets(ctx, now.UTC())
		}
	}
}

// ExpandAllBudgets re-expands every budget that still has active rules.
// Failures are logged per budget; the pass always visits all of them.
func (w *Worker) ExpandAllBudgets(ctx context.Context, today time.Time) {
	budgets, err := w.storage.ListBudgetsWithActiveRules(ctx)
	if err != nil {
		w.logger.Error("listing budgets for expansion", log.FieldError, err)
		return
	}

	for _, budgetID := range budgets {
		result, err := w.expander.ExpandAll(ctx, budgetID, today)
		if err != nil {
			w.logger.Error("budget expansion failed",
				log.FieldBudgetID, budgetID,
				log.FieldError, err,
			)
			continue
		}
		w.logger.Info("budget expanded",
			log.FieldBudgetID, budgetID,
			"rules", result.Rules,
			log.FieldGenerated, result.Generated,
			log.FieldDeleted, result.Deleted,
			"failed", result.Failed,
		)
	}
}
