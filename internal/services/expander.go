package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"karmacash/internal/core"
	"karmacash/internal/log"
	"karmacash/internal/storage"
)

// ExpandMode selects what Expand does with a rule's instances.
type ExpandMode string

const (
	ModeGenerate ExpandMode = "generate"
	ModeDelete   ExpandMode = "delete"
)

// ErrRuleIncomplete marks a rule missing a field required for generation.
// Bulk passes skip such rules with a warning; single-rule calls surface it.
var ErrRuleIncomplete = errors.New("rule incomplete")

// ErrUnknownMode marks an ExpandMode outside generate/delete.
var ErrUnknownMode = errors.New("unknown expand mode")

// RecalculationPublisher enqueues a month for derived-figure recalculation.
// A nil publisher disables publishing.
type RecalculationPublisher interface {
	PublishRecalculation(ctx context.Context, budgetID, month, reason string) error
}

// ExpanderConfig bounds the generation horizon and write batching.
type ExpanderConfig struct {
	WindowPastMonths   int
	WindowFutureMonths int
	BatchSize          int
}

// ExpandResult reports what a single Expand call changed.
type ExpandResult struct {
	Deleted   int       `json:"deleted"`
	Generated int       `json:"generated"`
	NextDate  time.Time `json:"nextDate"`
}

// ExpandAllResult aggregates a bulk pass over a budget's active rules.
type ExpandAllResult struct {
	Rules     int `json:"rules"`
	Generated int `json:"generated"`
	Deleted   int `json:"deleted"`
	Failed    int `json:"failed"`
}

// Expander materializes recurring rules into transaction instances.
type Expander struct {
	storage   *storage.SQLiteRepository
	publisher RecalculationPublisher
	config    ExpanderConfig
	logger    *log.Logger
}

func NewExpander(repo *storage.SQLiteRepository, publisher RecalculationPublisher, config ExpanderConfig, logger *log.Logger) *Expander {
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	return &Expander{
		storage:   repo,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentExpander),
	}
}

// Expand applies mode to a single rule. Generate mode removes the rule's
// instances dated today or later and regenerates them inside the horizon
// window; delete mode removes every instance the rule back-references.
// Instances dated before today are never touched in generate mode, so the
// ledger of past months stays intact.
func (e *Expander) Expand(ctx context.Context, budgetID, ruleID string, today time.Time, mode ExpandMode) (ExpandResult, error) {
	rule, err := e.storage.GetRule(ctx, budgetID, ruleID)
	if err != nil {
		return ExpandResult{}, err
	}

	switch mode {
	case ModeDelete:
		return e.deleteInstances(ctx, rule, today)
	case ModeGenerate:
		return e.generate(ctx, rule, today)
	default:
		return ExpandResult{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (e *Expander) deleteInstances(ctx context.Context, rule *core.Rule, today time.Time) (ExpandResult, error) {
	deleted, err := e.storage.DeleteInstancesByRule(ctx, rule.BudgetID, rule.ID)
	if err != nil {
		return ExpandResult{}, fmt.Errorf("deleting instances for rule %s: %w", rule.ID, err)
	}

	e.logger.Info("deleted rule instances",
		log.FieldBudgetID, rule.BudgetID,
		log.FieldRuleID, rule.ID,
		log.FieldDeleted, deleted,
	)
	e.publish(ctx, rule.BudgetID, core.MonthKeyFor(today), "instances deleted")

	result := ExpandResult{Deleted: deleted}
	if rule.NextDate != nil {
		result.NextDate = *rule.NextDate
	}
	return result, nil
}

func (e *Expander) generate(ctx context.Context, rule *core.Rule, today time.Time) (ExpandResult, error) {
	if err := ruleComplete(rule); err != nil {
		return ExpandResult{}, err
	}

	today = core.StartOfDay(today)
	window := core.NewWindow(today, e.config.WindowPastMonths, e.config.WindowFutureMonths)

	version, err := e.storage.ClaimRuleGeneration(ctx, rule.BudgetID, rule.ID, rule.Version)
	if err != nil {
		return ExpandResult{}, err
	}

	cleared, err := e.storage.ListInstanceMonthsFrom(ctx, rule.BudgetID, rule.ID, today)
	if err != nil {
		return ExpandResult{}, fmt.Errorf("listing cleared months for rule %s: %w", rule.ID, err)
	}
	deleted, err := e.storage.DeleteInstancesFrom(ctx, rule.BudgetID, rule.ID, today)
	if err != nil {
		return ExpandResult{}, fmt.Errorf("clearing future instances for rule %s: %w", rule.ID, err)
	}

	cursor := e.seekCursor(rule, today)

	var endDay time.Time
	if rule.EndDate != nil {
		endDay = core.StartOfDay(*rule.EndDate)
	}

	writer := e.storage.NewInstanceWriter(e.config.BatchSize)
	touched := make(map[core.MonthKey]struct{})
	for cursor.Before(window.Upper) {
		if rule.EndDate != nil && cursor.After(endDay) {
			break
		}
		instance := core.Transaction{
			ID:          uuid.NewString(),
			BudgetID:    rule.BudgetID,
			CategoryID:  rule.CategoryID,
			Date:        cursor,
			Amount:      rule.InstanceAmount(),
			IsRecurring: true,
			RuleID:      rule.ID,
			Description: rule.Description,
		}
		if err := writer.Add(ctx, instance); err != nil {
			return ExpandResult{}, fmt.Errorf("writing instance for rule %s: %w", rule.ID, err)
		}
		touched[core.MonthKeyFor(cursor)] = struct{}{}
		cursor = core.NextOccurrence(cursor, rule.Frequency, rule.Interval)
	}
	if err := writer.Flush(ctx); err != nil {
		return ExpandResult{}, fmt.Errorf("flushing instances for rule %s: %w", rule.ID, err)
	}

	// The cursor lands one step past the last emission even when nothing
	// was emitted; seekCursor treats it as a fast-forward hint only.
	if err := e.storage.UpdateRuleCursor(ctx, rule.BudgetID, rule.ID, cursor, version); err != nil {
		return ExpandResult{}, err
	}

	if rule.Ended(window.Lower) {
		if err := e.storage.DeactivateRule(ctx, rule.BudgetID, rule.ID); err != nil {
			return ExpandResult{}, err
		}
		e.logger.Info("deactivated ended rule",
			log.FieldBudgetID, rule.BudgetID,
			log.FieldRuleID, rule.ID,
		)
	}

	e.logger.Info("expanded rule",
		log.FieldBudgetID, rule.BudgetID,
		log.FieldRuleID, rule.ID,
		log.FieldFrequency, string(rule.Frequency),
		log.FieldGenerated, writer.Written(),
		log.FieldDeleted, deleted,
		log.FieldNextDate, cursor.Format("2006-01-02"),
	)

	// Months cleared but not refilled (say, after an end date moved closer)
	// hold stale summaries and need a recalculation too.
	for _, month := range cleared {
		touched[month] = struct{}{}
	}
	touched[core.MonthKeyFor(today)] = struct{}{}
	for month := range touched {
		e.publish(ctx, rule.BudgetID, month, "instances regenerated")
	}

	return ExpandResult{Deleted: deleted, Generated: writer.Written(), NextDate: cursor}, nil
}

// seekCursor finds the first occurrence on or after today. The stored cursor
// only fast-forwards the scan when it falls on or before today; a cursor past
// today points into the future slice that was just cleared, so the scan
// restarts from the rule's start date.
func (e *Expander) seekCursor(rule *core.Rule, today time.Time) time.Time {
	cursor := core.StartOfDay(rule.StartDate)
	if rule.NextDate != nil {
		next := core.StartOfDay(*rule.NextDate)
		if next.After(cursor) && !next.After(today) {
			cursor = next
		}
	}
	for cursor.Before(today) {
		cursor = core.NextOccurrence(cursor, rule.Frequency, rule.Interval)
	}
	return cursor
}

// ExpandAll regenerates every active rule of a budget. Rules that fail are
// logged and skipped so one bad rule cannot stall the pass.
func (e *Expander) ExpandAll(ctx context.Context, budgetID string, today time.Time) (ExpandAllResult, error) {
	rules, err := e.storage.ListActiveRules(ctx, budgetID)
	if err != nil {
		return ExpandAllResult{}, fmt.Errorf("listing active rules for budget %s: %w", budgetID, err)
	}

	var result ExpandAllResult
	for i := range rules {
		rule := &rules[i]
		single, err := e.generate(ctx, rule, today)
		if err != nil {
			result.Failed++
			e.logger.Warn("skipping rule",
				log.FieldBudgetID, budgetID,
				log.FieldRuleID, rule.ID,
				log.FieldError, err,
			)
			continue
		}
		result.Rules++
		result.Generated += single.Generated
		result.Deleted += single.Deleted
	}
	return result, nil
}

func (e *Expander) publish(ctx context.Context, budgetID string, month core.MonthKey, reason string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishRecalculation(ctx, budgetID, month.String(), reason); err != nil {
		e.logger.Warn("failed to publish recalculation",
			log.FieldBudgetID, budgetID,
			log.FieldMonth, month.String(),
			log.FieldError, err,
		)
	}
}

func ruleComplete(rule *core.Rule) error {
	switch {
	case rule.CategoryID == "":
		return fmt.Errorf("%w: missing category", ErrRuleIncomplete)
	case rule.Amount.IsZero():
		return fmt.Errorf("%w: missing amount", ErrRuleIncomplete)
	case !core.ValidFrequency(rule.Frequency):
		return fmt.Errorf("%w: invalid frequency %q", ErrRuleIncomplete, rule.Frequency)
	case rule.StartDate.IsZero():
		return fmt.Errorf("%w: missing start date", ErrRuleIncomplete)
	}
	return nil
}
