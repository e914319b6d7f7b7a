package sheets

import (
	"context"

	"karmacash/internal/core"
)

// SummaryExporter mirrors recalculated monthly summaries to an external
// report. Export failures must never fail the recalculation itself.
type SummaryExporter interface {
	Export(ctx context.Context, summary *core.MonthlySummary) error
}
