package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"karmacash/internal/core"
	ports "karmacash/internal/sheets"
)

// Exporter writes monthly summaries to a Google spreadsheet, one row per
// (budget, month). Rows are keyed by columns A and B; an existing row is
// updated in place, otherwise a new one is appended.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.SummaryExporter = (*Exporter)(nil)

// New creates an exporter using service account credentials from the
// environment: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetName string) (*Exporter, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if sheetName == "" {
		sheetName = "Summaries"
	}

	credentials, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func loadCredentials() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	credentials, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return credentials, nil
}

// Export upserts the summary row for the month.
func (e *Exporter) Export(ctx context.Context, summary *core.MonthlySummary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	row, err := e.findRow(ctx, summary.BudgetID, summary.Month.String())
	if err != nil {
		return err
	}

	values := &gsheet.ValueRange{Values: [][]any{{
		summary.BudgetID,
		summary.Month.String(),
		summary.Derived.Revenue.String(),
		summary.Derived.RecurringExpenses.String(),
		summary.Derived.Rollover.String(),
		summary.Derived.AvailableToAllocate.String(),
		summary.Derived.TotalAllocated.String(),
		summary.Derived.RemainingToAllocate.String(),
		summary.Derived.TotalSpent.String(),
		summary.Derived.NetSavings.String(),
	}}}

	target := fmt.Sprintf("%s!A%d:J%d", e.sheetName, row, row)
	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, target, values).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d in sheet %s: %w", row, e.sheetName, err)
	}
	return nil
}

// findRow returns the 1-based row of the (budget, month) key, or the first
// empty row when the key is absent.
func (e *Exporter) findRow(ctx context.Context, budgetID, month string) (int, error) {
	rng := fmt.Sprintf("%s!A:B", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read keys from sheet %s: %w", e.sheetName, err)
	}

	for i, row := range resp.Values {
		if len(row) >= 2 && fmt.Sprint(row[0]) == budgetID && fmt.Sprint(row[1]) == month {
			return i + 1, nil
		}
	}
	return len(resp.Values) + 1, nil
}
