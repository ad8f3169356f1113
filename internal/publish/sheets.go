package publish

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsWriter writes to one spreadsheet through the Sheets API using a
// service account key file.
type SheetsWriter struct {
	svc           *sheets.Service
	spreadsheetID string
}

func NewSheetsWriter(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsWriter, error) {
	return newSheetsWriter(ctx, spreadsheetID,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

func newSheetsWriter(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsWriter, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsWriter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// Replace clears the worksheet and writes values starting at A1 in a single
// update call.
func (w *SheetsWriter) Replace(ctx context.Context, sheet string, values [][]any) error {
	rng := sheetRange(sheet)

	if _, err := w.svc.Spreadsheets.Values.Clear(w.spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear sheet %s: %w", sheet, err)
	}

	body := &sheets.ValueRange{Values: values}
	if _, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, rng+"!A1", body).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("failed to update sheet %s: %w", sheet, err)
	}
	return nil
}

// sheetRange quotes a worksheet name for A1 notation.
func sheetRange(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}
