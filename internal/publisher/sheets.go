package publisher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"proxysheet/internal/domain"
)

const valueInputRaw = "RAW"

type SheetsConfig struct {
	SpreadsheetID string
	Worksheet     string
	// CredentialsFile is a service account key path, or the JSON key itself.
	CredentialsFile string
}

// SheetsSink clears the worksheet and writes the header plus all rows from A1.
type SheetsSink struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
}

func NewSheetsSink(ctx context.Context, cfg SheetsConfig, extra ...option.ClientOption) (*SheetsSink, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if credentials := strings.TrimSpace(cfg.CredentialsFile); credentials != "" {
		if strings.HasPrefix(credentials, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
		} else {
			if _, err := os.Stat(credentials); err != nil {
				return nil, fmt.Errorf("sheets: credentials file: %w", err)
			}
			opts = append(opts, option.WithCredentialsFile(credentials))
		}
	}
	opts = append(opts, extra...)

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}

	worksheet := cfg.Worksheet
	if worksheet == "" {
		worksheet = "Sheet1"
	}

	return &SheetsSink{service: service, spreadsheetID: cfg.SpreadsheetID, worksheet: worksheet}, nil
}

func (s *SheetsSink) Name() string {
	return "sheets"
}

func (s *SheetsSink) Replace(ctx context.Context, records []domain.ActiveProxyRecord) error {
	sheetRange := quoteSheetName(s.worksheet)

	_, err := s.service.Spreadsheets.Values.
		Clear(s.spreadsheetID, sheetRange, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", s.worksheet, err)
	}

	_, err = s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, sheetRange+"!A1", &sheets.ValueRange{Values: sheetValues(records)}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", s.worksheet, err)
	}

	return nil
}

func sheetValues(records []domain.ActiveProxyRecord) [][]any {
	values := make([][]any, 0, len(records)+1)
	values = append(values, toCells(domain.SheetHeader))
	for _, record := range records {
		values = append(values, toCells(record.Row()))
	}
	return values
}

func toCells(row []string) []any {
	cells := make([]any, len(row))
	for i, value := range row {
		cells[i] = value
	}
	return cells
}

func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
