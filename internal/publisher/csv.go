package publisher

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"proxysheet/internal/domain"
)

// CSVSink writes the header and rows to a file, replacing it atomically.
type CSVSink struct {
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string {
	return "csv"
}

func (s *CSVSink) Replace(ctx context.Context, records []domain.ActiveProxyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".proxysheet-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	writer := csv.NewWriter(tmpFile)
	if err := writer.Write(domain.SheetHeader); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record.Row()); err != nil {
			tmpFile.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("flush: %w", err)
	}

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), s.path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}
