package publisher

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"proxysheet/internal/domain"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestCSVSinkReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "active.csv")
	sink := NewCSVSink(path)

	if err := sink.Replace(context.Background(), sampleRecords(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")); err != nil {
		t.Fatalf("first Replace: %v", err)
	}
	if err := sink.Replace(context.Background(), sampleRecords(t, "192.0.2.7")); err != nil {
		t.Fatalf("second Replace: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if !slices.Equal(rows[0], domain.SheetHeader) {
		t.Fatalf("header = %v", rows[0])
	}
	want := []string{"192.0.2.7", "1080", "user", "pass", "Germany", "Unknown", "Berlin", "Example ISP", "Unknown", "Yes", "2026-03-01T11:30:00Z"}
	if !slices.Equal(rows[1], want) {
		t.Fatalf("row = %v, want %v", rows[1], want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestCSVSinkEmptyWritesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active.csv")

	if err := NewCSVSink(path).Replace(context.Background(), nil); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if rows := readCSV(t, path); len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}
