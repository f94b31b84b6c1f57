package publisher

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"proxysheet/internal/domain"
)

func setupActiveProxyTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: silentLogger()})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestDatabaseSinkReplaceAll(t *testing.T) {
	db := setupActiveProxyTestDB(t)
	sink, err := NewDatabaseSink(WithExistingDB(db))
	if err != nil {
		t.Fatalf("NewDatabaseSink: %v", err)
	}

	if err := sink.Replace(context.Background(), sampleRecords(t, "10.0.0.1", "10.0.0.2")); err != nil {
		t.Fatalf("first Replace: %v", err)
	}
	if err := sink.Replace(context.Background(), sampleRecords(t, "192.0.2.1")); err != nil {
		t.Fatalf("second Replace: %v", err)
	}

	var stored []domain.ActiveProxyRecord
	if err := db.Order("id").Find(&stored).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored rows = %d, want 1", len(stored))
	}
	got := stored[0]
	if got.Host != "192.0.2.1" || got.Port != 1080 || got.Country != "Germany" || got.Active != domain.ActiveYes {
		t.Fatalf("unexpected row: %+v", got)
	}
	if !got.LastChecked.Equal(checkedAt) {
		t.Fatalf("LastChecked = %v, want %v", got.LastChecked, checkedAt)
	}
}

func TestDatabaseSinkEmptyClearsTable(t *testing.T) {
	db := setupActiveProxyTestDB(t)
	sink, err := NewDatabaseSink(WithExistingDB(db))
	if err != nil {
		t.Fatalf("NewDatabaseSink: %v", err)
	}

	if err := sink.Replace(context.Background(), sampleRecords(t, "10.0.0.1")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := sink.Replace(context.Background(), nil); err != nil {
		t.Fatalf("Replace(nil): %v", err)
	}

	var count int64
	if err := db.Model(&domain.ActiveProxyRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestDialector(t *testing.T) {
	if _, err := Dialector("sqlite", ""); err == nil {
		t.Fatal("expected sqlite without dsn to fail")
	}
	if _, err := Dialector("mysql", "dsn"); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
	if d, err := Dialector("sqlite", "file::memory:"); err != nil || d.Name() != "sqlite" {
		t.Fatalf("sqlite dialector = %v, %v", d, err)
	}
	t.Setenv("DB_HOST", "db.internal")
	if d, err := Dialector("", ""); err != nil || d.Name() != "postgres" {
		t.Fatalf("postgres dialector = %v, %v", d, err)
	}
}

func TestBuildDSNFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "proxies")
	t.Setenv("DB_USERNAME", "svc")
	t.Setenv("DB_PASSWORD", "pw")

	want := "host=db.internal port=6543 user=svc password=pw dbname=proxies sslmode=disable"
	if got := buildDSN(); got != want {
		t.Fatalf("buildDSN() = %q, want %q", got, want)
	}
}
