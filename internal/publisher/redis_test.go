package publisher

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"proxysheet/internal/domain"
	"proxysheet/internal/support"
)

func TestEncodeRecordsUsesJSONFieldNames(t *testing.T) {
	rows, err := encodeRecords(sampleRecords(t, "10.0.0.1"))
	if err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	var decoded map[string]any
	if err := json.Unmarshal(rows[0].([]byte), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["host"] != "10.0.0.1" || decoded["isp"] != "Example ISP" || decoded["last_checked"] != "2026-03-01T11:30:00Z" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if _, ok := decoded["ID"]; ok {
		t.Fatal("database id must not be published")
	}
}

func TestRedisSinkKeys(t *testing.T) {
	sink := NewRedisSink(nil, "", "run-1")
	if sink.ActiveKey() != "proxysheet:active" || sink.LastRunKey() != "proxysheet:last_run" {
		t.Fatalf("keys = %q, %q", sink.ActiveKey(), sink.LastRunKey())
	}
}

func TestRedisSinkReplaceAll(t *testing.T) {
	redisURL := os.Getenv("PROXYSHEET_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("PROXYSHEET_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := support.NewRedisClient(ctx, redisURL)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	sink := NewRedisSink(client, "proxysheet:test:"+t.Name(), "run-42")
	defer client.Del(ctx, sink.ActiveKey(), sink.LastRunKey())

	if err := sink.Replace(ctx, sampleRecords(t, "10.0.0.1", "10.0.0.2")); err != nil {
		t.Fatalf("first Replace: %v", err)
	}
	if err := sink.Replace(ctx, sampleRecords(t, "192.0.2.1")); err != nil {
		t.Fatalf("second Replace: %v", err)
	}

	rows, err := client.LRange(ctx, sink.ActiveKey(), 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	var record domain.ActiveProxyRecord
	if err := json.Unmarshal([]byte(rows[0]), &record); err != nil || record.Host != "192.0.2.1" {
		t.Fatalf("row = %q, err = %v", rows[0], err)
	}

	raw, err := client.Get(ctx, sink.LastRunKey()).Result()
	if err != nil {
		t.Fatalf("Get last_run: %v", err)
	}
	var info RunInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil || info.RunID != "run-42" || info.Count != 1 {
		t.Fatalf("last_run = %q, err = %v", raw, err)
	}
}
