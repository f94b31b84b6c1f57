package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"proxysheet/internal/domain"
)

const DefaultRedisKeyPrefix = "proxysheet"

// RunInfo is stored under <prefix>:last_run next to the active list.
type RunInfo struct {
	RunID       string    `json:"run_id"`
	PublishedAt time.Time `json:"published_at"`
	Count       int       `json:"count"`
}

// RedisSink keeps <prefix>:active as a list of JSON encoded records.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
	runID  string
	clock  func() time.Time
}

func NewRedisSink(client redis.UniversalClient, prefix, runID string) *RedisSink {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisSink{client: client, prefix: prefix, runID: runID, clock: time.Now}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) ActiveKey() string {
	return s.prefix + ":active"
}

func (s *RedisSink) LastRunKey() string {
	return s.prefix + ":last_run"
}

func (s *RedisSink) Replace(ctx context.Context, records []domain.ActiveProxyRecord) error {
	rows, err := encodeRecords(records)
	if err != nil {
		return err
	}

	info, err := json.Marshal(RunInfo{
		RunID:       s.runID,
		PublishedAt: s.clock().UTC(),
		Count:       len(records),
	})
	if err != nil {
		return fmt.Errorf("encode run info: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.ActiveKey())
		if len(rows) > 0 {
			pipe.RPush(ctx, s.ActiveKey(), rows...)
		}
		pipe.Set(ctx, s.LastRunKey(), info, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis transaction: %w", err)
	}

	return nil
}

func encodeRecords(records []domain.ActiveProxyRecord) ([]any, error) {
	rows := make([]any, 0, len(records))
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("encode %s:%d: %w", record.Host, record.Port, err)
		}
		rows = append(rows, payload)
	}
	return rows, nil
}
