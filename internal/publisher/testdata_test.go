package publisher

import (
	"testing"
	"time"

	"proxysheet/internal/domain"
)

var checkedAt = time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

func sampleRecords(t *testing.T, hosts ...string) []domain.ActiveProxyRecord {
	t.Helper()

	records := make([]domain.ActiveProxyRecord, 0, len(hosts))
	for i, host := range hosts {
		proxy, err := domain.NewProxy(host, 1080+i, "user", "pass")
		if err != nil {
			t.Fatalf("NewProxy(%q): %v", host, err)
		}
		geo := domain.GeoMetadata{Country: "Germany", City: "Berlin", ISP: "Example ISP"}
		records = append(records, domain.NewActiveProxyRecord(proxy, geo, checkedAt))
	}
	return records
}
