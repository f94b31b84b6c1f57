package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Default()
	cfg.Publish.Sheets.SpreadsheetID = "sheet-123"
	return cfg
}

func TestDefaultIsValidOnceSheetIsSet(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate returned error for defaults: %v", err)
	}
}

func TestLoadCreatesMissingSettingsFile(t *testing.T) {
	t.Setenv("SHEET_ID", "sheet-from-env")
	path := filepath.Join(t.TempDir(), "data", "settings.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Publish.Sheets.SpreadsheetID != "sheet-from-env" {
		t.Fatalf("SpreadsheetID = %q, want sheet-from-env", cfg.Publish.Sheets.SpreadsheetID)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default settings file was not written: %v", err)
	}
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	content := `{"checker": {"workers": 4, "scheme": "http"}, "publish": {"sinks": ["csv"], "csv": {"path": "out.csv"}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Checker.Workers != 4 || cfg.Checker.Scheme != SchemeHTTP {
		t.Fatalf("checker settings not applied: %+v", cfg.Checker)
	}
	if cfg.Checker.Target != Default().Checker.Target {
		t.Fatalf("Target = %q, want default to be kept", cfg.Checker.Target)
	}
	if !reflect.DeepEqual(cfg.Publish.Sinks, []string{SinkCSV}) {
		t.Fatalf("Sinks = %v, want [csv]", cfg.Publish.Sinks)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := strings.Join([]string{
		"input:",
		"  file: lists/proxies.txt",
		"  format: pipe",
		"geo:",
		"  key: host",
		"publish:",
		"  sinks: [csv]",
		"  csv:",
		"    path: out.csv",
		"blocked_hosts:",
		"  - 10.0.0.0/8",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Input.File != "lists/proxies.txt" || cfg.Input.Format != "pipe" {
		t.Fatalf("input settings not applied: %+v", cfg.Input)
	}
	if cfg.Geo.Key != GeoKeyHost {
		t.Fatalf("Geo.Key = %q, want host", cfg.Geo.Key)
	}
	if cfg.Geo.Endpoint != Default().Geo.Endpoint {
		t.Fatalf("Geo.Endpoint = %q, want default to be kept", cfg.Geo.Endpoint)
	}
	if len(cfg.BlockedHosts) != 1 {
		t.Fatalf("BlockedHosts = %v, want one entry", cfg.BlockedHosts)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	t.Setenv("PROXY_FILE", "/tmp/list.txt")
	t.Setenv("CHECK_WORKERS", "2")
	t.Setenv("PUBLISH_SINKS", "CSV, redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Input.File != "/tmp/list.txt" {
		t.Fatalf("Input.File = %q", cfg.Input.File)
	}
	if cfg.Checker.Workers != 2 {
		t.Fatalf("Workers = %d, want 2", cfg.Checker.Workers)
	}
	if !reflect.DeepEqual(cfg.Publish.Sinks, []string{SinkCSV, SinkRedis}) {
		t.Fatalf("Sinks = %v, want [csv redis]", cfg.Publish.Sinks)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"checker":`), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed settings file")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Checker.Scheme = "socks4"
	cfg.Checker.Workers = 0
	cfg.Geo.Key = "both"
	cfg.Publish.Sinks = []string{"ftp"}
	cfg.Publish.CredentialPolicy = "hide"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, fragment := range []string{"checker.scheme", "checker.workers", "geo.key", "unknown sink", "credential_policy"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("validation error %q does not mention %q", err, fragment)
		}
	}
}

func TestValidateRejectsBlockedTarget(t *testing.T) {
	cfg := validConfig()
	cfg.BlockedHosts = []string{"httpbin.org"}

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "checker.target") {
		t.Fatalf("Validate error = %v, want blocked target error", err)
	}
}

func TestValidateRequiresSinkSettings(t *testing.T) {
	cfg := Default()
	cfg.Publish.Sinks = []string{SinkSheets, SinkRedis}
	cfg.Redis.URL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "spreadsheet_id") || !strings.Contains(err.Error(), "redis.url") {
		t.Fatalf("validation error %q should mention spreadsheet_id and redis.url", err)
	}
}

func TestValidateBlocklistSources(t *testing.T) {
	cfg := Default()
	cfg.Publish.Sheets.SpreadsheetID = "sheet"
	cfg.BlocklistSources = []string{"https://lists.example.org/firehol_level1.netset", "ftp://nope"}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "ftp://nope") {
		t.Fatalf("Validate() = %v, want error naming the ftp source", err)
	}
}
