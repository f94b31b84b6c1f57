package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"proxysheet/internal/support"
)

const DefaultSettingsPath = "data/settings.json"

const (
	SchemeSOCKS5 = "socks5"
	SchemeHTTP   = "http"

	GeoKeyEgress = "egress"
	GeoKeyHost   = "host"

	ProviderIPAPI   = "ip-api"
	ProviderGeoLite = "geolite"

	SinkSheets   = "sheets"
	SinkCSV      = "csv"
	SinkDatabase = "database"
	SinkRedis    = "redis"

	CredentialPlain   = "plain"
	CredentialRedact  = "redact"
	CredentialEncrypt = "encrypt"
)

type Config struct {
	LogLevel string `json:"log_level" yaml:"log_level"`

	Input struct {
		File   string `json:"file" yaml:"file"`
		Format string `json:"format" yaml:"format"`
	} `json:"input" yaml:"input"`

	Checker struct {
		Scheme     string `json:"scheme" yaml:"scheme"`
		Target     string `json:"target" yaml:"target"`
		Timeout    uint32 `json:"timeout" yaml:"timeout"`
		Workers    uint32 `json:"workers" yaml:"workers"`
		RunTimeout uint32 `json:"run_timeout" yaml:"run_timeout"`
	} `json:"checker" yaml:"checker"`

	Geo struct {
		Key             string   `json:"key" yaml:"key"`
		Providers       []string `json:"providers" yaml:"providers"`
		Endpoint        string   `json:"endpoint" yaml:"endpoint"`
		Timeout         uint32   `json:"timeout" yaml:"timeout"`
		RatePerMinute   uint32   `json:"rate_per_minute" yaml:"rate_per_minute"`
		GeoLiteCityPath string   `json:"geolite_city_path" yaml:"geolite_city_path"`
		GeoLiteASNPath  string   `json:"geolite_asn_path" yaml:"geolite_asn_path"`
		GeoLiteAPIKey   string   `json:"geolite_api_key" yaml:"geolite_api_key"`
		// GeoLiteMaxAge is in days; 0 downloads only missing databases.
		GeoLiteMaxAge uint32 `json:"geolite_max_age" yaml:"geolite_max_age"`
	} `json:"geo" yaml:"geo"`

	Publish struct {
		Sinks            []string `json:"sinks" yaml:"sinks"`
		SkipEmpty        bool     `json:"skip_empty" yaml:"skip_empty"`
		CredentialPolicy string   `json:"credential_policy" yaml:"credential_policy"`

		Sheets struct {
			SpreadsheetID   string `json:"spreadsheet_id" yaml:"spreadsheet_id"`
			Worksheet       string `json:"worksheet" yaml:"worksheet"`
			CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
		} `json:"sheets" yaml:"sheets"`

		CSV struct {
			Path string `json:"path" yaml:"path"`
		} `json:"csv" yaml:"csv"`

		Database struct {
			Driver string `json:"driver" yaml:"driver"`
			DSN    string `json:"dsn" yaml:"dsn"`
		} `json:"database" yaml:"database"`
	} `json:"publish" yaml:"publish"`

	Redis struct {
		URL       string `json:"url" yaml:"url"`
		KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	} `json:"redis" yaml:"redis"`

	RunLock struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		TTL     uint32 `json:"ttl" yaml:"ttl"`
	} `json:"run_lock" yaml:"run_lock"`

	BlockedHosts []string `json:"blocked_hosts" yaml:"blocked_hosts"`

	// BlocklistSources are URLs of IP/CIDR lists merged into BlockedHosts at startup.
	BlocklistSources []string `json:"blocklist_sources" yaml:"blocklist_sources"`
}

//go:embed default_settings.json
var defaultConfig []byte

// Default returns the embedded default configuration.
func Default() Config {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded default settings are invalid: %v", err))
	}
	return cfg
}

// Load reads the settings file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is created
// from the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read settings file: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := writeDefaultSettings(path); err != nil {
			log.Warn("Could not write default settings file", "path", path, "error", err)
		}
	} else if err := decodeSettings(path, data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	log.Debug("Settings loaded", "path", path)
	return cfg, nil
}

func writeDefaultSettings(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	data := defaultConfig
	if isYAML(path) {
		encoded, err := yaml.Marshal(Default())
		if err != nil {
			return err
		}
		data = encoded
	}

	return os.WriteFile(path, data, 0o644)
}

func decodeSettings(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.LogLevel = support.GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Input.File = support.GetEnv("PROXY_FILE", cfg.Input.File)
	cfg.Input.Format = support.GetEnv("PROXY_FORMAT", cfg.Input.Format)

	cfg.Checker.Scheme = support.GetEnv("CHECK_SCHEME", cfg.Checker.Scheme)
	cfg.Checker.Target = support.GetEnv("CHECK_TARGET", cfg.Checker.Target)
	cfg.Checker.Workers = uint32(max(support.GetEnvInt("CHECK_WORKERS", int(cfg.Checker.Workers)), 0))

	cfg.Geo.Key = support.GetEnv("GEO_KEY", cfg.Geo.Key)
	cfg.Geo.GeoLiteAPIKey = support.GetEnv("MAXMIND_LICENSE_KEY", cfg.Geo.GeoLiteAPIKey)

	if sinks := support.GetEnv("PUBLISH_SINKS", ""); sinks != "" {
		cfg.Publish.Sinks = splitList(sinks)
	}
	cfg.Publish.CredentialPolicy = support.GetEnv("CREDENTIAL_POLICY", cfg.Publish.CredentialPolicy)
	cfg.Publish.Sheets.SpreadsheetID = support.GetEnv("SHEET_ID", cfg.Publish.Sheets.SpreadsheetID)
	cfg.Publish.Sheets.CredentialsFile = support.GetEnv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Publish.Sheets.CredentialsFile)
	cfg.Publish.CSV.Path = support.GetEnv("CSV_PATH", cfg.Publish.CSV.Path)
	cfg.Publish.Database.DSN = support.GetEnv("DATABASE_DSN", cfg.Publish.Database.DSN)

	cfg.Redis.URL = support.GetEnv("REDIS_URL", support.GetEnv("redisUrl", cfg.Redis.URL))
	cfg.RunLock.Enabled = support.GetEnvBool("RUN_LOCK", cfg.RunLock.Enabled)
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate reports every configuration problem at once.
func (cfg Config) Validate() error {
	var errs []error

	if _, err := support.ParseLineFormat(cfg.Input.Format); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Input.File) == "" {
		errs = append(errs, errors.New("input.file must be set"))
	}

	if cfg.Checker.Scheme != SchemeSOCKS5 && cfg.Checker.Scheme != SchemeHTTP {
		errs = append(errs, fmt.Errorf("checker.scheme %q must be %q or %q", cfg.Checker.Scheme, SchemeSOCKS5, SchemeHTTP))
	}
	if !isValidURL(cfg.Checker.Target) {
		errs = append(errs, fmt.Errorf("checker.target %q is not an http(s) url", cfg.Checker.Target))
	}
	if cfg.Checker.Workers == 0 {
		errs = append(errs, errors.New("checker.workers must be at least 1"))
	}

	if cfg.Geo.Key != GeoKeyEgress && cfg.Geo.Key != GeoKeyHost {
		errs = append(errs, fmt.Errorf("geo.key %q must be %q or %q", cfg.Geo.Key, GeoKeyEgress, GeoKeyHost))
	}
	for _, provider := range cfg.Geo.Providers {
		if provider != ProviderIPAPI && provider != ProviderGeoLite {
			errs = append(errs, fmt.Errorf("unknown geo provider %q", provider))
		}
	}
	if slices.Contains(cfg.Geo.Providers, ProviderIPAPI) && !isValidURL(cfg.Geo.Endpoint) {
		errs = append(errs, fmt.Errorf("geo.endpoint %q is not an http(s) url", cfg.Geo.Endpoint))
	}

	blocklist := NewHostBlocklist(cfg.BlockedHosts)
	if blocklist.Blocks(cfg.Checker.Target) {
		errs = append(errs, fmt.Errorf("checker.target %q is on the blocked host list", cfg.Checker.Target))
	}
	if slices.Contains(cfg.Geo.Providers, ProviderIPAPI) && blocklist.Blocks(cfg.Geo.Endpoint) {
		errs = append(errs, fmt.Errorf("geo.endpoint %q is on the blocked host list", cfg.Geo.Endpoint))
	}

	for _, sink := range cfg.Publish.Sinks {
		switch sink {
		case SinkSheets:
			if cfg.Publish.Sheets.SpreadsheetID == "" {
				errs = append(errs, errors.New("publish.sheets.spreadsheet_id must be set for the sheets sink"))
			}
		case SinkCSV:
			if cfg.Publish.CSV.Path == "" {
				errs = append(errs, errors.New("publish.csv.path must be set for the csv sink"))
			}
		case SinkRedis:
			if cfg.Redis.URL == "" {
				errs = append(errs, errors.New("redis.url must be set for the redis sink"))
			}
		case SinkDatabase:
			if driver := cfg.Publish.Database.Driver; driver != "postgres" && driver != "sqlite" {
				errs = append(errs, fmt.Errorf("publish.database.driver %q must be postgres or sqlite", driver))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown sink %q", sink))
		}
	}

	switch cfg.Publish.CredentialPolicy {
	case CredentialPlain, CredentialRedact, CredentialEncrypt:
	default:
		errs = append(errs, fmt.Errorf("publish.credential_policy %q must be plain, redact or encrypt", cfg.Publish.CredentialPolicy))
	}

	for _, source := range cfg.BlocklistSources {
		if !isValidURL(source) {
			errs = append(errs, fmt.Errorf("blocklist source %q is not an http(s) url", source))
		}
	}

	if cfg.RunLock.Enabled && cfg.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url must be set when run_lock is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
