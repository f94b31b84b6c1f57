package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proxysheet/internal/domain"
	"proxysheet/internal/support"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	activeProxyInsertBatchSize = 500
)

type DatabaseConfig struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
}

type DatabaseOption func(*DatabaseConfig)

func WithExistingDB(db *gorm.DB) DatabaseOption {
	return func(cfg *DatabaseConfig) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) DatabaseOption {
	return func(cfg *DatabaseConfig) {
		cfg.Dialector = d
	}
}

func WithLogger(l logger.Interface) DatabaseOption {
	return func(cfg *DatabaseConfig) {
		cfg.Logger = l
	}
}

func WithAutoMigrate(enabled bool) DatabaseOption {
	return func(cfg *DatabaseConfig) {
		cfg.AutoMigrate = enabled
	}
}

// DatabaseSink keeps the active_proxies table equal to the latest run.
type DatabaseSink struct {
	db *gorm.DB
}

// NewDatabaseSink opens the connection and migrates the active_proxies table.
func NewDatabaseSink(opts ...DatabaseOption) (*DatabaseSink, error) {
	cfg := DatabaseConfig{
		Logger:      silentLogger(),
		AutoMigrate: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var db *gorm.DB
	switch {
	case cfg.ExistingDB != nil:
		db = cfg.ExistingDB
	case cfg.Dialector != nil:
		opened, err := gorm.Open(cfg.Dialector, &gorm.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		db = opened
		configureConnectionPool(db)
	default:
		return nil, fmt.Errorf("database: no dialector or existing connection provided")
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&domain.ActiveProxyRecord{}); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
	}

	return &DatabaseSink{db: db}, nil
}

// Dialector picks the gorm driver. An empty postgres DSN is built from DB_* variables.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "":
		if dsn == "" {
			dsn = buildDSN()
		}
		return postgres.Open(dsn), nil
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("database: sqlite requires a dsn")
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
}

func (s *DatabaseSink) Name() string {
	return "database"
}

func (s *DatabaseSink) Replace(ctx context.Context, records []domain.ActiveProxyRecord) error {
	rows := make([]domain.ActiveProxyRecord, len(records))
	copy(rows, records)
	for i := range rows {
		rows[i].ID = 0
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.ActiveProxyRecord{}).Error; err != nil {
			return fmt.Errorf("clear active proxies: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, activeProxyInsertBatchSize).Error; err != nil {
			return fmt.Errorf("insert active proxies: %w", err)
		}
		return nil
	})
}

func (s *DatabaseSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func buildDSN() string {
	dbHost := support.GetEnv("DB_HOST", "localhost")
	dbPort := support.GetEnv("DB_PORT", "5432")
	dbName := support.GetEnv("DB_NAME", "proxysheet")
	dbUser := support.GetEnv("DB_USERNAME", "admin")
	dbPassword := support.GetEnv("DB_PASSWORD", "admin")

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost,
		dbPort,
		dbUser,
		dbPassword,
		dbName,
	)
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func configureConnectionPool(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 4)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	connLifetimeSeconds := support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300)

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(connLifetimeSeconds) * time.Second)
	}
}
