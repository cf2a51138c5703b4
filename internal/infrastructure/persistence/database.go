package persistence

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shipfunnel/backend/internal/infrastructure/config"
	"github.com/shipfunnel/backend/internal/infrastructure/logger"
	"github.com/shipfunnel/backend/internal/infrastructure/migration"
	"github.com/shipfunnel/backend/internal/infrastructure/persistence/models"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the configured database (postgres or sqlite) and
// migrates the client record table. Postgres uses the versioned SQL
// migrations; sqlite is auto-migrated from the model.
func NewDatabase(cfg *config.DatabaseConfig, logLevel string, zapLogger *zap.Logger) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(zapLogger, logger.MapGormLogLevel(logLevel)),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite serializes writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == "postgres" {
		err = migrateVersioned(cfg.DSN(), zapLogger)
	} else {
		err = Migrate(db)
	}
	if err != nil {
		return nil, err
	}

	zapLogger.Info("Database connected", zap.String("driver", cfg.Driver))
	return &Database{DB: db}, nil
}

func migrateVersioned(databaseURL string, zapLogger *zap.Logger) error {
	m, err := migration.New(databaseURL, zapLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			zapLogger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return m.Up()
}

// Migrate creates or updates the schema from the model
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ClientRecordModel{}); err != nil {
		return fmt.Errorf("failed to migrate client records: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}
