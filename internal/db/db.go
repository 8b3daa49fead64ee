package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"laundry-session-backend/config"
	"laundry-session-backend/internal/logging"
	"laundry-session-backend/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logging.GormLevel()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one writer keeps sqlite from returning SQLITE_BUSY inside transactions
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logging.Logger.Info("database initialization complete")
	return db, nil
}

// Migrate creates the tables if absent and applies the constraints AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	logging.Logger.Info("running database migrations")
	if err := db.AutoMigrate(
		&model.Machine{},
		&model.Session{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return applyConstraintDDL(db)
}

func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		// at most one active session per machine, whatever the request interleaving
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active_per_machine " +
			"ON sessions (machine_id) WHERE status = 'active';",

		// "most recent active session" lookups
		"CREATE INDEX IF NOT EXISTS idx_sessions_machine_id_id ON sessions (machine_id, id DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
