package database

import (
	"fmt"

	"github.com/gridstonehq/gridstone/backend/internal/access"
	"github.com/gridstonehq/gridstone/backend/internal/records"
	"github.com/gridstonehq/gridstone/backend/internal/schema"
	"github.com/gridstonehq/gridstone/backend/internal/users"
	"github.com/gridstonehq/gridstone/backend/internal/views"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Migrate creates or updates the full schema on an open connection.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.User{},
		&schema.Base{},
		&schema.Table{},
		&schema.Field{},
		&records.Record{},
		&records.RecordValue{},
		&records.RecordLink{},
		&views.View{},
		&access.TablePermission{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
