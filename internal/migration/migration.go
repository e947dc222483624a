package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/upkeep/internal/audit/domain"
	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errNoDatabase = errors.New("migration database handle is required")

// Models are the tables AutoMigrate manages on drivers without SQL
// migrations. Keep in step with migrations/*.up.sql.
func Models() []any {
	return []any{
		&clientdomain.ClientRecord{},
		&clientdomain.PaymentEntry{},
		&authdomain.Admin{},
		&auditdomain.AuditLog{},
	}
}

// Apply brings the schema up to date. Postgres runs the versioned SQL
// files; sqlite and mysql fall back to gorm AutoMigrate.
func Apply(conn *gorm.DB, dbType string, log *zap.Logger) error {
	if conn == nil {
		return errNoDatabase
	}
	if !strings.EqualFold(strings.TrimSpace(dbType), db.TypePostgres) {
		log.Info("applying schema with gorm automigrate", zap.String("db_type", dbType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, dirty, err := RunMigrations(sqlDB)
	if err != nil {
		return err
	}
	log.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// RunMigrations applies the embedded postgres migrations and reports the
// resulting schema version.
func RunMigrations(sqlDB *sql.DB) (uint, bool, error) {
	if sqlDB == nil {
		return 0, false, errNoDatabase
	}

	files, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, false, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return 0, false, fmt.Errorf("migration source: %w", err)
	}
	// The driver shares the app's pool, so the migrator is never closed.
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: "upkeep_schema_migrations"})
	if err != nil {
		return 0, false, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, false, fmt.Errorf("migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errNoDatabase
	}
	return conn.AutoMigrate(Models()...)
}
