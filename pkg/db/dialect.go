package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypePostgres     = "postgres"
	TypeMySQL        = "mysql"
	TypeSQLite       = "sqlite"
	TypeSQLiteMemory = "sqlite-memory"
)

// Dialect picks the gorm dialector for the configured database type.
// sqlite uses the cgo driver against a file; sqlite-memory uses the pure-Go
// driver so local runs work without a C toolchain.
func Dialect(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.Name,
		)), nil
	case TypePostgres:
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)), nil
	case TypeSQLite:
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			name = "upkeep.db"
		}
		return gormsqlite.Open(name), nil
	case TypeSQLiteMemory:
		return sqlite.Open("file:upkeep?mode=memory&cache=shared"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Type)
	}
}

func IsSQLite(cfg Config) bool {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeSQLite, TypeSQLiteMemory:
		return true
	default:
		return false
	}
}
