package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const applicationName = "transcription-api"

// RequiredTables must exist before the service can take traffic.
var RequiredTables = []string{"media_files", "jobs"}

// Config controls GORM/PostgreSQL connectivity.
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormlogger.LogLevel
	SlowThreshold   time.Duration
}

// Connect creates the target database when missing, opens the pool and
// verifies it answers before returning.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}
	dsn := withApplicationName(cfg.DSN)

	if err := ensureDatabaseExists(ctx, dsn, log); err != nil {
		return nil, fmt.Errorf("ensure database: %w", err)
	}

	if cfg.LogLevel == 0 {
		cfg.LogLevel = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: NewGormLogger(log, cfg.LogLevel, cfg.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieve sql db: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Health pings the pool and checks the media and job tables are migrated.
func Health(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	migrator := db.WithContext(ctx).Migrator()
	for _, table := range RequiredTables {
		if !migrator.HasTable(table) {
			return fmt.Errorf("schema not migrated: table %s is missing", table)
		}
	}
	return nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDatabaseExists(ctx context.Context, dsn string, log zerolog.Logger) error {
	adminDSN, dbName := maintenanceDSN(dsn)
	if adminDSN == "" {
		return nil
	}

	sqlDB, err := sql.Open("postgres", adminDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var exists bool
	err = sqlDB.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if exists {
		return nil
	}

	if _, err := sqlDB.ExecContext(ctx, "CREATE DATABASE "+pqQuoteIdentifier(dbName)); err != nil {
		return err
	}
	log.Info().Str("database", dbName).Msg("created database")
	return nil
}

// maintenanceDSN points dsn at the postgres database and returns the target
// database name. Both URL and key=value DSNs are understood. An empty result
// means there is nothing to bootstrap.
func maintenanceDSN(dsn string) (admin, dbName string) {
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		dbName = strings.TrimPrefix(u.Path, "/")
		if dbName == "" || dbName == "postgres" {
			return "", ""
		}
		adminURL := *u
		adminURL.Path = "/postgres"
		return adminURL.String(), dbName
	}

	fields := strings.Fields(dsn)
	for i, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key != "dbname" {
			continue
		}
		dbName = strings.Trim(value, "'")
		if dbName == "" || dbName == "postgres" {
			return "", ""
		}
		fields[i] = "dbname=postgres"
		return strings.Join(fields, " "), dbName
	}
	return "", ""
}

// withApplicationName tags connections so they are identifiable in pg_stat_activity.
func withApplicationName(dsn string) string {
	if strings.Contains(dsn, "application_name") {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		q := u.Query()
		q.Set("application_name", applicationName)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " application_name=" + applicationName
}

func pqQuoteIdentifier(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
