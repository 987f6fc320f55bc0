// Package catalog implements the relational catalog of archived pages: the
// surt/entry/snapshot/entry_success/entry_failure/pattern/pattern_entry
// tables (plus a link/snapshot_link outbound-link graph), backed by
// uptrace/bun across SQLite, PostgreSQL and MySQL.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

const (
	netTypeUnix      = "unix"
	schemePostgres   = "postgres"
	schemePostgresql = "postgresql"
)

// Type identifies which SQL dialect a catalog is backed by.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeMySQL
	TypePostgreSQL
	TypeSQLite
)

func (t Type) String() string {
	switch t {
	case TypeMySQL:
		return "MySQL"
	case TypePostgreSQL:
		return "PostgreSQL"
	case TypeSQLite:
		return "SQLite"
	case TypeUnknown:
		fallthrough
	default:
		return "unknown"
	}
}

// ErrUnsupportedDriver is returned when a catalog URL's scheme isn't
// recognized.
var ErrUnsupportedDriver = errors.New("catalog: unsupported database driver")

// ErrInvalidPostgresUnixURL is returned for a malformed postgres+unix URL.
var ErrInvalidPostgresUnixURL = errors.New("catalog: invalid postgres+unix URL")

// ErrInvalidMySQLUnixURL is returned for a malformed mysql+unix URL.
var ErrInvalidMySQLUnixURL = errors.New("catalog: invalid mysql+unix URL")

// DetectFromURL inspects a catalog URL's scheme and returns its Type.
func DetectFromURL(catalogURL string) (Type, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return TypeUnknown, fmt.Errorf("catalog: error parsing URL %q: %w", catalogURL, err)
	}

	scheme := strings.ToLower(u.Scheme)

	switch {
	case scheme == "mysql" || strings.HasPrefix(scheme, "mysql+"):
		return TypeMySQL, nil
	case scheme == schemePostgres || scheme == schemePostgresql ||
		strings.HasPrefix(scheme, schemePostgres+"+") || strings.HasPrefix(scheme, schemePostgresql+"+"):
		return TypePostgreSQL, nil
	case scheme == "sqlite" || scheme == "sqlite3":
		return TypeSQLite, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedDriver, scheme)
	}
}

// PoolConfig holds connection pool tuning; zero values fall back to
// per-dialect defaults.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open opens a catalog database, instruments it with otelsql, and wraps it
// in a bun.DB configured with the dialect matching the URL's scheme. It
// does not create the schema; call EnsureSchema for that.
func Open(catalogURL string, poolCfg *PoolConfig) (*bun.DB, Type, error) {
	typ, err := DetectFromURL(catalogURL)
	if err != nil {
		return nil, TypeUnknown, err
	}

	var (
		sdb *sql.DB
		dia bun.Dialect
	)

	switch typ {
	case TypeSQLite:
		sdb, err = openSQLite(catalogURL, poolCfg)
		dia = sqlitedialect.New()
	case TypePostgreSQL:
		sdb, err = openPostgreSQL(catalogURL, poolCfg)
		dia = pgdialect.New()
	case TypeMySQL:
		sdb, err = openMySQL(catalogURL, poolCfg)
		dia = mysqldialect.New()
	case TypeUnknown:
		fallthrough
	default:
		return nil, TypeUnknown, ErrUnsupportedDriver
	}

	if err != nil {
		return nil, TypeUnknown, fmt.Errorf("catalog: error opening %q: %w", catalogURL, err)
	}

	return bun.NewDB(sdb, dia), typ, nil
}

func applyPoolSettings(sdb *sql.DB, poolCfg *PoolConfig, defaultMaxOpen, defaultMaxIdle int) {
	maxOpen, maxIdle := defaultMaxOpen, defaultMaxIdle

	if poolCfg != nil {
		if poolCfg.MaxOpenConns > 0 {
			maxOpen = poolCfg.MaxOpenConns
		}

		if poolCfg.MaxIdleConns > 0 {
			maxIdle = poolCfg.MaxIdleConns
		}
	}

	if maxOpen > 0 {
		sdb.SetMaxOpenConns(maxOpen)
	}

	if maxIdle > 0 {
		sdb.SetMaxIdleConns(maxIdle)
	}
}

func openSQLite(catalogURL string, poolCfg *PoolConfig) (*sql.DB, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("sqlite3", u.Path, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, err
	}

	if _, err := sdb.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("catalog: error enabling foreign keys: %w", err)
	}

	// A single writer avoids "database is locked" errors under concurrent
	// ingest; callers serialize catalog transactions for the same reason.
	sdb.SetMaxOpenConns(1)

	if poolCfg != nil && poolCfg.MaxIdleConns > 0 {
		sdb.SetMaxIdleConns(poolCfg.MaxIdleConns)
	}

	return sdb, nil
}

func openPostgreSQL(catalogURL string, poolCfg *PoolConfig) (*sql.DB, error) {
	processedURL, err := normalizePostgresURL(catalogURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("pgx", processedURL, otelsql.WithAttributes(semconv.DBSystemPostgreSQL))
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sdb, poolCfg, 25, 5)

	return sdb, nil
}

func normalizePostgresURL(catalogURL string) (string, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(u.Scheme)
	if strings.Contains(scheme, "+unix") {
		socketDir, dbName := path.Split(u.Path)
		if dbName == "" {
			return "", fmt.Errorf("%w: missing database name in path: %s", ErrInvalidPostgresUnixURL, catalogURL)
		}

		if socketDir == "" {
			return "", fmt.Errorf("%w: missing socket directory in path: %s", ErrInvalidPostgresUnixURL, catalogURL)
		}

		socketDir = path.Clean(socketDir)
		u.Path = "/" + dbName

		q := u.Query()
		q.Set("host", socketDir)
		u.RawQuery = q.Encode()
	}

	if strings.Contains(scheme, "+") {
		switch {
		case strings.HasPrefix(scheme, schemePostgresql):
			u.Scheme = schemePostgresql
		case strings.HasPrefix(scheme, schemePostgres):
			u.Scheme = schemePostgres
		}
	}

	return u.String(), nil
}

func openMySQL(catalogURL string, poolCfg *PoolConfig) (*sql.DB, error) {
	cfg, err := parseMySQLConfig(catalogURL)
	if err != nil {
		return nil, err
	}

	sdb, err := otelsql.Open("mysql", cfg.FormatDSN(), otelsql.WithAttributes(semconv.DBSystemMySQL))
	if err != nil {
		return nil, err
	}

	applyPoolSettings(sdb, poolCfg, 25, 5)

	return sdb, nil
}

func parseMySQLConfig(catalogURL string) (*mysql.Config, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return nil, err
	}

	cfg := mysql.NewConfig()

	if u.User != nil {
		cfg.User = u.User.Username()
		if password, ok := u.User.Password(); ok {
			cfg.Passwd = password
		}
	}

	query := u.Query()
	scheme := strings.ToLower(u.Scheme)

	switch {
	case strings.Contains(scheme, "+unix"):
		if err := parseMySQLUnixPath(cfg, u, catalogURL); err != nil {
			return nil, err
		}
	case query.Get("socket") != "":
		cfg.Net, cfg.Addr = netTypeUnix, query.Get("socket")
	case query.Get("unix_socket") != "":
		cfg.Net, cfg.Addr = netTypeUnix, query.Get("unix_socket")
	case strings.HasPrefix(query.Get("host"), "/"):
		cfg.Net, cfg.Addr = netTypeUnix, query.Get("host")
	case u.Host != "":
		cfg.Net, cfg.Addr = "tcp", u.Host
	}

	if cfg.DBName == "" && u.Path != "" {
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
	}

	cfg.Params = map[string]string{
		"parseTime": "true",
		"loc":       "UTC",
		"time_zone": "'+00:00'",
	}

	for k, v := range query {
		if len(v) > 0 {
			cfg.Params[k] = v[0]
		}
	}

	return cfg, nil
}

func parseMySQLUnixPath(cfg *mysql.Config, u *url.URL, catalogURL string) error {
	socketPath, dbName := path.Split(u.Path)
	if dbName == "" {
		return fmt.Errorf("%w: missing database name in path: %s", ErrInvalidMySQLUnixURL, catalogURL)
	}

	if socketPath == "" {
		return fmt.Errorf("%w: missing socket path in path: %s", ErrInvalidMySQLUnixURL, catalogURL)
	}

	cfg.Net = netTypeUnix
	cfg.Addr = path.Clean(socketPath)
	cfg.DBName = dbName

	return nil
}

// IsDeadlockError reports whether err is a deadlock/busy condition across
// any of the three supported dialects.
func IsDeadlockError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "deadlock") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database is busy") ||
		strings.Contains(errStr, "40p01") ||
		strings.Contains(errStr, "lock wait timeout")
}

// IsDuplicateKeyError reports whether err is a unique-constraint violation
// across any of the three supported dialects.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "duplicate entry") ||
		strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "error 1062")
}
