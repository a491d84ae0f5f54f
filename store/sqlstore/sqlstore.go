// Package sqlstore persists observations, forecast snapshots and failure logs in sqlite or
// postgres through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/aouyang1/ghg-forecaster/store"
)

var (
	ErrUnknownDialect = errors.New("unknown sql dialect")
	ErrNoDSN          = errors.New("dsn is required")
	ErrNoDB           = errors.New("no database handle")
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	}
	return "", fmt.Errorf("%q, %w", string(d), ErrUnknownDialect)
}

// Store implements store.Store
type Store struct {
	db      *sql.DB
	dialect Dialect
	nowFunc func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to the database and creates missing tables
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	driver, err := dialect.driver()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database, %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and creates missing tables
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, ErrNoDB
	}
	if _, err := dialect.driver(); err != nil {
		return nil, err
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		nowFunc: time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("unable to migrate %s database, %w", dialect, err)
	}
	return s, nil
}

// OpenWait retries Open until it succeeds, the context ends or attempts run out. A non positive
// attempts value retries until the context ends.
func OpenWait(ctx context.Context, dialect Dialect, dsn string, interval time.Duration, attempts int, onRetry func(error)) (*Store, error) {
	var lastErr error
	for i := 0; attempts <= 0 || i < attempts; i++ {
		s, err := Open(ctx, dialect, dsn)
		if err == nil {
			if err = s.Ping(ctx); err == nil {
				return s, nil
			}
			_ = s.Close()
		}
		if errors.Is(err, ErrUnknownDialect) || errors.Is(err, ErrNoDSN) {
			return nil, err
		}
		lastErr = err
		if onRetry != nil {
			onRetry(err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("stopped waiting for database, last error %v, %w", lastErr, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("database not ready after %d attempts, %w", attempts, lastErr)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNoDB
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// rebind rewrites ? placeholders into the $n form postgres expects
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) realType() string {
	if s.dialect == DialectPostgres {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}

func (s *Store) snapshotDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS emissions_forecast (
		year INTEGER NOT NULL,
		country_name TEXT NOT NULL,
		sector_name TEXT NOT NULL,
		forecast_emissions_ktco2 %[1]s,
		forecast_emissions_per_capita %[1]s,
		PRIMARY KEY (year, country_name, sector_name)
	)`, s.realType())
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS emissions_data (
			year INTEGER NOT NULL,
			sector_name TEXT NOT NULL,
			country_name TEXT NOT NULL,
			population %[1]s,
			emissions_ktco2 %[1]s,
			emissions_per_capita %[1]s,
			PRIMARY KEY (year, sector_name, country_name)
		)`, s.realType()),
		`CREATE INDEX IF NOT EXISTS idx_emissions_year ON emissions_data(year)`,
		`CREATE INDEX IF NOT EXISTS idx_emissions_country ON emissions_data(country_name)`,
		`CREATE TABLE IF NOT EXISTS forecast_failures (
			country_name TEXT NOT NULL,
			sector_name TEXT NOT NULL,
			reason TEXT NOT NULL,
			run_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
		s.snapshotDDL(),
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

// nullable maps an absent value to SQL NULL
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
