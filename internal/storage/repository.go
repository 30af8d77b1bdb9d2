package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"penwatch/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	insertRunSQL = `INSERT INTO penwatch_runs (
        run_id,
        observed_at,
        official,
        street,
        reference,
        source,
        range_min,
        range_max,
        last_price,
        notified,
        greeting,
        category,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    ON CONFLICT (run_id) DO UPDATE
    SET
        status = EXCLUDED.status,
        error  = EXCLUDED.error;`

	listRecentRunsSQL = `SELECT
        run_id,
        observed_at,
        official::text,
        street::text,
        reference::text,
        source,
        range_min::text,
        range_max::text,
        last_price::text,
        notified,
        greeting,
        category,
        status,
        error,
        created_at
    FROM penwatch_runs
    ORDER BY observed_at DESC
    LIMIT $1;`

	countRunsBeforeSQL = `SELECT COUNT(*) FROM penwatch_runs WHERE observed_at < $1;`

	deleteRunsBeforeSQL = `DELETE FROM penwatch_runs WHERE observed_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunStore defines operations for run history persistence.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store wraps the run history table.
type Store struct {
	pool *pgxpool.Pool
}

// defaultConnectTimeout applies when the DSN sets no connect_timeout.
const defaultConnectTimeout = 5 * time.Second

// NewPool configures a PostgreSQL connection pool from runtime settings.
// The pool connects lazily; the first query surfaces an unreachable server.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

func buildPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if poolConfig.ConnConfig.ConnectTimeout == 0 {
		poolConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout
	}
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = "penwatch"
	}

	return poolConfig, nil
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ApplySchema runs the embedded schema files in name order. Every statement
// is idempotent.
func (s *Store) ApplySchema(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, readErr := schemaFS.ReadFile(name)
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", name, readErr)
		}
		if _, execErr := pool.Exec(ctx, string(body)); execErr != nil {
			return nil, fmt.Errorf("apply %s: %w", name, execErr)
		}
	}
	return names, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// RecordRun persists one run. Re-recording the same run id only updates its status.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	_, execErr := pool.Exec(ctx, insertRunSQL,
		run.RunID,
		run.ObservedAt,
		numericArg(run.Official),
		numericArg(run.Street),
		numericArg(run.Reference),
		run.Source,
		numericArg(run.RangeMin),
		numericArg(run.RangeMax),
		numericArg(run.LastPrice),
		run.Notified,
		run.Greeting,
		run.Category,
		run.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("record run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// CountRunsBefore counts the runs DeleteRunsBefore would remove.
func (s *Store) CountRunsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRunsBeforeSQL, olderThan).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count runs before: %w", scanErr)
	}
	return count, nil
}

// DeleteRunsBefore prunes history older than the cutoff.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete runs before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func numericArg(v decimal.NullDecimal) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Decimal.String()
}

func parseNumeric(s sql.NullString, column string) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse %s: %w", column, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func scanRun(rows pgx.Rows) (RunRecord, error) {
	var (
		run                     RunRecord
		official, street, ref   sql.NullString
		rangeMin, rangeMax, lst sql.NullString
		errMsg                  sql.NullString
	)

	if err := rows.Scan(
		&run.RunID,
		&run.ObservedAt,
		&official,
		&street,
		&ref,
		&run.Source,
		&rangeMin,
		&rangeMax,
		&lst,
		&run.Notified,
		&run.Greeting,
		&run.Category,
		&run.Status,
		&errMsg,
		&run.CreatedAt,
	); err != nil {
		return RunRecord{}, err
	}

	columns := []struct {
		raw  sql.NullString
		dst  *decimal.NullDecimal
		name string
	}{
		{official, &run.Official, "official"},
		{street, &run.Street, "street"},
		{ref, &run.Reference, "reference"},
		{rangeMin, &run.RangeMin, "range_min"},
		{rangeMax, &run.RangeMax, "range_max"},
		{lst, &run.LastPrice, "last_price"},
	}
	for _, col := range columns {
		value, err := parseNumeric(col.raw, col.name)
		if err != nil {
			return RunRecord{}, err
		}
		*col.dst = value
	}

	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}

	return run, nil
}
