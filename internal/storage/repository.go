package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS fx_alerts (
        id            BIGSERIAL PRIMARY KEY,
        alert_ts      TIMESTAMPTZ NOT NULL,
        currency_pair TEXT        NOT NULL,
        kind          TEXT        NOT NULL,
        seconds       BIGINT,
        source        TEXT        NOT NULL DEFAULT '',
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (alert_ts, currency_pair, kind)
    );
    CREATE INDEX IF NOT EXISTS fx_alerts_created_at_idx ON fx_alerts (created_at);`

	insertAlertSQL = `INSERT INTO fx_alerts (
        alert_ts,
        currency_pair,
        kind,
        seconds,
        source
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (alert_ts, currency_pair, kind) DO UPDATE
    SET seconds = EXCLUDED.seconds,
        source  = EXCLUDED.source
    RETURNING id, alert_ts, currency_pair, kind, seconds, source, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        alert_ts,
        currency_pair,
        kind,
        seconds,
        source,
        created_at
    FROM fx_alerts
    WHERE ($2 = '' OR currency_pair = $2)
    ORDER BY alert_ts DESC, id DESC
    LIMIT $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM fx_alerts;`

	deleteAlertsBeforeSQL = `DELETE FROM fx_alerts WHERE alert_ts < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int, pair string) ([]AlertRecord, error)
	CountAlerts(ctx context.Context) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
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

// EnsureSchema creates the alerts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
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
		// a failed unlock is released with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertAlert persists an alert emission. Re-inserting the same alert
// (same time, pair and kind) updates it in place.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var seconds interface{}
	if alert.Seconds != nil {
		seconds = *alert.Seconds
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.AlertTS,
		alert.CurrencyPair,
		alert.Kind,
		seconds,
		alert.Source,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists the most recent alerts, optionally for one pair.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int, pair string) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit, pair)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// CountAlerts counts stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

// DeleteAlertsBefore deletes alerts stamped before olderThan and reports how
// many were removed.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec     AlertRecord
		seconds sql.NullInt64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.AlertTS,
		&rec.CurrencyPair,
		&rec.Kind,
		&seconds,
		&rec.Source,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}
	if seconds.Valid {
		value := seconds.Int64
		rec.Seconds = &value
	}
	return rec, nil
}

var (
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
