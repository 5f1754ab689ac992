package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"eeg-backend/internal/models"
)

// PostgresDB stores engagement and raw rows in PostgreSQL with serial ids
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB opens a pgx-backed connection pool for dsn
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	slog.Info("Database: connected to PostgreSQL")
	return NewPostgresDBFromConn(db), nil
}

// NewPostgresDBFromConn wraps an existing pool
func NewPostgresDBFromConn(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db}
}

const (
	pgInsertEngagement = `
		INSERT INTO engagement (timestamp, coef_min, coef_max, coef_avg, is_focused)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	pgInsertRaw = `
		INSERT INTO raw_data (timestamp, f4, f3, c4, c3, p4, p3, o1, o2)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
)

// Persist writes both rows in one transaction
func (p *PostgresDB) Persist(ctx context.Context, eng models.EngagementRecord, raw models.RawRecord) (models.PersistResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PersistResult{}, persistErr("begin", err)
	}

	var engID, rawID int64

	err = tx.QueryRowContext(ctx, pgInsertEngagement,
		eng.Timestamp, eng.CoefMin, eng.CoefMax, eng.CoefAvg, eng.IsFocused,
	).Scan(&engID)
	if err != nil {
		return models.PersistResult{}, rollback(tx, "engagement", err)
	}

	err = tx.QueryRowContext(ctx, pgInsertRaw,
		raw.Timestamp,
		raw.F4, raw.F3, raw.C4, raw.C3,
		raw.P4, raw.P3, raw.O1, raw.O2,
	).Scan(&rawID)
	if err != nil {
		return models.PersistResult{}, rollback(tx, "raw_data", err)
	}

	if err := tx.Commit(); err != nil {
		return models.PersistResult{}, persistErr("commit", err)
	}

	slog.Debug("Database: epoch persisted to PostgreSQL", "engagement_id", engID, "raw_id", rawID)

	return models.PersistResult{
		EngagementID: strconv.FormatInt(engID, 10),
		RawID:        strconv.FormatInt(rawID, 10),
	}, nil
}

func rollback(tx *sql.Tx, op string, err error) error {
	if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
		err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
	}
	return persistErr(op, err)
}

// EngagementBetween returns engagement rows with start <= timestamp <= end
func (p *PostgresDB) EngagementBetween(ctx context.Context, start, end time.Time) ([]models.EngagementRecord, error) {
	rows, err := p.queryRange(ctx, `
		SELECT timestamp, coef_min, coef_max, coef_avg, is_focused
		FROM engagement`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement: %w", err)
	}
	defer rows.Close()

	var records []models.EngagementRecord
	for rows.Next() {
		var r models.EngagementRecord
		if err := rows.Scan(&r.Timestamp, &r.CoefMin, &r.CoefMax, &r.CoefAvg, &r.IsFocused); err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read engagement: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// RawBetween returns raw rows with start <= timestamp <= end
func (p *PostgresDB) RawBetween(ctx context.Context, start, end time.Time) ([]models.RawRecord, error) {
	rows, err := p.queryRange(ctx, `
		SELECT timestamp, f4, f3, c4, c3, p4, p3, o1, o2
		FROM raw_data`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw_data: %w", err)
	}
	defer rows.Close()

	var records []models.RawRecord
	for rows.Next() {
		var r models.RawRecord
		if err := rows.Scan(&r.Timestamp, &r.F4, &r.F3, &r.C4, &r.C3, &r.P4, &r.P3, &r.O1, &r.O2); err != nil {
			return nil, fmt.Errorf("failed to scan raw_data: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw_data: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (p *PostgresDB) queryRange(ctx context.Context, query string, start, end time.Time) (*sql.Rows, error) {
	if unbounded(start, end) {
		return p.db.QueryContext(ctx, query+" ORDER BY id")
	}
	return p.db.QueryContext(ctx, query+" WHERE timestamp BETWEEN $1 AND $2 ORDER BY id", start, end)
}

// Close closes the connection pool
func (p *PostgresDB) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", err)
	}
	slog.Info("Database: PostgreSQL connection closed")
	return nil
}
