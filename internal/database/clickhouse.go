package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"eeg-backend/internal/models"
)

// chConn is the subset of driver.Conn used by ClickHouseDB
type chConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, dest any, query string, args ...any) error
	Ping(ctx context.Context) error
	Close() error
}

// ClickHouseDB stores engagement and raw rows in ClickHouse. Tables are
// expected to exist with a UUID id column.
type ClickHouseDB struct {
	conn  chConn
	newID func() uuid.UUID
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
			// compensating deletes must be visible before Persist returns
			"mutations_sync": 1,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	slog.Info("Database: connected to ClickHouse", "addr", addr, "database", database)

	return newClickHouseDB(conn), nil
}

func newClickHouseDB(conn chConn) *ClickHouseDB {
	return &ClickHouseDB{conn: conn, newID: uuid.New}
}

const (
	chInsertEngagement = `
		INSERT INTO engagement (id, timestamp, coef_min, coef_max, coef_avg, is_focused)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	chInsertRaw = `
		INSERT INTO raw_data (id, timestamp, f4, f3, c4, c3, p4, p3, o1, o2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	chDeleteEngagement = `ALTER TABLE engagement DELETE WHERE id = ?`
)

// Persist writes the engagement row then the raw row. ClickHouse has no
// multi-statement transactions, so a failed raw insert is rolled back by
// deleting the engagement row that was already written.
func (db *ClickHouseDB) Persist(ctx context.Context, eng models.EngagementRecord, raw models.RawRecord) (models.PersistResult, error) {
	engID := db.newID()
	rawID := db.newID()

	err := db.conn.Exec(ctx, chInsertEngagement,
		engID,
		eng.Timestamp,
		eng.CoefMin,
		eng.CoefMax,
		eng.CoefAvg,
		eng.IsFocused,
	)
	if err != nil {
		return models.PersistResult{}, persistErr("engagement", err)
	}

	err = db.conn.Exec(ctx, chInsertRaw,
		rawID,
		raw.Timestamp,
		raw.F4, raw.F3, raw.C4, raw.C3,
		raw.P4, raw.P3, raw.O1, raw.O2,
	)
	if err != nil {
		// the caller's ctx may already be done; the rollback still has to run
		if derr := db.conn.Exec(context.WithoutCancel(ctx), chDeleteEngagement, engID); derr != nil {
			slog.Error("Database: rollback of engagement row failed", "id", engID, "err", derr)
			err = errors.Join(err, fmt.Errorf("rollback engagement %s: %w", engID, derr))
		}
		return models.PersistResult{}, persistErr("raw_data", err)
	}

	slog.Debug("Database: epoch persisted to ClickHouse",
		"engagement_id", engID,
		"raw_id", rawID,
		"timestamp", eng.Timestamp)

	return models.PersistResult{EngagementID: engID.String(), RawID: rawID.String()}, nil
}

// EngagementBetween returns engagement rows with start <= timestamp <= end
func (db *ClickHouseDB) EngagementBetween(ctx context.Context, start, end time.Time) ([]models.EngagementRecord, error) {
	query := `
		SELECT timestamp, coef_min, coef_max, coef_avg, is_focused
		FROM engagement
	`
	var records []models.EngagementRecord
	if err := db.selectRange(ctx, &records, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to query engagement: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// RawBetween returns raw rows with start <= timestamp <= end
func (db *ClickHouseDB) RawBetween(ctx context.Context, start, end time.Time) ([]models.RawRecord, error) {
	query := `
		SELECT timestamp, f4, f3, c4, c3, p4, p3, o1, o2
		FROM raw_data
	`
	var records []models.RawRecord
	if err := db.selectRange(ctx, &records, query, start, end); err != nil {
		return nil, fmt.Errorf("failed to query raw_data: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (db *ClickHouseDB) selectRange(ctx context.Context, dest any, query string, start, end time.Time) error {
	if unbounded(start, end) {
		return db.conn.Select(ctx, dest, query+" ORDER BY timestamp")
	}
	return db.conn.Select(ctx, dest, query+" WHERE timestamp BETWEEN ? AND ? ORDER BY timestamp", start, end)
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		slog.Info("Database: ClickHouse connection closed")
	}
	return nil
}
