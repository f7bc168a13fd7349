// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/splicebridge/lib/clock"
	"github.com/bureau-foundation/splicebridge/lib/sqlitepool"
)

// PairStatus is the Status column of rows written for completed pairs.
const PairStatus = "Splice"

const createTableSQL = `CREATE TABLE IF NOT EXISTS OPCData (
	StampDate  INTEGER NOT NULL,
	DataKey    TEXT NOT NULL,
	DataValue  TEXT,
	CreateDate INTEGER NOT NULL,
	Status     TEXT,
	Notes      TEXT,
	PRIMARY KEY (DataKey, StampDate)
)`

const purgeSQL = `DELETE FROM OPCData WHERE CreateDate < ?`

const insertSQL = `INSERT INTO OPCData (StampDate, DataKey, DataValue, CreateDate, Status, Notes)
	VALUES (?, ?, ?, ?, ?, ?)`

// StoreConfig configures a StoreSink.
type StoreConfig struct {
	// Pool is the database the rows go to. Required.
	Pool *sqlitepool.Pool

	// ClearEvery deletes rows created more than this long ago on every
	// delivery. Zero keeps everything.
	ClearEvery time.Duration

	// Clock stamps CreateDate. Required.
	Clock clock.Clock

	Logger *slog.Logger
}

// StoreSink writes events as OPCData rows. Timestamps are stored as
// Unix nanoseconds.
type StoreSink struct {
	pool       *sqlitepool.Pool
	clearEvery time.Duration
	clock      clock.Clock
	logger     *slog.Logger
}

// NewStoreSink validates config.
func NewStoreSink(config StoreConfig) (*StoreSink, error) {
	if config.Pool == nil {
		return nil, fmt.Errorf("export: store Pool is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("export: store Clock is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StoreSink{
		pool:       config.Pool,
		clearEvery: config.ClearEvery,
		clock:      config.Clock,
		logger:     logger,
	}, nil
}

// Name implements Sink.
func (s *StoreSink) Name() string { return "db" }

// Deliver ensures the table, purges expired rows when configured, and
// inserts one row, all in one IMMEDIATE transaction. A row that already
// exists for the key and stamp yields ErrDuplicate and leaves the table
// unchanged.
func (s *StoreSink) Deliver(ctx context.Context, event Event) error {
	row, err := s.rowFor(event)
	if err != nil {
		return err
	}
	now := CalendarCorrected(s.clock.Now())

	err = s.pool.Transact(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteTransient(conn, createTableSQL, nil); err != nil {
			return fmt.Errorf("creating OPCData: %w", err)
		}
		if s.clearEvery > 0 {
			cutoff := now.Add(-s.clearEvery)
			if err := sqlitex.Execute(conn, purgeSQL, &sqlitex.ExecOptions{
				Args: []any{cutoff.UnixNano()},
			}); err != nil {
				return fmt.Errorf("purging OPCData: %w", err)
			}
			if purged := conn.Changes(); purged > 0 {
				s.logger.Info("purged expired rows", "rows", purged, "cutoff", cutoff)
			}
		}
		return sqlitex.Execute(conn, insertSQL, &sqlitex.ExecOptions{
			Args: []any{
				row.stamp.UnixNano(),
				row.key,
				row.value,
				now.UnixNano(),
				row.status,
				row.notes,
			},
		})
	})
	if sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
		return fmt.Errorf("%w: %s at %s", ErrDuplicate, row.key, row.stamp.Format(time.RFC3339Nano))
	}
	if err != nil {
		return fmt.Errorf("storing %s: %w", row.key, err)
	}
	return nil
}

type storeRow struct {
	stamp  time.Time
	key    string
	value  string
	status string
	notes  string
}

func (s *StoreSink) rowFor(event Event) (storeRow, error) {
	if err := event.validate(); err != nil {
		return storeRow{}, err
	}
	if pair := event.Pair; pair != nil {
		body, err := marshalBody(event)
		if err != nil {
			return storeRow{}, err
		}
		return storeRow{
			stamp:  CalendarCorrected(pair.PreviousRemainStamp),
			key:    pair.Key,
			value:  string(body),
			status: PairStatus,
			notes:  string(event.Origin),
		}, nil
	}
	reading := event.Reading
	return storeRow{
		stamp:  CalendarCorrected(reading.Stamp),
		key:    reading.Key,
		value:  valueText(reading.Value),
		status: reading.Status,
		notes:  string(event.Origin),
	}, nil
}

// CalendarCorrected maps a Buddhist-era time (year > 2500) back to the
// Gregorian calendar by subtracting 543 years. Other times are
// returned unchanged.
func CalendarCorrected(t time.Time) time.Time {
	if t.Year() > 2500 {
		return t.AddDate(-543, 0, 0)
	}
	return t
}
