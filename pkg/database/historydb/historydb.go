// PCBoven Core
// Copyright (c) 2026 The PCBoven Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PCBoven Core.
//
// PCBoven Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PCBoven Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PCBoven Core.  If not, see <http://www.gnu.org/licenses/>.

// Package historydb stores telemetry samples in SQLite so reflow runs can be
// plotted and exported after the fact.
package historydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pcboven/pcboven-core/pkg/config"
	"github.com/pcboven/pcboven-core/pkg/database"
)

var ErrNullSQL = errors.New("HistoryDB is not connected")

const (
	sqliteConnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	// DefaultLimit is used when a caller asks for a non-positive number of
	// samples.
	DefaultLimit = 600
	MaxLimit     = 10000
)

type HistoryDB struct {
	sql     *sql.DB
	ctx     context.Context
	clock   clockwork.Clock
	dataDir string
}

var _ database.HistoryDBI = (*HistoryDB)(nil)

func OpenHistoryDB(ctx context.Context, dataDir string) (*HistoryDB, error) {
	db := &HistoryDB{ctx: ctx, dataDir: dataDir, clock: clockwork.NewRealClock()}
	err := db.Open()
	return db, err
}

func (db *HistoryDB) Open() error {
	dbPath := db.GetDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for database: %w", err)
	}
	sqlInstance, err := sql.Open("sqlite3", dbPath+sqliteConnParams)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.sql = sqlInstance
	return db.MigrateUp()
}

func (db *HistoryDB) GetDBPath() string {
	return filepath.Join(db.dataDir, config.HistoryDbFile)
}

func (db *HistoryDB) MigrateUp() error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlMigrateUp(db.sql)
}

func (db *HistoryDB) AddSample(s *database.Sample) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlAddSample(db.ctx, db.sql, s)
}

// RecentSamples returns up to limit of the newest samples, oldest first.
func (db *HistoryDB) RecentSamples(limit int) ([]database.Sample, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	return sqlRecentSamples(db.ctx, db.sql, ClampLimit(limit))
}

// CleanupSamples deletes every sample older than retention.
func (db *HistoryDB) CleanupSamples(retention time.Duration) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}
	return sqlCleanupSamples(db.ctx, db.sql, db.clock.Now().Add(-retention))
}

func (db *HistoryDB) Truncate() error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlTruncate(db.ctx, db.sql)
}

func (db *HistoryDB) Vacuum() error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlVacuum(db.ctx, db.sql)
}

func (db *HistoryDB) Close() error {
	if db.sql == nil {
		return nil
	}
	err := db.sql.Close()
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SetSQLForTesting injects a sql.DB, usually in-memory, and migrates it.
func (db *HistoryDB) SetSQLForTesting(ctx context.Context, sqlDB *sql.DB, clock clockwork.Clock) error {
	db.sql = sqlDB
	db.ctx = ctx
	if clock != nil {
		db.clock = clock
	} else if db.clock == nil {
		db.clock = clockwork.NewRealClock()
	}
	return db.MigrateUp()
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// WriteCSV writes samples to w with a header row.
func WriteCSV(w io.Writer, samples []database.Sample) error {
	if err := gocsv.Marshal(samples, w); err != nil {
		return fmt.Errorf("failed to write samples as csv: %w", err)
	}
	return nil
}
