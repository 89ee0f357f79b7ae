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

package historydb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pcboven/pcboven-core/pkg/database"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func sqlMigrateUp(db *sql.DB) error {
	if err := database.MigrateUp(db, migrationFiles, "migrations"); err != nil {
		return fmt.Errorf("failed to run history database migrations: %w", err)
	}
	return nil
}

//goland:noinspection SqlWithoutWhere
func sqlTruncate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	delete from Samples;
	vacuum;
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate database: %w", err)
	}
	return nil
}

func sqlVacuum(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `vacuum;`)
	if err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func sqlAddSample(ctx context.Context, db *sql.DB, s *database.Sample) error {
	stmt, err := db.PrepareContext(ctx, `
		insert into Samples(
			Time, Kind, ProbeTemp, InternalTemp, TargetTemp,
			EnableFilaments, FilamentTopOn, FilamentBottomOn, Fault
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql statement")
		}
	}()

	res, err := stmt.ExecContext(ctx,
		s.Time.UnixMilli(),
		s.Kind,
		s.ProbeTemp,
		s.InternalTemp,
		s.TargetTemp,
		s.EnableFilaments,
		s.FilamentTopOn,
		s.FilamentBottomOn,
		s.Fault,
	)
	if err != nil {
		return fmt.Errorf("failed to execute sample insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sample id: %w", err)
	}
	s.DBID = id
	return nil
}

// sqlRecentSamples returns the newest limit samples in chronological order.
func sqlRecentSamples(ctx context.Context, db *sql.DB, limit int) ([]database.Sample, error) {
	rows, err := db.QueryContext(ctx, `
		select
		DBID, Time, Kind, ProbeTemp, InternalTemp, TargetTemp,
		EnableFilaments, FilamentTopOn, FilamentBottomOn, Fault
		from Samples
		order by DBID desc
		limit ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close rows")
		}
	}()

	list := make([]database.Sample, 0, limit)
	for rows.Next() {
		var s database.Sample
		var ms int64
		err := rows.Scan(
			&s.DBID,
			&ms,
			&s.Kind,
			&s.ProbeTemp,
			&s.InternalTemp,
			&s.TargetTemp,
			&s.EnableFilaments,
			&s.FilamentTopOn,
			&s.FilamentBottomOn,
			&s.Fault,
		)
		if err != nil {
			return list, fmt.Errorf("failed to scan sample row: %w", err)
		}
		s.Time = time.UnixMilli(ms)
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return list, fmt.Errorf("error iterating sample rows: %w", err)
	}

	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func sqlCleanupSamples(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	stmt, err := db.PrepareContext(ctx, `delete from Samples where Time < ?;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare sample cleanup statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql statement")
		}
	}()

	result, err := stmt.ExecContext(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to execute sample cleanup: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		if err := sqlVacuum(ctx, db); err != nil {
			return rowsAffected, fmt.Errorf("cleanup succeeded but vacuum failed: %w", err)
		}
	}

	return rowsAffected, nil
}
