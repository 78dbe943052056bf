// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/cascade/pkg/engine"
)

// SQLiteStore is a SQLite-backed RunRepository.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store at path. The
// special path ":memory:" creates an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// WAL mode allows concurrent readers while the orchestrator writes.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every in-memory connection is its own database; keep one.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			flow TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			state TEXT,
			metrics TEXT,
			error TEXT,
			deploy_blocked INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_flow ON runs(flow)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Create implements engine.RunRepository.
func (s *SQLiteStore) Create(ctx context.Context, run *engine.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, flow, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Flow, string(run.Status), run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}
	return nil
}

// Update implements engine.RunRepository.
func (s *SQLiteStore) Update(ctx context.Context, runID string, outcome *engine.RunOutcome) error {
	stateJSON, err := json.Marshal(outcome.State)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	metricsJSON, err := json.Marshal(outcome.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	var errText sql.NullString
	if outcome.Err != nil {
		errText = sql.NullString{String: outcome.Err.Error(), Valid: true}
	}

	deployBlocked := 0
	if outcome.DeployBlocked {
		deployBlocked = 1
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, state = ?, metrics = ?, error = ?, deploy_blocked = ?
		 WHERE id = ?`,
		string(outcome.Status), time.Now().UnixMilli(), string(stateJSON), string(metricsJSON),
		errText, deployBlocked, runID)
	if err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}

	// A run that was never created (earlier best-effort Create failed) is
	// inserted now so the outcome is not lost.
	if rows, _ := result.RowsAffected(); rows == 0 {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO runs (id, flow, status, started_at, finished_at, state, metrics, error, deploy_blocked)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, outcome.Flow, string(outcome.Status), time.Now().UnixMilli(), time.Now().UnixMilli(),
			string(stateJSON), string(metricsJSON), errText, deployBlocked)
		if err != nil {
			return fmt.Errorf("failed to insert run record: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
