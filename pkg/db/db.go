/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package db pkg/db/db.go provides the SQLite persistence backend for
// ThermoRelay state. Every key is one row; a commit batch is one SQL
// transaction, which SQLite makes crash-atomic.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/thermorelay/pkg/kvstore"
	log "github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dbOperationTimeout = 5 * time.Second

	// busy_timeout lets concurrent writers wait for SQLite's file lock
	// instead of failing with SQLITE_BUSY. DSN options apply to every
	// pooled connection, unlike a one-off PRAGMA.
	dsnOptions = "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on&_synchronous=NORMAL"

	createTablesSQL = `
	CREATE TABLE IF NOT EXISTS kv_state (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	upsertSQL = `
	INSERT INTO kv_state (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
)

// DB is the SQLite-backed kvstore.Backend.
type DB struct {
	*sql.DB
}

var _ kvstore.Backend = (*DB)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
	}

	db := &DB{sqlDB}
	if err := db.initSchema(); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return db, nil
}

// initSchema creates the database tables if they don't exist.
func (db *DB) initSchema() error {
	_, err := db.Exec(createTablesSQL)

	return err
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	var value []byte

	err := db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w %q: %w", errFailedToQuery, key, err)
	}

	return value, true, nil
}

func (db *DB) Commit(ctx context.Context, batch []kvstore.Mutation) (err error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}
	defer rollbackOnError(tx, &err)

	now := time.Now().UTC()

	for _, mut := range batch {
		if mut.Value == nil {
			if _, err = tx.ExecContext(ctx, `DELETE FROM kv_state WHERE key = ?`, mut.Key); err != nil {
				return fmt.Errorf("%w %q: %w", errFailedToDelete, mut.Key, err)
			}

			continue
		}

		if _, err = tx.ExecContext(ctx, upsertSQL, mut.Key, mut.Value, now); err != nil {
			return fmt.Errorf("%w %q: %w", errFailedToInsert, mut.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", errFailedToCommit, err)
	}

	return nil
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	const querySQL = `
		SELECT key
		FROM kv_state
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key
	`

	rows, err := db.QueryContext(ctx, querySQL, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w keys: %w", errFailedToQuery, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			log.WithError(err).Warn("failed to close rows")
		}
	}(rows)

	keys := make([]string, 0)

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w key row: %w", errFailedToScan, err)
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w keys: %w", errFailedToQuery, err)
	}

	return keys, nil
}

func rollbackOnError(tx *sql.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Error("Error rolling back transaction")
		}
	}
}
