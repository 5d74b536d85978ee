package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RunMigrations applies every additive migration in order. Migrations are
// idempotent: each probes the live schema before altering it, so re-running
// against a current database is a no-op.
func RunMigrations(db *sql.DB) error {
	migrations := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"lease_columns", migrateLeaseColumns},
		{"last_error_column", migrateLastErrorColumn},
		{"timestamp_columns", migrateTimestampColumns},
	}
	for _, m := range migrations {
		if err := m.fn(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

// migrateLeaseColumns adds the lease bookkeeping columns to databases created
// before leases existed.
func migrateLeaseColumns(db *sql.DB) error {
	cols, err := tableColumns(db, "change_queue")
	if err != nil {
		return err
	}
	if !cols["attempts"] {
		if _, err := db.Exec(`ALTER TABLE change_queue ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add attempts column: %w", err)
		}
	}
	if !cols["leased_until"] {
		if _, err := db.Exec(`ALTER TABLE change_queue ADD COLUMN leased_until INTEGER`); err != nil {
			return fmt.Errorf("failed to add leased_until column: %w", err)
		}
	}
	if !cols["lease_owner"] {
		if _, err := db.Exec(`ALTER TABLE change_queue ADD COLUMN lease_owner TEXT`); err != nil {
			return fmt.Errorf("failed to add lease_owner column: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_change_queue_claim ON change_queue(status, leased_until, id)`); err != nil {
		return fmt.Errorf("failed to create claim index: %w", err)
	}
	return nil
}

func migrateLastErrorColumn(db *sql.DB) error {
	cols, err := tableColumns(db, "change_queue")
	if err != nil {
		return err
	}
	if !cols["last_error"] {
		if _, err := db.Exec(`ALTER TABLE change_queue ADD COLUMN last_error TEXT`); err != nil {
			return fmt.Errorf("failed to add last_error column: %w", err)
		}
	}
	return nil
}

func migrateTimestampColumns(db *sql.DB) error {
	cols, err := tableColumns(db, "change_queue")
	if err != nil {
		return err
	}
	if !cols["created_at"] {
		if _, err := db.Exec(`ALTER TABLE change_queue ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add created_at column: %w", err)
		}
	}
	if !cols["updated_at"] {
		if _, err := db.Exec(`ALTER TABLE change_queue ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add updated_at column: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_change_queue_updated_at ON change_queue(updated_at)`); err != nil {
		return fmt.Errorf("failed to create updated_at index: %w", err)
	}
	return nil
}

// tableColumns returns the set of column names currently on table.
func tableColumns(db *sql.DB, table string) (result map[string]bool, retErr error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to check schema: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			retErr = errors.Join(retErr, fmt.Errorf("failed to close schema rows: %w", closeErr))
		}
	}()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading column info: %w", err)
	}
	return cols, nil
}

// verifySchema checks that every required table, column, and index exists.
func verifySchema(ctx context.Context, db *sql.DB) error {
	for table, columns := range requiredColumns {
		cols, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("missing table %s", table)
		}
		for _, col := range columns {
			if !cols[col] {
				return fmt.Errorf("table %s missing column %s", table, col)
			}
		}
	}

	for _, index := range requiredIndexes {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("missing index %s", index)
		}
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
	}
	return nil
}
