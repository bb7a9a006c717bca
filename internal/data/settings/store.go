// Package settings persists user settings in a flat key/array store backed
// by sqlite.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"qmakemodel/internal/core/errors"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// Store is a flat settings store. Scalar values live under a key, arrays
// are rows of key/value maps addressed by array name and index.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, errors.New(errors.CodeValidationError, "settings path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, errors.Newf(errors.CodeValidationError, "settings path %q is a directory", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create settings directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open settings sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping settings sqlite %q: %w", cleanPath, err)
	}
	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS settings_values (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings_arrays (
  array TEXT NOT NULL,
  idx INTEGER NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (array, idx, key)
);
`)
	if err != nil {
		return fmt.Errorf("migrate settings schema: %w", err)
	}
	return nil
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return errors.New(errors.CodeInternal, "settings store not initialized")
	}
	return nil
}

func (s *Store) SetValue(ctx context.Context, key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings_values (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// Value returns the stored value and whether the key exists.
func (s *Store) Value(ctx context.Context, key string) (string, bool, error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings_values WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, true, nil
}

// WriteArray replaces the array name with rows.
func (s *Store) WriteArray(ctx context.Context, name string, rows []map[string]string) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings array tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM settings_arrays WHERE array = ?`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear settings array %q: %w", name, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO settings_arrays (array, idx, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare settings array insert: %w", err)
	}
	defer stmt.Close()
	for i, row := range rows {
		for k, v := range row {
			if _, err := stmt.ExecContext(ctx, name, i, k, v); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("write settings array %q[%d].%s: %w", name, i, k, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings array tx: %w", err)
	}
	return nil
}

// ReadArray returns the rows of array name ordered by index. Gaps in the
// index sequence read back as empty rows.
func (s *Store) ReadArray(ctx context.Context, name string) ([]map[string]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT idx, key, value FROM settings_arrays WHERE array = ? ORDER BY idx ASC
`, name)
	if err != nil {
		return nil, fmt.Errorf("read settings array %q: %w", name, err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var (
			idx        int
			key, value string
		)
		if err := rows.Scan(&idx, &key, &value); err != nil {
			return nil, fmt.Errorf("scan settings array row: %w", err)
		}
		for len(out) <= idx {
			out = append(out, map[string]string{})
		}
		out[idx][key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings array rows: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
