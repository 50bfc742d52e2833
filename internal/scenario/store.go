// SPDX-License-Identifier: AGPL-3.0-only
package scenario

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/errors"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// rowLetters is the cycle used for row identifiers: A1..Z1, then A2..Z2, etc.
const rowLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Row is one row of a scenario table.
type Row struct {
	ID    string
	Cells map[string]string
}

// Store persists scenario state as named tables of rows in a SQLite database.
// Row identifiers are allocated from a single process-wide sequence so an id
// never refers to two rows, even across tables.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dbPath, enables WAL mode,
// and runs any pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextRowID allocates the next row identifier inside tx.
func nextRowID(tx *sql.Tx) (string, error) {
	var letterIndex, number int
	if err := tx.QueryRow("SELECT letter_index, number FROM allocator WHERE id = 1").
		Scan(&letterIndex, &number); err != nil {
		return "", fmt.Errorf("read allocator: %w", err)
	}

	id := fmt.Sprintf("%c%d", rowLetters[letterIndex], number)

	letterIndex++
	if letterIndex == len(rowLetters) {
		letterIndex = 0
		number++
	}
	if _, err := tx.Exec("UPDATE allocator SET letter_index=?, number=? WHERE id = 1",
		letterIndex, number); err != nil {
		return "", fmt.Errorf("advance allocator: %w", err)
	}
	return id, nil
}

// CreateRow inserts a new row into the named table and returns its allocated id.
func (s *Store) CreateRow(table string, cells map[string]string) (string, error) {
	if table == "" {
		return "", errors.InvalidInput("table name must not be empty")
	}
	if cells == nil {
		cells = map[string]string{}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := nextRowID(tx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("encode cells: %w", err)
	}
	now := time.Now().Format(timeFormat)
	if _, err := tx.Exec(`
		INSERT INTO rows (table_name, row_id, cells, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		table, id, string(data), now, now,
	); err != nil {
		return "", fmt.Errorf("insert row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// UpdateCell sets one cell of an existing row. Setting a cell to the empty
// string removes it from the row.
func (s *Store) UpdateCell(table, rowID, column, value string) error {
	if column == "" {
		return errors.InvalidInput("column name must not be empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRow("SELECT cells FROM rows WHERE table_name=? AND row_id=?", table, rowID).
		Scan(&data)
	if err == sql.ErrNoRows {
		return errors.NotFound("row", rowID)
	}
	if err != nil {
		return fmt.Errorf("read row: %w", err)
	}

	var cells map[string]string
	if err := json.Unmarshal([]byte(data), &cells); err != nil {
		return fmt.Errorf("decode cells: %w", err)
	}
	if value == "" {
		delete(cells, column)
	} else {
		cells[column] = value
	}

	updated, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("encode cells: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE rows SET cells=?, updated_at=? WHERE table_name=? AND row_id=?`,
		string(updated), time.Now().Format(timeFormat), table, rowID,
	); err != nil {
		return fmt.Errorf("update row: %w", err)
	}

	return tx.Commit()
}

// DeleteRow removes a row from the named table.
func (s *Store) DeleteRow(table, rowID string) error {
	res, err := s.db.Exec("DELETE FROM rows WHERE table_name=? AND row_id=?", table, rowID)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete result: %w", err)
	}
	if n == 0 {
		return errors.NotFound("row", rowID)
	}
	return nil
}

// Rows returns all rows of the named table, ordered by creation time.
func (s *Store) Rows(table string) ([]Row, error) {
	rows, err := s.db.Query(`
		SELECT row_id, cells FROM rows
		WHERE table_name=?
		ORDER BY created_at, row_id`, table)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var data string
		if err := rows.Scan(&r.ID, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &r.Cells); err != nil {
			return nil, fmt.Errorf("decode cells for row %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Tables returns the names of all non-empty tables, sorted.
func (s *Store) Tables() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT table_name FROM rows ORDER BY table_name")
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Snapshot renders the whole scenario as deterministic plain text suitable for
// prompt injection. Tables are sorted by name, rows by creation order, cells
// by column name.
func (s *Store) Snapshot() (string, error) {
	tables, err := s.Tables()
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, table := range tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "## %s\n", table)
		trs, err := s.Rows(table)
		if err != nil {
			return "", err
		}
		for _, r := range trs {
			cols := make([]string, 0, len(r.Cells))
			for c := range r.Cells {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			fmt.Fprintf(&b, "[%s]", r.ID)
			for _, c := range cols {
				fmt.Fprintf(&b, " %s: %s;", c, r.Cells[c])
			}
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// Reset removes all rows and restarts the id allocator.
func (s *Store) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM rows"); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}
	if _, err := tx.Exec("UPDATE allocator SET letter_index=0, number=1 WHERE id = 1"); err != nil {
		return fmt.Errorf("reset allocator: %w", err)
	}
	return tx.Commit()
}
