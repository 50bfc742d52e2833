// SPDX-License-Identifier: AGPL-3.0-only
package scenario

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "scenario.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateRowAllocatesSequentialIDs(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.CreateRow("characters", map[string]string{"name": "Alice"})
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}
	id2, err := s.CreateRow("characters", map[string]string{"name": "Bob"})
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}

	if id1 != "A1" {
		t.Errorf("first row id = %q, want %q", id1, "A1")
	}
	if id2 != "B1" {
		t.Errorf("second row id = %q, want %q", id2, "B1")
	}
}

func TestRowIDsUniqueAcrossTables(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.CreateRow("characters", nil)
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}
	id2, err := s.CreateRow("locations", nil)
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}
	if id1 == id2 {
		t.Errorf("ids collide across tables: %q", id1)
	}
}

func TestRowIDWrapsAfterZ(t *testing.T) {
	s := newTestStore(t)

	var last string
	for i := 0; i < 27; i++ {
		id, err := s.CreateRow("t", map[string]string{"n": fmt.Sprint(i)})
		if err != nil {
			t.Fatalf("CreateRow %d: %v", i, err)
		}
		last = id
	}
	if last != "A2" {
		t.Errorf("27th row id = %q, want %q", last, "A2")
	}
}

func TestUpdateCell(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateRow("characters", map[string]string{"name": "Alice", "mood": "calm"})
	if err != nil {
		t.Fatalf("CreateRow: %v", err)
	}

	if err := s.UpdateCell("characters", id, "mood", "angry"); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}

	rows, err := s.Rows("characters")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Cells["mood"] != "angry" {
		t.Errorf("mood = %q, want %q", rows[0].Cells["mood"], "angry")
	}
	if rows[0].Cells["name"] != "Alice" {
		t.Errorf("name = %q, want %q", rows[0].Cells["name"], "Alice")
	}
}

func TestUpdateCellEmptyValueRemovesColumn(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.CreateRow("characters", map[string]string{"name": "Alice", "mood": "calm"})
	if err := s.UpdateCell("characters", id, "mood", ""); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}

	rows, _ := s.Rows("characters")
	if _, ok := rows[0].Cells["mood"]; ok {
		t.Error("expected mood cell to be removed")
	}
}

func TestUpdateCellUnknownRow(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateCell("characters", "Z9", "mood", "angry")
	if err == nil {
		t.Fatal("expected error for unknown row, got nil")
	}
}

func TestDeleteRow(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.CreateRow("characters", map[string]string{"name": "Alice"})
	if err := s.DeleteRow("characters", id); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}

	rows, _ := s.Rows("characters")
	if len(rows) != 0 {
		t.Errorf("expected 0 rows after delete, got %d", len(rows))
	}

	if err := s.DeleteRow("characters", id); err == nil {
		t.Error("expected error deleting missing row, got nil")
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	s := newTestStore(t)

	s.CreateRow("locations", map[string]string{"name": "tavern", "state": "crowded"})
	s.CreateRow("characters", map[string]string{"name": "Alice"})

	snap1, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap2, _ := s.Snapshot()
	if snap1 != snap2 {
		t.Error("snapshot is not deterministic")
	}

	// Tables come out sorted by name regardless of insertion order.
	ci := strings.Index(snap1, "## characters")
	li := strings.Index(snap1, "## locations")
	if ci == -1 || li == -1 || ci > li {
		t.Errorf("unexpected table ordering in snapshot:\n%s", snap1)
	}
	if !strings.Contains(snap1, "name: Alice;") {
		t.Errorf("snapshot missing cell rendering:\n%s", snap1)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	s := newTestStore(t)

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap != "" {
		t.Errorf("expected empty snapshot, got %q", snap)
	}
}

func TestResetRestartsAllocator(t *testing.T) {
	s := newTestStore(t)

	s.CreateRow("characters", nil)
	s.CreateRow("characters", nil)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	rows, _ := s.Rows("characters")
	if len(rows) != 0 {
		t.Errorf("expected no rows after reset, got %d", len(rows))
	}

	id, err := s.CreateRow("characters", nil)
	if err != nil {
		t.Fatalf("CreateRow after reset: %v", err)
	}
	if id != "A1" {
		t.Errorf("first id after reset = %q, want %q", id, "A1")
	}
}
