// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/scenario"
)

func newTestRegistry(t *testing.T) (*Registry, *scenario.Store) {
	t.Helper()
	store, err := scenario.NewStore(filepath.Join(t.TempDir(), "scenario.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	r := NewRegistry()
	if err := RegisterScenarioTools(r, store); err != nil {
		t.Fatalf("RegisterScenarioTools: %v", err)
	}
	return r, store
}

func call(t *testing.T, r *Registry, name string, args map[string]any) (string, error) {
	t.Helper()
	h, ok := r.Lookup(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return h(context.Background(), args)
}

func TestCreateRowTool(t *testing.T) {
	r, store := newTestRegistry(t)

	out, err := call(t, r, "create_row", map[string]any{
		"table": "characters",
		"cells": map[string]any{"name": "Alice", "mood": "calm"},
	})
	if err != nil {
		t.Fatalf("create_row: %v", err)
	}
	if !strings.Contains(out, "A1") {
		t.Errorf("expected allocated id in output, got %q", out)
	}

	rows, err := store.Rows("characters")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Cells["name"] != "Alice" {
		t.Errorf("unexpected rows after create: %+v", rows)
	}
}

func TestCreateRowToolMissingTable(t *testing.T) {
	r, _ := newTestRegistry(t)

	if _, err := call(t, r, "create_row", map[string]any{}); err == nil {
		t.Fatal("expected error for missing table argument, got nil")
	}
}

func TestUpdateCellTool(t *testing.T) {
	r, store := newTestRegistry(t)

	id, _ := store.CreateRow("characters", map[string]string{"name": "Alice"})
	_, err := call(t, r, "update_cell", map[string]any{
		"table": "characters", "row_id": id, "column": "mood", "value": "angry",
	})
	if err != nil {
		t.Fatalf("update_cell: %v", err)
	}

	rows, _ := store.Rows("characters")
	if rows[0].Cells["mood"] != "angry" {
		t.Errorf("mood = %q, want %q", rows[0].Cells["mood"], "angry")
	}
}

func TestDeleteRowToolUnknownRow(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := call(t, r, "delete_row", map[string]any{"table": "characters", "row_id": "Z9"})
	if err == nil {
		t.Fatal("expected error for unknown row, got nil")
	}
}

func TestSearchToolFindsMatches(t *testing.T) {
	r := NewRegistry()
	corpus := "Alice entered the tavern.\nBob drew his sword.\nAlice smiled."
	if err := RegisterSearchTool(r, func() string { return corpus }); err != nil {
		t.Fatalf("RegisterSearchTool: %v", err)
	}

	out, err := call(t, r, "re_search", map[string]any{"pattern": "Alice"})
	if err != nil {
		t.Fatalf("re_search: %v", err)
	}

	var report struct {
		Count   int `json:"results_counts"`
		Results []struct {
			Line  int    `json:"line"`
			Match string `json:"match"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("bad report JSON: %v\n%s", err, out)
	}
	if report.Count != 2 {
		t.Errorf("match count = %d, want 2", report.Count)
	}
	if len(report.Results) == 2 && report.Results[1].Line != 3 {
		t.Errorf("second match line = %d, want 3", report.Results[1].Line)
	}
}

func TestSearchToolBadPattern(t *testing.T) {
	r := NewRegistry()
	RegisterSearchTool(r, func() string { return "text" })

	if _, err := call(t, r, "re_search", map[string]any{"pattern": "("}); err == nil {
		t.Fatal("expected error for invalid regex, got nil")
	}
}

func TestSearchToolEmptyCorpus(t *testing.T) {
	r := NewRegistry()
	RegisterSearchTool(r, func() string { return "" })

	out, err := call(t, r, "re_search", map[string]any{"pattern": "x"})
	if err != nil {
		t.Fatalf("re_search: %v", err)
	}
	if !strings.Contains(out, "history is empty") {
		t.Errorf("expected empty-history info, got %q", out)
	}
}

func TestThinkingTool(t *testing.T) {
	r := NewRegistry()
	if err := RegisterThinkingTool(r); err != nil {
		t.Fatalf("RegisterThinkingTool: %v", err)
	}

	out, err := call(t, r, "sequential_thinking", map[string]any{
		"thought":             "The tavern scene changed",
		"thought_number":      float64(1),
		"total_thoughts":      float64(3),
		"next_thought_needed": true,
	})
	if err != nil {
		t.Fatalf("sequential_thinking: %v", err)
	}
	if !strings.Contains(out, "1/3") {
		t.Errorf("expected progress in output, got %q", out)
	}
}
