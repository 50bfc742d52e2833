// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"fmt"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/errors"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/scenario"
)

// RegisterScenarioTools adds the scenario table CRUD tools backed by store.
func RegisterScenarioTools(r *Registry, store *scenario.Store) error {
	if err := r.Register(Descriptor{
		Name:        "create_row",
		Description: "Create a new row in a scenario table. Returns the allocated row id.",
		Parameters: []Param{
			{Name: "table", Type: "string", Required: true, Description: "Target table name, e.g. characters, locations, events"},
			{Name: "cells", Type: "object", Required: false, Description: "Column name to value mapping for the new row"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		table, err := stringArg(args, "table")
		if err != nil {
			return "", err
		}
		cells, err := cellsArg(args, "cells")
		if err != nil {
			return "", err
		}
		id, err := store.CreateRow(table, cells)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("created row %s in table %s", id, table), nil
	}); err != nil {
		return err
	}

	if err := r.Register(Descriptor{
		Name:        "update_cell",
		Description: "Update one cell of an existing scenario row. An empty value removes the cell.",
		Parameters: []Param{
			{Name: "table", Type: "string", Required: true, Description: "Table holding the row"},
			{Name: "row_id", Type: "string", Required: true, Description: "Row identifier, e.g. A1"},
			{Name: "column", Type: "string", Required: true, Description: "Column to update"},
			{Name: "value", Type: "string", Required: false, Description: "New value; empty removes the cell"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		table, err := stringArg(args, "table")
		if err != nil {
			return "", err
		}
		rowID, err := stringArg(args, "row_id")
		if err != nil {
			return "", err
		}
		column, err := stringArg(args, "column")
		if err != nil {
			return "", err
		}
		value, _ := args["value"].(string)
		if err := store.UpdateCell(table, rowID, column, value); err != nil {
			return "", err
		}
		return fmt.Sprintf("updated %s.%s on row %s", table, column, rowID), nil
	}); err != nil {
		return err
	}

	return r.Register(Descriptor{
		Name:        "delete_row",
		Description: "Delete a row from a scenario table.",
		Parameters: []Param{
			{Name: "table", Type: "string", Required: true, Description: "Table holding the row"},
			{Name: "row_id", Type: "string", Required: true, Description: "Row identifier, e.g. A1"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		table, err := stringArg(args, "table")
		if err != nil {
			return "", err
		}
		rowID, err := stringArg(args, "row_id")
		if err != nil {
			return "", err
		}
		if err := store.DeleteRow(table, rowID); err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted row %s from table %s", rowID, table), nil
	})
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", errors.InvalidInput(fmt.Sprintf("missing argument %q", name))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.InvalidInput(fmt.Sprintf("argument %q must be a non-empty string", name))
	}
	return s, nil
}

func cellsArg(args map[string]any, name string) (map[string]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.InvalidInput(fmt.Sprintf("argument %q must be an object", name))
	}
	cells := make(map[string]string, len(obj))
	for k, raw := range obj {
		cells[k] = fmt.Sprint(raw)
	}
	return cells, nil
}
