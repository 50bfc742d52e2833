// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/errors"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/tools"
)

// Dispatch executes one iteration's calls concurrently against the registry
// and blocks until all of them have finished. Every call produces exactly one
// result correlated by call id: an unknown tool name yields an error result
// without invoking anything, and a failing handler yields an error result
// without affecting its siblings. Dispatch itself never fails.
func Dispatch(ctx context.Context, registry *tools.Registry, calls []model.ToolCall) []model.ToolResult {
	results := make([]model.ToolResult, len(calls))

	g := new(errgroup.Group)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = runCall(ctx, registry, call)
			return nil
		})
	}
	// Workers only write their own slot and never return an error.
	_ = g.Wait()

	return results
}

func runCall(ctx context.Context, registry *tools.Registry, call model.ToolCall) model.ToolResult {
	result := model.ToolResult{CallID: call.ID, Name: call.Name}

	handler, ok := registry.Lookup(call.Name)
	if !ok {
		result.Content = "ERROR: " + errors.UnknownTool(call.Name).Error()
		return result
	}

	out, err := handler(ctx, call.Arguments)
	if err != nil {
		result.Content = "ERROR: " + err.Error()
		return result
	}
	result.Content = out
	return result
}
