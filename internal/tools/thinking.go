// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"fmt"
)

// RegisterThinkingTool adds sequential_thinking, a scratchpad that lets the
// model lay out numbered reasoning steps. The tool only echoes progress back;
// the value is in the transcript the model builds with it.
func RegisterThinkingTool(r *Registry) error {
	return r.Register(Descriptor{
		Name:        "sequential_thinking",
		Description: "Record one step of a numbered chain of thought. Use it to reason before changing the scenario.",
		Parameters: []Param{
			{Name: "thought", Type: "string", Required: true, Description: "The content of this thinking step"},
			{Name: "thought_number", Type: "integer", Required: true, Description: "Index of this step, starting at 1"},
			{Name: "total_thoughts", Type: "integer", Required: true, Description: "Expected total number of steps"},
			{Name: "next_thought_needed", Type: "boolean", Required: true, Description: "Whether another step should follow"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		if _, err := stringArg(args, "thought"); err != nil {
			return "", err
		}
		number, _ := args["thought_number"].(float64)
		total, _ := args["total_thoughts"].(float64)
		next, _ := args["next_thought_needed"].(bool)

		status := "thinking complete"
		if next {
			status = "continue with the next thought"
		}
		return fmt.Sprintf("recorded thought %d/%d; %s", int(number), int(total), status), nil
	})
}
