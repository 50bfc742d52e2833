// SPDX-License-Identifier: AGPL-3.0-only

// Package prompt assembles the system and user prompts for a run: the base
// prompts plus the in-band calling-convention block and the tool catalogue.
package prompt

import (
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/tools"
)

// systemHeader instructs the model on the in-band call format. The model gets
// the terse tool listing here; the detailed parameter catalogue goes into the
// user prompt to keep the system prompt stable across tool schema changes.
const systemHeader = `

<tool calling instructions>
When you want to act, output tool calls as a JSON block in the body of your
reply and nothing else. Do not write any text outside the JSON block.
Multiple tools may be called at once.
Format example:
` + "```json" + `
{
  "tool_calls": [
    {
      "tool_name": "tool_name_1",
      "arguments": {"param_name": "param_value"}
    },
    {
      "tool_name": "tool_name_2",
      "arguments": {"param_name": "param_value"}
    }
  ]
}
` + "```" + `

When you are finished and no further action is needed, reply without any JSON
block.

Available tools:
`

const systemFooter = `</tool calling instructions>`

const userHeader = `

<tool usage reference>
Tool usage reference:
`

const userFooter = `</tool usage reference>
`

// BuildSystemPrompt appends the calling convention and the tool summary to the
// base system prompt.
func BuildSystemPrompt(base string, reg *tools.Registry) string {
	return base + systemHeader + reg.Summary() + systemFooter
}

// BuildUserPrompt prepends the detailed tool catalogue to the user task.
func BuildUserPrompt(reg *tools.Registry, userInput string) string {
	return userHeader + reg.Catalogue() + userFooter + userInput
}

// Seed builds the initial two-message transcript for a run.
func Seed(baseSystem, userInput string, reg *tools.Registry) []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: BuildSystemPrompt(baseSystem, reg)},
		{Role: model.RoleUser, Content: BuildUserPrompt(reg, userInput)},
	}
}
