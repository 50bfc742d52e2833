// SPDX-License-Identifier: AGPL-3.0-only

// Package transcript holds the ordered message history of one agent run. The
// transcript is the only state carried between loop iterations and the unit
// of persistence; it is owned by exactly one run and is append-only after
// seeding.
package transcript

import (
	"strings"

	"github.com/google/uuid"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

// Transcript is the ordered message history of one run.
type Transcript struct {
	RunID    string
	messages []model.Message
}

// New creates a transcript seeded with the given messages (normally the
// system prompt and the first user message).
func New(seed []model.Message) *Transcript {
	msgs := make([]model.Message, len(seed))
	copy(msgs, seed)
	return &Transcript{
		RunID:    strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		messages: msgs,
	}
}

// Messages returns a copy of the message history.
func (t *Transcript) Messages() []model.Message {
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// AppendAssistant records one iteration's assistant reply. Calls must be the
// calls extracted from content; the message carries them only when at least
// one was found.
func (t *Transcript) AppendAssistant(content string, calls []model.ToolCall) {
	t.messages = append(t.messages, model.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})
}

// AppendToolResults records one tool message per result, each correlated to
// its originating call.
func (t *Transcript) AppendToolResults(results []model.ToolResult) {
	for _, res := range results {
		t.messages = append(t.messages, model.Message{
			Role:       model.RoleTool,
			Content:    res.Content,
			ToolCallID: res.CallID,
			ToolName:   res.Name,
		})
	}
}

// Text renders the conversational content (user and assistant messages) as
// plain text, one message per line block. Used as the search corpus for
// history tools.
func (t *Transcript) Text() string {
	var b strings.Builder
	for _, m := range t.messages {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			continue
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
