// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

// The in-band call protocol: the model embeds
//
//	{"tool_calls": [{"tool_name": "...", "arguments": {...}}, ...]}
//
// somewhere in its reply, usually inside a ```json fence. Absence of a
// parseable block means "no calls requested".

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

type callEntry struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ExtractToolCalls scans raw assistant text for an embedded call block,
// tolerating surrounding commentary and code fencing. Recognition is tried in
// order of specificity: a fenced block, a bare object containing the
// tool_calls key anywhere in the text, then the whole trimmed text. The first
// well-formed match wins. Entries that do not fit the expected shape are
// dropped; a reply with no recognizable block yields nil.
func ExtractToolCalls(text string) []model.ToolCall {
	for _, match := range fencedBlockRegex.FindAllStringSubmatch(text, -1) {
		if entries, ok := decodeCallEnvelope(match[1]); ok {
			return assignCallIDs(entries)
		}
	}

	if entries, ok := findEmbeddedEnvelope(text); ok {
		return assignCallIDs(entries)
	}

	if entries, ok := decodeCallEnvelope(strings.TrimSpace(text)); ok {
		return assignCallIDs(entries)
	}

	return nil
}

// decodeCallEnvelope parses s as a JSON object carrying a tool_calls array
// and validates each entry's shape. ok reports whether the envelope itself
// was recognized; a recognized envelope whose entries are all malformed
// yields (nil, true), which the loop treats as call-free.
func decodeCallEnvelope(s string) ([]callEntry, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &envelope); err != nil {
		return nil, false
	}
	rawList, found := envelope["tool_calls"]
	if !found {
		return nil, false
	}

	var rawEntries []json.RawMessage
	if err := json.Unmarshal(rawList, &rawEntries); err != nil {
		return nil, false
	}

	var entries []callEntry
	for _, raw := range rawEntries {
		var entry callEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.ToolName == "" {
			continue
		}
		if entry.Arguments == nil {
			entry.Arguments = map[string]any{}
		}
		entries = append(entries, entry)
	}
	return entries, true
}

// findEmbeddedEnvelope locates a bare JSON object containing the tool_calls
// key anywhere in the text. It backtracks from the key to the nearest opening
// brace and decodes a single JSON value from there, ignoring whatever prose
// follows it.
func findEmbeddedEnvelope(text string) ([]callEntry, bool) {
	searchFrom := 0
	for {
		keyIdx := strings.Index(text[searchFrom:], `"tool_calls"`)
		if keyIdx == -1 {
			return nil, false
		}
		keyIdx += searchFrom

		start := strings.LastIndexByte(text[:keyIdx], '{')
		if start == -1 {
			searchFrom = keyIdx + 1
			continue
		}

		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var candidate json.RawMessage
		if err := dec.Decode(&candidate); err == nil {
			if entries, ok := decodeCallEnvelope(string(candidate)); ok {
				return entries, true
			}
		}
		searchFrom = keyIdx + 1
	}
}

// assignCallIDs turns validated entries into ToolCalls with freshly generated
// identifiers, unique within the run.
func assignCallIDs(entries []callEntry) []model.ToolCall {
	if len(entries) == 0 {
		return nil
	}
	calls := make([]model.ToolCall, len(entries))
	for i, entry := range entries {
		calls[i] = model.ToolCall{
			ID:        newCallID(),
			Name:      entry.ToolName,
			Arguments: entry.Arguments,
		}
	}
	return calls
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
