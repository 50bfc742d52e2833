// SPDX-License-Identifier: AGPL-3.0-only
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

// Persister writes finished transcripts to disk for audit. Persistence is a
// side effect of a run, never part of its outcome: every failure is logged
// and swallowed.
type Persister struct {
	mode   string
	dir    string
	logger *logging.Logger
}

// NewPersister creates a Persister. mode is one of model.HistoryJSON,
// model.HistoryTxt or model.HistoryNone.
func NewPersister(mode, dir string, logger *logging.Logger) *Persister {
	return &Persister{mode: mode, dir: dir, logger: logger}
}

// Save writes the transcript in the configured rendering.
func (p *Persister) Save(t *Transcript) {
	if p.mode == model.HistoryNone {
		return
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		p.logger.Warnf("Failed to create history dir %s: %v", p.dir, err)
		return
	}

	var (
		path string
		err  error
	)
	switch p.mode {
	case model.HistoryJSON:
		path = filepath.Join(p.dir, fmt.Sprintf("messages_%s.json", t.RunID))
		err = saveJSON(t, path)
	case model.HistoryTxt:
		path = filepath.Join(p.dir, fmt.Sprintf("messages_%s.txt", t.RunID))
		err = saveTxt(t, path)
	default:
		p.logger.Warnf("Unknown history type %q, skipping save", p.mode)
		return
	}

	if err != nil {
		p.logger.Warnf("Failed to save transcript %s: %v", t.RunID, err)
		return
	}
	p.logger.Infof("Transcript saved to %s", path)
}

func saveJSON(t *Transcript, path string) error {
	data, err := json.MarshalIndent(t.Messages(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func banner(label string) string {
	const width = 80
	pad := width - len(label)
	left := pad / 2
	right := pad - left
	return strings.Repeat("=", left) + label + strings.Repeat("=", right) + "\n"
}

func saveTxt(t *Transcript, path string) error {
	var b strings.Builder
	b.WriteString(banner("    Start    "))

	for _, m := range t.Messages() {
		switch m.Role {
		case model.RoleSystem:
			b.WriteString(banner(" System Message "))
			b.WriteString("content: \n")
			b.WriteString(m.Content + "\n\n")
		case model.RoleUser:
			b.WriteString(banner(" User Message "))
			b.WriteString("content: \n")
			b.WriteString(m.Content + "\n\n")
		case model.RoleAssistant:
			b.WriteString(banner(" AI Message "))
			b.WriteString("content: \n")
			b.WriteString(prettyJSON(m.Content) + "\n\n")
		case model.RoleTool:
			b.WriteString(banner(" Tool Message "))
			b.WriteString("tool_call_id: \n")
			b.WriteString("    " + m.ToolCallID + "\n")
			if m.ToolName != "" {
				b.WriteString("name: \n")
				b.WriteString("    " + m.ToolName + "\n")
			}
			b.WriteString("content: \n")
			b.WriteString("    " + m.Content + "\n\n")
		}
	}

	b.WriteString(banner("    END    "))
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// prettyJSON re-indents content when it is a JSON document; anything else is
// returned untouched.
func prettyJSON(content string) string {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return content
	}
	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return content
	}
	return string(out)
}
