// SPDX-License-Identifier: AGPL-3.0-only
package proxy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/scenario"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/tools"
)

// scriptedProvider replays fixed replies and records the seed it was given.
type scriptedProvider struct {
	replies []string
	turn    int
	seen    [][]model.Message
}

func (p *scriptedProvider) CreateCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message) (string, error) {
	p.seen = append(p.seen, messages)
	if p.turn >= len(p.replies) {
		return "", fmt.Errorf("no reply scripted for turn %d", p.turn+1)
	}
	reply := p.replies[p.turn]
	p.turn++
	return reply, nil
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, cfg model.RunConfig, messages []model.Message, emit func(string)) (string, error) {
	reply, err := p.CreateCompletion(ctx, cfg, messages)
	if err != nil {
		return "", err
	}
	emit(reply)
	return reply, nil
}

func newTestUpdater(t *testing.T, provider *scriptedProvider) (*Updater, *scenario.Store) {
	t.Helper()
	store, err := scenario.NewStore(filepath.Join(t.TempDir(), "scenario.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	static := tools.NewRegistry()
	if err := tools.RegisterScenarioTools(static, store); err != nil {
		t.Fatalf("RegisterScenarioTools: %v", err)
	}
	if err := tools.RegisterThinkingTool(static); err != nil {
		t.Fatalf("RegisterThinkingTool: %v", err)
	}

	cfg := config.DefaultConfig().Agent
	cfg.MaxIterations = 5
	return NewUpdater(cfg, provider, store, static, nil, logging.GetDefaultLogger()), store
}

func storyHistory() []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: "narrator card"},
		{Role: model.RoleUser, Content: "I enter the tavern"},
		{Role: model.RoleAssistant, Content: "Mira the innkeeper greets you by the fire."},
	}
}

func TestUpdater_AppliesTableEdits(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"```json\n{\"tool_calls\":[{\"tool_name\":\"create_row\",\"arguments\":" +
			`{"table":"characters","cells":{"name":"Mira","role":"innkeeper"}}` + "}]}\n```",
		"The tables now reflect the story.",
	}}
	u, store := newTestUpdater(t, p)

	if err := u.Update(context.Background(), storyHistory()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !strings.Contains(snap, "characters") || !strings.Contains(snap, "Mira") {
		t.Errorf("table edit not applied, snapshot:\n%s", snap)
	}
}

func TestUpdater_SeedCarriesSnapshotAndLatestDevelopment(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Nothing to update."}}
	u, store := newTestUpdater(t, p)

	if _, err := store.CreateRow("locations", map[string]string{"name": "tavern"}); err != nil {
		t.Fatalf("CreateRow: %v", err)
	}

	if err := u.Update(context.Background(), storyHistory()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(p.seen) != 1 {
		t.Fatalf("expected 1 provider turn, got %d", len(p.seen))
	}
	user := p.seen[0][1].Content
	if !strings.Contains(user, "tavern") {
		t.Errorf("user prompt missing current snapshot:\n%s", user)
	}
	if !strings.Contains(user, "Mira the innkeeper greets you") {
		t.Errorf("user prompt missing latest assistant message:\n%s", user)
	}
}

func TestUpdater_SearchToolSeesRequestHistory(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"```json\n{\"tool_calls\":[{\"tool_name\":\"re_search\",\"arguments\":{\"pattern\":\"tavern\"}}]}\n```",
		"done",
	}}
	u, _ := newTestUpdater(t, p)

	if err := u.Update(context.Background(), storyHistory()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Second turn sees the tool message carrying the search report.
	if len(p.seen) != 2 {
		t.Fatalf("expected 2 provider turns, got %d", len(p.seen))
	}
	final := p.seen[1]
	toolMsg := final[len(final)-1]
	if toolMsg.Role != model.RoleTool {
		t.Fatalf("expected tool message last, got role %q", toolMsg.Role)
	}
	if !strings.Contains(toolMsg.Content, "tavern") {
		t.Errorf("search report missing match from request history: %s", toolMsg.Content)
	}
}

func TestUpdater_RegistryCloneKeepsStaticSetClean(t *testing.T) {
	p := &scriptedProvider{replies: []string{"done", "done"}}
	u, _ := newTestUpdater(t, p)

	staticBefore := u.static.Len()
	if err := u.Update(context.Background(), storyHistory()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := u.Update(context.Background(), storyHistory()); err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if u.static.Len() != staticBefore {
		t.Errorf("static registry grew from %d to %d across requests", staticBefore, u.static.Len())
	}
}

func TestUpdater_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &scriptedProvider{replies: []string{"never used"}}
	u, _ := newTestUpdater(t, p)

	if err := u.Update(ctx, storyHistory()); err == nil {
		t.Fatal("expected context error")
	}
}
