// SPDX-License-Identifier: AGPL-3.0-only
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

type stubUpdater struct {
	history []model.Message
	err     error
}

func (s *stubUpdater) Update(ctx context.Context, history []model.Message) error {
	s.history = history
	return s.err
}

type stubSnapshot string

func (s stubSnapshot) Snapshot() (string, error) { return string(s), nil }

func newTestProxy(t *testing.T, upstreamURL string, updater *stubUpdater, snapshot string) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Proxy.TargetURL = upstreamURL
	cfg.Proxy.APIKey = "sk-test"

	srv := NewServer(cfg, updater, stubSnapshot(snapshot), logging.GetDefaultLogger())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postChat(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatCompletions_ForwardsWithInjection(t *testing.T) {
	var got chatCompletionRequest
	var auth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding forwarded body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	}))
	defer upstream.Close()

	updater := &stubUpdater{}
	ts := newTestProxy(t, upstream.URL, updater, "## characters\n[A1] name: Mira;")

	resp := postChat(t, ts.URL, `{
		"model": "gpt-4o",
		"messages": [
			{"role": "system", "content": "card"},
			{"role": "user", "content": "continue"}
		],
		"temperature": 0.7
	}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"content":"hi"`) {
		t.Errorf("upstream response not relayed: %s", body)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("authorization = %q, want bearer key", auth)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("forwarded model = %q", got.Model)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature not forwarded: %v", got.Temperature)
	}
	last := got.Messages[len(got.Messages)-1]
	if !strings.Contains(last.Content, "<current_scenario>") || !strings.Contains(last.Content, "Mira") {
		t.Errorf("scenario not injected into forwarded request: %q", last.Content)
	}

	// The updater sees the conversation as received, before injection.
	if len(updater.history) != 2 || strings.Contains(updater.history[1].Content, "<current_scenario>") {
		t.Errorf("unexpected updater history: %+v", updater.history)
	}
}

func TestChatCompletions_StreamPassthrough(t *testing.T) {
	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"on\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ce\"}}]}\n\n",
		"data: [DONE]\n\n",
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			io.WriteString(w, c)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	ts := newTestProxy(t, upstream.URL, &stubUpdater{}, "")

	resp := postChat(t, ts.URL, `{"model":"m","stream":true,"messages":[{"role":"system","content":"s"},{"role":"user","content":"u"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != strings.Join(chunks, "") {
		t.Errorf("stream body altered:\n%s", body)
	}
}

func TestChatCompletions_InvalidBody(t *testing.T) {
	ts := newTestProxy(t, "http://127.0.0.1:0", &stubUpdater{}, "")

	resp := postChat(t, ts.URL, `{"model": `)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("invalid request body")) {
		t.Errorf("unexpected error body: %s", body)
	}
}

func TestChatCompletions_EmptyMessages(t *testing.T) {
	ts := newTestProxy(t, "http://127.0.0.1:0", &stubUpdater{}, "")

	resp := postChat(t, ts.URL, `{"model":"m","messages":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatCompletions_UpstreamErrorRelayed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer upstream.Close()

	ts := newTestProxy(t, upstream.URL, &stubUpdater{}, "")

	resp := postChat(t, ts.URL, `{"model":"m","messages":[{"role":"user","content":"u"},{"role":"user","content":"v"}]}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "rate limited") {
		t.Errorf("upstream error body not relayed: %s", body)
	}
}

func TestChatCompletions_UpdaterFailureStillForwards(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer upstream.Close()

	updater := &stubUpdater{err: fmt.Errorf("agent broke")}
	ts := newTestProxy(t, upstream.URL, updater, "")

	resp := postChat(t, ts.URL, `{"model":"m","messages":[{"role":"system","content":"s"},{"role":"user","content":"u"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 despite updater failure", resp.StatusCode)
	}
}

func TestChatCompletions_UnreachableUpstream(t *testing.T) {
	ts := newTestProxy(t, "http://127.0.0.1:1", &stubUpdater{}, "")

	resp := postChat(t, ts.URL, `{"model":"m","messages":[{"role":"system","content":"s"},{"role":"user","content":"u"}]}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestProxy(t, "http://127.0.0.1:0", &stubUpdater{}, "")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("unexpected health body: %s", body)
	}
}
