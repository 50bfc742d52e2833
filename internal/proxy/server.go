// SPDX-License-Identifier: AGPL-3.0-only

// Package proxy is the OpenAI-compatible HTTP front end. Each chat completion
// request first runs the scenario-update agent over the incoming conversation,
// then forwards the request upstream with the refreshed scenario snapshot
// injected into the message list.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/config"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest carries the fields the proxy understands. Optional
// sampling fields are pointers so absent values stay absent when the request
// is re-encoded for the upstream.
type chatCompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Stream           bool          `json:"stream,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
}

// ScenarioUpdater runs the scenario-update agent before a request is
// forwarded.
type ScenarioUpdater interface {
	Update(ctx context.Context, history []model.Message) error
}

// Snapshotter supplies the current scenario rendering for injection.
type Snapshotter interface {
	Snapshot() (string, error)
}

// Server forwards chat completion requests to the configured upstream.
type Server struct {
	cfg      *config.Config
	updater  ScenarioUpdater
	scenario Snapshotter
	client   *http.Client
	logger   *logging.Logger
	httpSrv  *http.Server
}

// NewServer creates the proxy server.
func NewServer(cfg *config.Config, updater ScenarioUpdater, scenario Snapshotter, logger *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		updater:  updater,
		scenario: scenario,
		client:   &http.Client{Timeout: time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second},
		logger:   logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/healthz", s.handleHealth)
	return r
}

// Start begins serving and blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Server.Port),
		Handler: s.Router(),
	}
	s.logger.Infof("proxy listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	// A failed update leaves the last good scenario in place; the request is
	// still forwarded.
	if err := s.updater.Update(r.Context(), toModelMessages(req.Messages)); err != nil {
		s.logger.Errorf("scenario update failed: %v", err)
	}

	snapshot, err := s.scenario.Snapshot()
	if err != nil {
		s.logger.Errorf("reading scenario snapshot: %v", err)
		snapshot = ""
	}
	req.Messages = injectScenario(req.Messages, snapshot)
	s.forward(w, r, &req)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, req *chatCompletionRequest) {
	body, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("encoding upstream request: %v", err))
		return
	}

	target := strings.TrimRight(s.cfg.Proxy.TargetURL, "/") + "/chat/completions"
	up, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("building upstream request: %v", err))
		return
	}
	up.Header.Set("Content-Type", "application/json")
	up.Header.Set("User-Agent", "deeproleplay-proxy/1.0")
	if s.cfg.Proxy.APIKey != "" {
		up.Header.Set("Authorization", "Bearer "+s.cfg.Proxy.APIKey)
	}

	resp, err := s.client.Do(up)
	if err != nil {
		s.logger.Errorf("upstream request failed: %v", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	s.relay(w, resp, req.Stream && resp.StatusCode < http.StatusBadRequest)
}

// relay copies the upstream response to the client, flushing after each chunk
// when streaming so server-sent events reach the client as they arrive.
func (s *Server) relay(w http.ResponseWriter, resp *http.Response, stream bool) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if stream {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(resp.StatusCode)

	if !stream {
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.logger.Errorf("relaying upstream response: %v", err)
		}
		return
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.logger.Errorf("writing stream to client: %v", werr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Errorf("reading upstream stream: %v", err)
			return
		}
	}
}

func toModelMessages(msgs []chatMessage) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = model.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "proxy_error"},
	})
}
