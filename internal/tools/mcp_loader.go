// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mcpConfig mirrors the usual mcpServers config file layout.
// TODO: support Env
type mcpConfig struct {
	MCP map[string]struct {
		Command string   `json:"command,omitempty"`
		Args    []string `json:"args,omitempty"`
		URL     string   `json:"url,omitempty"`
	} `json:"mcpServers"`
}

// LoadMCPTools connects to every MCP server listed in the config file at path
// and registers their tools into r. Servers that fail to connect are skipped
// with a warning; an unreadable config file is an error.
func LoadMCPTools(ctx context.Context, r *Registry, path string, logger *logging.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read mcp config: %w", err)
	}
	var cfg mcpConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse mcp config: %w", err)
	}

	for name, spec := range cfg.MCP {
		var tp mcp.Transport
		switch {
		case spec.Command != "":
			tp = &mcp.CommandTransport{Command: exec.Command(spec.Command, spec.Args...)}
		case spec.URL != "":
			tp = &mcp.SSEClientTransport{Endpoint: spec.URL}
		default:
			continue
		}

		cli := mcp.NewClient(&mcp.Implementation{Name: "deeproleplay", Version: "1.0.0"}, nil)
		session, err := cli.Connect(ctx, tp, nil)
		if err != nil {
			logger.Warnf("Failed to connect to MCP server %s: %v", name, err)
			continue
		}

		resp, err := session.ListTools(ctx, nil)
		if err != nil {
			logger.Warnf("Failed to list tools for MCP server %s: %v", name, err)
			continue
		}

		for _, tl := range resp.Tools {
			desc := Descriptor{
				Name:        tl.Name,
				Description: tl.Description,
				Parameters:  paramsFromSchema(tl.InputSchema),
			}
			handler := mcpHandler(session, tl.Name)
			if err := r.Register(desc, handler); err != nil {
				logger.Warnf("Skipping MCP tool %s from %s: %v", tl.Name, name, err)
			}
		}
	}
	return nil
}

// mcpHandler routes a call to its originating MCP session and flattens the
// response content into a single string.
func mcpHandler(session *mcp.ClientSession, name string) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		})
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(res.Content)
		if err != nil {
			return "", fmt.Errorf("encode tool response: %w", err)
		}
		return string(out), nil
	}
}

// paramsFromSchema converts an MCP JSON schema into the ordered parameter list
// a Descriptor carries. Properties come out sorted by name so the catalogue
// stays deterministic.
func paramsFromSchema(schema any) []Param {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var parsed struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, name := range parsed.Required {
		required[name] = true
	}

	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Param, 0, len(names))
	for _, name := range names {
		p := parsed.Properties[name]
		typ := p.Type
		if typ == "" {
			typ = "any"
		}
		params = append(params, Param{
			Name:        name,
			Type:        typ,
			Required:    required[name],
			Description: p.Description,
		})
	}
	return params
}
