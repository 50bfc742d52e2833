// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/errors"
)

const (
	defaultSearchResults = 10
	searchContextChars   = 200
)

type searchMatch struct {
	Line    int    `json:"line"`
	Match   string `json:"match"`
	Context string `json:"context"`
}

type searchReport struct {
	Query   string        `json:"query"`
	Count   int           `json:"results_counts"`
	Results []searchMatch `json:"results"`
	Info    string        `json:"info,omitempty"`
}

// RegisterSearchTool adds re_search, a regex search over the conversation
// history. The history is threaded in via the corpus callback instead of any
// shared global so concurrent runs stay independent.
func RegisterSearchTool(r *Registry, corpus func() string) error {
	return r.Register(Descriptor{
		Name:        "re_search",
		Description: "Search the earlier conversation with a regular expression and return matching passages with surrounding context.",
		Parameters: []Param{
			{Name: "pattern", Type: "string", Required: true, Description: "Regular expression to search for"},
			{Name: "max_results", Type: "integer", Required: false, Description: "Maximum number of matches to return (default 10)"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		pattern, err := stringArg(args, "pattern")
		if err != nil {
			return "", err
		}
		limit := defaultSearchResults
		if v, ok := args["max_results"].(float64); ok && int(v) > 0 {
			limit = int(v)
		}

		re, err := regexp.Compile("(?s)" + pattern)
		if err != nil {
			return "", errors.InvalidInput(fmt.Sprintf("bad pattern %q: %v", pattern, err))
		}

		report := searchReport{Query: pattern, Results: []searchMatch{}}
		text := corpus()
		if text == "" {
			report.Info = "history is empty, nothing to search"
			return encodeReport(report)
		}

		for _, loc := range re.FindAllStringIndex(text, -1) {
			if len(report.Results) == limit {
				report.Info = fmt.Sprintf("truncated to the first %d matches", limit)
				break
			}
			start := loc[0] - searchContextChars
			if start < 0 {
				start = 0
			}
			end := loc[1] + searchContextChars
			if end > len(text) {
				end = len(text)
			}
			report.Results = append(report.Results, searchMatch{
				Line:    strings.Count(text[:loc[0]], "\n") + 1,
				Match:   text[loc[0]:loc[1]],
				Context: text[start:end],
			})
		}
		report.Count = len(report.Results)
		return encodeReport(report)
	})
}

func encodeReport(report searchReport) (string, error) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode search report: %w", err)
	}
	return string(out), nil
}
