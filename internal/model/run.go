// SPDX-License-Identifier: AGPL-3.0-only
package model

// Outcome reports how a run ended.
type Outcome string

const (
	// OutcomeDone means the model stopped requesting tool calls.
	OutcomeDone Outcome = "done"
	// OutcomeExhausted means the iteration cap was reached while calls were
	// still being issued. The run's transcript is still valid.
	OutcomeExhausted Outcome = "exhausted"
)

// History persistence modes.
const (
	HistoryJSON = "json"
	HistoryTxt  = "txt"
	HistoryNone = "none"
)

// RunConfig carries the per-run generation and persistence parameters.
type RunConfig struct {
	Model            string
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int64
	MaxIterations    int
	Stream           bool
	HistoryType      string
	HistoryPath      string
}
