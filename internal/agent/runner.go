// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"

	"github.com/howyoungchen/deepRolePlay-sub000/internal/logging"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/model"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/tools"
	"github.com/howyoungchen/deepRolePlay-sub000/internal/transcript"
)

// EmitFunc receives a run's observable output: each iteration's assistant
// text, as one piece in whole-response mode or as ordered fragments in
// streaming mode.
type EmitFunc func(fragment string)

// Runner drives the generate → parse → dispatch → append cycle over one
// transcript. A Runner is cheap and single-use per run is fine; the registry
// and provider it holds are read-only and shared safely across runs.
type Runner struct {
	provider  ChatProvider
	registry  *tools.Registry
	cfg       model.RunConfig
	persister *transcript.Persister
	logger    *logging.Logger
}

// NewRunner creates a Runner. persister may be nil to skip transcript
// persistence.
func NewRunner(provider ChatProvider, registry *tools.Registry, cfg model.RunConfig, persister *transcript.Persister, logger *logging.Logger) *Runner {
	return &Runner{
		provider:  provider,
		registry:  registry,
		cfg:       cfg,
		persister: persister,
		logger:    logger,
	}
}

// Run executes the loop on the seed messages until the model stops requesting
// calls (OutcomeDone) or the iteration cap is hit (OutcomeExhausted). Both
// outcomes return the full transcript; the only error Run returns is the
// caller's own context cancellation, checked between iterations.
//
// A backend failure becomes an "ERROR: ..." assistant message and ends the
// run through the no-calls path. A non-empty reply without a recognizable
// call block is likewise terminal: the prompt instructs the model to emit
// nothing but the block when it wants to act, so prose means it is finished.
func (r *Runner) Run(ctx context.Context, seed []model.Message, emit EmitFunc) (*transcript.Transcript, model.Outcome, error) {
	if emit == nil {
		emit = func(string) {}
	}
	tr := transcript.New(seed)
	logger := r.logger.WithField("run_id", tr.RunID)
	logger.Infof("Starting agent run with max %d iterations", r.cfg.MaxIterations)

	outcome := model.OutcomeExhausted
	for i := 0; i < r.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			r.finish(tr)
			return tr, outcome, err
		}
		logger.Debugf("Agent iteration %d", i+1)

		content, genErr := r.generate(ctx, tr, emit)
		if genErr != nil {
			// Degrade to an assistant message explaining the failure; the
			// extractor finds no calls in it and the loop ends cleanly.
			errText := "ERROR: " + genErr.Error()
			logger.Errorf("Completion failed on iteration %d: %v", i+1, genErr)
			emit(errText)
			content += errText
			tr.AppendAssistant(content, nil)
			outcome = model.OutcomeDone
			break
		}

		calls := ExtractToolCalls(content)
		if len(calls) == 0 {
			tr.AppendAssistant(content, nil)
			outcome = model.OutcomeDone
			logger.Infof("Agent run completed after %d iterations", i+1)
			break
		}

		tr.AppendAssistant(content, calls)
		logger.Debugf("Dispatching %d tool calls in iteration %d", len(calls), i+1)
		results := Dispatch(ctx, r.registry, calls)
		tr.AppendToolResults(results)
	}

	if outcome == model.OutcomeExhausted {
		logger.Warnf("Agent run hit the iteration cap (%d) with calls still pending", r.cfg.MaxIterations)
	}

	r.finish(tr)
	return tr, outcome, nil
}

func (r *Runner) generate(ctx context.Context, tr *transcript.Transcript, emit EmitFunc) (string, error) {
	if r.cfg.Stream {
		return r.provider.StreamCompletion(ctx, r.cfg, tr.Messages(), emit)
	}
	content, err := r.provider.CreateCompletion(ctx, r.cfg, tr.Messages())
	if err != nil {
		return "", err
	}
	emit(content)
	return content, nil
}

func (r *Runner) finish(tr *transcript.Transcript) {
	if r.persister != nil {
		r.persister.Save(tr)
	}
}
