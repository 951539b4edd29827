// Package reviewer gets a second opinion on commands the rules rejected. A
// long-lived daemon behind a unix socket asks Claude and answers ALLOW or
// ASK; the hook only ever hears Proceed or a deferral back to the host.
package reviewer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/victorarias/bashguard/internal/classifier"
	"github.com/victorarias/bashguard/internal/decisionlog"
	"github.com/victorarias/bashguard/internal/gate"
)

// notReviewable are rejections no reviewer may overrule: the command holds
// shell syntax the rules cannot see through.
var notReviewable = map[string]bool{
	classifier.RuleMetachar:     true,
	classifier.RuleUnterminated: true,
	classifier.RuleEmpty:        true,
}

// Querier sends one request to a reviewer.
type Querier interface {
	Query(ctx context.Context, req Request) (Response, error)
}

// Reviewer is a gate.Confirmer backed by a reviewer daemon.
type Reviewer struct {
	querier Querier
	log     *slog.Logger
}

// New returns a Reviewer. A nil logger discards.
func New(q Querier, log *slog.Logger) *Reviewer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Reviewer{querier: q, log: log}
}

// Confirm returns gate.Proceed when the reviewer answers ALLOW. Every other
// answer, and every failure, defers to the host.
func (r *Reviewer) Confirm(ctx context.Context, req gate.Request) (gate.Outcome, error) {
	if notReviewable[req.Result.Rule] {
		return gate.Proceed, fmt.Errorf("%w: %s is not reviewable", gate.ErrDeferred, req.Result.Rule)
	}

	id := decisionlog.NewRequestID()
	resp, err := r.querier.Query(ctx, Request{
		ID:      id,
		Command: req.Command,
		Reason:  req.Result.Reason,
		WorkDir: req.WorkDir,
	})
	if err != nil {
		r.log.Warn("reviewer unavailable", "request_id", id, "err", err)
		return gate.Proceed, fmt.Errorf("%w: reviewer: %v", gate.ErrDeferred, err)
	}

	r.log.Debug("reviewer answered", "request_id", id, "decision", resp.Decision, "reason", resp.Reason)
	if resp.Decision != DecisionAllow {
		return gate.Proceed, fmt.Errorf("%w: reviewer said %s: %s", gate.ErrDeferred, resp.Decision, resp.Reason)
	}
	return gate.Proceed, nil
}
