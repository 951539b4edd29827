// Package gate sits between a host that is about to run a shell command and
// the operator who may have to confirm it. Safe commands proceed without
// asking; everything else goes to a Confirmer.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/victorarias/bashguard/internal/classifier"
)

// Outcome is the operator's answer for one command.
type Outcome int

const (
	// Proceed runs the command normally.
	Proceed Outcome = iota
	// Skip reports a synthetic failure for this call only.
	Skip
	// Abort cancels the in-flight task.
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Block reasons. A Verdict carrying one of these did not reach an outcome
// and the host must fall back to its own handling.
var (
	ErrNoConfirmer = errors.New("gate: no confirmer available")
	ErrCancelled   = errors.New("gate: confirmation cancelled")
	ErrDeferred    = errors.New("gate: decision deferred to host")
)

// Sources reported in Verdict.Source.
const (
	SourceRules     = "rules"
	SourceConfirmer = "confirmer"
)

// Request is what a Confirmer is asked about.
type Request struct {
	Command string
	WorkDir string
	Result  classifier.Result
}

// Confirmer asks someone (a person, a reviewer) what to do with an unsafe
// command.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (Outcome, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req Request) (Outcome, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req Request) (Outcome, error) {
	return f(ctx, req)
}

// Verdict is the gate's decision for one command.
type Verdict struct {
	Outcome Outcome
	Result  classifier.Result
	Source  string
	// Err is non-nil when no outcome was reached. It wraps one of
	// ErrNoConfirmer, ErrCancelled or ErrDeferred.
	Err error
}

// Blocked reports whether the verdict carries a block reason instead of an
// outcome.
func (v Verdict) Blocked() bool { return v.Err != nil }

// Gate decides commands with a classifier and an optional confirmer.
type Gate struct {
	classifier *classifier.Classifier
	confirmer  Confirmer
}

// New returns a gate. A nil classifier means classifier.Default(); a nil
// confirmer blocks every unsafe command with ErrNoConfirmer.
func New(c *classifier.Classifier, confirmer Confirmer) *Gate {
	if c == nil {
		c = classifier.Default()
	}
	return &Gate{classifier: c, confirmer: confirmer}
}

// Decide classifies command and, when it is not safe, asks the confirmer.
func (g *Gate) Decide(ctx context.Context, command, workDir string) Verdict {
	res := g.classifier.Classify(command)
	if res.Safe {
		return Verdict{Outcome: Proceed, Result: res, Source: SourceRules}
	}

	v := Verdict{Result: res, Source: SourceConfirmer}
	if g.confirmer == nil {
		v.Err = ErrNoConfirmer
		return v
	}
	if err := ctx.Err(); err != nil {
		v.Err = fmt.Errorf("%w: %v", ErrCancelled, err)
		return v
	}

	outcome, err := g.confirmer.Confirm(ctx, Request{Command: command, WorkDir: workDir, Result: res})
	if err != nil {
		v.Err = blockReason(err)
		return v
	}
	v.Outcome = outcome
	return v
}

// blockReason makes sure err wraps one of the block sentinels.
func blockReason(err error) error {
	switch {
	case errors.Is(err, ErrNoConfirmer), errors.Is(err, ErrCancelled), errors.Is(err, ErrDeferred):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return fmt.Errorf("%w: %v", ErrDeferred, err)
}
