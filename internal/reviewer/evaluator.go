package reviewer

import (
	"context"
	"fmt"
	"strings"

	"github.com/victorarias/claude-agent-sdk-go/sdk"
	"github.com/victorarias/claude-agent-sdk-go/types"
)

const systemPrompt = `You review shell commands that an AI coding agent wants to run without asking its user. A rule engine has already rejected the command as not provably read-only; you are the second opinion.

RESPOND WITH ONLY ONE WORD: "ALLOW" or "ASK"

# ALLOW when the command is routine local development work:
- Building, testing, formatting, linting: make, go, cargo, npm, yarn, pnpm, pip, python, node
- Version control that only changes local state or pushes a feature branch
- Creating, moving or removing files inside the project directory
- Removing build output: dist/, build/, out/, target/, node_modules, .cache
- Read-only inspection the rules did not know about

# ASK when the command:
- Deletes or overwrites anything outside the project directory or in $HOME
- Pushes to main or master, force-pushes, or rewrites published history
- Changes shared infrastructure: kubectl apply/delete, terraform apply, cloud CLIs that create, update or delete
- Downloads and executes code (curl | sh)
- Uses sudo, changes system services, or edits shell startup files
- Writes to a database
- Is obfuscated or too long to judge

When in doubt, ASK.`

// Evaluator reviews commands the rules did not accept.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Response, error)
	Close() error
}

// ClaudeEvaluator asks Claude through the agent SDK.
type ClaudeEvaluator struct {
	model string
}

// NewClaudeEvaluator creates an evaluator that uses the Claude API.
func NewClaudeEvaluator(model string) *ClaudeEvaluator {
	return &ClaudeEvaluator{model: model}
}

func (e *ClaudeEvaluator) Evaluate(ctx context.Context, req Request) (Response, error) {
	messages, err := sdk.RunQuery(ctx, FormatPrompt(req),
		types.WithModel(e.model),
		types.WithMaxTurns(1),
		types.WithSystemPrompt(systemPrompt),
	)
	if err != nil {
		return Response{Decision: DecisionAsk, Reason: "SDK error: " + err.Error()}, nil
	}

	var text string
	for _, msg := range messages {
		if m, ok := msg.(*types.AssistantMessage); ok {
			text = m.Text()
			break
		}
	}
	if text == "" {
		return Response{Decision: DecisionAsk, Reason: "empty response"}, nil
	}

	return Response{Decision: ParseDecision(text), Reason: strings.TrimSpace(text)}, nil
}

func (e *ClaudeEvaluator) Close() error {
	return nil
}

// FormatPrompt creates the review prompt for one command.
func FormatPrompt(req Request) string {
	return fmt.Sprintf("Command: %s\nWorking directory: %s\nRejected by rules because: %s\n\nRespond with ALLOW or ASK.",
		req.Command, req.WorkDir, req.Reason)
}

// ParseDecision extracts ALLOW or ASK from a response. Anything that does
// not clearly say ALLOW is ASK.
func ParseDecision(text string) string {
	fields := strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return (r < 'A' || r > 'Z') && r != '\''
	})
	for _, f := range fields {
		switch f {
		case DecisionAsk, "DON'T", "NOT":
			return DecisionAsk
		case DecisionAllow:
			return DecisionAllow
		}
	}
	return DecisionAsk
}
