// Package hook implements the Claude Code PermissionRequest hook protocol.
// Exit 0 with no output hands the decision back to Claude Code, which shows
// its own confirmation dialog; every failure ends up there.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/victorarias/bashguard/internal/decisionlog"
	"github.com/victorarias/bashguard/internal/gate"
)

// BashTool is the only tool whose input is classified.
const BashTool = "Bash"

const eventName = "PermissionRequest"

// Input matches Claude Code's PermissionRequest hook input
type Input struct {
	SessionID  string          `json:"session_id"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	WorkingDir string          `json:"cwd"`
}

// Output for PermissionRequest uses hookSpecificOutput format
type Output struct {
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

type SpecificOutput struct {
	HookEventName string    `json:"hookEventName"`
	Decision      *Decision `json:"decision,omitempty"`
}

type Decision struct {
	Behavior  string `json:"behavior"` // "allow" or "deny"
	Message   string `json:"message,omitempty"`
	Interrupt bool   `json:"interrupt,omitempty"`
}

type bashInput struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

// skipTools need no review and are not logged.
var skipTools = map[string]bool{
	// Plan mode - separate UX flow for plan approval
	"ExitPlanMode":  true,
	"EnterPlanMode": true,

	// User interaction - just prompts the user
	"AskUserQuestion": true,

	// Task tracking - internal state management
	"TaskCreate": true,
	"TaskUpdate": true,
	"TaskList":   true,
	"TaskGet":    true,
	"TaskStop":   true,
	"TaskOutput": true,

	// Read-only tools - no side effects
	"Read":      true,
	"Glob":      true,
	"Grep":      true,
	"WebFetch":  true,
	"WebSearch": true,

	// Subagent/skill invocation - spawns isolated work
	"Task":  true,
	"Skill": true,
}

// ShouldSkip reports whether toolName is passed through without logging.
func ShouldSkip(toolName string) bool {
	return skipTools[toolName]
}

// Handler answers one hook invocation.
type Handler struct {
	Gate *gate.Gate
	Log  *decisionlog.Logger
	// ConfirmerSource names the gate's confirmer in the log.
	ConfirmerSource string
}

// Run reads one Input from r and writes the decision, if any, to w. It only
// fails when the decision cannot be written.
func (h *Handler) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	log := h.Log
	if log == nil {
		log = decisionlog.Discard()
	}
	entry := decisionlog.Entry{RequestID: decisionlog.NewRequestID(), Decision: decisionlog.Ask}

	in, err := ReadInput(r)
	if err != nil {
		entry.Source, entry.Reason = decisionlog.SourceFailSafe, "failed to read input: "+err.Error()
		log.Decision(ctx, entry)
		return nil
	}
	entry.Tool, entry.Dir = in.ToolName, in.WorkingDir

	switch {
	case in.ToolName == "" || ShouldSkip(in.ToolName):
		return nil
	case in.ToolName != BashTool:
		entry.Source, entry.Reason = decisionlog.SourceSkipped, "only Bash commands are classified"
		log.Decision(ctx, entry)
		return nil
	}

	var bash bashInput
	if err := json.Unmarshal(in.ToolInput, &bash); err != nil || bash.Command == "" {
		entry.Source, entry.Reason = decisionlog.SourceFailSafe, "no command in tool input"
		log.Decision(ctx, entry)
		return nil
	}
	entry.Command = bash.Command

	v := h.Gate.Decide(ctx, bash.Command, in.WorkingDir)
	entry.Rule, entry.Reason = v.Result.Rule, v.Result.Reason
	entry.Source = h.source(v)

	if v.Blocked() {
		if !errors.Is(v.Err, gate.ErrNoConfirmer) {
			entry.Reason = v.Err.Error()
		}
		log.Decision(ctx, entry)
		return nil
	}

	var d Decision
	switch v.Outcome {
	case gate.Proceed:
		entry.Decision = decisionlog.Allow
		d = Decision{Behavior: "allow"}
	case gate.Skip:
		entry.Decision = decisionlog.Deny
		d = Decision{Behavior: "deny", Message: "bashguard: command skipped by the operator (" + v.Result.Reason + ")"}
	case gate.Abort:
		entry.Decision = decisionlog.Abort
		d = Decision{Behavior: "deny", Message: "bashguard: task aborted by the operator", Interrupt: true}
	default:
		entry.Source, entry.Reason = decisionlog.SourceFailSafe, fmt.Sprintf("unknown outcome %v", v.Outcome)
		log.Decision(ctx, entry)
		return nil
	}
	log.Decision(ctx, entry)
	return WriteDecision(w, d)
}

func (h *Handler) source(v gate.Verdict) string {
	switch {
	case v.Source == gate.SourceRules, errors.Is(v.Err, gate.ErrNoConfirmer):
		return decisionlog.SourceRules
	case errors.Is(v.Err, gate.ErrCancelled):
		return decisionlog.SourceFailSafe
	case h.ConfirmerSource != "":
		return h.ConfirmerSource
	}
	return decisionlog.SourceOperator
}

// ReadInput decodes one hook input.
func ReadInput(r io.Reader) (*Input, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// WriteDecision writes d as a PermissionRequest hook output.
func WriteDecision(w io.Writer, d Decision) error {
	return json.NewEncoder(w).Encode(Output{
		HookSpecificOutput: &SpecificOutput{
			HookEventName: eventName,
			Decision:      &d,
		},
	})
}
