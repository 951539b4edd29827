package reviewer

import (
	"context"
	"errors"
	"testing"

	"github.com/victorarias/bashguard/internal/classifier"
	"github.com/victorarias/bashguard/internal/gate"
)

type fakeQuerier struct {
	resp   Response
	err    error
	called int
	last   Request
}

func (f *fakeQuerier) Query(_ context.Context, req Request) (Response, error) {
	f.called++
	f.last = req
	return f.resp, f.err
}

func TestReviewerConfirm(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		querier   *fakeQuerier
		wantErr   error
		wantAsked bool
	}{
		{
			name:      "allow",
			command:   "make build",
			querier:   &fakeQuerier{resp: Response{Decision: DecisionAllow}},
			wantAsked: true,
		},
		{
			name:      "ask",
			command:   "make deploy",
			querier:   &fakeQuerier{resp: Response{Decision: DecisionAsk, Reason: "deploys"}},
			wantErr:   gate.ErrDeferred,
			wantAsked: true,
		},
		{
			name:      "daemon down",
			command:   "make build",
			querier:   &fakeQuerier{err: errors.New("connection refused")},
			wantErr:   gate.ErrDeferred,
			wantAsked: true,
		},
		{
			name:    "metacharacter never reviewed",
			command: "echo $(id)",
			querier: &fakeQuerier{resp: Response{Decision: DecisionAllow}},
			wantErr: gate.ErrDeferred,
		},
		{
			name:    "unterminated quote never reviewed",
			command: "echo 'x",
			querier: &fakeQuerier{resp: Response{Decision: DecisionAllow}},
			wantErr: gate.ErrDeferred,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.querier, nil)
			res := classifier.Classify(tt.command)

			got, err := r.Confirm(context.Background(), gate.Request{Command: tt.command, WorkDir: "/proj", Result: res})
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("Confirm() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != gate.Proceed {
				t.Errorf("Confirm() = %v, want proceed", got)
			}
			if asked := tt.querier.called > 0; asked != tt.wantAsked {
				t.Errorf("querier asked = %v, want %v", asked, tt.wantAsked)
			}
		})
	}
}

func TestReviewerSendsRequest(t *testing.T) {
	q := &fakeQuerier{resp: Response{Decision: DecisionAllow}}
	res := classifier.Classify("make build")

	New(q, nil).Confirm(context.Background(), gate.Request{Command: "make build", WorkDir: "/proj", Result: res})

	if q.last.Command != "make build" || q.last.WorkDir != "/proj" {
		t.Errorf("request = %+v", q.last)
	}
	if q.last.Reason != res.Reason {
		t.Errorf("Reason = %q, want %q", q.last.Reason, res.Reason)
	}
	if q.last.ID == "" {
		t.Error("request has no id")
	}
}

func TestReviewerThroughGate(t *testing.T) {
	q := &fakeQuerier{resp: Response{Decision: DecisionAllow}}
	g := gate.New(nil, New(q, nil))

	v := g.Decide(context.Background(), "make test", "/proj")
	if v.Blocked() || v.Outcome != gate.Proceed {
		t.Errorf("Decide(make test) = %+v, want proceed", v)
	}

	v = g.Decide(context.Background(), "ls", "/proj")
	if v.Source != gate.SourceRules || q.called != 1 {
		t.Errorf("safe command reached the reviewer: %+v, calls=%d", v, q.called)
	}
}
