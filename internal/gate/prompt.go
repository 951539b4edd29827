package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// maxPromptAttempts bounds how often an unreadable answer is asked again.
const maxPromptAttempts = 3

// Prompt is a line-based Confirmer for terminals. It shows the command and
// reads one of proceed, skip or abort (or their first letter). Reads block;
// ctx is only checked between attempts.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p Prompt) Confirm(ctx context.Context, req Request) (Outcome, error) {
	sc := bufio.NewScanner(p.In)

	fmt.Fprintf(p.Out, "Not known to be safe: %s\n  %s\n", req.Result.Reason, req.Command)
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Proceed, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		fmt.Fprint(p.Out, "[p]roceed, [s]kip or [a]bort? ")

		if !sc.Scan() {
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			return Proceed, fmt.Errorf("%w: reading answer: %v", ErrCancelled, err)
		}
		if o, ok := parseAnswer(sc.Text()); ok {
			return o, nil
		}
		fmt.Fprintf(p.Out, "unrecognised answer %q\n", strings.TrimSpace(sc.Text()))
	}
	return Proceed, fmt.Errorf("%w: no valid answer", ErrCancelled)
}

func parseAnswer(line string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "p", "proceed", "y", "yes":
		return Proceed, true
	case "s", "skip", "n", "no":
		return Skip, true
	case "a", "abort":
		return Abort, true
	}
	return Proceed, false
}
