package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// redirectStripper removes benign redirect words from a command line.
type redirectStripper struct {
	re *regexp.Regexp
}

func newRedirectStripper(patterns []string) (*redirectStripper, error) {
	if len(patterns) == 0 {
		return &redirectStripper{}, nil
	}
	alts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: benign redirect %q: %v", ErrInvalidRules, p, err)
		}
		alts = append(alts, "(?:"+p+")")
	}
	re, err := regexp.Compile(strings.Join(alts, "|"))
	if err != nil {
		return nil, fmt.Errorf("%w: benign redirects: %v", ErrInvalidRules, err)
	}
	return &redirectStripper{re: re}, nil
}

var defaultStripper = mustStripper(DefaultBenignRedirects)

func mustStripper(patterns []string) *redirectStripper {
	s, err := newRedirectStripper(patterns)
	if err != nil {
		panic(err)
	}
	return s
}

// NormalizeRedirects strips the default benign redirects (2>/dev/null,
// 1>/dev/null, &>/dev/null, >/dev/null, 2>&1, 2>>&1) from command.
func NormalizeRedirects(command string) string {
	return defaultStripper.strip(command)
}

// strip removes every match that stands as a whole shell word and repeats
// until nothing changes, so stripping is idempotent. Separators around a
// removed word are kept, which means removal never glues two words together.
// A match starting with > may follow a word directly: bash reads
// cmd>/dev/null as cmd plus a redirect.
func (s *redirectStripper) strip(command string) string {
	if s.re == nil {
		return command
	}
	for {
		next := s.stripOnce(command)
		if next == command {
			return next
		}
		command = next
	}
}

func (s *redirectStripper) stripOnce(command string) string {
	matches := s.re.FindAllStringIndex(command, -1)
	if len(matches) == 0 {
		return command
	}

	var b strings.Builder
	b.Grow(len(command))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start == end {
			continue
		}
		if start > 0 && !isWordBreak(command[start-1]) && command[start] != '>' {
			continue
		}
		if end < len(command) && !isWordBreak(command[end]) {
			continue
		}
		b.WriteString(command[last:start])
		last = end
	}
	b.WriteString(command[last:])
	return b.String()
}

// isWordBreak reports whether c ends a shell word.
func isWordBreak(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ';', '|', '&':
		return true
	}
	return false
}
