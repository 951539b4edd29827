package classifier

import (
	"strings"
)

// scanState is the quoting state carried across a left-to-right scan.
// inSingle and inDouble are never both true.
type scanState struct {
	inSingle bool
	inDouble bool
	escaped  bool
}

// step consumes r and reports whether it is active: outside any quote and
// not the target of a backslash. Quote and backslash characters themselves
// are never active. With strict set, $ and ` stay active inside double
// quotes because bash still expands them there.
func (st *scanState) step(r rune, strict bool) bool {
	if st.escaped {
		st.escaped = false
		return false
	}
	switch {
	case r == '\\' && !st.inSingle:
		// A backslash is literal between single quotes.
		st.escaped = true
		return false
	case r == '\'' && !st.inDouble:
		st.inSingle = !st.inSingle
		return false
	case r == '"' && !st.inSingle:
		st.inDouble = !st.inDouble
		return false
	}
	if st.inDouble && strict && (r == '$' || r == '`') {
		return true
	}
	return !st.inSingle && !st.inDouble
}

// open reports whether the scan ended inside a quote or on a dangling
// backslash.
func (st scanState) open() bool {
	return st.inSingle || st.inDouble || st.escaped
}

// scan walks s and calls fn with the byte offset of each rune and whether
// it is active. Scanning stops early when fn returns false.
func scan(s string, strict bool, fn func(i int, r rune, active bool) bool) scanState {
	var st scanState
	for i, r := range s {
		active := st.step(r, strict)
		if fn != nil && !fn(i, r, active) {
			break
		}
	}
	return st
}

// findMetachar returns the first active rune of s that appears in set.
func findMetachar(s, set string, strict bool) (rune, int, bool) {
	var (
		found rune
		at    = -1
	)
	scan(s, strict, func(i int, r rune, active bool) bool {
		if active && strings.ContainsRune(set, r) {
			found, at = r, i
			return false
		}
		return true
	})
	return found, at, at >= 0
}

// isSegmentDelimiter reports whether an active r separates commands.
// Newlines separate commands in bash just like ;.
func isSegmentDelimiter(r rune) bool {
	switch r {
	case '|', ';', '&', '\n', '\r':
		return true
	}
	return false
}

// SplitSegments splits command at active |, ; and & (and newlines). Runs of
// delimiters such as && and || count as one boundary, and segments that are
// empty after trimming are dropped, so "ls ;" yields just "ls".
func SplitSegments(command string) []string {
	var (
		segments []string
		current  strings.Builder
	)
	flush := func() {
		if seg := strings.TrimSpace(current.String()); seg != "" {
			segments = append(segments, seg)
		}
		current.Reset()
	}

	scan(command, false, func(_ int, r rune, active bool) bool {
		if active && isSegmentDelimiter(r) {
			flush()
			return true
		}
		current.WriteRune(r)
		return true
	})
	flush()

	return segments
}
