package classifier

import (
	"fmt"
	"strings"
)

// predicate is one safety rule applied to the words of a segment. It
// returns a safe Result when it accepts the words. When it recognises the
// command but rejects it, the Result carries the reason; otherwise ok is
// false and the Result is ignored.
type predicate struct {
	name  string
	match func(c *Classifier, words []string, depth int) (res Result, ok bool)
}

// predicates run cheapest first. Order never changes the verdict: a
// segment is safe iff any of them accepts it. Filled in init because the
// forwarding rule recurses back into classifyWords.
var predicates []predicate

func init() {
	predicates = []predicate{
		{RuleBare, (*Classifier).matchBare},
		{RuleSubcommand, (*Classifier).matchSubcommand},
		{RuleResource, (*Classifier).matchResourceAction},
		{RuleDomainTool, (*Classifier).matchDomainTool},
		{RuleForward, (*Classifier).matchForwarder},
	}
}

// classifyWords runs the policy pipeline over one segment's words.
func (c *Classifier) classifyWords(words []string, depth int) Result {
	if len(words) == 0 {
		return unsafe(RuleEmpty, "empty segment")
	}
	if res, vetoed := c.checkDeniedArgs(words); vetoed {
		return res
	}

	rejected := unsafe(RuleUnknown, "unknown command: "+words[0])
	for _, p := range predicates {
		res, ok := p.match(c, words, depth)
		if !ok {
			continue
		}
		if res.Safe {
			return res
		}
		rejected = res
	}
	return rejected
}

// checkDeniedArgs vetoes a segment carrying an argument listed for its
// command or its command and subcommand. Words are compared the way the
// command would see them: quotes and backslashes removed, short flags
// bundled or carrying an attached value, long flags abbreviated or
// carrying =value.
func (c *Classifier) checkDeniedArgs(words []string) (Result, bool) {
	try := func(key string, args []string) (Result, bool) {
		denied, ok := c.deniedArgs[key]
		if !ok {
			return Result{}, false
		}
		for _, w := range args {
			arg := unquote(w)
			for d := range denied {
				if deniedMatch(d, arg) {
					return unsafe(RuleDeniedArg, fmt.Sprintf("%s with %s", key, w)), true
				}
			}
		}
		return Result{}, false
	}

	if res, ok := try(words[0], words[1:]); ok {
		return res, true
	}
	if len(words) > 1 {
		return try(words[0]+" "+words[1], words[2:])
	}
	return Result{}, false
}

// deniedKey returns the denied_args key that covers words, if any.
func (c *Classifier) deniedKey(words []string) (string, bool) {
	if _, ok := c.deniedArgs[words[0]]; ok {
		return words[0], true
	}
	if len(words) > 1 {
		key := words[0] + " " + words[1]
		if _, ok := c.deniedArgs[key]; ok {
			return key, true
		}
	}
	return "", false
}

// deniedMatch reports whether arg spells the denied entry d.
func deniedMatch(d, arg string) bool {
	switch {
	case !strings.HasPrefix(d, "-"):
		return arg == d
	case strings.HasPrefix(d, "--"):
		// getopt_long takes any unambiguous prefix.
		name, _, _ := strings.Cut(arg, "=")
		return len(name) >= 3 && strings.HasPrefix(name, "--") && strings.HasPrefix(d, name)
	case len(d) == 2:
		// -qD, -o/tmp/x, and Go's --w
		if len(arg) > 1 && arg[0] == '-' && arg[1] != '-' {
			return strings.IndexByte(arg[1:], d[1]) >= 0
		}
		name, _, _ := strings.Cut(arg, "=")
		return strings.HasPrefix(name, "--") && name[2:] == d[1:]
	default:
		// find -delete; Go's flag package also takes --name and -name=value.
		name, _, _ := strings.Cut(arg, "=")
		return strings.HasPrefix(name, "-") && strings.TrimLeft(name, "-") == d[1:]
	}
}

// unquote removes the quotes and backslashes bash strips from a word.
// Inside double quotes bash keeps most backslashes; dropping them anyway
// can only produce more matches.
func unquote(w string) string {
	if !strings.ContainsAny(w, `'"\`) {
		return w
	}
	var (
		b  strings.Builder
		st scanState
	)
	for _, r := range w {
		switch {
		case st.escaped:
			st.escaped = false
			b.WriteRune(r)
		case r == '\\' && !st.inSingle:
			st.escaped = true
		case r == '\'' && !st.inDouble:
			st.inSingle = !st.inSingle
		case r == '"' && !st.inSingle:
			st.inDouble = !st.inDouble
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (c *Classifier) matchBare(words []string, _ int) (Result, bool) {
	if c.safeCommands.has(words[0]) {
		return safe(RuleBare, "safe command: "+words[0]), true
	}
	return Result{}, false
}

func (c *Classifier) matchSubcommand(words []string, _ int) (Result, bool) {
	subs, ok := c.subcommands[words[0]]
	if !ok {
		return Result{}, false
	}
	if len(words) < 2 {
		return unsafe(RuleSubcommand, words[0]+" without a subcommand"), true
	}
	if subs.has(words[1]) {
		return safe(RuleSubcommand, words[0]+" "+words[1]), true
	}
	return unsafe(RuleSubcommand, "subcommand not allowed: "+words[0]+" "+words[1]), true
}

func (c *Classifier) matchResourceAction(words []string, _ int) (Result, bool) {
	ra, ok := c.resourceActions[words[0]]
	if !ok {
		return Result{}, false
	}
	if len(words) < 2 {
		return unsafe(RuleResource, words[0]+" without a resource"), true
	}
	if ra.infoFlags.has(words[1]) {
		return safe(RuleResource, words[0]+" "+words[1]), true
	}
	if !ra.resources.has(words[1]) {
		return unsafe(RuleResource, "resource not allowed: "+words[0]+" "+words[1]), true
	}
	if len(words) < 3 {
		return unsafe(RuleResource, words[0]+" "+words[1]+" without an action"), true
	}
	if ra.actions.has(words[2]) {
		return safe(RuleResource, strings.Join(words[:3], " ")), true
	}
	return unsafe(RuleResource, "action not allowed: "+strings.Join(words[:3], " ")), true
}

func (c *Classifier) matchDomainTool(words []string, _ int) (Result, bool) {
	names, ok := c.domainTools[words[0]]
	if !ok || len(words) < 2 {
		return Result{}, false
	}
	actions, ok := names[words[1]]
	if !ok {
		return Result{}, false
	}
	if len(words) < 3 {
		return unsafe(RuleDomainTool, words[0]+" "+words[1]+" without an action"), true
	}
	if actions.has(words[2]) {
		return safe(RuleDomainTool, strings.Join(words[:3], " ")), true
	}
	return unsafe(RuleDomainTool, "action not allowed: "+strings.Join(words[:3], " ")), true
}

// matchForwarder skips the forwarding command's own flags and positionals
// and classifies what it runs.
func (c *Classifier) matchForwarder(words []string, depth int) (Result, bool) {
	fw, ok := c.forwarders[words[0]]
	if !ok {
		return Result{}, false
	}

	i := 1
	for i < len(words) {
		w := words[i]
		if w == "--" {
			i++
			break
		}
		if len(w) < 2 || w[0] != '-' {
			break
		}
		if fw.argFlags.has(w) {
			if i+1 >= len(words) {
				return unsafe(RuleForwardFormat, fmt.Sprintf("%s %s is missing its argument", words[0], w)), true
			}
			i += 2
			continue
		}
		i++
	}
	i += fw.positionals

	if i >= len(words) {
		return unsafe(RuleForwardFormat, words[0]+" without a command"), true
	}
	if depth >= MaxForwardDepth {
		return unsafe(RuleForwardDepth, words[0]+" nested inside another forwarding command"), true
	}
	// Arguments read from stdin never reach checkDeniedArgs.
	if fw.stdinArgs {
		if key, ok := c.deniedKey(words[i:]); ok {
			return unsafe(RuleDeniedArg, fmt.Sprintf("%s appends input to %s", words[0], key)), true
		}
	}

	inner := c.classifyWords(words[i:], depth+1)
	if !inner.Safe {
		inner.Reason = words[0] + ": " + inner.Reason
		return inner, true
	}
	return safe(RuleForward, words[0]+" -> "+inner.Reason), true
}
