package classifier

import (
	"fmt"
	"strings"
	"sync"
)

// MaxForwardDepth bounds how many forwarding commands may wrap each other.
// xargs head is fine; xargs xargs head is not.
const MaxForwardDepth = 1

// Rule names reported in Result.Rule.
const (
	RuleEmpty         = "empty"
	RuleUnterminated  = "unterminated"
	RuleMetachar      = "metachar"
	RuleBare          = "bare"
	RuleSubcommand    = "subcommand"
	RuleResource      = "resource-action"
	RuleDomainTool    = "domain-tool"
	RuleForward       = "forward"
	RuleDeniedArg     = "denied-arg"
	RuleUnknown       = "unknown"
	RuleCompound      = "compound"
	RuleForwardDepth  = "forward-depth"
	RuleForwardFormat = "forward-malformed"
)

// Result is the outcome of classifying one command line.
type Result struct {
	// Safe is true only when the command may run without confirmation.
	Safe bool `json:"safe"`

	// Reason explains the decision for logs and the operator.
	Reason string `json:"reason"`

	// Rule names the rule that decided: the accepting rule for safe
	// results, the rejecting one otherwise.
	Rule string `json:"rule"`
}

func safe(rule, reason string) Result   { return Result{Safe: true, Reason: reason, Rule: rule} }
func unsafe(rule, reason string) Result { return Result{Reason: reason, Rule: rule} }

// Classifier is an immutable, compiled policy.
type Classifier struct {
	safeCommands    set
	subcommands     map[string]set
	resourceActions map[string]resourceAction
	domainTools     map[string]map[string]set
	forwarders      map[string]forwarder
	deniedArgs      map[string]set
	metacharacters  string
	redirects       *redirectStripper
	strict          bool
	rules           Rules
}

type set map[string]struct{}

func newSet(items []string) set {
	s := make(set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) has(item string) bool {
	_, ok := s[item]
	return ok
}

type resourceAction struct {
	resources set
	actions   set
	infoFlags set
}

type forwarder struct {
	argFlags    set
	positionals int
	stdinArgs   bool
}

// New compiles rules into a Classifier.
func New(rules Rules) (*Classifier, error) {
	if rules.Metacharacters == "" {
		return nil, fmt.Errorf("%w: no metacharacters", ErrInvalidRules)
	}
	redirects, err := newRedirectStripper(rules.BenignRedirects)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		safeCommands:    newSet(rules.SafeCommands),
		subcommands:     make(map[string]set, len(rules.Subcommands)),
		resourceActions: make(map[string]resourceAction, len(rules.ResourceActions)),
		domainTools:     make(map[string]map[string]set, len(rules.DomainTools)),
		forwarders:      make(map[string]forwarder, len(rules.Forwarders)),
		deniedArgs:      make(map[string]set, len(rules.DeniedArgs)),
		metacharacters:  rules.Metacharacters,
		redirects:       redirects,
		strict:          rules.StrictDoubleQuotes,
		rules:           Rules{}.Merge(rules),
	}
	for cmd, subs := range rules.Subcommands {
		c.subcommands[cmd] = newSet(subs)
	}
	for tool, ra := range rules.ResourceActions {
		c.resourceActions[tool] = resourceAction{
			resources: newSet(ra.Resources),
			actions:   newSet(ra.Actions),
			infoFlags: newSet(ra.InfoFlags),
		}
	}
	for tool, names := range rules.DomainTools {
		m := make(map[string]set, len(names))
		for name, actions := range names {
			m[name] = newSet(actions)
		}
		c.domainTools[tool] = m
	}
	for name, fw := range rules.Forwarders {
		if fw.Positionals < 0 {
			return nil, fmt.Errorf("%w: forwarder %q has negative positionals", ErrInvalidRules, name)
		}
		c.forwarders[name] = forwarder{
			argFlags:    newSet(fw.ArgFlags),
			positionals: fw.Positionals,
			stdinArgs:   fw.AppendsInput,
		}
	}
	for key, args := range rules.DeniedArgs {
		c.deniedArgs[key] = newSet(args)
	}
	return c, nil
}

// MustNew is like New but panics on invalid rules.
func MustNew(rules Rules) *Classifier {
	c, err := New(rules)
	if err != nil {
		panic(err)
	}
	return c
}

var (
	defaultOnce sync.Once
	defaultInst *Classifier
)

// Default returns the classifier for DefaultRules. It is built once and
// shared.
func Default() *Classifier {
	defaultOnce.Do(func() {
		defaultInst = MustNew(DefaultRules())
	})
	return defaultInst
}

// Classify is shorthand for Default().Classify(command).
func Classify(command string) Result {
	return Default().Classify(command)
}

// Rules returns a copy of the tables the classifier was built from.
func (c *Classifier) Rules() Rules {
	return Rules{}.Merge(c.rules)
}

// Classify decides whether command may run unattended. It never fails:
// anything it cannot prove safe is unsafe.
func (c *Classifier) Classify(command string) Result {
	if strings.TrimSpace(command) == "" {
		return unsafe(RuleEmpty, "empty command")
	}

	normalized := c.redirects.strip(command)

	if st := scan(normalized, c.strict, nil); st.open() {
		return unsafe(RuleUnterminated, "unterminated quote or trailing backslash")
	}
	if r, _, ok := findMetachar(normalized, c.metacharacters, c.strict); ok {
		return unsafe(RuleMetachar, fmt.Sprintf("unquoted %q", r))
	}

	segments := SplitSegments(normalized)
	if len(segments) == 0 {
		return unsafe(RuleEmpty, "no command left after stripping redirects")
	}

	var (
		last    Result
		reasons = make([]string, 0, len(segments))
	)
	for _, seg := range segments {
		last = c.classifyWords(strings.Fields(seg), 0)
		if !last.Safe {
			if len(segments) > 1 {
				last.Reason = fmt.Sprintf("%s (in %q)", last.Reason, seg)
			}
			return last
		}
		reasons = append(reasons, last.Reason)
	}

	if len(segments) == 1 {
		return last
	}
	return safe(RuleCompound, strings.Join(reasons, "; "))
}
