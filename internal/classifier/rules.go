package classifier

import (
	"maps"
	"slices"
)

// DefaultMetacharacters are the characters that disqualify a command when
// they appear unquoted and unescaped: redirection, command and process
// substitution, subshells and brace expansion.
const DefaultMetacharacters = "<>`$(){}"

// Rules holds the editable policy tables. It is plain data: New compiles a
// copy, so changing a Rules value after New has no effect on the classifier.
type Rules struct {
	// SafeCommands are safe regardless of their arguments.
	SafeCommands []string `yaml:"safe_commands,omitempty" json:"safe_commands,omitempty"`

	// Subcommands maps a command to the second words that make it safe.
	Subcommands map[string][]string `yaml:"subcommands,omitempty" json:"subcommands,omitempty"`

	// ResourceActions covers CLIs shaped as "tool resource action".
	ResourceActions map[string]ResourceActionRule `yaml:"resource_actions,omitempty" json:"resource_actions,omitempty"`

	// DomainTools maps a tool to its named sub-tools and, for each, the
	// permitted actions ("tool name action").
	DomainTools map[string]map[string][]string `yaml:"domain_tools,omitempty" json:"domain_tools,omitempty"`

	// Forwarders are commands that run another command given as their
	// trailing arguments.
	Forwarders map[string]ForwarderRule `yaml:"forwarders,omitempty" json:"forwarders,omitempty"`

	// DeniedArgs vetoes an otherwise accepted segment. Keys are a command
	// ("find") or a command and subcommand ("git branch").
	DeniedArgs map[string][]string `yaml:"denied_args,omitempty" json:"denied_args,omitempty"`

	// Metacharacters disqualify a command when active.
	Metacharacters string `yaml:"metacharacters,omitempty" json:"metacharacters,omitempty"`

	// BenignRedirects are regular expressions for redirect words that are
	// stripped before scanning. Each must match a whole shell word.
	BenignRedirects []string `yaml:"benign_redirects,omitempty" json:"benign_redirects,omitempty"`

	// StrictDoubleQuotes keeps $ and ` active inside double quotes, where
	// bash still expands them.
	StrictDoubleQuotes bool `yaml:"strict_double_quotes,omitempty" json:"strict_double_quotes,omitempty"`
}

// ResourceActionRule permits "tool resource action" when both words are
// listed, and "tool flag" for an informational flag.
type ResourceActionRule struct {
	Resources []string `yaml:"resources" json:"resources"`
	Actions   []string `yaml:"actions" json:"actions"`
	InfoFlags []string `yaml:"info_flags,omitempty" json:"info_flags,omitempty"`
}

// ForwarderRule describes how to find the forwarded command: ArgFlags take
// the following word as their value, and Positionals words sit between the
// flags and the command (timeout's duration). AppendsInput marks forwarders
// that add words read from stdin to the command, like xargs; a command with
// denied_args cannot be forwarded by them.
type ForwarderRule struct {
	ArgFlags     []string `yaml:"arg_flags,omitempty" json:"arg_flags,omitempty"`
	Positionals  int      `yaml:"positionals,omitempty" json:"positionals,omitempty"`
	AppendsInput bool     `yaml:"appends_input,omitempty" json:"appends_input,omitempty"`
}

// DefaultBenignRedirects match the redirects that cannot write anywhere but
// /dev/null or merge stderr into stdout. The malformed 2>>&1 shows up in agent
// output often enough to be worth accepting.
var DefaultBenignRedirects = []string{
	`2>>&1`,
	`2>&1`,
	`&>\s*/dev/null`,
	`[12]>\s*/dev/null`,
	`>\s*/dev/null`,
}

// DefaultRules returns a fresh copy of the built-in policy.
func DefaultRules() Rules {
	return Rules{
		SafeCommands: []string{
			// Reading
			"cat", "head", "tail", "less", "more", "wc", "file", "stat",
			// Listing
			"ls", "tree", "du", "df", "find",
			// Searching and filtering
			"grep", "egrep", "fgrep", "rg", "ag",
			"cut", "sort", "tr", "diff", "comm", "jq", "column", "nl",
			// Printing
			"echo", "printf", "true", "false", "sleep", "seq",
			// Paths and identity
			"pwd", "cd", "which", "type", "whoami", "id", "hostname", "uname",
			"date", "basename", "dirname", "realpath", "readlink",
			"ps", "printenv",
		},
		Subcommands: map[string][]string{
			"git": {
				"status", "log", "diff", "show", "branch", "rev-parse", "ls-files",
				"blame", "shortlog", "describe", "reflog", "grep", "ls-tree",
				"cat-file", "remote",
			},
			"go":      {"version", "env", "list", "doc", "vet"},
			"cargo":   {"tree", "metadata", "--version"},
			"npm":     {"ls", "list", "view", "outdated", "why", "--version"},
			"kubectl": {"get", "describe", "logs", "explain", "version", "api-resources", "top"},
			"docker":  {"ps", "images", "inspect", "logs", "version", "info"},
			"pip":     {"list", "show", "freeze"},
		},
		ResourceActions: map[string]ResourceActionRule{
			"gh": {
				Resources: []string{"pr", "issue", "run", "repo", "release", "workflow", "auth"},
				Actions:   []string{"view", "list", "status", "diff", "checks"},
				InfoFlags: []string{"--version", "--help"},
			},
		},
		DomainTools: map[string]map[string][]string{
			"docker": {
				"compose":   {"ps", "logs", "config", "ls", "images", "top"},
				"image":     {"ls", "inspect", "history"},
				"container": {"ls", "inspect", "logs", "top"},
				"network":   {"ls", "inspect"},
				"volume":    {"ls", "inspect"},
			},
			"kubectl": {
				"config":  {"view", "get-contexts", "current-context"},
				"rollout": {"status", "history"},
			},
			"go": {
				"mod": {"graph", "why", "verify"},
			},
		},
		Forwarders: map[string]ForwarderRule{
			// Only flags whose value is mandatory and separate. GNU -i, -l, -e
			// take optional attached values and must not swallow a word.
			"xargs": {ArgFlags: []string{
				"-I", "-n", "-L", "-P", "-d", "-E", "-s", "-a", "-J", "-R", "-S",
				"--max-args", "--max-procs", "--delimiter", "--arg-file",
				"--max-chars", "--process-slot-var",
			}, AppendsInput: true},
			"nice":    {ArgFlags: []string{"-n", "--adjustment"}},
			"timeout": {ArgFlags: []string{"-s", "-k", "--signal", "--kill-after"}, Positionals: 1},
		},
		DeniedArgs: map[string][]string{
			"find": {
				"-delete", "-exec", "-execdir", "-ok", "-okdir",
				"-fprint", "-fprint0", "-fprintf", "-fls",
			},
			"sort": {"-o", "--output"},
			"rg":   {"--pre"},
			"tree": {"-o", "-R"},
			"less": {"-o", "-O", "--log-file", "--LOG-FILE"},
			"date": {"-s", "--set"},
			"git branch": {
				"-d", "-D", "--delete", "-m", "-M", "--move", "-c", "-C", "--copy",
				"-f", "--force", "-u", "--set-upstream-to", "--unset-upstream",
				"--edit-description",
			},
			"git remote": {
				"add", "remove", "rm", "rename", "set-url", "set-head",
				"set-branches", "prune", "update",
			},
			"git grep":   {"-O", "--open-files-in-pager"},
			"git reflog": {"expire", "delete"},
			"git diff":   {"--output"},
			"git log":    {"--output"},
			"git show":   {"--output"},
			"go env":     {"-w", "-u"},
			"go vet":     {"-vettool", "-toolexec"},
			"go list":    {"-toolexec"},
		},
		Metacharacters:  DefaultMetacharacters,
		BenignRedirects: slices.Clone(DefaultBenignRedirects),
	}
}

// Merge returns a new Rules holding the union of r and extra. Merging only
// ever adds entries; StrictDoubleQuotes is sticky once either side sets it.
func (r Rules) Merge(extra Rules) Rules {
	out := Rules{
		SafeCommands:       union(r.SafeCommands, extra.SafeCommands),
		Subcommands:        mergeLists(r.Subcommands, extra.Subcommands),
		ResourceActions:    make(map[string]ResourceActionRule),
		DomainTools:        make(map[string]map[string][]string),
		Forwarders:         make(map[string]ForwarderRule),
		DeniedArgs:         mergeLists(r.DeniedArgs, extra.DeniedArgs),
		Metacharacters:     unionChars(r.Metacharacters, extra.Metacharacters),
		BenignRedirects:    union(r.BenignRedirects, extra.BenignRedirects),
		StrictDoubleQuotes: r.StrictDoubleQuotes || extra.StrictDoubleQuotes,
	}

	for _, src := range []map[string]ResourceActionRule{r.ResourceActions, extra.ResourceActions} {
		for tool, rule := range src {
			cur := out.ResourceActions[tool]
			out.ResourceActions[tool] = ResourceActionRule{
				Resources: union(cur.Resources, rule.Resources),
				Actions:   union(cur.Actions, rule.Actions),
				InfoFlags: union(cur.InfoFlags, rule.InfoFlags),
			}
		}
	}

	for _, src := range []map[string]map[string][]string{r.DomainTools, extra.DomainTools} {
		for tool, names := range src {
			out.DomainTools[tool] = mergeLists(out.DomainTools[tool], names)
		}
	}

	for _, src := range []map[string]ForwarderRule{r.Forwarders, extra.Forwarders} {
		for name, rule := range src {
			cur := out.Forwarders[name]
			out.Forwarders[name] = ForwarderRule{
				ArgFlags:     union(cur.ArgFlags, rule.ArgFlags),
				Positionals:  max(cur.Positionals, rule.Positionals),
				AppendsInput: cur.AppendsInput || rule.AppendsInput,
			}
		}
	}

	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionChars(a, b string) string {
	out := []rune(a)
	for _, r := range b {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return string(out)
}

func mergeLists(a, b map[string][]string) map[string][]string {
	out := make(map[string][]string, len(a)+len(b))
	for _, k := range slices.Sorted(maps.Keys(a)) {
		out[k] = union(nil, a[k])
	}
	for _, k := range slices.Sorted(maps.Keys(b)) {
		out[k] = union(out[k], b[k])
	}
	return out
}
