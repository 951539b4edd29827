package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/victorarias/bashguard/internal/classifier"
	"github.com/victorarias/bashguard/internal/gate"
)

var (
	safeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	unsafeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	reasonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type checkOutput struct {
	Command string `json:"command"`
	classifier.Result
	Outcome string `json:"outcome,omitempty"`
}

func newCheckCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON bool
		ask    bool
	)

	cmd := &cobra.Command{
		Use:   "check <command...>",
		Short: "Classify a shell command",
		Long: `Classify a shell command with the effective rules and print the verdict,
the deciding rule and the reason. Exits 1 when the command is not safe.

With --ask, an unsafe command is put to you as proceed, skip or abort; the
exit status is 0 for proceed, 1 for skip and 2 for abort.`,
		Example: `  bashguard check 'git log --oneline | head'
  bashguard check --json -- find . -delete`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			cl, err := cfg.Classifier()
			if err != nil {
				return err
			}

			command := strings.Join(args, " ")
			out := checkOutput{Command: command}
			code := 0

			if ask {
				wd, _ := os.Getwd()
				prompt := gate.Prompt{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
				v := gate.New(cl, prompt).Decide(cmd.Context(), command, wd)
				out.Result = v.Result
				if v.Blocked() {
					return v.Err
				}
				out.Outcome = v.Outcome.String()
				code = int(v.Outcome)
			} else {
				out.Result = cl.Classify(command)
				if !out.Result.Safe {
					code = 1
				}
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				printVerdict(w, out, useColor(w))
			}

			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&ask, "ask", false, "Ask proceed, skip or abort for unsafe commands")
	return cmd
}

func printVerdict(w io.Writer, out checkOutput, color bool) {
	verdict, style := "SAFE", safeStyle
	if !out.Safe {
		verdict, style = "UNSAFE", unsafeStyle
	}

	render := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	fmt.Fprintf(w, "%s  %s\n", render(style, verdict), out.Command)
	fmt.Fprintf(w, "  rule:   %s\n", render(ruleStyle, out.Rule))
	fmt.Fprintf(w, "  reason: %s\n", render(reasonStyle, out.Reason))
	if out.Outcome != "" {
		fmt.Fprintf(w, "  outcome: %s\n", out.Outcome)
	}
}

// useColor reports whether w is a terminal and NO_COLOR is unset.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
