package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victorarias/bashguard/internal/config"
	"github.com/victorarias/bashguard/internal/decisionlog"
	"github.com/victorarias/bashguard/internal/gate"
	"github.com/victorarias/bashguard/internal/hook"
	"github.com/victorarias/bashguard/internal/reviewer"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	cfgFile  string
	strict   bool
	reviewer bool
	model    string
	logLevel string
	logPath  string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "bashguard",
		Short: "Auto-approve read-only shell commands for Claude Code",
		Long: `bashguard is a Claude Code PermissionRequest hook.

Run without arguments it reads one hook request from stdin. Bash commands
that are provably read-only are approved; everything else is handed back to
Claude Code, which asks you as usual.

Commands:
  check    Classify a command and explain the verdict
  rules    Print the effective rule tables
  daemon   Run or control the optional reviewer daemon`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			syncConfigFlagToEnv(g.cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, &g)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.cfgFile, "config", "", "Config file with rule additions, read after the home config")
	pf.BoolVar(&g.strict, "strict", false, "Treat $ and ` inside double quotes as active")
	pf.BoolVar(&g.reviewer, "reviewer", false, "Ask the reviewer daemon about commands the rules reject")
	pf.StringVar(&g.model, "model", "", "Model the reviewer asks")
	pf.StringVar(&g.logLevel, "log-level", "", "Decision log level (debug, info, warn, error)")
	pf.StringVar(&g.logPath, "log-path", "", `Decision log file, or "-" for stderr`)

	root.AddCommand(newCheckCmd(&g), newRulesCmd(&g), newDaemonCmd(&g))
	return root
}

// loadConfig applies only the flags the user actually set.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	o := &config.Overrides{Model: g.model, LogLevel: g.logLevel, LogPath: g.logPath}
	if cmd.Flags().Changed("strict") {
		o.Strict = &g.strict
	}
	if cmd.Flags().Changed("reviewer") {
		o.Reviewer = &g.reviewer
	}
	return config.Load(o)
}

func openLog(cfg *config.Config) *decisionlog.Logger {
	l, err := decisionlog.Open(cfg.LogPath(), cfg.Log.Level)
	if err != nil {
		return decisionlog.Discard()
	}
	return l
}

// runHook never fails the hook over configuration: a broken setup hands
// every decision back to Claude Code.
func runHook(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		logSetupError(config.Default(), err)
		return nil
	}
	log := openLog(cfg)
	defer log.Close()

	cl, err := cfg.Classifier()
	if err != nil {
		log.Slog().Error("invalid rules", "err", err)
		return nil
	}

	h := &hook.Handler{Log: log}
	var confirmer gate.Confirmer
	if cfg.Reviewer.Enabled {
		client := &reviewer.Client{SocketPath: config.SocketPath(), Start: reviewer.StartProcess}
		confirmer = reviewer.New(client, log.Slog())
		h.ConfirmerSource = decisionlog.SourceReviewer
	}
	h.Gate = gate.New(cl, confirmer)

	return h.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
}

func logSetupError(cfg *config.Config, err error) {
	log := openLog(cfg)
	defer log.Close()
	log.Slog().Error("invalid configuration", "err", err)
}

func syncConfigFlagToEnv(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	_ = os.Setenv("BASHGUARD_CONFIG", path)
}
