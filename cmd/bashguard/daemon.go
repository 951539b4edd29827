package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victorarias/bashguard/internal/config"
	"github.com/victorarias/bashguard/internal/reviewer"
)

func daemonPaths() reviewer.Paths {
	return reviewer.Paths{Socket: config.SocketPath(), PID: config.PIDPath()}
}

func newDaemonCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the reviewer daemon",
		Long: `Run the reviewer daemon in the foreground. The hook starts it on demand
when the reviewer is enabled; it exits after the configured idle timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			log := openLog(cfg)
			defer log.Close()

			p := daemonPaths()
			d := reviewer.NewDaemon(reviewer.NewClaudeEvaluator(cfg.Reviewer.Model), reviewer.DaemonConfig{
				IdleTimeout: cfg.Reviewer.IdleTimeout,
				SocketPath:  p.Socket,
				PIDPath:     p.PID,
				Logger:      log.Slog(),
			})
			return d.Run(cmd.Context())
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the reviewer daemon is running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				pid, err := reviewer.Status(daemonPaths())
				switch {
				case err == nil:
					fmt.Fprintf(cmd.OutOrStdout(), "running (PID %d)\n", pid)
					return nil
				case errors.Is(err, reviewer.ErrNotResponding):
					fmt.Fprintf(cmd.OutOrStdout(), "process %d alive but socket not responding\n", pid)
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "not running")
				}
				return &exitError{code: 1}
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the reviewer daemon",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				pid, err := reviewer.Stop(daemonPaths())
				if errors.Is(err, reviewer.ErrNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "not running")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stopped (PID %d)\n", pid)
				return nil
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the reviewer daemon",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := reviewer.Restart(daemonPaths(), reviewer.StartProcess); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "restarted")
				return nil
			},
		},
	)
	return cmd
}
