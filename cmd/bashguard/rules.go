package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRulesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule tables as YAML",
		Long: `Print the built-in rule tables merged with every configured addition, in
the same shape the "rules" key of a config file takes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			cl, err := cfg.Classifier()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cl.Rules())
		},
	}
}
