package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vkngwrapper/memsim/scenario"
)

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <scenario>",
		Short: "Check a scenario file without running it",
		Long: `The check command parses a scenario file and reports the first problem with it,
such as an unknown technique, strategy or op.

Example:
  memsim check dynamic.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

func runCheck(out io.Writer, args []string) error {
	config, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(out, "%s: %s memory of %d units, %d step(s)\n", args[0], config.Technique, config.TotalSize, len(config.Steps))
	}
	return nil
}
