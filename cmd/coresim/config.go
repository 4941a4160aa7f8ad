package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/coresim/timing/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check core configurations.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dump [path]",
		Short: "Write the default configuration, to path or to stdout.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()

			if len(args) == 1 {
				return cfg.Save(args[0])
			}

			data, err := cfg.Marshal()
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Load and validate a configuration.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])

			return err
		},
	})

	return cmd
}
