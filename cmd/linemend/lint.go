package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"linemend/internal/config"
)

func newLintCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate the job configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, _, closer, err := g.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			out := cmd.OutOrStdout()
			issues := config.ValidateJob(job)
			for _, iss := range issues {
				fmt.Fprintf(out, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("configuration is invalid")
			}
			fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	}
}
