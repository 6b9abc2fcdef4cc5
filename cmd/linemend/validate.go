package main

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"linemend/internal/validate"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var (
		table  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "validate <corrected.csv>",
		Short: "Check every row of a corrected file against a table contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, log, closer, err := g.setup()
			if err != nil {
				return err
			}
			defer closer.Close()
			if table != "" {
				job.Validate.Table = table
				job.Validate.Contract = nil
			}
			c, ok, err := job.Contract()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no contract: pass --table or set validate in the config (known tables: %v)", validate.Known())
			}

			res, err := validate.ValidateFile(cmd.Context(), args[0], c, validate.FileOptions{
				Delimiter: job.Delimiter(),
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"file":    args[0],
				"table":   res.Table,
				"checked": res.Checked,
				"invalid": res.InvalidCount,
			}).Info("validation done")

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "table: %s\nchecked: %d\ninvalid: %d\n", res.Table, res.Checked, res.InvalidCount)
				for _, iss := range res.Invalid {
					if iss.Column != "" {
						fmt.Fprintf(out, "  line %d: %s: %s\n", iss.Line, iss.Column, iss.Message)
					} else {
						fmt.Fprintf(out, "  line %d: %s\n", iss.Line, iss.Message)
					}
				}
			}
			if !res.Passed {
				return fmt.Errorf("%d invalid rows in %s", res.InvalidCount, args[0])
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&table, "table", "t", "", "registered contract to check against (e.g. cnrps)")
	f.IntVarP(&limit, "limit", "n", 50, "invalid rows listed (0 lists all)")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
