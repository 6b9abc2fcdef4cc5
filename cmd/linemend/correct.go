package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"linemend/internal/config"
	"linemend/internal/datasource/file"
)

// correctFlags override job settings for one correct run.
type correctFlags struct {
	inputDir  string
	outputDir string
	fromList  string
	workers   int
	encoding  string
	strategy  string
	joinWith  string
	table     string
	parquet   bool
	reports   bool
}

func (c *correctFlags) register(f *pflag.FlagSet) {
	f.StringVarP(&c.inputDir, "input-dir", "i", "", "directory scanned for sources when no file is given")
	f.StringVarP(&c.outputDir, "output-dir", "o", "", "output root directory")
	f.StringVar(&c.fromList, "from-list", "", "file listing source paths, one per line; merged with positional files")
	f.IntVarP(&c.workers, "workers", "w", 0, "files repaired in parallel")
	f.StringVar(&c.encoding, "encoding", "", `input encoding ("utf-8", "latin-1", "auto", ...)`)
	f.StringVar(&c.strategy, "strategy", "", `expected column count strategy ("mode" or "max")`)
	f.StringVar(&c.joinWith, "join-with", "", "text inserted where a split value is glued back")
	f.StringVar(&c.table, "table", "", "validate rows against the registered contract for this table")
	f.BoolVar(&c.parquet, "parquet", false, "also write a Parquet copy of each corrected file")
	f.BoolVar(&c.reports, "reports", false, "write a JSON report per file")
}

// apply copies the flags the user set onto job.
func (c *correctFlags) apply(f *pflag.FlagSet, job *config.Job) {
	f.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "input-dir":
			job.Source.Dir = c.inputDir
		case "output-dir":
			job.Output.Dir = c.outputDir
		case "workers":
			job.Runtime.Workers = c.workers
		case "encoding":
			job.Parser.Options["encoding"] = c.encoding
		case "strategy":
			job.Parser.Options["strategy"] = c.strategy
		case "join-with":
			job.Parser.Options["join_with"] = c.joinWith
		case "table":
			job.Validate.Table = c.table
			job.Validate.Contract = nil
		case "parquet":
			job.Output.Parquet = c.parquet
		case "reports":
			job.Output.Reports = c.reports
		}
	})
}

func newCorrectCmd(g *globalFlags) *cobra.Command {
	cf := &correctFlags{}
	cmd := &cobra.Command{
		Use:   "correct [files...]",
		Short: "Repair files and write corrected and rejected outputs",
		Long: `correct repairs the listed files, or every source found in the input
directory, writing for each <stem>:

  <out>/csv/corrected_<stem>.csv
  <out>/rejected/rejected_<stem>.csv

plus a Parquet copy and a JSON report when enabled. The command exits
non-zero when any file failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, log, closer, err := g.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			cf.apply(cmd.Flags(), &job)
			if err := checkJob(job, log); err != nil {
				return err
			}

			files := append([]string(nil), args...)
			if cf.fromList != "" {
				listed, err := file.ReadList(cf.fromList)
				if err != nil {
					return fmt.Errorf("read list: %w", err)
				}
				files = mergeSources(files, listed)
			}
			if len(files) == 0 && cf.fromList == "" {
				if files, err = file.Discover(job.Source.Dir, job.Source.Patterns); err != nil {
					return err
				}
			}
			if len(files) == 0 {
				log.WithField("dir", job.Source.Dir).Warn("no source files found")
				return nil
			}

			flush := setupMetrics(job, log)
			defer flush()

			sum, err := runCorrect(cmd.Context(), job, files, log)
			fmt.Fprintf(cmd.OutOrStdout(), "files=%d ok=%d corrected=%d warning=%d error=%d rows=%d merged=%d rejected=%d\n",
				sum.Files, sum.OK, sum.Corrected, sum.Warning, sum.Failed, sum.Rows, sum.Merged, sum.Rejected)
			return err
		},
	}
	cf.register(cmd.Flags())
	return cmd
}

// mergeSources appends listed to args, dropping repeated paths.
func mergeSources(args, listed []string) []string {
	seen := make(map[string]bool, len(args)+len(listed))
	out := make([]string, 0, len(args)+len(listed))
	for _, list := range [][]string{args, listed} {
		for _, p := range list {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
