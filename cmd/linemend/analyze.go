package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"linemend/internal/repair"
)

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var (
		limit    int
		savePath string
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Report the expected column count and every line that deviates from it",
		Long: `analyze runs the census pass only and lists the lines whose column count
differs from the expected one. Nothing is corrected. --save writes every
problematic line to a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, log, closer, err := g.setup()
			if err != nil {
				return err
			}
			defer closer.Close()
			if cmd.Flags().Changed("strategy") {
				job.Parser.Options["strategy"] = strategy
			}

			opts, err := job.RepairOptions(log.WithField("file", args[0]))
			if err != nil {
				return err
			}
			opts.NewValidator = nil

			return runAnalyze(cmd, args[0], opts, limit, savePath)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&limit, "limit", "n", 20, "problematic lines printed (0 prints none)")
	f.StringVar(&savePath, "save", "", "write every problematic line to this file")
	f.StringVar(&strategy, "strategy", "", `expected column count strategy ("mode" or "max")`)
	return cmd
}

func runAnalyze(cmd *cobra.Command, src string, opts repair.Options, limit int, savePath string) error {
	out := cmd.OutOrStdout()

	var save *analysisWriter
	if savePath != "" {
		w, err := createAnalysis(savePath, src, opts.Delimiter)
		if err != nil {
			return err
		}
		defer w.close()
		save = w
	}

	printed := 0
	var saveErr error
	cen, found, err := repair.Analyze(cmd.Context(), src, opts, func(a repair.Anomaly) {
		if printed < limit {
			if printed == 0 {
				fmt.Fprintln(out, "problematic lines:")
			}
			fmt.Fprintf(out, "  line %d: %d columns\n", a.Line, a.Columns)
			printed++
		}
		if save != nil && saveErr == nil {
			saveErr = save.row(a)
		}
	})
	if err != nil {
		return err
	}
	if saveErr != nil {
		return fmt.Errorf("save %s: %w", savePath, saveErr)
	}

	fmt.Fprintf(out, "file: %s\nencoding: %s\nlines: %d\nheader columns: %d\nexpected columns: %d\n",
		src, cen.Encoding, cen.Lines, len(cen.Header), cen.Expected)
	writeDistribution(out, cen)
	fmt.Fprintf(out, "problematic lines: %d", found)
	if found > printed {
		fmt.Fprintf(out, " (showing %d)", printed)
	}
	fmt.Fprintln(out)

	if save != nil {
		if err := save.finish(cen.Expected, found); err != nil {
			return fmt.Errorf("save %s: %w", savePath, err)
		}
		fmt.Fprintf(out, "saved to %s\n", savePath)
	}
	return nil
}

func writeDistribution(w io.Writer, cen repair.CensusResult) {
	fmt.Fprintln(w, "column distribution:")
	for _, d := range repair.SortedFrequencies(cen.Frequencies) {
		pct := 0.0
		if cen.DataLines > 0 {
			pct = 100 * float64(d.Lines) / float64(cen.DataLines)
		}
		fmt.Fprintf(w, "  %4d columns: %d lines (%.1f%%)\n", d.Columns, d.Lines, pct)
	}
}

// analysisWriter streams the saved analysis:
//
//	# source: <path>
//	# delimiter: ;
//	# generated: <RFC3339>
//	line,columns
//	17,3
//	# expected_columns: 5
//	# total: 1
type analysisWriter struct {
	f *os.File
	w *bufio.Writer
}

func createAnalysis(path, src string, delim rune) (*analysisWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}
	a := &analysisWriter{f: f, w: bufio.NewWriter(f)}
	fmt.Fprintf(a.w, "# source: %s\n# delimiter: %c\n# generated: %s\nline,columns\n",
		src, delim, time.Now().Format(time.RFC3339))
	return a, nil
}

func (a *analysisWriter) row(an repair.Anomaly) error {
	_, err := fmt.Fprintf(a.w, "%d,%d\n", an.Line, an.Columns)
	return err
}

func (a *analysisWriter) finish(expected, total int) error {
	fmt.Fprintf(a.w, "# expected_columns: %d\n# total: %d\n", expected, total)
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.f.Sync()
}

func (a *analysisWriter) close() { _ = a.f.Close() }
