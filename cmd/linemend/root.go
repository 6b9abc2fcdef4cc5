package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"linemend/internal/config"
	"linemend/internal/logging"
)

var version = "dev"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logDir     string
	delimiter  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "linemend",
		Short: "Restore row integrity in delimited extracts broken by embedded line breaks.",
		Long: `linemend reads semicolon-delimited extracts whose rows were split by line
breaks inside field values, glues the fragments back together and writes a
corrected file plus a rejected-rows file for whatever cannot be repaired.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "job config file (.json, .yaml or .yml)")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config when present")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&g.logDir, "log-dir", "", "also write a daily log file to this directory")
	pf.StringVar(&g.delimiter, "delimiter", "", `field delimiter, overrides config and env (use \t for tab)`)

	root.AddCommand(
		newCorrectCmd(g),
		newAnalyzeCmd(g),
		newValidateCmd(g),
		newLintCmd(g),
	)
	return root
}

// setup loads the job and builds the logger. Precedence: flags, env, config
// file, defaults.
func (g *globalFlags) setup() (config.Job, *logrus.Logger, io.Closer, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return config.Job{}, nil, nil, err
	}
	job, err := config.Load(g.configPath)
	if err != nil {
		return job, nil, nil, err
	}
	job.ApplyEnv(os.Getenv)
	if g.delimiter != "" {
		job.Parser.Options["delimiter"] = g.delimiter
	}

	log, closer, err := logging.New(g.logLevel, g.logDir)
	if err != nil {
		return job, nil, nil, err
	}
	return job, log, closer, nil
}

// checkJob logs lint findings and fails on errors.
func checkJob(job config.Job, log logrus.FieldLogger) error {
	issues := config.ValidateJob(job)
	for _, iss := range issues {
		entry := log.WithField("path", iss.Path)
		if iss.Severity == config.SeverityError {
			entry.Error(iss.Message)
		} else {
			entry.Warn(iss.Message)
		}
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid (%d issues)", len(issues))
	}
	return nil
}
