package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const versionString = "1.0.0"
const defaultConfigPath = "./data/config/qmakemodel.toml"

type cliOptions struct {
	configPath string
	verbose    bool
	ui         bool

	stdout io.Writer
	stderr io.Writer

	cleanupLogs func()
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{stdout: stdout, stderr: stderr, cleanupLogs: func() {}}

	root := &cobra.Command{
		Use:   "qmakemodel",
		Short: "Evaluate qmake projects into a live project model",
		Long: `qmakemodel evaluates a qmake project tree, keeps it current while files
change and derives the code model, deployment data and build step
arguments from it.

Examples:
  qmakemodel evaluate app.pro
  qmakemodel watch app.pro --ui
  qmakemodel flags app.pro src/main.cpp
  qmakemodel qmake-args app.pro
  qmakemodel report app.pro --format sarif -o problems.sarif`,
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cleanupLogs = configureLogging(opts.ui, opts.verbose, opts.stderr)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.cleanupLogs()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newEvaluateCommand(opts),
		newWatchCommand(opts),
		newFlagsCommand(opts),
		newQmakeArgsCommand(opts),
		newReportCommand(opts),
		newDiagConfigsCommand(opts),
	)
	return root
}
