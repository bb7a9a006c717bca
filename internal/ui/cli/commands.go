package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/buildstep"
	"qmakemodel/internal/engine/cpp"
	"qmakemodel/internal/engine/project"
	"qmakemodel/internal/shared/util"
)

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func absSlash(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return util.CleanPath(filepath.ToSlash(abs)), nil
}

func newEvaluateCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate [project.pro]",
		Short: "Evaluate the project tree once and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCommandConfig(opts, firstArg(args))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			flush := startTracing(ctx, cfg)
			defer flush()

			b, u, err := evaluateOnce(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Shutdown()
			if u == nil {
				return fmt.Errorf("evaluation of %s produced no result", cfg.Project.File)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderUpdate(u))
			return nil
		},
	}
}

func newWatchCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [project.pro]",
		Short: "Keep the project tree current while files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadProjectConfig(opts, firstArg(args))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			flush := startTracing(ctx, cfg)
			defer flush()

			live := &liveSystem{}
			if cfg.Observability.Enabled {
				srv := NewObservabilityServer(cfg.Observability.Address, live, live.LastUpdate)
				if err := srv.Start(ctx); err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Stop(stopCtx)
				}()
			}

			watch := func(ctx context.Context, sink updateSink) error {
				return watchLoop(ctx, cfg, cfgPath, firstArg(args), live, sink)
			}
			if opts.ui {
				return runUI(ctx, watch)
			}
			err = watch(ctx, func(u *buildsystem.Update, _ buildsystem.State) { logUpdate(u) })
			slog.Info("shutting down")
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.ui, "ui", false, "Show the interactive terminal UI")
	return cmd
}

func logUpdate(u *buildsystem.Update) {
	errs := 0
	for _, d := range u.Diagnostics {
		slog.Warn("project problem", "severity", d.Severity.String(), "path", d.Path, "message", d.Message)
		if d.Severity == project.SeverityError {
			errs++
		}
	}
	slog.Info("project model updated",
		"generation", u.Generation,
		"full", u.Full,
		"nodes", len(u.Nodes),
		"parts", len(u.ProjectParts),
		"deltas", len(u.Deltas),
		"errors", errs,
	)
}

func newFlagsCommand(opts *cliOptions) *cobra.Command {
	var pch bool
	cmd := &cobra.Command{
		Use:   "flags <project.pro> <file>",
		Short: "Print the code model compiler flags for a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCommandConfig(opts, args[0])
			if err != nil {
				return err
			}
			file, err := absSlash(args[1])
			if err != nil {
				return err
			}

			b, u, err := evaluateOnce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Shutdown()

			flags, info := b.CodeModel(u).Flags(file, pch || cfg.CodeModel.UsePrecompiledHeaders)
			if info == nil || info.ProjectPart == nil {
				return fmt.Errorf("no project part covers %s", file)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s (%s)%s\n", info.ProjectPart.DisplayName, info.ProjectPart.ProjectFile, hintSuffix(info.Hints))
			fmt.Fprintln(out, util.JoinArgs(flags))
			return nil
		},
	}
	cmd.Flags().BoolVar(&pch, "pch", false, "Include precompiled headers")
	return cmd
}

func hintSuffix(h cpp.Hints) string {
	switch {
	case h&cpp.HintFallback != 0:
		return " [fallback]"
	case h&cpp.HintAmbiguous != 0:
		return " [ambiguous]"
	case h&cpp.HintFromDependencies != 0:
		return " [from dependencies]"
	}
	return ""
}

func newQmakeArgsCommand(opts *cliOptions) *cobra.Command {
	var subProject, sourceFile string
	cmd := &cobra.Command{
		Use:   "qmake-args [project.pro]",
		Short: "Print the qmake and make invocations of the build",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCommandConfig(opts, firstArg(args))
			if err != nil {
				return err
			}
			if sourceFile != "" && subProject == "" {
				return fmt.Errorf("--file requires --sub")
			}
			ctx := cmd.Context()
			b, _, err := evaluateOnce(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Shutdown()

			step := b.QmakeStep()
			line, err := step.CommandLine(cfg.Qmake.Binary, cfg.Qmake.Make, "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "qmake: %s\n", line)

			var sub *buildstep.SubNode
			if subProject != "" {
				proFile, err := absSlash(subProject)
				if err != nil {
					return err
				}
				node, err := b.SubNodeFor(ctx, proFile)
				if err != nil {
					return err
				}
				sub = &node
			}
			ms := buildsystem.MakeStepFor(cfg, b.BuildDir(b.ProjectFile()), sub)
			if sourceFile != "" {
				if ms.FileNode, err = absSlash(sourceFile); err != nil {
					return err
				}
			}
			makeArgs, makefile, err := ms.Arguments()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "make: %s\n", util.JoinArgs(append([]string{cfg.Qmake.Make}, makeArgs...)))

			match, err := buildstep.CompareMakefile(makefile, cfg.Qmake.Binary, step)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "makefile: %s (%s)\n", makefile, match)
			return nil
		},
	}
	cmd.Flags().StringVar(&subProject, "sub", "", "Build only this sub project")
	cmd.Flags().StringVar(&sourceFile, "file", "", "Compile only this source file of the sub project")
	return cmd
}
