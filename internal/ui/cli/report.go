package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/shared/util"
	"qmakemodel/internal/ui/report/formats"
)

type reportOptions struct {
	format  string
	output  string
	hidePri bool
}

func generateReport(u *buildsystem.Update, ro reportOptions) ([]byte, error) {
	mermaid := formats.NewMermaidGenerator()
	mermaid.SetIncludePri(!ro.hidePri)

	switch strings.ToLower(strings.TrimSpace(ro.format)) {
	case "sarif":
		return formats.GenerateSARIF(u, versionString)
	case "mermaid":
		out, err := mermaid.Generate(u)
		return []byte(out), err
	case "markdown", "md", "":
		diagram, err := mermaid.Generate(u)
		if err != nil {
			return nil, err
		}
		out, err := formats.NewMarkdownGenerator().Generate(u, formats.MarkdownReportOptions{
			Version:         versionString,
			TableOfContents: true,
			IncludeMermaid:  true,
			MermaidDiagram:  diagram,
		})
		return []byte(out), err
	default:
		return nil, fmt.Errorf("unknown report format %q; use markdown, mermaid or sarif", ro.format)
	}
}

func newReportCommand(opts *cliOptions) *cobra.Command {
	var ro reportOptions
	cmd := &cobra.Command{
		Use:   "report [project.pro]",
		Short: "Write a report of the evaluated project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCommandConfig(opts, firstArg(args))
			if err != nil {
				return err
			}
			b, u, err := evaluateOnce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Shutdown()

			data, err := generateReport(u, ro)
			if err != nil {
				return err
			}
			if ro.output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := util.WriteFileWithDirs(ro.output, data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ro.output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&ro.format, "format", "f", "markdown", "Report format: markdown, mermaid or sarif")
	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&ro.hidePri, "no-pri", false, "Leave included .pri files out of diagrams")
	return cmd
}
