package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"qmakemodel/internal/core/config"
	"qmakemodel/internal/data/settings"
)

func newDiagConfigsCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diag-configs",
		Short: "Manage the clang diagnostic configurations",
	}
	cmd.AddCommand(
		newDiagListCommand(opts),
		newDiagAddCommand(opts),
		newDiagSelectCommand(opts),
		newDiagImportCommand(opts),
	)
	return cmd
}

// withSettings opens the settings store named by the configuration.
func withSettings(opts *cliOptions, fn func(s *settings.Store) error) error {
	cfg, _, err := loadSettingsConfig(opts, "")
	if err != nil {
		return err
	}
	s, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newDiagListCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List builtin and custom configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *settings.Store) error {
				return listDiagnosticConfigs(cmd.Context(), s, cmd.OutOrStdout())
			})
		},
	}
}

func listDiagnosticConfigs(ctx context.Context, s *settings.Store, out io.Writer) error {
	custom, err := settings.LoadDiagnosticConfigs(ctx, s)
	if err != nil {
		return err
	}
	selected, err := settings.SelectedConfigID(ctx, s)
	if err != nil {
		return err
	}
	for _, c := range settings.AllConfigs(custom) {
		marker := " "
		if c.ID == selected {
			marker = "*"
		}
		var tools []string
		if c.IsClangTidyEnabled() {
			tools = append(tools, "tidy")
		}
		if c.IsClazyEnabled() {
			tools = append(tools, "clazy")
		}
		kind := "custom"
		if c.ReadOnly {
			kind = "builtin"
		}
		fmt.Fprintf(out, "%s %s %q [%s] %s\n", marker, c.ID, c.DisplayName, kind, strings.Join(tools, ","))
	}
	return nil
}

func newDiagAddCommand(opts *cliOptions) *cobra.Command {
	var base, options string
	var selectIt bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a custom configuration from a base one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *settings.Store) error {
				ctx := cmd.Context()
				custom, err := settings.LoadDiagnosticConfigs(ctx, s)
				if err != nil {
					return err
				}
				baseConfig, err := settings.FindConfig(custom, base)
				if err != nil {
					return err
				}
				c := settings.CreateCustomConfig(baseConfig, args[0])
				if strings.TrimSpace(options) != "" {
					normalized := settings.NormalizeOptions(options)
					if err := settings.ValidateClangOptions(normalized, config.ReadClangEnv()); err != nil {
						return err
					}
					c.ClangOptions = normalized
				}
				if err := settings.SaveDiagnosticConfigs(ctx, s, append(custom, c)); err != nil {
					return err
				}
				if selectIt {
					if err := settings.SelectConfig(ctx, s, c.ID); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&base, "base", settings.BuiltinBuildSystemID, "Configuration to copy")
	cmd.Flags().StringVar(&options, "options", "", "Clang warning options replacing the base ones")
	cmd.Flags().BoolVar(&selectIt, "select", false, "Make the new configuration the selected one")
	return cmd
}

func newDiagSelectCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Select the configuration used by the code model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *settings.Store) error {
				ctx := cmd.Context()
				custom, err := settings.LoadDiagnosticConfigs(ctx, s)
				if err != nil {
					return err
				}
				id := args[0]
				if converted, ok := settings.ConvertRemovedBuiltin(id); ok {
					if err := settings.SaveDiagnosticConfigs(ctx, s, append(custom, converted)); err != nil {
						return err
					}
					id = converted.ID
				} else if _, err := settings.FindConfig(custom, id); err != nil {
					return err
				}
				if err := settings.SelectConfig(ctx, s, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

// legacyConfigFile is an exported settings file with one [[config]] table
// per diagnostic configuration.
type legacyConfigFile struct {
	Config []map[string]any `toml:"config"`
}

func readLegacyRows(path string) ([]map[string]string, error) {
	var f legacyConfigFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rows := make([]map[string]string, 0, len(f.Config))
	for _, table := range f.Config {
		row := make(map[string]string, len(table))
		for k, value := range table {
			switch v := value.(type) {
			case string:
				row[k] = v
			default:
				row[k] = fmt.Sprint(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newDiagImportCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.toml>",
		Short: "Import exported configurations, upgrading old formats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readLegacyRows(args[0])
			if err != nil {
				return err
			}
			return withSettings(opts, func(s *settings.Store) error {
				imported, err := settings.ImportDiagnosticConfigs(cmd.Context(), s, rows)
				if err != nil {
					return err
				}
				for _, c := range imported {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %q\n", c.ID, c.DisplayName)
				}
				return nil
			})
		},
	}
}
