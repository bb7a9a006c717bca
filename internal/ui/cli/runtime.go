package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/core/config"
	"qmakemodel/internal/core/watcher"
	"qmakemodel/internal/shared/observability"
)

// loadConfig reads the explicit config path or the first default candidate
// that exists, then applies environment overrides and the project argument.
func loadConfig(path, cwd, projectFile string) (*config.Config, string, error) {
	cfg, cfgPath, err := readConfig(path, cwd)
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnvOverrides(cfg)
	if projectFile != "" {
		cfg.Project.File = projectFile
	}
	return cfg, cfgPath, nil
}

func readConfig(path, cwd string) (*config.Config, string, error) {
	if path != defaultConfigPath {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidates, err := discoverDefaultConfig(cwd)
	if err != nil {
		return nil, "", err
	}
	for _, candidate := range candidates {
		cfg, loadErr := config.Load(candidate)
		if loadErr == nil {
			return cfg, candidate, nil
		}
		if os.IsNotExist(loadErr) {
			continue
		}
		return nil, "", loadErr
	}
	slog.Debug("no config file found, using defaults", "cwd", cwd)
	return config.DefaultConfig(), "", nil
}

func discoverDefaultConfig(cwd string) ([]string, error) {
	if strings.TrimSpace(cwd) == "" {
		return nil, fmt.Errorf("cwd must not be empty")
	}
	return []string{
		filepath.Clean(filepath.Join(cwd, "data/config/qmakemodel.toml")),
		filepath.Clean(filepath.Join(cwd, "qmakemodel.toml")),
	}, nil
}

// loadCommandConfig loads the configuration of a command evaluating a
// project.
func loadCommandConfig(opts *cliOptions, projectFile string) (*config.Config, error) {
	cfg, _, err := loadProjectConfig(opts, projectFile)
	return cfg, err
}

// loadProjectConfig also returns the config file path, empty when the
// defaults are used.
func loadProjectConfig(opts *cliOptions, projectFile string) (*config.Config, string, error) {
	cfg, cfgPath, err := loadSettingsConfig(opts, projectFile)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(cfg.Project.File) == "" {
		return nil, "", fmt.Errorf("no project file given and none configured in [project] file")
	}
	return cfg, cfgPath, nil
}

func loadSettingsConfig(opts *cliOptions, projectFile string) (*config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("detect working directory: %w", err)
	}
	cfg, cfgPath, err := loadConfig(opts.configPath, cwd, projectFile)
	if err != nil {
		return nil, "", err
	}
	if cfgPath != "" {
		slog.Debug("config loaded", "path", cfgPath)
	}
	return cfg, cfgPath, nil
}

// staticFolders is the folder registry of one-shot commands, which never
// react to file changes.
type staticFolders struct{}

func (staticFolders) Watch([]string, watcher.Owner)   {}
func (staticFolders) Unwatch([]string, watcher.Owner) {}

// evaluateOnce runs one full evaluation. The caller shuts the returned
// build system down.
func evaluateOnce(ctx context.Context, cfg *config.Config) (*buildsystem.BuildSystem, *buildsystem.Update, error) {
	b, err := buildsystem.New(cfg, buildsystem.WithFolderRegistry(staticFolders{}))
	if err != nil {
		return nil, nil, err
	}
	if err := b.Start(ctx); err != nil {
		return nil, nil, err
	}
	if err := b.WaitIdle(ctx); err != nil {
		b.Shutdown()
		return nil, nil, err
	}
	return b, b.LastUpdate(), nil
}

// startTracing installs the exporter when tracing is enabled. The returned
// function flushes pending spans.
func startTracing(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Observability.EnableTracing {
		return func() {}
	}
	shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}
}

func configureLogging(uiMode, verbose bool, stderr io.Writer) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := stderr
	closeFn := func() {}
	if uiMode {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			} else {
				fmt.Fprintf(stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "qmakemodel", "qmakemodel.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "qmakemodel", "qmakemodel.log")
	}

	return "qmakemodel.log"
}
