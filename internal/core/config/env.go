package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: QMAKEMODEL_[SECTION]_[KEY] (e.g., QMAKEMODEL_SCHEDULER_WORKERS).
func ApplyEnvOverrides(cfg *Config) {
	// Project
	setEnvString(&cfg.Project.File, "QMAKEMODEL_PROJECT_FILE")
	setEnvString(&cfg.Project.BuildDir, "QMAKEMODEL_PROJECT_BUILD_DIR")
	setEnvString(&cfg.Project.Sysroot, "QMAKEMODEL_PROJECT_SYSROOT")
	setEnvString(&cfg.Project.Mkspec, "QMAKEMODEL_PROJECT_MKSPEC")

	// Qmake
	setEnvString(&cfg.Qmake.Binary, "QMAKEMODEL_QMAKE_BINARY")
	setEnvString(&cfg.Qmake.Make, "QMAKEMODEL_QMAKE_MAKE")
	setEnvString(&cfg.Qmake.UserArgs, "QMAKEMODEL_QMAKE_USER_ARGS")
	setEnvString(&cfg.Qmake.MakeArgs, "QMAKEMODEL_QMAKE_MAKE_ARGS")
	setEnvBool(&cfg.Qmake.Debug, "QMAKEMODEL_QMAKE_DEBUG")
	setEnvBool(&cfg.Qmake.BuildAll, "QMAKEMODEL_QMAKE_BUILD_ALL")

	// Scheduler
	setEnvDuration(&cfg.Scheduler.UpdateInterval, "QMAKEMODEL_SCHEDULER_UPDATE_INTERVAL")
	setEnvInt(&cfg.Scheduler.Workers, "QMAKEMODEL_SCHEDULER_WORKERS")

	// Watch
	setEnvDuration(&cfg.Watch.Coalesce, "QMAKEMODEL_WATCH_COALESCE")
	setEnvFloat64(&cfg.Watch.RefreshRate, "QMAKEMODEL_WATCH_REFRESH_RATE")

	// Toolchain
	setEnvString(&cfg.Toolchain.Type, "QMAKEMODEL_TOOLCHAIN_TYPE")
	setEnvString(&cfg.Toolchain.TargetTriple, "QMAKEMODEL_TOOLCHAIN_TARGET_TRIPLE")

	// Settings
	setEnvString(&cfg.Settings.Path, "QMAKEMODEL_SETTINGS_PATH")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "QMAKEMODEL_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "QMAKEMODEL_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "QMAKEMODEL_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "QMAKEMODEL_OBSERVABILITY_ENABLE_TRACING")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}

const (
	EnvOptionsBlacklist   = "QTC_CLANG_CMD_OPTIONS_BLACKLIST"
	EnvUseToolchainMacros = "QTC_CLANG_USE_TOOLCHAIN_MACROS"
	EnvNoDiagnosticCheck  = "QTC_CLANG_NO_DIAGNOSTIC_CHECK"
)

// ClangEnv is the process-wide snapshot of the code model environment switches.
type ClangEnv struct {
	OptionsBlacklist   []string
	UseToolchainMacros bool
	NoDiagnosticCheck  bool
}

var (
	clangEnvOnce sync.Once
	clangEnv     ClangEnv
)

// ReadClangEnv reads the code model environment once; later calls return the
// first snapshot even if the environment changed.
func ReadClangEnv() ClangEnv {
	clangEnvOnce.Do(func() {
		clangEnv = ParseClangEnv(os.LookupEnv)
	})
	return clangEnv
}

// ParseClangEnv builds a snapshot from an arbitrary lookup function.
func ParseClangEnv(lookup func(string) (string, bool)) ClangEnv {
	var env ClangEnv
	if val, ok := lookup(EnvOptionsBlacklist); ok {
		for _, opt := range strings.Split(val, ";") {
			if opt = strings.TrimSpace(opt); opt != "" {
				env.OptionsBlacklist = append(env.OptionsBlacklist, opt)
			}
		}
	}
	if val, ok := lookup(EnvUseToolchainMacros); ok && val != "" {
		env.UseToolchainMacros = true
	}
	if val, ok := lookup(EnvNoDiagnosticCheck); ok && val != "" {
		env.NoDiagnosticCheck = true
	}
	return env
}
