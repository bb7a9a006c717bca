package config

import (
	"fmt"
	"strings"
)

var knownToolchains = map[string]bool{
	"gcc":       true,
	"clang":     true,
	"mingw":     true,
	"msvc":      true,
	"clang-cl":  true,
	"qnx":       true,
	"baremetal": true,
	"custom":    true,
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateScheduler(cfg *Config) error {
	if cfg.Scheduler.UpdateInterval < 0 {
		return fmt.Errorf("scheduler.update_interval must be >= 0, got %s", cfg.Scheduler.UpdateInterval)
	}
	if cfg.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be >= 1, got %d", cfg.Scheduler.Workers)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Coalesce < 0 {
		return fmt.Errorf("watch.coalesce must be >= 0, got %s", cfg.Watch.Coalesce)
	}
	if cfg.Watch.RefreshRate < 0 {
		return fmt.Errorf("watch.refresh_rate must be >= 0, got %v", cfg.Watch.RefreshRate)
	}
	return nil
}

func validateToolchain(cfg *Config) error {
	kind := strings.ToLower(strings.TrimSpace(cfg.Toolchain.Type))
	if !knownToolchains[kind] {
		return fmt.Errorf("toolchain.type %q is not one of: gcc, clang, mingw, msvc, clang-cl, qnx, baremetal, custom", cfg.Toolchain.Type)
	}
	cfg.Toolchain.Type = kind
	if cfg.Toolchain.WordWidth != 32 && cfg.Toolchain.WordWidth != 64 {
		return fmt.Errorf("toolchain.word_width must be 32 or 64, got %d", cfg.Toolchain.WordWidth)
	}
	return nil
}

func validateCodeModel(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.CodeModel.TweakHeaderPaths)) {
	case "yes", "no", "tools":
		return nil
	default:
		return fmt.Errorf("code_model.tweak_header_paths must be one of: yes, no, tools")
	}
}

func validateTriStates(cfg *Config) error {
	fields := map[string]string{
		"qmake.separate_debug_info": cfg.Qmake.SeparateDebugInfo,
		"qmake.qml_debugging":       cfg.Qmake.QmlDebugging,
		"qmake.qt_quick_compiler":   cfg.Qmake.QtQuickCompiler,
	}
	for name, value := range fields {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "", "default", "enabled", "disabled":
		default:
			return fmt.Errorf("%s must be one of: default, enabled, disabled", name)
		}
	}
	return nil
}
