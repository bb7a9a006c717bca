package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultUpdateInterval = 3 * time.Second
	DefaultCoalesce       = 200 * time.Millisecond
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateScheduler(&cfg); err != nil {
		return nil, err
	}
	if err := validateWatch(&cfg); err != nil {
		return nil, err
	}
	if err := validateToolchain(&cfg); err != nil {
		return nil, err
	}
	if err := validateCodeModel(&cfg); err != nil {
		return nil, err
	}
	if err := validateTriStates(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Qmake.Binary) == "" {
		cfg.Qmake.Binary = "qmake"
	}
	if strings.TrimSpace(cfg.Qmake.Make) == "" {
		cfg.Qmake.Make = "make"
	}
	if strings.TrimSpace(cfg.Qmake.QtVersion) == "" {
		cfg.Qmake.QtVersion = "6.5.0"
	}

	if cfg.Scheduler.UpdateInterval == 0 {
		cfg.Scheduler.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 4
	}

	if cfg.Watch.Coalesce == 0 {
		cfg.Watch.Coalesce = DefaultCoalesce
	}
	if cfg.Watch.RefreshRate == 0 {
		cfg.Watch.RefreshRate = 2
	}

	if strings.TrimSpace(cfg.Toolchain.Type) == "" {
		cfg.Toolchain.Type = "gcc"
	}
	if cfg.Toolchain.WordWidth == 0 {
		cfg.Toolchain.WordWidth = 64
	}

	if strings.TrimSpace(cfg.CodeModel.TweakHeaderPaths) == "" {
		cfg.CodeModel.TweakHeaderPaths = "yes"
	}

	if strings.TrimSpace(cfg.Settings.Path) == "" {
		cfg.Settings.Path = "data/qmakemodel.db"
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
}
