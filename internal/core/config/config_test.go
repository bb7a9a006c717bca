package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qmakemodel.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[project]
file = "/src/app/app.pro"
build_dir = "/build/app"

[qmake]
extra_args = ["QMAKE_CXXFLAGS+=-O2"]
debug = true

[scheduler]
update_interval = "1s"
workers = 2

[watch]
coalesce = "50ms"

[toolchain]
type = "MSVC"
macros = ["_MSC_FULL_VER=191627045"]
word_width = 32
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/src/app/app.pro", cfg.Project.File)
	assert.Equal(t, []string{"QMAKE_CXXFLAGS+=-O2"}, cfg.Qmake.ExtraArgs)
	assert.True(t, cfg.Qmake.Debug)
	assert.Equal(t, time.Second, cfg.Scheduler.UpdateInterval)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Coalesce)
	assert.Equal(t, "msvc", cfg.Toolchain.Type)
	assert.Equal(t, 32, cfg.Toolchain.WordWidth)

	// defaults
	assert.Equal(t, "qmake", cfg.Qmake.Binary)
	assert.Equal(t, "make", cfg.Qmake.Make)
	assert.Equal(t, "yes", cfg.CodeModel.TweakHeaderPaths)
	assert.Equal(t, 2.0, cfg.Watch.RefreshRate)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, DefaultUpdateInterval, cfg.Scheduler.UpdateInterval)
	assert.Equal(t, DefaultCoalesce, cfg.Watch.Coalesce)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "gcc", cfg.Toolchain.Type)
	assert.Equal(t, 64, cfg.Toolchain.WordWidth)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"version":    "version = 3\n",
		"workers":    "[scheduler]\nworkers = -1\n",
		"toolchain":  "[toolchain]\ntype = \"borland\"\n",
		"word width": "[toolchain]\nword_width = 16\n",
		"tweak":      "[code_model]\ntweak_header_paths = \"maybe\"\n",
		"tristate":   "[qmake]\nqml_debugging = \"sometimes\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("QMAKEMODEL_SCHEDULER_WORKERS", "8")
	t.Setenv("QMAKEMODEL_WATCH_COALESCE", "75ms")
	t.Setenv("QMAKEMODEL_PROJECT_FILE", "/src/root.pro")
	t.Setenv("QMAKEMODEL_QMAKE_DEBUG", "TRUE")
	t.Setenv("QMAKEMODEL_OBSERVABILITY_ENABLED", "not-a-bool")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 75*time.Millisecond, cfg.Watch.Coalesce)
	assert.Equal(t, "/src/root.pro", cfg.Project.File)
	assert.True(t, cfg.Qmake.Debug)
	assert.False(t, cfg.Observability.Enabled)
}

func TestParseClangEnv(t *testing.T) {
	env := map[string]string{
		EnvOptionsBlacklist:   "-fno-foo; -Wbar;;",
		EnvUseToolchainMacros: "1",
	}
	got := ParseClangEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, []string{"-fno-foo", "-Wbar"}, got.OptionsBlacklist)
	assert.True(t, got.UseToolchainMacros)
	assert.False(t, got.NoDiagnosticCheck)
}

func TestReadClangEnvIsSnapshot(t *testing.T) {
	first := ReadClangEnv()
	t.Setenv(EnvNoDiagnosticCheck, "1")
	assert.Equal(t, first, ReadClangEnv())
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[scheduler]\nworkers = 1\n")

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[scheduler]\nworkers = 6\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 6, cfg.Scheduler.Workers)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
