package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eaton-lab/kmpy/pkg/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, config.ConfigV1VersionString, cfg.Kmpy)
	require.Equal(t, "_R", cfg.Delim)
	require.Equal(t, "native", cfg.Engine)
	require.GreaterOrEqual(t, cfg.Threads, 2)
	require.NotEmpty(t, cfg.Workdir)
	require.Nil(t, cfg.Progress)
}

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(`
kmpy: "2026-01"
workdir: /data/projects
threads: 8
engine: kmc
kmcPath: /opt/kmc/bin/kmc
progress: false
`))
	require.NoError(t, err)
	require.Equal(t, "/data/projects", cfg.Workdir)
	require.Equal(t, 8, cfg.Threads)
	require.Equal(t, "kmc", cfg.Engine)
	require.Equal(t, "/opt/kmc/bin/kmc", cfg.KmcPath)
	require.NotNil(t, cfg.Progress)
	require.False(t, *cfg.Progress)

	// unset fields fall back to defaults
	require.Equal(t, "_R", cfg.Delim)
}

func TestParsePartialFillsDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte("kmpy: \"2026-01\"\n"))
	require.NoError(t, err)
	def := config.Default()
	require.Equal(t, def.Workdir, cfg.Workdir)
	require.Equal(t, def.Threads, cfg.Threads)
	require.Equal(t, def.Engine, cfg.Engine)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing_version", "workdir: /tmp\n"},
		{"unsupported_version", "kmpy: \"1999-12\"\n"},
		{"not_yaml", ":\t:::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestReadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte("kmpy: \"2026-01\"\nthreads: 3\n"), 0o644))

	cfg, err := config.ReadFrom(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Threads)

	_, err = config.ReadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestReadFallsBackToDefaults(t *testing.T) {
	// point the config dir somewhere empty
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Read()
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}
