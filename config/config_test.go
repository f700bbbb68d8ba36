package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[window]
title = "sponza"
width = 1280
height = 720

[render]
render_scale = 0.1
vsync = false
frame_timeout = "250ms"

[scene]
path = "assets/structure.glb"

[log]
level = "debug"
`

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, Window{Title: "sponza", Width: 1280, Height: 720}, cfg.Window)
	assert.Equal(t, uint32(1700), cfg.Render.DrawWidth, "default kept")
	assert.False(t, cfg.Render.VSync)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Render.FrameTimeout)
	assert.Equal(t, "assets/structure.glb", cfg.Scene.Path)
	assert.Equal(t, "shaders", cfg.Shaders.Dir)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestParseClampsRenderScale(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, cfg.Render.RenderScale, 1e-6)

	cfg, err = Parse([]byte("[render]\nrender_scale = 4.0\n"))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cfg.Render.RenderScale, 1e-6)
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"unknown key":   "[window]\ncolour = 3\n",
		"zero width":    "[window]\nwidth = 0\n",
		"bad duration":  "[render]\nframe_timeout = \"soon\"\n",
		"bad level":     "[log]\nlevel = \"loud\"\n",
		"empty shaders": "[shaders]\ndir = \"\"\n",
		"syntax":        "[window\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jvk.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	f := NewFlags("jvk")
	require.NoError(t, f.Parse([]string{"--config", path, "--validation", "--scene", "basicmesh.glb"}))
	cfg, err := f.Resolve()
	require.NoError(t, err)

	assert.True(t, cfg.Render.Validation)
	assert.Equal(t, "basicmesh.glb", cfg.Scene.Path)
	assert.Equal(t, "debug", cfg.Log.Level, "unset flag keeps file value")
}

func TestFlagsWithoutFile(t *testing.T) {
	f := NewFlags("jvk")
	require.NoError(t, f.Parse([]string{"--log-level", "warn"}))
	cfg, err := f.Resolve()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel())
	assert.Contains(t, f.Usage(), "--scene")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
