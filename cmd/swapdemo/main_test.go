package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/swapframe"
	"github.com/gogpu/swapframe/backend/native"
	"github.com/gogpu/swapframe/gpucore"
)

func TestParseResize(t *testing.T) {
	tests := []struct {
		in      string
		want    Resize
		wantErr bool
	}{
		{"800x600@30", Resize{Width: 800, Height: 600, Frame: 30}, false},
		{"1x1@0", Resize{Width: 1, Height: 1}, false},
		{"800x600", Resize{}, true},
		{"800@3", Resize{}, true},
		{"axb@1", Resize{}, true},
		{"800x600@-1", Resize{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseArgsDefaults(t *testing.T) {
	cfg, err := ParseArgs(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseArgsFlags(t *testing.T) {
	cfg, err := ParseArgs([]string{
		"-backend", "sim",
		"-width", "320", "-height", "200",
		"-frames", "5",
		"-interval", "2ms",
		"-timeout", "0",
		"-resize", "640x480@2", "-resize", "100x100@4",
		"-snapshot", "out.bmp",
		"-debug", "-v",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Backend)
	assert.Equal(t, uint32(320), cfg.Width)
	assert.Equal(t, uint32(200), cfg.Height)
	assert.Equal(t, uint64(5), cfg.Frames)
	assert.Equal(t, 2*time.Millisecond, cfg.Interval.Duration)
	assert.Zero(t, cfg.Timeout.Duration)
	assert.Equal(t, []Resize{{640, 480, 2}, {100, 100, 4}}, cfg.Resizes)
	assert.Equal(t, "out.bmp", cfg.Snapshot)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Verbose)
}

func TestParseArgsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"-backend", "metal"},
		{"-width", "0"},
		{"-width", "-4"},
		{"-interval", "0s"},
		{"-resize", "0x10@1"},
		{"-unknown"},
	} {
		_, err := ParseArgs(args, io.Discard)
		assert.Error(t, err, "args %v", args)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swapdemo.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "sim"
width = 1024
height = 768
frames = 10
interval = "5ms"
clear = [0.0, 0.0, 1.0, 1.0]

[[resize]]
width = 640
height = 480
frame = 3
`), 0o600))

	cfg, err := ParseArgs([]string{"-config", path, "-frames", "20"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Backend)
	assert.Equal(t, uint32(1024), cfg.Width)
	assert.Equal(t, uint64(20), cfg.Frames, "flag overrides file")
	assert.Equal(t, 5*time.Millisecond, cfg.Interval.Duration)
	assert.Equal(t, swapframe.DefaultWaitTimeout, cfg.Timeout.Duration, "default kept")
	assert.Equal(t, []float64{0, 0, 1, 1}, cfg.Clear)
	assert.Equal(t, []Resize{{640, 480, 3}}, cfg.Resizes)
}

func TestConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("width = \"wide\"\n"), 0o600))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	dur := filepath.Join(dir, "dur.toml")
	require.NoError(t, os.WriteFile(dur, []byte("interval = \"soon\"\n"), 0o600))
	_, err = LoadConfig(dur)
	assert.Error(t, err)
}

// TestRunSim renders a few frames on the sim backend with a scheduled
// resize and writes a snapshot.
func TestRunSim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "sim"
	cfg.Width, cfg.Height = 200, 100
	cfg.Frames = 5
	cfg.Interval.Duration = time.Millisecond
	cfg.Resizes = []Resize{{Width: 64, Height: 48, Frame: 2}}
	cfg.Snapshot = filepath.Join(t.TempDir(), "frame.bmp")

	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, run(context.Background(), cfg, log, &out))

	assert.Contains(t, out.String(), "frames:         5\n")
	assert.Contains(t, out.String(), "presented:      5\n")
	assert.Contains(t, out.String(), "resizes:        2\n")
	assert.Contains(t, out.String(), "shader cache:   ")

	data, err := os.ReadFile(cfg.Snapshot)
	require.NoError(t, err)
	require.Greater(t, len(data), 54)
	assert.Equal(t, "BM", string(data[:2]))
}

// TestRunAutoWithoutGPU tests that the default backend never falls back to
// the simulator.
func TestRunAutoWithoutGPU(t *testing.T) {
	if dev, err := gpucore.Open(native.Name, gpucore.DeviceOptions{}); err == nil {
		dev.Destroy()
		t.Skip("a hardware device is present")
	}
	cfg := DefaultConfig()
	cfg.Frames = 1
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), cfg, log, io.Discard)
	assert.ErrorIs(t, err, swapframe.ErrNoDevice)
}
