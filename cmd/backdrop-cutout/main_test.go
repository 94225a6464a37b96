package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"backdrop-cutout/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cutout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: tonal\nsolver:\n  iterations: 9\nbatch:\n  workers: 3\n"), 0o644))

	opts, fs, err := parseFlags([]string{"-config", path, "-workers", "1", "-solver", "labels", "-output", "done", "-memory-limit-mb", "512"})
	require.NoError(t, err)
	cfg, err := resolveConfig(opts, fs)
	require.NoError(t, err)

	assert.Equal(t, config.StrategyTonal, cfg.Strategy)
	assert.Equal(t, 9, cfg.Solver.Iterations)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, config.SolverLabels, cfg.Solver.Kind)
	assert.Equal(t, "done", cfg.Batch.Output)
	assert.Equal(t, "1_sources", cfg.Batch.Input)
	assert.Equal(t, 512, cfg.Batch.MemoryLimitMB)
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	opts, fs, err := parseFlags([]string{"-strategy", "flood-fill"})
	require.NoError(t, err)
	cfg, err := resolveConfig(opts, fs)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Solver.Iterations)
	assert.Equal(t, config.SolverGrabCut, cfg.Solver.Kind)
}

func TestInvalidFlagsFailValidation(t *testing.T) {
	opts, fs, err := parseFlags([]string{"-iterations", "0"})
	require.NoError(t, err)
	_, err = resolveConfig(opts, fs)
	assert.Error(t, err)

	_, _, err = parseFlags([]string{"stray"})
	assert.Error(t, err)
}

func TestRunExitCodes(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()

	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 8; y < 16; y++ {
		for x := 10; x < 22; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(in, "ok.png"), buf.Bytes(), 0o644))

	args := []string{"-input", in, "-output", out, "-workers", "1", "-log-level", "error"}
	assert.Equal(t, 0, run(args))
	assert.FileExists(t, filepath.Join(out, "ok.png"))

	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.png"), []byte("nope"), 0o644))
	assert.Equal(t, 1, run(args))

	assert.Equal(t, 2, run([]string{"-strategy", "lasso"}))
	assert.Equal(t, 0, run([]string{"-version"}))
}
