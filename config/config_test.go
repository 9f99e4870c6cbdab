package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-segloader/vision/dataloader"
	"github.com/tsawler/go-segloader/vision/preprocessing"
)

const fullConfig = `
source: data/train.txt
root_folder: data/
shuffle: true
seed: 7
rand_skip: 5
new_height: 64
new_width: 48
batch_size: 8
is_color: false
cache_size: 16
transform:
  phase: test
  crop_size: 32
  mirror: true
  scale: 0.5
  mean_values: [104, 117, 123]
  seed: 9
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/train.txt", cfg.Source)
	assert.Equal(t, "data/", cfg.RootFolder)
	assert.True(t, cfg.Shuffle)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 5, cfg.RandSkip)
	assert.Equal(t, 8, cfg.BatchSize)
	require.NotNil(t, cfg.IsColor)
	assert.False(t, *cfg.IsColor)
	assert.Equal(t, []float32{104, 117, 123}, cfg.Transform.MeanValues)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("source: a.txt\nbatch_size: 2\n"))
	require.NoError(t, err)

	require.NotNil(t, cfg.IsColor)
	assert.True(t, *cfg.IsColor)
	assert.Equal(t, float32(1), cfg.Transform.Scale)

	lc := cfg.ToLoaderConfig()
	assert.False(t, lc.Grayscale)
	assert.Equal(t, preprocessing.PhaseTrain, lc.Transform.Phase)
}

func TestToLoaderConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	lc := cfg.ToLoaderConfig()
	assert.Equal(t, "data/train.txt", lc.Source)
	assert.Equal(t, "data/", lc.RootFolder)
	assert.True(t, lc.Shuffle)
	assert.Equal(t, int64(7), lc.Seed)
	assert.Equal(t, 5, lc.RandSkip)
	assert.Equal(t, 64, lc.NewHeight)
	assert.Equal(t, 48, lc.NewWidth)
	assert.Equal(t, 8, lc.BatchSize)
	assert.True(t, lc.Grayscale)
	assert.Equal(t, 16, lc.CacheSize)
	assert.Equal(t, preprocessing.TransformConfig{
		Phase:      preprocessing.PhaseTest,
		CropSize:   32,
		Mirror:     true,
		Scale:      0.5,
		MeanValues: []float32{104, 117, 123},
		Seed:       9,
	}, lc.Transform)
	assert.Nil(t, lc.Decoder)
	assert.Nil(t, lc.Logger)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing source", "batch_size: 1\n"},
		{"zero batch size", "source: a.txt\n"},
		{"negative rand skip", "source: a.txt\nbatch_size: 1\nrand_skip: -1\n"},
		{"height without width", "source: a.txt\nbatch_size: 1\nnew_height: 10\nnew_width: 0\n"},
		{"width without height", "source: a.txt\nbatch_size: 1\nnew_width: 10\n"},
		{"negative geometry", "source: a.txt\nbatch_size: 1\nnew_height: -4\nnew_width: -4\n"},
		{"negative cache", "source: a.txt\nbatch_size: 1\ncache_size: -1\n"},
		{"unknown phase", "source: a.txt\nbatch_size: 1\ntransform:\n  phase: eval\n"},
		{"negative crop", "source: a.txt\nbatch_size: 1\ntransform:\n  crop_size: -1\n"},
		{"crop larger than resize", "source: a.txt\nbatch_size: 1\nnew_height: 8\nnew_width: 8\ntransform:\n  crop_size: 9\n"},
		{"malformed yaml", "source: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, dataloader.IsConfigError(err), "want ConfigError, got %v", err)
		})
	}
}
