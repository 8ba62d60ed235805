package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
images: /data/scans
extensions: [".jpg", ".png"]
inference:
  url: http://localhost:5000
alignment:
  iterations: 150
  maxLoss: 2.5
matching:
  maxDistance: 0.05
visualization:
  sampleCount: 20
  pair: [1, 3]
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/scans", config.Images)
	assert.Equal(t, []string{".jpg", ".png"}, config.Extensions)
	assert.Equal(t, "http://localhost:5000", config.Inference.URL)
	assert.Equal(t, 150, config.Alignment.Iterations)
	assert.Equal(t, 2.5, config.Alignment.MaxLoss)
	assert.Equal(t, 0.05, config.Matching.MaxDistance)
	assert.Equal(t, 20, config.Visualization.SampleCount)

	a, b := config.MatchPair()
	assert.Equal(t, 1, a)
	assert.Equal(t, 3, b)

	// Untouched fields keep their defaults.
	assert.Equal(t, "mst", config.Alignment.Init)
	assert.Equal(t, ScheduleCosine, config.Alignment.Schedule)
	assert.Equal(t, 0.01, config.Alignment.LearningRate)
	assert.Equal(t, DeviceCPU, config.Device)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "images: [unterminated")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	config := DefaultConfig()
	config.Images = "/data/scans"
	config.Matching.MaxDistance = 0.1

	require.NoError(t, SaveConfig(path, config))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestValidateConfig_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad device", func(c *Config) { c.Device = "tpu" }},
		{"bad strategy", func(c *Config) { c.Pairing.Strategy = "ring" }},
		{"subset without pairs", func(c *Config) { c.Pairing.Strategy = PairingSubset }},
		{"bad schedule", func(c *Config) { c.Alignment.Schedule = "step" }},
		{"zero learning rate", func(c *Config) { c.Alignment.LearningRate = 0 }},
		{"zero iterations", func(c *Config) { c.Alignment.Iterations = 0 }},
		{"negative max distance", func(c *Config) { c.Matching.MaxDistance = -1 }},
		{"negative sample count", func(c *Config) { c.Visualization.SampleCount = -1 }},
		{"one-sided pair", func(c *Config) { c.Visualization.Pair = []int{2} }},
		{"no extensions", func(c *Config) { c.Extensions = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)
			assert.Error(t, ValidateConfig(config))
		})
	}
}
