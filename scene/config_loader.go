package scene

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is supplied.
// Defaults mirror the reference extraction run: complete symmetrized pair
// graph, MST init, cosine schedule, 300 iterations at lr 0.01.
func DefaultConfig() *Config {
	return &Config{
		Extensions: []string{".png"},
		Device:     DeviceCPU,
		Inference: InferenceConfig{
			ImageSize: 512,
			BatchSize: 1,
		},
		Pairing: PairingConfig{
			Strategy:   PairingComplete,
			Symmetrize: true,
		},
		Alignment: AlignmentConfig{
			Init:         "mst",
			Schedule:     ScheduleCosine,
			LearningRate: 0.01,
			Iterations:   300,
		},
		Export: "poses.csv",
		Visualization: VisualizationConfig{
			SampleCount: 10,
			Output:      "matches.png",
			Format:      "raster",
		},
	}
}

// LoadConfig loads the run configuration from a YAML file. Missing optional
// fields fall back to DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ValidateConfig checks the recognized option values and value ranges.
func ValidateConfig(config *Config) error {
	switch config.Device {
	case DeviceCPU, DeviceAccelerator:
	default:
		return fmt.Errorf("device must be %q or %q, got %q", DeviceCPU, DeviceAccelerator, config.Device)
	}

	switch config.Pairing.Strategy {
	case PairingComplete:
	case PairingSubset:
		if len(config.Pairing.Pairs) == 0 {
			return fmt.Errorf("pairing.pairs is required for the %q strategy", PairingSubset)
		}
	default:
		return fmt.Errorf("pairing.strategy must be %q or %q, got %q", PairingComplete, PairingSubset, config.Pairing.Strategy)
	}

	switch config.Alignment.Schedule {
	case ScheduleCosine, ScheduleLinear:
	default:
		return fmt.Errorf("alignment.schedule must be %q or %q, got %q", ScheduleCosine, ScheduleLinear, config.Alignment.Schedule)
	}

	if config.Alignment.LearningRate <= 0 {
		return fmt.Errorf("alignment.learningRate must be > 0, got %g", config.Alignment.LearningRate)
	}
	if config.Alignment.Iterations <= 0 {
		return fmt.Errorf("alignment.iterations must be > 0, got %d", config.Alignment.Iterations)
	}
	if config.Matching.MaxDistance < 0 {
		return fmt.Errorf("matching.maxDistance must be >= 0, got %g", config.Matching.MaxDistance)
	}
	if config.Visualization.SampleCount < 0 {
		return fmt.Errorf("visualization.sampleCount must be >= 0, got %d", config.Visualization.SampleCount)
	}
	if n := len(config.Visualization.Pair); n != 0 && n != 2 {
		return fmt.Errorf("visualization.pair must list exactly two view ids, got %d", n)
	}
	if len(config.Extensions) == 0 {
		return fmt.Errorf("at least one image extension is required")
	}

	return nil
}
