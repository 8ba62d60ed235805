package main

import (
	"testing"

	"github.com/kwv/parallax/scene"
)

func resetFlags() {
	*imagesDir = ""
	*outputFile = ""
	*vizOutput = ""
	*vizFormat = ""
	*sampleCount = -1
	*noViz = false
}

func TestApplyOverrides(t *testing.T) {
	resetFlags()
	defer resetFlags()

	*imagesDir = "/data/scans"
	*outputFile = "out/poses.csv"
	*vizOutput = "out/matches.svg"
	*vizFormat = "vector"
	*sampleCount = 25

	config := scene.DefaultConfig()
	applyOverrides(config)

	if config.Images != "/data/scans" {
		t.Errorf("expected Images /data/scans, got %s", config.Images)
	}
	if config.Export != "out/poses.csv" {
		t.Errorf("expected Export out/poses.csv, got %s", config.Export)
	}
	if config.Visualization.Output != "out/matches.svg" {
		t.Errorf("expected viz output out/matches.svg, got %s", config.Visualization.Output)
	}
	if config.Visualization.Format != "vector" {
		t.Errorf("expected viz format vector, got %s", config.Visualization.Format)
	}
	if config.Visualization.SampleCount != 25 {
		t.Errorf("expected sample count 25, got %d", config.Visualization.SampleCount)
	}
}

func TestApplyOverrides_UnsetFlagsKeepConfig(t *testing.T) {
	resetFlags()
	defer resetFlags()

	config := scene.DefaultConfig()
	config.Images = "/from/config"
	config.Visualization.SampleCount = 7

	applyOverrides(config)

	if config.Images != "/from/config" {
		t.Errorf("expected Images preserved, got %s", config.Images)
	}
	if config.Visualization.SampleCount != 7 {
		t.Errorf("expected sample count preserved, got %d", config.Visualization.SampleCount)
	}
}

func TestBuildSink(t *testing.T) {
	resetFlags()
	defer resetFlags()

	config := scene.DefaultConfig()
	config.Visualization.Output = "matches.png"

	if _, ok := buildSink(config).(*scene.MatchRenderer); !ok {
		t.Error("expected raster sink for default format")
	}

	config.Visualization.Format = "vector"
	if _, ok := buildSink(config).(*scene.MatchVectorRenderer); !ok {
		t.Error("expected vector sink for vector format")
	}

	config.Visualization.Output = ""
	if buildSink(config) != nil {
		t.Error("expected no sink without an output path")
	}

	config.Visualization.Output = "matches.png"
	*noViz = true
	if buildSink(config) != nil {
		t.Error("expected no sink with -no-viz")
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
