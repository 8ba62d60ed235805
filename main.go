package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kwv/parallax/scene"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile   = flag.String("config", "config.yaml", "Path to configuration file")
	imagesDir    = flag.String("images", "", "Override input image directory")
	outputFile   = flag.String("output", "", "Override pose table destination (default poses.csv)")
	vizOutput    = flag.String("viz-output", "", "Override match overlay destination")
	vizFormat    = flag.String("format", "", "Match overlay format: raster, vector")
	sampleCount  = flag.Int("sample", -1, "Override number of matches to visualize")
	discoverOnly = flag.Bool("discover-only", false, "List discovered input images and exit")
	noViz        = flag.Bool("no-viz", false, "Skip the match visualization step")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("parallax version: %s\n", Version)
		return
	}

	config := loadConfig()
	applyOverrides(config)

	if config.Images == "" {
		log.Fatal("No image directory configured (set images: in config or pass -images)")
	}

	if *discoverOnly {
		runDiscoverOnly(config)
		return
	}

	if config.Inference.URL == "" {
		log.Fatal("No inference service configured (set inference.url in config)")
	}

	client := scene.NewInferenceClient(config.Inference.URL)
	pipeline := scene.NewPipeline(config, client, client, buildSink(config))

	result, err := pipeline.Run(context.Background())
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	fmt.Printf("Exported %d pose(s) to %s (alignment loss %.6f)\n",
		len(result.Records), result.ExportPath, result.Loss)
	fmt.Printf("Found %d reciprocal match(es), visualized %d\n",
		result.MatchCount, result.SampledCount)

	publishResult(config, result)
}

// loadConfig reads the config file when it exists, otherwise starts from
// defaults so the CLI flags alone can drive a run.
func loadConfig() *scene.Config {
	if _, err := os.Stat(*configFile); err != nil {
		log.Printf("Config file %s not found, using defaults", *configFile)
		return scene.DefaultConfig()
	}

	config, err := scene.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	log.Printf("Loaded config from %s", *configFile)
	return config
}

// applyOverrides layers CLI flags over the file configuration.
func applyOverrides(config *scene.Config) {
	if *imagesDir != "" {
		config.Images = *imagesDir
	}
	if *outputFile != "" {
		config.Export = *outputFile
	}
	if *vizOutput != "" {
		config.Visualization.Output = *vizOutput
	}
	if *vizFormat != "" {
		config.Visualization.Format = *vizFormat
	}
	if *sampleCount >= 0 {
		config.Visualization.SampleCount = *sampleCount
	}
}

// buildSink selects the visualization sink from config, or none.
func buildSink(config *scene.Config) scene.VisualizationSink {
	if *noViz || config.Visualization.Output == "" {
		return nil
	}
	if config.Visualization.Format == "vector" {
		return scene.NewMatchVectorRenderer(config.Visualization.Output, "svg")
	}
	return scene.NewMatchRenderer(config.Visualization.Output)
}

// runDiscoverOnly lists the images a run would consume.
func runDiscoverOnly(config *scene.Config) {
	views, err := scene.CollectImages(config.Images, config.Extensions)
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}

	fmt.Printf("Found %d input image(s)\n", len(views))
	for _, v := range views {
		fmt.Printf("  %s  %s\n", v.Label(), v.Path)
	}
}

// publishResult pushes the run to MQTT when a broker is configured.
func publishResult(config *scene.Config, result *scene.RunResult) {
	if config.MQTT.Broker == "" {
		return
	}

	publisher, err := scene.ConnectPublisher(config.MQTT)
	if err != nil {
		log.Printf("Warning: MQTT publish skipped: %v", err)
		return
	}
	defer publisher.Close()

	if err := publisher.PublishRun(result); err != nil {
		log.Printf("Warning: MQTT publish failed: %v", err)
	}
}
