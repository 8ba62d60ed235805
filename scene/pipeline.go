package scene

import (
	"context"
	"fmt"
	"log"
)

// RunResult summarizes one completed pipeline run.
type RunResult struct {
	Views        []View
	Records      []PoseRecord
	Loss         float64
	MatchCount   int
	SampledCount int
	ExportPath   string
}

// Pipeline sequences one batch run: discover images, reconstruct pairwise,
// align globally, export the pose table, then correspondence-check one view
// pair and hand the sampled matches to the visualization sink. Each stage
// consumes the immutable output of the previous one; the first failure
// aborts the remaining stages with a stage-named error. Nothing is retried
// at this level.
type Pipeline struct {
	Config        *Config
	Reconstructor Reconstructor
	Aligner       Aligner
	Sink          VisualizationSink // optional; nil skips visualization
}

// NewPipeline assembles a pipeline from a config and its collaborators.
func NewPipeline(config *Config, rec Reconstructor, al Aligner, sink VisualizationSink) *Pipeline {
	return &Pipeline{
		Config:        config,
		Reconstructor: rec,
		Aligner:       al,
		Sink:          sink,
	}
}

// Run executes the pipeline once.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	cfg := p.Config

	// Stage 1: discovery.
	views, err := CollectImages(cfg.Images, cfg.Extensions)
	if err != nil {
		return nil, stageErr("discover", err)
	}
	log.Printf("Discovered %d input image(s) under %s", len(views), cfg.Images)

	// Stage 2: pairwise reconstruction.
	pairs, err := MakePairs(views, cfg.Pairing)
	if err != nil {
		return nil, stageErr("reconstruct", err)
	}
	preds, err := p.Reconstructor.Infer(ctx, views, pairs, InferOptions{
		Device:    cfg.Device,
		ImageSize: cfg.Inference.ImageSize,
		BatchSize: cfg.Inference.BatchSize,
	})
	if err != nil {
		return nil, stageErr("reconstruct", err)
	}
	log.Printf("Reconstruction produced %d pair prediction(s)", len(preds))

	// Stage 3: global alignment.
	aligned, err := p.Aligner.Align(ctx, preds, AlignOptions{
		Init:         cfg.Alignment.Init,
		Schedule:     cfg.Alignment.Schedule,
		LearningRate: cfg.Alignment.LearningRate,
		Iterations:   cfg.Alignment.Iterations,
	})
	if err != nil {
		return nil, stageErr("align", err)
	}
	log.Printf("Global alignment converged with loss %.6f over %d view(s)", aligned.Loss, len(aligned.Views))
	if max := cfg.Alignment.MaxLoss; max > 0 && aligned.Loss > max {
		return nil, stageErr("align", fmt.Errorf("%w: %.6f > %.6f", ErrLossExceeded, aligned.Loss, max))
	}

	// Stage 4: pose table export.
	exportPath := cfg.Export
	if exportPath == "" {
		exportPath = DefaultExportPath
	}
	records := aligned.PoseRecords()
	if err := ExportPoses(exportPath, records); err != nil {
		return nil, stageErr("export", err)
	}
	log.Printf("Wrote %d pose record(s) to %s", len(records), exportPath)

	// Stage 5: correspondence check on the chosen pair. Zero matches is a
	// valid (degenerate) result and still flows to the sink.
	matches, err := p.matchPair(aligned)
	if err != nil {
		return nil, stageErr("match", err)
	}
	log.Printf("Found %d reciprocal match(es)", matches.Count())

	sampled := SampleMatches(matches, cfg.Visualization.SampleCount)
	if p.Sink != nil {
		if err := p.visualize(aligned, sampled); err != nil {
			return nil, stageErr("visualize", err)
		}
	}

	return &RunResult{
		Views:        views,
		Records:      records,
		Loss:         aligned.Loss,
		MatchCount:   matches.Count(),
		SampledCount: sampled.Count(),
		ExportPath:   exportPath,
	}, nil
}

// matchPair applies each view's confidence mask to its point map, then runs
// the reciprocal matcher over the filtered sets.
func (p *Pipeline) matchPair(aligned *AlignmentResult) (CorrespondenceSet, error) {
	idA, idB := p.Config.MatchPair()

	recA, ok := aligned.Record(idA)
	if !ok {
		return CorrespondenceSet{}, fmt.Errorf("view %d missing from alignment output", idA)
	}
	recB, ok := aligned.Record(idB)
	if !ok {
		return CorrespondenceSet{}, fmt.Errorf("view %d missing from alignment output", idB)
	}

	setA, err := FilterByMask(recA.Points, recA.Mask)
	if err != nil {
		return CorrespondenceSet{}, fmt.Errorf("view %d: %w", idA, err)
	}
	setB, err := FilterByMask(recB.Points, recB.Mask)
	if err != nil {
		return CorrespondenceSet{}, fmt.Errorf("view %d: %w", idB, err)
	}

	return MatchPointSets(setA, setB, p.Config.Matching.MaxDistance), nil
}

// visualize loads the two chosen images, scales each to its point-map
// resolution, composes them side by side, and hands the composite plus one
// colored line per sampled match to the sink.
func (p *Pipeline) visualize(aligned *AlignmentResult, sampled CorrespondenceSet) error {
	idA, idB := p.Config.MatchPair()
	recA := aligned.Views[idA]
	recB := aligned.Views[idB]

	imgA, err := LoadImage(recA.View.Path)
	if err != nil {
		return err
	}
	imgB, err := LoadImage(recB.View.Path)
	if err != nil {
		return err
	}

	imgA = FitToSize(imgA, recA.Points.Width, recA.Points.Height)
	imgB = FitToSize(imgB, recB.Points.Width, recB.Points.Height)

	composite, offsetB := SideBySide(imgA, imgB)
	lines := MatchLines(sampled, offsetB)

	return p.Sink.DrawMatches(composite, lines)
}
