package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// PairPrediction is the raw reconstruction output for one view pair. The
// payload is opaque to the pipeline: it is produced by the reconstruction
// stage and handed back to the alignment stage without interpretation.
type PairPrediction struct {
	Pair    ViewPair        `json:"pair"`
	Payload json.RawMessage `json:"payload"`
}

// InferOptions are the hyperparameters forwarded to the reconstruction stage.
type InferOptions struct {
	Device    string `json:"device"`
	ImageSize int    `json:"imageSize"`
	BatchSize int    `json:"batchSize"`
}

// AlignOptions are the hyperparameters forwarded to the global-alignment
// solver.
type AlignOptions struct {
	Init         string  `json:"init"`
	Schedule     string  `json:"schedule"`
	LearningRate float64 `json:"learningRate"`
	Iterations   int     `json:"iterations"`
}

// Reconstructor runs pairwise inference over the supplied views. It is an
// external collaborator: parallax consumes its output and never looks inside.
type Reconstructor interface {
	Infer(ctx context.Context, views []View, pairs []ViewPair, opts InferOptions) ([]PairPrediction, error)
}

// Aligner reconciles raw pairwise predictions into one globally consistent
// pose/focal/point-map/mask per view, plus a scalar convergence loss. A high
// loss is reported, not raised: enforcing a ceiling is the pipeline's call.
type Aligner interface {
	Align(ctx context.Context, preds []PairPrediction, opts AlignOptions) (*AlignmentResult, error)
}

// ErrLossExceeded marks an alignment whose reported loss is above the
// configured ceiling.
var ErrLossExceeded = errors.New("alignment loss exceeds configured maximum")

// StageError attributes a pipeline failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageErr wraps err with its stage name, passing nil through.
func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
