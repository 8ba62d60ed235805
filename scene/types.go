package scene

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// View identifies one input image. The ID is assigned once at discovery time
// and is stable across every later stage.
type View struct {
	ID     int    `json:"id"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Label returns the export label for the view ("img0", "img1", ...).
func (v View) Label() string {
	return fmt.Sprintf("img%d", v.ID)
}

// ViewPair is an ordered pair of view ids submitted to the reconstruction stage.
type ViewPair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Pose is a 4x4 homogeneous camera-to-world transform, row-major.
type Pose struct {
	M [16]float64 `json:"m"`
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{M: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Translation returns the camera position component of the pose.
func (p Pose) Translation() r3.Vec {
	return r3.Vec{X: p.M[3], Y: p.M[7], Z: p.M[11]}
}

// String serializes the pose as 16 space-separated row-major values at full
// float64 precision. The result round-trips through ParsePose.
func (p Pose) String() string {
	parts := make([]string, len(p.M))
	for i, v := range p.M {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// ParsePose parses the serialization produced by Pose.String.
func ParsePose(s string) (Pose, error) {
	fields := strings.Fields(s)
	if len(fields) != 16 {
		return Pose{}, fmt.Errorf("parsing pose: want 16 values, got %d", len(fields))
	}
	var p Pose
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Pose{}, fmt.Errorf("parsing pose value %d: %w", i, err)
		}
		p.M[i] = v
	}
	return p, nil
}

// PoseRecord is the exported row shape: one per view.
type PoseRecord struct {
	Label string
	Focal float64
	Pose  Pose
}

// ViewRecord bundles everything the aligner produces for one view.
// Records are created once per run and are immutable afterwards.
type ViewRecord struct {
	View   View
	Pose   Pose
	Focal  float64
	Points *PointMap
	Mask   *ConfidenceMask
}

// AlignmentResult is the globally consistent output of the alignment stage,
// keyed by view id, plus the solver's scalar convergence loss.
type AlignmentResult struct {
	Views map[int]ViewRecord
	Loss  float64
}

// Record returns the record for a view id.
func (r *AlignmentResult) Record(id int) (ViewRecord, bool) {
	rec, ok := r.Views[id]
	return rec, ok
}

// ViewIDs returns all view ids in ascending order.
func (r *AlignmentResult) ViewIDs() []int {
	ids := make([]int, 0, len(r.Views))
	for id := range r.Views {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// PoseRecords returns one record per view in ascending view-id order.
func (r *AlignmentResult) PoseRecords() []PoseRecord {
	records := make([]PoseRecord, 0, len(r.Views))
	for _, id := range r.ViewIDs() {
		rec := r.Views[id]
		records = append(records, PoseRecord{
			Label: rec.View.Label(),
			Focal: rec.Focal,
			Pose:  rec.Pose,
		})
	}
	return records
}

// Pairing strategies accepted in configuration.
const (
	PairingComplete = "complete"
	PairingSubset   = "subset"
)

// Devices accepted in configuration.
const (
	DeviceCPU         = "cpu"
	DeviceAccelerator = "accelerator"
)

// Learning-rate schedules accepted in configuration.
const (
	ScheduleCosine = "cosine"
	ScheduleLinear = "linear"
)

// InferenceConfig configures the reconstruction service call.
type InferenceConfig struct {
	URL       string `yaml:"url" json:"url"`
	ImageSize int    `yaml:"imageSize,omitempty" json:"imageSize,omitempty"`
	BatchSize int    `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`
}

// PairingConfig selects which view pairs are submitted for inference.
type PairingConfig struct {
	Strategy   string     `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Symmetrize bool       `yaml:"symmetrize" json:"symmetrize"`
	Pairs      []ViewPair `yaml:"pairs,omitempty" json:"pairs,omitempty"`
}

// AlignmentConfig holds the global-alignment hyperparameters.
// MaxLoss is the optional convergence guard: when > 0 and the solver reports
// a loss above it, the run is aborted. 0 disables the check.
type AlignmentConfig struct {
	Init         string  `yaml:"init,omitempty" json:"init,omitempty"`
	Schedule     string  `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	LearningRate float64 `yaml:"learningRate,omitempty" json:"learningRate,omitempty"`
	Iterations   int     `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	MaxLoss      float64 `yaml:"maxLoss,omitempty" json:"maxLoss,omitempty"`
}

// MatchingConfig tunes the correspondence check. MaxDistance > 0 rejects
// mutual pairs farther apart than that in the common 3D frame; 0 keeps every
// mutual pair.
type MatchingConfig struct {
	MaxDistance float64 `yaml:"maxDistance,omitempty" json:"maxDistance,omitempty"`
}

// VisualizationConfig controls the match overlay step.
type VisualizationConfig struct {
	SampleCount int    `yaml:"sampleCount" json:"sampleCount"`
	Output      string `yaml:"output,omitempty" json:"output,omitempty"`
	Format      string `yaml:"format,omitempty" json:"format,omitempty"` // "raster", "vector"
	Pair        []int  `yaml:"pair,omitempty" json:"pair,omitempty"`     // two view ids; default first two
}

// MQTTConfig holds optional result-publishing settings. Publishing is
// disabled when Broker is empty.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Config represents the full run configuration file.
type Config struct {
	Images        string              `yaml:"images,omitempty" json:"images,omitempty"`
	Extensions    []string            `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Device        string              `yaml:"device,omitempty" json:"device,omitempty"`
	Inference     InferenceConfig     `yaml:"inference" json:"inference"`
	Pairing       PairingConfig       `yaml:"pairing" json:"pairing"`
	Alignment     AlignmentConfig     `yaml:"alignment" json:"alignment"`
	Matching      MatchingConfig      `yaml:"matching" json:"matching"`
	Export        string              `yaml:"export,omitempty" json:"export,omitempty"`
	Visualization VisualizationConfig `yaml:"visualization" json:"visualization"`
	MQTT          MQTTConfig          `yaml:"mqtt" json:"mqtt"`
}

// MatchPair returns the two view ids selected for correspondence checking.
// Defaults to views 0 and 1 when unset.
func (c *Config) MatchPair() (int, int) {
	if len(c.Visualization.Pair) == 2 {
		return c.Visualization.Pair[0], c.Visualization.Pair[1]
	}
	return 0, 1
}
