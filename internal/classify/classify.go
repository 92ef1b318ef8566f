// Package classify implements the Statistical Classifier (C6): it loads an
// opaque, externally trained artifact and scores a feature.Vector against
// it. The artifact's internal model representation is never inspected by
// callers — only Predict's tagged Result crosses the package boundary, per
// the "dynamic per-stage result dictionaries -> tagged result values"
// design note.
package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/elliotttmiller/signalscout/internal/feature"
)

// ConfidenceTier buckets a probability into an operator-facing label.
type ConfidenceTier string

const (
	TierVeryLow  ConfidenceTier = "very_low"
	TierLow      ConfidenceTier = "low"
	TierMedium   ConfidenceTier = "medium"
	TierHigh     ConfidenceTier = "high"
	TierVeryHigh ConfidenceTier = "very_high"
)

// Result is the tagged outcome of a classification, per spec §4.6.
type Result struct {
	Available    bool
	IsPositive   bool
	Probability  float64
	Tier         ConfidenceTier
	KeyFeatures  []string
	Error        string
}

// artifact is the serialized classifier file's JSON shape: {model,
// feature_names, performance_metrics, version}. The "model" sub-object is
// a linear scorer (weights + bias); this is an implementation choice for
// what the externally-described artifact format contains, and the core
// treats it as opaque beyond this load step, matching spec §4.6 and §6.
type artifact struct {
	Model struct {
		Weights []float64 `json:"weights"`
		Bias    float64   `json:"bias"`
	} `json:"model"`
	FeatureNames       []string          `json:"feature_names"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
	Version            string            `json:"version"`
}

// Classifier scores a feature.Vector using a loaded artifact. A nil/absent
// artifact is a valid, "unavailable" state: spec §4.6 requires the
// Crawler to treat that as a gate failure, never an abort.
type Classifier struct {
	AdmissionThreshold float64
	Manifest           *TrainingManifest
	loaded             *artifact
}

// Load reads the artifact at path, and its sidecar training manifest if
// present. Absence of the artifact file is not an error: the returned
// Classifier simply reports Unavailable on Predict (spec §4.6: "If no
// artifact is present, the classifier returns is_positive=false,
// probability=0, error='no model'").
func Load(path string, admissionThreshold float64) (*Classifier, error) {
	c := &Classifier{AdmissionThreshold: admissionThreshold}
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read classifier artifact: %w", err)
	}
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("parse classifier artifact: %w", err)
	}
	c.loaded = &a

	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	c.Manifest = manifest
	return c, nil
}

// Available reports whether a trained artifact was loaded.
func (c *Classifier) Available() bool { return c != nil && c.loaded != nil }

// Predict scores v and returns a tagged Result. Admission to the next
// funnel stage (spec §4.6) is probability >= AdmissionThreshold (default
// 0.7), reported as Result.IsPositive; Predict itself only reports the
// verdict, and the caller enforces the gate.
func (c *Classifier) Predict(v feature.Vector) Result {
	if !c.Available() {
		return Result{Available: false, Error: "no model"}
	}

	names := feature.Names()
	values := v.Values()
	weights := c.loaded.Model.Weights

	var z float64
	contributions := make([]struct {
		name string
		abs  float64
	}, 0, len(names))
	for i, name := range names {
		var w float64
		if i < len(weights) {
			w = weights[i]
		}
		contribution := w * values[i]
		z += contribution
		contributions = append(contributions, struct {
			name string
			abs  float64
		}{name: name, abs: absF(contribution)})
	}
	z += c.loaded.Model.Bias

	probability := sigmoid(z)
	sort.Slice(contributions, func(i, j int) bool { return contributions[i].abs > contributions[j].abs })
	topN := 5
	if len(contributions) < topN {
		topN = len(contributions)
	}
	keyFeatures := make([]string, topN)
	for i := 0; i < topN; i++ {
		keyFeatures[i] = contributions[i].name
	}

	return Result{
		Available:   true,
		IsPositive:  probability >= c.AdmissionThreshold,
		Probability: probability,
		Tier:        tierFor(probability),
		KeyFeatures: keyFeatures,
	}
}

func tierFor(p float64) ConfidenceTier {
	switch {
	case p >= 0.9:
		return TierVeryHigh
	case p >= 0.75:
		return TierHigh
	case p >= 0.5:
		return TierMedium
	case p >= 0.25:
		return TierLow
	default:
		return TierVeryLow
	}
}

func sigmoid(z float64) float64 {
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
