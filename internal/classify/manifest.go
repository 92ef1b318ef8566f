package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TrainingManifest is the sidecar, human-edited record of how an artifact
// was produced: it travels next to the JSON artifact file (same path with
// its extension replaced by .manifest.yaml) and is never required for
// Predict to function —
// it exists purely for operator visibility into provenance, mirroring the
// teacher's config_file.go convention of a human-authored YAML document
// next to a machine-consumed one.
type TrainingManifest struct {
	TrainedAt      string            `yaml:"trained_at"`
	DatasetSize    int               `yaml:"dataset_size"`
	PositiveLabels int               `yaml:"positive_labels"`
	NegativeLabels int               `yaml:"negative_labels"`
	Notes          string            `yaml:"notes"`
	Labelers       []string          `yaml:"labelers"`
	Extra          map[string]string `yaml:"extra,omitempty"`
}

// manifestPath derives the sidecar path from the artifact path by
// replacing its extension with ".manifest.yaml".
func manifestPath(artifactPath string) string {
	if i := strings.LastIndex(artifactPath, "."); i >= 0 {
		return artifactPath[:i] + ".manifest.yaml"
	}
	return artifactPath + ".manifest.yaml"
}

// LoadManifest reads the training manifest alongside an artifact path, if
// present. A missing manifest is not an error: it just means provenance is
// unrecorded, which never blocks classification.
func LoadManifest(artifactPath string) (*TrainingManifest, error) {
	p := manifestPath(artifactPath)
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read training manifest: %w", err)
	}
	var m TrainingManifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse training manifest: %w", err)
	}
	return &m, nil
}
