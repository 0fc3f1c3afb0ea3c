// Package pipeline chains frame transformations and describes the columns
// the model consumes.
package pipeline

import (
	"fmt"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// Schema describes the structure of a dataset.
type Schema struct {
	FeatureNames []string
	Types        []frame.Kind
}

// NumericSchema is a schema of float features.
func NumericSchema(names ...string) Schema {
	types := make([]frame.Kind, len(names))
	for i := range types {
		types[i] = frame.Float
	}
	return Schema{FeatureNames: append([]string(nil), names...), Types: types}
}

// Validate checks that f has every feature with the expected kind.
func (s Schema) Validate(f *frame.Frame) error {
	if len(s.FeatureNames) != len(s.Types) {
		return fmt.Errorf("pipeline: schema has %d names and %d types", len(s.FeatureNames), len(s.Types))
	}
	for i, name := range s.FeatureNames {
		k, err := f.Kind(name)
		if err != nil {
			return err
		}
		if k != s.Types[i] {
			return fmt.Errorf("pipeline: column %s is %s, want %s", name, k, s.Types[i])
		}
	}
	return nil
}
