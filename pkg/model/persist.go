package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// snapshot is the gob form of a fitted classifier.
type snapshot struct {
	Version       int
	Params        Params
	Trees         []Tree
	NFeatures     int
	BestIteration int
	EvalHistory   []float64
}

const snapshotVersion = 1

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (m *GradientBoostingClassifier) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		Version:       snapshotVersion,
		Params:        m.params,
		Trees:         m.trees,
		NFeatures:     m.nFeatures,
		BestIteration: m.bestIteration,
		EvalHistory:   m.evalHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("model: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (m *GradientBoostingClassifier) UnmarshalBinary(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("model: decode: %w", err)
	}
	if s.Version != snapshotVersion {
		return fmt.Errorf("model: unsupported snapshot version %d", s.Version)
	}
	m.params = s.Params
	m.trees = s.Trees
	m.nFeatures = s.NFeatures
	m.bestIteration = s.BestIteration
	m.evalHistory = s.EvalHistory
	return nil
}
