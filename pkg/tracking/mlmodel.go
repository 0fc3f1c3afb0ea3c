package tracking

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Taha-Alami/Chrun-prediction/pkg/model"
)

const (
	// MLmodelFile is the descriptor written next to a logged model.
	MLmodelFile = "MLmodel"
	// FlavorName names the model format in the descriptor.
	FlavorName     = "go_gbt"
	modelFileName  = "model.gob"
	defaultArtPath = "model"
)

// MLmodel describes a logged model: where its weights live and which feature
// columns it expects, in order.
type MLmodel struct {
	ArtifactPath   string            `yaml:"artifact_path"`
	RunID          string            `yaml:"run_id"`
	ModelUUID      string            `yaml:"model_uuid"`
	UTCTimeCreated string            `yaml:"utc_time_created"`
	Flavors        map[string]Flavor `yaml:"flavors"`
	Signature      Signature         `yaml:"signature"`
}

// Flavor holds the format specific part of the descriptor.
type Flavor struct {
	ModelFile string            `yaml:"model_file"`
	Objective string            `yaml:"objective"`
	Params    map[string]string `yaml:"params,omitempty"`
}

// Signature lists the model inputs and outputs.
type Signature struct {
	Inputs  []ColumnSpec `yaml:"inputs"`
	Outputs []ColumnSpec `yaml:"outputs"`
}

// ColumnSpec is a named, typed column.
type ColumnSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Features returns the input column names in order.
func (m *MLmodel) Features() []string {
	out := make([]string, len(m.Signature.Inputs))
	for i, c := range m.Signature.Inputs {
		out[i] = c.Name
	}
	return out
}

// LoggedModel is a model read back from a tracker.
type LoggedModel struct {
	Model      *model.GradientBoostingClassifier
	Descriptor *MLmodel
	// Version is nil when the model was loaded through a runs:/ uri.
	Version *ModelVersion
}

// Features returns the feature order the model was trained with.
func (l *LoggedModel) Features() []string { return l.Descriptor.Features() }

// LogModel stores m under artifactPath of the run and, when name is not
// empty, registers it as a new version of name.
func LogModel(ctx context.Context, t Tracker, runID, artifactPath, name string, m *model.GradientBoostingClassifier, features []string) (*ModelVersion, error) {
	if artifactPath == "" {
		artifactPath = defaultArtPath
	}
	weights, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("tracking: log model: %w", err)
	}

	desc := MLmodel{
		ArtifactPath:   artifactPath,
		RunID:          runID,
		ModelUUID:      uuid.NewString(),
		UTCTimeCreated: time.Now().UTC().Format("2006-01-02 15:04:05.000000"),
		Flavors: map[string]Flavor{
			FlavorName: {ModelFile: modelFileName, Objective: "binary:logistic", Params: m.Params().Map()},
		},
		Signature: Signature{
			Outputs: []ColumnSpec{{Name: "churn_probability", Type: "double"}},
		},
	}
	for _, f := range features {
		desc.Signature.Inputs = append(desc.Signature.Inputs, ColumnSpec{Name: f, Type: "double"})
	}
	descriptor, err := yaml.Marshal(&desc)
	if err != nil {
		return nil, fmt.Errorf("tracking: encode %s: %w", MLmodelFile, err)
	}

	if err := t.LogArtifact(ctx, runID, path.Join(artifactPath, modelFileName), weights); err != nil {
		return nil, err
	}
	if err := t.LogArtifact(ctx, runID, path.Join(artifactPath, MLmodelFile), descriptor); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	return t.RegisterModelVersion(ctx, name, runID, ArtifactURI{RunID: runID, Path: artifactPath}.String())
}

// LoadModel resolves a models:/ or runs:/ uri and decodes the model it points at.
func LoadModel(ctx context.Context, t Tracker, uri string) (*LoggedModel, error) {
	var (
		loc     ArtifactURI
		version *ModelVersion
	)
	if mu, err := ParseModelURI(uri); err == nil {
		version, err = GetModelVersion(ctx, t, mu.Name, mu.Version)
		if err != nil {
			return nil, fmt.Errorf("tracking: resolve %s: %w", uri, err)
		}
		loc, err = ParseArtifactURI(version.Source)
		if err != nil {
			loc = ArtifactURI{RunID: version.RunID, Path: defaultArtPath}
		}
	} else {
		loc, err = ParseArtifactURI(uri)
		if err != nil {
			return nil, fmt.Errorf("tracking: unsupported model uri %q", uri)
		}
	}

	raw, err := t.DownloadArtifact(ctx, loc.RunID, path.Join(loc.Path, MLmodelFile))
	if err != nil {
		return nil, err
	}
	var desc MLmodel
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("tracking: decode %s: %w", MLmodelFile, err)
	}
	flavor, ok := desc.Flavors[FlavorName]
	if !ok {
		return nil, fmt.Errorf("tracking: %s has no %s flavor", loc, FlavorName)
	}

	weights, err := t.DownloadArtifact(ctx, loc.RunID, path.Join(loc.Path, flavor.ModelFile))
	if err != nil {
		return nil, err
	}
	m := &model.GradientBoostingClassifier{}
	if err := m.UnmarshalBinary(weights); err != nil {
		return nil, fmt.Errorf("tracking: decode model: %w", err)
	}
	return &LoggedModel{Model: m, Descriptor: &desc, Version: version}, nil
}
