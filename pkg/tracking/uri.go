package tracking

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	modelsScheme = "models:/"
	runsScheme   = "runs:/"
)

// ModelURI points at a registered model version. Version 0 means latest.
type ModelURI struct {
	Name    string
	Version int
}

func (u ModelURI) String() string {
	if u.Version == 0 {
		return modelsScheme + u.Name + "/latest"
	}
	return modelsScheme + u.Name + "/" + strconv.Itoa(u.Version)
}

// ArtifactURI points at an artifact path inside a run.
type ArtifactURI struct {
	RunID string
	Path  string
}

func (u ArtifactURI) String() string {
	return runsScheme + u.RunID + "/" + u.Path
}

// ParseModelURI parses models:/<name>/latest and models:/<name>/<version>.
func ParseModelURI(s string) (ModelURI, error) {
	rest, ok := strings.CutPrefix(s, modelsScheme)
	if !ok {
		return ModelURI{}, fmt.Errorf("tracking: %q is not a models:/ uri", s)
	}
	name, ver, ok := strings.Cut(rest, "/")
	if !ok || name == "" || ver == "" {
		return ModelURI{}, fmt.Errorf("tracking: model uri %q needs a name and a version", s)
	}
	if ver == "latest" {
		return ModelURI{Name: name}, nil
	}
	n, err := strconv.Atoi(ver)
	if err != nil || n < 1 {
		return ModelURI{}, fmt.Errorf("tracking: bad model version %q", ver)
	}
	return ModelURI{Name: name, Version: n}, nil
}

// ParseArtifactURI parses runs:/<run id>/<path>.
func ParseArtifactURI(s string) (ArtifactURI, error) {
	rest, ok := strings.CutPrefix(s, runsScheme)
	if !ok {
		return ArtifactURI{}, fmt.Errorf("tracking: %q is not a runs:/ uri", s)
	}
	id, path, _ := strings.Cut(rest, "/")
	if id == "" {
		return ArtifactURI{}, fmt.Errorf("tracking: artifact uri %q has no run id", s)
	}
	return ArtifactURI{RunID: id, Path: strings.Trim(path, "/")}, nil
}

// cleanArtifactPath rejects paths that would escape the run's artifact root.
func cleanArtifactPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", fmt.Errorf("tracking: empty artifact path")
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("tracking: invalid artifact path %q", p)
		}
	}
	return p, nil
}
