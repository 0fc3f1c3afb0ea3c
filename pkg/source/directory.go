package source

import (
	"context"
	"fmt"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// Directory resolves the interlocutor in charge of each client code.
type Directory interface {
	Interlocutors(ctx context.Context, clientCodes []string) (map[string]string, error)
}

// StaticDirectory is an in-memory client code to interlocutor mapping.
type StaticDirectory map[string]string

// Interlocutors returns the known interlocutors among clientCodes.
func (d StaticDirectory) Interlocutors(_ context.Context, clientCodes []string) (map[string]string, error) {
	out := make(map[string]string, len(clientCodes))
	for _, code := range clientCodes {
		if name, ok := d[code]; ok {
			out[code] = name
		}
	}
	return out, nil
}

// LoadCSVDirectory reads a CSV export with client_code and interlocutor
// columns. An empty path gives an empty directory.
func LoadCSVDirectory(path string) (StaticDirectory, error) {
	if path == "" {
		return StaticDirectory{}, nil
	}
	f, err := frame.ReadCSVFile(path, frame.WithStringColumns(ColClientCode, "interlocutor"))
	if err != nil {
		return nil, err
	}
	codes, err := f.Strings(ColClientCode)
	if err != nil {
		return nil, fmt.Errorf("source: directory %s: %w", path, err)
	}
	names, err := f.Strings("interlocutor")
	if err != nil {
		return nil, fmt.Errorf("source: directory %s: %w", path, err)
	}
	d := make(StaticDirectory, len(codes))
	for i, code := range codes {
		if code != "" {
			d[code] = names[i]
		}
	}
	return d, nil
}
