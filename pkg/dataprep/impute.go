package dataprep

import (
	"math"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// FillMissing replaces missing values of a numeric column with a constant.
func FillMissing(f *frame.Frame, column string, value float64) (*frame.Frame, error) {
	vals, err := f.Float(column)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			vals[i] = value
		}
	}
	out := f.Clone()
	return out, out.SetFloat(column, vals)
}

// FillMissingString replaces empty values of a string column with a constant.
func FillMissingString(f *frame.Frame, column, value string) (*frame.Frame, error) {
	return mapStrings(f, column, func(s string) string {
		if s == "" {
			return value
		}
		return s
	})
}

// ReplaceStrings rewrites the values of a string column found in mapping.
func ReplaceStrings(f *frame.Frame, column string, mapping map[string]string) (*frame.Frame, error) {
	return mapStrings(f, column, func(s string) string {
		if r, ok := mapping[s]; ok {
			return r
		}
		return s
	})
}

func mapStrings(f *frame.Frame, column string, fn func(string) string) (*frame.Frame, error) {
	kind, err := f.Kind(column)
	if err != nil {
		return nil, err
	}
	vals, _ := f.Strings(column)
	for i, s := range vals {
		vals[i] = fn(s)
	}
	out := f.Clone()
	if err := out.SetStrings(column, vals); err != nil {
		return nil, err
	}
	if kind == frame.Category {
		return out, out.ToCategory(column)
	}
	return out, nil
}
