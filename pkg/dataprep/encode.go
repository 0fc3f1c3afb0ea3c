package dataprep

import "github.com/Taha-Alami/Chrun-prediction/pkg/frame"

// CastCategories converts the named columns to categories.
func CastCategories(f *frame.Frame, columns ...string) (*frame.Frame, error) {
	out := f.Clone()
	for _, c := range columns {
		if err := out.ToCategory(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CastInt truncates the named columns to integers. Missing values are an error.
func CastInt(f *frame.Frame, columns ...string) (*frame.Frame, error) {
	out := f.Clone()
	for _, c := range columns {
		if err := out.ToInt(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CastTypes applies the observation table's type conversions.
func CastTypes(f *frame.Frame) (*frame.Frame, error) {
	out, err := CastCategories(f, CategoryColumns...)
	if err != nil {
		return nil, err
	}
	return CastInt(out, ColFrequency)
}
