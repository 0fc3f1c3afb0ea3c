package dataprep

import (
	"math"

	"github.com/Taha-Alami/Chrun-prediction/pkg/frame"
)

// DefaultWorkforce replaces workforce labels that carry no headcount.
const DefaultWorkforce = "1 or 2 employees"

var workforceRelabel = map[string]string{
	"Unknown":                 DefaultWorkforce,
	"0 employees as of 31/12": DefaultWorkforce,
	"1 to 9":                  DefaultWorkforce,
	"Unit without employees":  DefaultWorkforce,
}

// CleanForPrediction repairs values that the extraction of active customers
// produces: a negative business age becomes 0, a negative tenure becomes
// missing, vague workforce labels become DefaultWorkforce, and then missing
// tenure, business age and workforce are filled.
func CleanForPrediction(f *frame.Frame) (*frame.Frame, error) {
	out := f.Clone()

	age, err := out.Float(ColAgeBusiness)
	if err != nil {
		return nil, err
	}
	for i, v := range age {
		if v < 0 {
			age[i] = 0
		}
	}
	if err := out.SetFloat(ColAgeBusiness, age); err != nil {
		return nil, err
	}

	tenure, err := out.Float(ColTenure)
	if err != nil {
		return nil, err
	}
	for i, v := range tenure {
		if v < 0 {
			tenure[i] = math.NaN()
		}
	}
	if err := out.SetFloat(ColTenure, tenure); err != nil {
		return nil, err
	}

	if out, err = ReplaceStrings(out, ColWorkforce, workforceRelabel); err != nil {
		return nil, err
	}
	if out, err = FillMissing(out, ColTenure, 0); err != nil {
		return nil, err
	}
	if out, err = FillMissing(out, ColAgeBusiness, 0); err != nil {
		return nil, err
	}
	return FillMissingString(out, ColWorkforce, DefaultWorkforce)
}
