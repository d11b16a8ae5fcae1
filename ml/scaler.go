package ml

import "gonum.org/v1/gonum/floats"

// StandardScaler centers each feature on Mean and divides by Scale.
type StandardScaler struct {
	Mean  FeatureVector
	Scale FeatureVector
}

func NewStandardScaler(mean, scale FeatureVector) *StandardScaler {
	return &StandardScaler{Mean: mean, Scale: nonZero(scale)}
}

func (s *StandardScaler) Transform(raw FeatureVector) FeatureVector {
	var out FeatureVector
	floats.SubTo(out[:], raw[:], s.Mean[:])
	floats.Div(out[:], s.Scale[:])
	return out
}

// MinMaxScaler maps [DataMin, DataMin+Range] onto [0, 1].
type MinMaxScaler struct {
	DataMin FeatureVector
	Range   FeatureVector
}

func NewMinMaxScaler(dataMin, dataMax FeatureVector) *MinMaxScaler {
	var span FeatureVector
	floats.SubTo(span[:], dataMax[:], dataMin[:])
	return &MinMaxScaler{DataMin: dataMin, Range: nonZero(span)}
}

func (s *MinMaxScaler) Transform(raw FeatureVector) FeatureVector {
	var out FeatureVector
	floats.SubTo(out[:], raw[:], s.DataMin[:])
	floats.Div(out[:], s.Range[:])
	return out
}

// nonZero replaces zero divisors with 1, the convention the fitted artifacts use for
// constant features.
func nonZero(v FeatureVector) FeatureVector {
	for i, value := range v {
		if value == 0 {
			v[i] = 1
		}
	}
	return v
}
