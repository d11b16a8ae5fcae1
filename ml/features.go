package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

const FeatureCount = 14

// FeatureVector holds the raw measurements in FeatureOrder.
type FeatureVector [FeatureCount]float64

type FeatureGroup string

const (
	GroupMean  FeatureGroup = "mean"
	GroupSE    FeatureGroup = "se"
	GroupWorst FeatureGroup = "worst"
)

type FeatureSpec struct {
	Name    string       `json:"name"`
	Label   string       `json:"label"`
	Group   FeatureGroup `json:"group"`
	Min     float64      `json:"min"`
	Max     float64      `json:"max"`
	Default float64      `json:"default"`
}

// FeatureOrder is the column order the scaler and classifier were fit on.
var FeatureOrder = [FeatureCount]FeatureSpec{
	{Name: "radius_mean", Label: "Radius (mean)", Group: GroupMean, Min: 0, Max: 30, Default: 13.08},
	{Name: "texture_mean", Label: "Texture (mean)", Group: GroupMean, Min: 0, Max: 50, Default: 15.71},
	{Name: "compactness_mean", Label: "Compactness (mean)", Group: GroupMean, Min: 0, Max: 1, Default: 0.127},
	{Name: "concavity_mean", Label: "Concavity (mean)", Group: GroupMean, Min: 0, Max: 1, Default: 0.046},
	{Name: "concave_points_mean", Label: "Concave Points (mean)", Group: GroupMean, Min: 0, Max: 1, Default: 0.031},
	{Name: "radius_se", Label: "Radius (SE)", Group: GroupSE, Min: 0, Max: 5, Default: 0.185},
	{Name: "concave_points_se", Label: "Concave Points (SE)", Group: GroupSE, Min: 0, Max: 0.1, Default: 0.006},
	{Name: "radius_worst", Label: "Radius (worst)", Group: GroupWorst, Min: 0, Max: 50, Default: 14.50},
	{Name: "texture_worst", Label: "Texture (worst)", Group: GroupWorst, Min: 0, Max: 60, Default: 20.49},
	{Name: "smoothness_worst", Label: "Smoothness (worst)", Group: GroupWorst, Min: 0, Max: 1, Default: 0.131},
	{Name: "compactness_worst", Label: "Compactness (worst)", Group: GroupWorst, Min: 0, Max: 2, Default: 0.278},
	{Name: "concavity_worst", Label: "Concavity (worst)", Group: GroupWorst, Min: 0, Max: 2, Default: 0.189},
	{Name: "concave_points_worst", Label: "Concave Points (worst)", Group: GroupWorst, Min: 0, Max: 1, Default: 0.073},
	{Name: "symmetry_worst", Label: "Symmetry (worst)", Group: GroupWorst, Min: 0, Max: 1, Default: 0.318},
}

var ErrInvalidFeatures = errors.New("invalid features")

var featureIndex = func() map[string]int {
	index := make(map[string]int, FeatureCount*2)
	for i, spec := range FeatureOrder {
		index[spec.Name] = i
		// training columns were named "concave points_mean" etc.
		if alias := strings.Replace(spec.Name, "concave_points", "concave points", 1); alias != spec.Name {
			index[alias] = i
		}
	}
	return index
}()

func FeatureNames() []string {
	names := make([]string, FeatureCount)
	for i, spec := range FeatureOrder {
		names[i] = spec.Name
	}
	return names
}

// FeatureIndex resolves a feature name, including the space-separated training aliases.
func FeatureIndex(name string) (int, bool) {
	idx, ok := featureIndex[name]
	return idx, ok
}

func DefaultFeatures() FeatureVector {
	var v FeatureVector
	for i, spec := range FeatureOrder {
		v[i] = spec.Default
	}
	return v
}

// FeaturesFromMap builds a vector from named values. Every feature must be present exactly
// once; unknown names are rejected rather than ignored.
func FeaturesFromMap(values map[string]float64) (FeatureVector, error) {
	var v FeatureVector
	var seen [FeatureCount]bool
	var unknown []string
	for name, value := range values {
		idx, ok := FeatureIndex(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if seen[idx] {
			return v, fmt.Errorf("%w: %s given more than once", ErrInvalidFeatures, FeatureOrder[idx].Name)
		}
		seen[idx] = true
		v[idx] = value
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return v, fmt.Errorf("%w: unknown %s", ErrInvalidFeatures, strings.Join(unknown, ", "))
	}
	var missing []string
	for i, ok := range seen {
		if !ok {
			missing = append(missing, FeatureOrder[i].Name)
		}
	}
	if len(missing) > 0 {
		return v, fmt.Errorf("%w: missing %s", ErrInvalidFeatures, strings.Join(missing, ", "))
	}
	return v, nil
}

func (v FeatureVector) Map() map[string]float64 {
	values := make(map[string]float64, FeatureCount)
	for i, spec := range FeatureOrder {
		values[spec.Name] = v[i]
	}
	return values
}

// Validate applies the input ranges of the measurement form. Predict never calls it.
func (v FeatureVector) Validate() error {
	for i, spec := range FeatureOrder {
		value := v[i]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidFeatures, spec.Name)
		}
		if value < spec.Min || value > spec.Max {
			return fmt.Errorf("%w: %s=%g outside [%g, %g]", ErrInvalidFeatures, spec.Name, value, spec.Min, spec.Max)
		}
	}
	return nil
}
