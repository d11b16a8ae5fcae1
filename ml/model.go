package ml

import "fmt"

type Scaler interface {
	Transform(raw FeatureVector) FeatureVector
}

// Classifier returns the predicted class index (0 benign, 1 malignant) and the class
// probabilities in the same order.
type Classifier interface {
	Predict(normalized FeatureVector) (int, [2]float64)
}

type Label int

const (
	Benign Label = iota
	Malignant
)

// labelByIndex fixes the class order the classifier was trained with.
var labelByIndex = [2]Label{Benign, Malignant}

func LabelFromIndex(index int) (Label, error) {
	if index < 0 || index >= len(labelByIndex) {
		return 0, fmt.Errorf("class index %d out of range", index)
	}
	return labelByIndex[index], nil
}

func (l Label) String() string {
	switch l {
	case Benign:
		return "BENIGN"
	case Malignant:
		return "MALIGNANT"
	default:
		return fmt.Sprintf("Label(%d)", int(l))
	}
}

func (l Label) MarshalText() ([]byte, error) {
	switch l {
	case Benign, Malignant:
		return []byte(l.String()), nil
	default:
		return nil, fmt.Errorf("unknown label %d", int(l))
	}
}

func (l *Label) UnmarshalText(text []byte) error {
	switch string(text) {
	case "BENIGN":
		*l = Benign
	case "MALIGNANT":
		*l = Malignant
	default:
		return fmt.Errorf("unknown label %q", text)
	}
	return nil
}

type PredictionResult struct {
	Label                Label   `json:"label"`
	BenignProbability    float64 `json:"benign_probability"`
	MalignantProbability float64 `json:"malignant_probability"`
}

// Confidence is the probability of the predicted label.
func (r PredictionResult) Confidence() float64 {
	if r.Label == Malignant {
		return r.MalignantProbability
	}
	return r.BenignProbability
}

// argmax2 picks the larger class probability; ties go to index 0.
func argmax2(proba [2]float64) int {
	if proba[1] > proba[0] {
		return 1
	}
	return 0
}
