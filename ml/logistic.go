package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegression is a fitted binary linear model; Coef weighs the scaled features.
type LogisticRegression struct {
	Coef      FeatureVector
	Intercept float64
}

func (m *LogisticRegression) Predict(normalized FeatureVector) (int, [2]float64) {
	z := floats.Dot(m.Coef[:], normalized[:]) + m.Intercept
	p1 := sigmoid(z)
	proba := [2]float64{1 - p1, p1}
	return argmax2(proba), proba
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
