package ml

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Predictor runs the inference pipeline against resident artifacts. It never loads them.
type Predictor struct {
	source ArtifactSource
	cache  *lru.Cache[FeatureVector, PredictionResult]
}

type PredictorOption func(*Predictor) error

// WithResultCache memoizes up to size results. Inference is deterministic for a loaded
// pair, so a cached result is identical to a recomputed one.
func WithResultCache(size int) PredictorOption {
	return func(p *Predictor) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[FeatureVector, PredictionResult](size)
		if err != nil {
			return fmt.Errorf("result cache: %w", err)
		}
		p.cache = cache
		return nil
	}
}

func NewPredictor(source ArtifactSource, opts ...PredictorOption) (*Predictor, error) {
	p := &Predictor{source: source}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Predictor) Predict(raw FeatureVector) (PredictionResult, error) {
	artifacts, err := p.source.Artifacts()
	if err != nil {
		return PredictionResult{}, err
	}
	if p.cache != nil {
		if result, ok := p.cache.Get(raw); ok {
			return result, nil
		}
	}

	normalized := artifacts.Scaler.Transform(raw)
	index, proba := artifacts.Classifier.Predict(normalized)
	label, err := LabelFromIndex(index)
	if err != nil {
		return PredictionResult{}, err
	}
	result := PredictionResult{
		Label:                label,
		BenignProbability:    proba[0],
		MalignantProbability: proba[1],
	}

	if p.cache != nil {
		p.cache.Add(raw, result)
	}
	return result, nil
}

// CacheLen reports how many results are memoized; zero when caching is off.
func (p *Predictor) CacheLen() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Len()
}
