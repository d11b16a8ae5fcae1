package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	KindStandardScaler     = "standard_scaler"
	KindMinMaxScaler       = "minmax_scaler"
	KindLogisticRegression = "logistic_regression"
	KindDecisionTree       = "decision_tree"
	KindRandomForest       = "random_forest"
)

var errIncompatible = errors.New("incompatible artifact")

type envelope struct {
	Kind         string   `json:"kind"`
	FeatureNames []string `json:"feature_names"`
}

type scalerDecoder func(payload []byte) (Scaler, error)

type classifierDecoder func(payload []byte) (Classifier, error)

var scalerDecoders = map[string]scalerDecoder{
	KindStandardScaler: decodeStandardScaler,
	KindMinMaxScaler:   decodeMinMaxScaler,
}

var classifierDecoders = map[string]classifierDecoder{
	KindLogisticRegression: decodeLogisticRegression,
	KindDecisionTree:       decodeDecisionTree,
	KindRandomForest:       decodeRandomForest,
}

// DecodeScaler parses a scaler artifact. Errors wrapping errIncompatible mean the payload
// is valid JSON that does not describe a scaler for FeatureOrder.
func DecodeScaler(payload []byte) (Scaler, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	decode, ok := scalerDecoders[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a scaler kind (want one of %s)", errIncompatible, env.Kind, kinds(scalerDecoders))
	}
	return decode(payload)
}

func DecodeClassifier(payload []byte) (Classifier, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	decode, ok := classifierDecoders[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a classifier kind (want one of %s)", errIncompatible, env.Kind, kinds(classifierDecoders))
	}
	return decode(payload)
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Kind == "" {
		return env, fmt.Errorf("%w: kind is required", errIncompatible)
	}
	if err := checkFeatureNames(env.FeatureNames); err != nil {
		return env, err
	}
	return env, nil
}

func checkFeatureNames(names []string) error {
	if names == nil {
		return nil
	}
	if len(names) != FeatureCount {
		return fmt.Errorf("%w: fit on %d features, want %d", errIncompatible, len(names), FeatureCount)
	}
	for i, name := range names {
		idx, ok := FeatureIndex(name)
		if !ok || idx != i {
			return fmt.Errorf("%w: feature %d is %q, want %q", errIncompatible, i, name, FeatureOrder[i].Name)
		}
	}
	return nil
}

func toVector(field string, values []float64) (FeatureVector, error) {
	var v FeatureVector
	if len(values) != FeatureCount {
		return v, fmt.Errorf("%w: %s has %d values, want %d", errIncompatible, field, len(values), FeatureCount)
	}
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return v, fmt.Errorf("%w: %s[%d] is not finite", errIncompatible, field, i)
		}
		v[i] = value
	}
	return v, nil
}

func decodeStandardScaler(payload []byte) (Scaler, error) {
	var raw struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	mean, err := toVector("mean", raw.Mean)
	if err != nil {
		return nil, err
	}
	scale, err := toVector("scale", raw.Scale)
	if err != nil {
		return nil, err
	}
	return NewStandardScaler(mean, scale), nil
}

func decodeMinMaxScaler(payload []byte) (Scaler, error) {
	var raw struct {
		DataMin []float64 `json:"data_min"`
		DataMax []float64 `json:"data_max"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	dataMin, err := toVector("data_min", raw.DataMin)
	if err != nil {
		return nil, err
	}
	dataMax, err := toVector("data_max", raw.DataMax)
	if err != nil {
		return nil, err
	}
	for i := range dataMin {
		if dataMax[i] < dataMin[i] {
			return nil, fmt.Errorf("%w: data_max[%d] below data_min", errIncompatible, i)
		}
	}
	return NewMinMaxScaler(dataMin, dataMax), nil
}

func decodeLogisticRegression(payload []byte) (Classifier, error) {
	var raw struct {
		Coef      []float64 `json:"coef"`
		Intercept float64   `json:"intercept"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	coef, err := toVector("coef", raw.Coef)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(raw.Intercept) || math.IsInf(raw.Intercept, 0) {
		return nil, fmt.Errorf("%w: intercept is not finite", errIncompatible)
	}
	return &LogisticRegression{Coef: coef, Intercept: raw.Intercept}, nil
}

func decodeDecisionTree(payload []byte) (Classifier, error) {
	var raw struct {
		Nodes []TreeNode `json:"nodes"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	tree, err := NewDecisionTree(raw.Nodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errIncompatible, err)
	}
	return tree, nil
}

func decodeRandomForest(payload []byte) (Classifier, error) {
	var raw struct {
		Trees [][]TreeNode `json:"trees"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	trees := make([]*DecisionTree, 0, len(raw.Trees))
	for i, nodes := range raw.Trees {
		tree, err := NewDecisionTree(nodes)
		if err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", errIncompatible, i, err)
		}
		trees = append(trees, tree)
	}
	forest, err := NewRandomForest(trees)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errIncompatible, err)
	}
	return forest, nil
}

func kinds[T any](decoders map[string]T) string {
	names := make([]string, 0, len(decoders))
	for name := range decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
