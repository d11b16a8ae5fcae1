package ml

import (
	"errors"
	"fmt"
)

var ErrArtifactsUnavailable = errors.New("model artifacts unavailable")

// LoadReason classifies why an artifact could not be loaded.
type LoadReason string

const (
	ReasonMissing      LoadReason = "missing"
	ReasonUnreadable   LoadReason = "unreadable"
	ReasonMalformed    LoadReason = "malformed"
	ReasonIncompatible LoadReason = "incompatible"
)

// LoadError reports a failed artifact load. Artifact names the role ("scaler" or
// "classifier"), Path the file that was read.
type LoadError struct {
	Reason   LoadReason
	Artifact string
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := fmt.Sprintf("load %s: %s", e.Artifact, e.Reason)
	if e.Path != "" {
		base += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *LoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type PredictionErrorKind string

const KindArtifactsUnavailable PredictionErrorKind = "artifacts_unavailable"

// PredictionError is returned by Predict. When artifacts were never loaded Cause is nil;
// when a load was attempted and failed Cause holds the *LoadError.
type PredictionError struct {
	Kind  PredictionErrorKind
	Cause error
}

func (e *PredictionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("predict: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("predict: %s", e.Kind)
}

func (e *PredictionError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Kind == KindArtifactsUnavailable {
		errs = append(errs, ErrArtifactsUnavailable)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// LoadFailure extracts the *LoadError carried by err, if any.
func LoadFailure(err error) (*LoadError, bool) {
	var le *LoadError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

func newLoadError(reason LoadReason, artifact, path string, err error) *LoadError {
	return &LoadError{Reason: reason, Artifact: artifact, Path: path, Err: err}
}
