package ml

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultScalerFile     = "scaler.json"
	DefaultClassifierFile = "breast_cancer_model.json"
)

// Artifacts is the fitted pair used for inference. Both fields are always set.
type Artifacts struct {
	Scaler     Scaler
	Classifier Classifier
	LoadedAt   time.Time
}

// ArtifactSource hands the resident artifacts to the inference pipeline without loading.
type ArtifactSource interface {
	Artifacts() (*Artifacts, error)
}

type ArtifactPaths struct {
	Dir        string
	Scaler     string
	Classifier string
}

func DefaultArtifactPaths() ArtifactPaths {
	return ArtifactPaths{Dir: ".", Scaler: DefaultScalerFile, Classifier: DefaultClassifierFile}
}

func (p ArtifactPaths) ScalerPath() string {
	return resolve(p.Dir, p.Scaler, DefaultScalerFile)
}

func (p ArtifactPaths) ClassifierPath() string {
	return resolve(p.Dir, p.Classifier, DefaultClassifierFile)
}

func resolve(dir, name, fallback string) string {
	if name == "" {
		name = fallback
	}
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

type LoaderState string

const (
	StateNotLoaded LoaderState = "not_loaded"
	StateLoaded    LoaderState = "loaded"
	StateFailed    LoaderState = "failed"
)

// ArtifactLoader reads the scaler and classifier once per process. The first Get performs
// the load; every later call returns the same instances, or the same *LoadError.
type ArtifactLoader struct {
	paths  ArtifactPaths
	logger *zap.Logger

	once      sync.Once
	artifacts atomic.Pointer[Artifacts]
	err       atomic.Pointer[LoadError]
	loads     atomic.Int32
}

func NewArtifactLoader(paths ArtifactPaths, logger *zap.Logger) *ArtifactLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactLoader{paths: paths, logger: logger.Named("artifacts")}
}

func (l *ArtifactLoader) Paths() ArtifactPaths {
	return l.paths
}

func (l *ArtifactLoader) Get() (*Artifacts, error) {
	l.once.Do(l.load)
	if a := l.artifacts.Load(); a != nil {
		return a, nil
	}
	if le := l.err.Load(); le != nil {
		return nil, le
	}
	return nil, ErrArtifactsUnavailable
}

// Artifacts returns the resident pair without triggering a load.
func (l *ArtifactLoader) Artifacts() (*Artifacts, error) {
	if a := l.artifacts.Load(); a != nil {
		return a, nil
	}
	if le := l.err.Load(); le != nil {
		return nil, &PredictionError{Kind: KindArtifactsUnavailable, Cause: le}
	}
	return nil, &PredictionError{Kind: KindArtifactsUnavailable}
}

func (l *ArtifactLoader) State() LoaderState {
	switch {
	case l.artifacts.Load() != nil:
		return StateLoaded
	case l.err.Load() != nil:
		return StateFailed
	default:
		return StateNotLoaded
	}
}

// LoadedAt is when the resident pair was published, zero until a load succeeds.
func (l *ArtifactLoader) LoadedAt() time.Time {
	if a := l.artifacts.Load(); a != nil {
		return a.LoadedAt
	}
	return time.Time{}
}

// LastError is the memoized load failure, nil unless State is StateFailed.
func (l *ArtifactLoader) LastError() *LoadError {
	return l.err.Load()
}

// Diagnose lists what the loader can see on disk. It never loads anything.
func (l *ArtifactLoader) Diagnose() Diagnostics {
	return collectDiagnostics(l.paths)
}

func (l *ArtifactLoader) load() {
	l.loads.Add(1)
	start := time.Now()
	diag := l.Diagnose()
	l.logger.Info("loading artifacts",
		zap.String("cwd", diag.WorkingDir),
		zap.String("dir", diag.Dir),
		zap.Strings("files", diag.Files),
		zap.Strings("artifact_files", diag.Matches),
		zap.String("scaler", l.paths.ScalerPath()),
		zap.String("classifier", l.paths.ClassifierPath()),
	)

	scaler, le := loadScaler(l.paths.ScalerPath())
	if le != nil {
		l.fail(le)
		return
	}
	classifier, le := loadClassifier(l.paths.ClassifierPath())
	if le != nil {
		l.fail(le)
		return
	}

	l.artifacts.Store(&Artifacts{Scaler: scaler, Classifier: classifier, LoadedAt: time.Now()})
	l.logger.Info("artifacts loaded", zap.Duration("took", time.Since(start)))
}

func (l *ArtifactLoader) fail(err *LoadError) {
	l.err.Store(err)
	l.logger.Error("artifact load failed",
		zap.String("artifact", err.Artifact),
		zap.String("reason", string(err.Reason)),
		zap.String("path", err.Path),
		zap.Error(err.Err),
	)
}

func loadScaler(path string) (Scaler, *LoadError) {
	payload, le := readArtifact("scaler", path)
	if le != nil {
		return nil, le
	}
	scaler, err := DecodeScaler(payload)
	if err != nil {
		return nil, decodeFailure("scaler", path, err)
	}
	return scaler, nil
}

func loadClassifier(path string) (Classifier, *LoadError) {
	payload, le := readArtifact("classifier", path)
	if le != nil {
		return nil, le
	}
	classifier, err := DecodeClassifier(payload)
	if err != nil {
		return nil, decodeFailure("classifier", path, err)
	}
	return classifier, nil
}

func readArtifact(artifact, path string) ([]byte, *LoadError) {
	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, newLoadError(ReasonMissing, artifact, path, err)
	case err != nil:
		return nil, newLoadError(ReasonUnreadable, artifact, path, err)
	}
	return payload, nil
}

func decodeFailure(artifact, path string, err error) *LoadError {
	if errors.Is(err, errIncompatible) {
		return newLoadError(ReasonIncompatible, artifact, path, err)
	}
	return newLoadError(ReasonMalformed, artifact, path, err)
}
