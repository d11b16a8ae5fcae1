package monitoring

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"tumorscope/ml"
)

// ArtifactChange an on-disk event touching a loaded artifact
type ArtifactChange struct {
	Artifact string
	Path     string
	Op       string
}

// ArtifactWatcher reports changes to artifact files. Artifacts are loaded once per process,
// so a change is only surfaced to operators; nothing is reloaded.
type ArtifactWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]string
	logger   *zap.Logger
	metrics  *InferenceMetrics
	OnChange func(ArtifactChange)
}

// NewArtifactWatcher watches the directories holding the scaler and classifier files
func NewArtifactWatcher(paths ml.ArtifactPaths, logger *zap.Logger, metrics *InferenceMetrics) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	files := make(map[string]string, 2)
	for artifact, path := range map[string]string{"scaler": paths.ScalerPath(), "classifier": paths.ClassifierPath()} {
		abs, err := filepath.Abs(path)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		files[abs] = artifact
	}
	added := make(map[string]bool, 2)
	for path := range files {
		dir := filepath.Dir(path)
		if added[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		added[dir] = true
	}

	return &ArtifactWatcher{
		watcher: watcher,
		files:   files,
		logger:  logger.Named("artifact-watch"),
		metrics: metrics,
	}, nil
}

// Run blocks until ctx is done or the watcher is closed
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *ArtifactWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	artifact, ok := w.files[abs]
	if !ok {
		return
	}

	change := ArtifactChange{Artifact: artifact, Path: abs, Op: event.Op.String()}
	w.logger.Warn("artifact changed on disk; restart the process to load it",
		zap.String("artifact", artifact),
		zap.String("path", abs),
		zap.String("op", change.Op),
	)
	if w.metrics != nil {
		w.metrics.RecordArtifactChange(artifact)
	}
	if w.OnChange != nil {
		w.OnChange(change)
	}
}

// Close stops watching
func (w *ArtifactWatcher) Close() error {
	return w.watcher.Close()
}
