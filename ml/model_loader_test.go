package ml

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testdataLoader(t *testing.T) *ArtifactLoader {
	t.Helper()
	return NewArtifactLoader(ArtifactPaths{Dir: "testdata"}, nil)
}

func TestArtifactLoaderReturnsSameInstances(t *testing.T) {
	loader := testdataLoader(t)
	first, err := loader.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := loader.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatal("expected the same *Artifacts from both calls")
	}
	if first.Scaler != second.Scaler || first.Classifier != second.Classifier {
		t.Fatal("expected the same scaler and classifier instances")
	}
	if loader.State() != StateLoaded {
		t.Fatalf("expected state loaded, got %s", loader.State())
	}
	if loader.LoadedAt().IsZero() || !loader.LoadedAt().Equal(first.LoadedAt) {
		t.Fatalf("expected load time of the resident pair, got %v", loader.LoadedAt())
	}
}

func TestArtifactLoaderLoadsOnceUnderConcurrency(t *testing.T) {
	loader := testdataLoader(t)
	var wg sync.WaitGroup
	results := make([]*Artifacts, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := loader.Get()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = a
		}(i)
	}
	wg.Wait()

	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("expected exactly one load, got %d", n)
	}
	for _, a := range results {
		if a != results[0] {
			t.Fatal("expected all callers to share one instance")
		}
	}
}

func TestArtifactLoaderMissingFile(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, filepath.Join("testdata", "scaler.json"), filepath.Join(dir, DefaultScalerFile))

	loader := NewArtifactLoader(ArtifactPaths{Dir: dir}, nil)
	_, err := loader.Get()
	le, ok := LoadFailure(err)
	if !ok {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if le.Reason != ReasonMissing || le.Artifact != "classifier" {
		t.Fatalf("unexpected load error: %+v", le)
	}
	if loader.State() != StateFailed {
		t.Fatalf("expected state failed, got %s", loader.State())
	}
	if _, err := loader.Artifacts(); !errors.Is(err, ErrArtifactsUnavailable) {
		t.Fatalf("expected ErrArtifactsUnavailable, got %v", err)
	}

	// both-or-neither: adding the file later does not change the memoized outcome
	copyFile(t, filepath.Join("testdata", "breast_cancer_model.json"), filepath.Join(dir, DefaultClassifierFile))
	if _, err := loader.Get(); err == nil {
		t.Fatal("expected the failure to be memoized")
	}
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("expected no retry, got %d loads", n)
	}
}

func TestArtifactLoaderReasons(t *testing.T) {
	cases := []struct {
		name   string
		scaler string
		reason LoadReason
	}{
		{name: "malformed", scaler: `{"kind": "standard_scaler", "mean": [`, reason: ReasonMalformed},
		{name: "wrong type", scaler: `{"kind": "standard_scaler", "mean": "x"}`, reason: ReasonMalformed},
		{name: "incompatible", scaler: `{"kind": "logistic_regression"}`, reason: ReasonIncompatible},
	}
	for _, tc := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, DefaultScalerFile), []byte(tc.scaler), 0o600); err != nil {
			t.Fatal(err)
		}
		copyFile(t, filepath.Join("testdata", "breast_cancer_model.json"), filepath.Join(dir, DefaultClassifierFile))

		_, err := NewArtifactLoader(ArtifactPaths{Dir: dir}, nil).Get()
		le, ok := LoadFailure(err)
		if !ok {
			t.Fatalf("%s: expected *LoadError, got %v", tc.name, err)
		}
		if le.Reason != tc.reason || le.Artifact != "scaler" {
			t.Fatalf("%s: unexpected load error: %+v", tc.name, le)
		}
	}
}

func TestArtifactLoaderUnreadable(t *testing.T) {
	dir := t.TempDir()
	// a directory where the scaler file should be cannot be read
	if err := os.Mkdir(filepath.Join(dir, DefaultScalerFile), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := NewArtifactLoader(ArtifactPaths{Dir: dir}, nil).Get()
	le, ok := LoadFailure(err)
	if !ok || le.Reason != ReasonUnreadable {
		t.Fatalf("expected unreadable load error, got %v", err)
	}
}

func TestArtifactsBeforeLoad(t *testing.T) {
	loader := testdataLoader(t)
	_, err := loader.Artifacts()
	if !errors.Is(err, ErrArtifactsUnavailable) {
		t.Fatalf("expected ErrArtifactsUnavailable, got %v", err)
	}
	if _, ok := LoadFailure(err); ok {
		t.Fatal("expected no load failure before any load attempt")
	}
	if loader.State() != StateNotLoaded {
		t.Fatalf("expected state not_loaded, got %s", loader.State())
	}
	if !loader.LoadedAt().IsZero() {
		t.Fatal("expected no load time before loading")
	}
}

func TestDiagnoseListsArtifactFiles(t *testing.T) {
	diag := testdataLoader(t).Diagnose()
	if !diag.ScalerFound || !diag.ClassifierFound {
		t.Fatalf("expected both artifacts to be found: %+v", diag)
	}
	found := false
	for _, name := range diag.Matches {
		if name == DefaultClassifierFile {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s among matches %v", DefaultClassifierFile, diag.Matches)
	}
	if diag.WorkingDir == "" {
		t.Fatal("expected working dir")
	}
}

func TestArtifactPathsResolve(t *testing.T) {
	paths := ArtifactPaths{Dir: "models", Classifier: "/abs/model.json"}
	if got := paths.ScalerPath(); got != filepath.Join("models", DefaultScalerFile) {
		t.Fatalf("unexpected scaler path %s", got)
	}
	if got := paths.ClassifierPath(); got != "/abs/model.json" {
		t.Fatalf("unexpected classifier path %s", got)
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	payload, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, payload, 0o600); err != nil {
		t.Fatal(err)
	}
}
