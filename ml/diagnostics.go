package ml

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Diagnostics describes where the loader looks for artifacts. It is advisory output for
// operators hunting for misplaced files.
type Diagnostics struct {
	WorkingDir      string   `json:"working_dir"`
	Dir             string   `json:"dir"`
	Files           []string `json:"files"`
	Matches         []string `json:"artifact_files"`
	ScalerPath      string   `json:"scaler_path"`
	ScalerFound     bool     `json:"scaler_found"`
	ClassifierPath  string   `json:"classifier_path"`
	ClassifierFound bool     `json:"classifier_found"`
	ListError       string   `json:"list_error,omitempty"`
}

const artifactExt = ".json"

func collectDiagnostics(paths ArtifactPaths) Diagnostics {
	diag := Diagnostics{
		ScalerPath:     paths.ScalerPath(),
		ClassifierPath: paths.ClassifierPath(),
	}
	if wd, err := os.Getwd(); err == nil {
		diag.WorkingDir = wd
	}

	dir := paths.Dir
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	diag.Dir = dir

	entries, err := os.ReadDir(dir)
	if err != nil {
		diag.ListError = err.Error()
	}
	for _, entry := range entries {
		name := entry.Name()
		diag.Files = append(diag.Files, name)
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(name), artifactExt) {
			diag.Matches = append(diag.Matches, name)
		}
	}
	sort.Strings(diag.Files)
	sort.Strings(diag.Matches)

	diag.ScalerFound = isFile(diag.ScalerPath)
	diag.ClassifierFound = isFile(diag.ClassifierPath)
	return diag
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
