package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, artifactsDir string) string {
	t.Helper()
	dir, err := filepath.Abs(artifactsDir)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "artifacts:\n  dir: " + dir + "\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	_, err := execute(args, &out)
	return out.String(), err
}

func TestPredictCommandDefaults(t *testing.T) {
	out, err := runCLI(t, "--config", writeConfig(t, "../ml/testdata"), "predict")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !strings.Contains(out, "BENIGN - Non-cancerous tumor") || !strings.Contains(out, "Benign Probability: 99.0%") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPredictCommandRejectsOutOfRange(t *testing.T) {
	_, err := runCLI(t, "--config", writeConfig(t, "../ml/testdata"), "predict", "--radius-mean", "500")
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
}

func TestCheckCommandReportsMissingArtifacts(t *testing.T) {
	out, err := runCLI(t, "--config", writeConfig(t, t.TempDir()), "check")
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if !strings.Contains(out, `"state": "failed"`) {
		t.Fatalf("expected failed state in output:\n%s", out)
	}
}

func TestFeaturesCommand(t *testing.T) {
	var out bytes.Buffer
	if err := writeFeatures(&out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 15 {
		t.Fatalf("expected header plus 14 rows, got %d", len(lines))
	}
	if !strings.Contains(lines[5], "concave_points_mean") {
		t.Fatalf("unexpected row order: %s", lines[5])
	}
	if flagName("concave_points_worst") != "concave-points-worst" {
		t.Fatal("flag names should use dashes")
	}
}

func TestFailingCommandStillClosesLogFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "tumorscope.log")
	path := filepath.Join(dir, "config.yaml")
	body := "artifacts:\n  dir: " + dir + "\nlog:\n  level: info\n  file: " + logFile + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	a, err := execute([]string{"--config", path, "check"}, &out)
	if err == nil {
		t.Fatal("expected check to fail without artifacts")
	}
	if a.cleanup != nil {
		t.Fatal("expected the logger to be released after a failing command")
	}
	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), "artifact load failed") {
		t.Fatalf("expected the load failure in the log file, got:\n%s", content)
	}
}
