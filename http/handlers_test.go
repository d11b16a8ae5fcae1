package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tumorscope/ml"
	"tumorscope/monitoring"
)

type fakePredictor struct {
	result ml.PredictionResult
	err    error
	calls  int
}

func (f *fakePredictor) Predict(raw ml.FeatureVector) (ml.PredictionResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStatus struct {
	state    ml.LoaderState
	err      *ml.LoadError
	loadedAt time.Time
}

func (f fakeStatus) State() ml.LoaderState    { return f.state }
func (f fakeStatus) LastError() *ml.LoadError { return f.err }
func (f fakeStatus) Diagnose() ml.Diagnostics { return ml.Diagnostics{Dir: "/models"} }
func (f fakeStatus) LoadedAt() time.Time      { return f.loadedAt }

func newTestRouter(p Predictor, status ArtifactStatus) (http.Handler, *monitoring.InferenceMetrics) {
	metrics := monitoring.NewInferenceMetrics(nil)
	handler, _ := NewRouter(NewAPI(p, status, metrics, nil), DefaultServerConfig())
	return handler, metrics
}

func predictBody(t *testing.T, features map[string]float64) *bytes.Reader {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"features": features})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(payload)
}

func TestHealthHandler(t *testing.T) {
	handler, _ := newTestRouter(&fakePredictor{}, fakeStatus{state: ml.StateLoaded})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	expected := `{"status":"ok"}`
	if strings.TrimSpace(rr.Body.String()) != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestHandlePredict(t *testing.T) {
	fake := &fakePredictor{result: ml.PredictionResult{Label: ml.Malignant, BenignProbability: 0.25, MalignantProbability: 0.75}}
	handler, metrics := newTestRouter(fake, fakeStatus{state: ml.StateLoaded})

	req := httptest.NewRequest(http.MethodPost, "/api/predict", predictBody(t, ml.DefaultFeatures().Map()))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["label"] != "MALIGNANT" {
		t.Fatalf("unexpected label: %v", payload["label"])
	}
	if payload["malignant_probability"].(float64) != 0.75 {
		t.Fatalf("unexpected probability: %v", payload["malignant_probability"])
	}
	display := payload["display"].(map[string]interface{})
	if display["confidence"] != "75.0%" || display["severity"] != "warning" {
		t.Fatalf("unexpected display: %v", display)
	}
	if got := metrics.Collector().Counter(monitoring.MetricPredictions, map[string]string{"label": "MALIGNANT"}); got != 1 {
		t.Fatalf("expected prediction to be counted, got %f", got)
	}
}

func TestHandlePredictRejectsBadInput(t *testing.T) {
	missing := ml.DefaultFeatures().Map()
	delete(missing, "radius_mean")
	outOfRange := ml.DefaultFeatures().Map()
	outOfRange["radius_mean"] = 300

	cases := []struct {
		name string
		body string
		want int
	}{
		{name: "not json", body: "radius=1", want: http.StatusBadRequest},
		{name: "unknown top-level field", body: `{"features":{},"extra":1}`, want: http.StatusBadRequest},
		{name: "missing feature", body: mustJSON(t, map[string]interface{}{"features": missing}), want: http.StatusBadRequest},
		{name: "out of range", body: mustJSON(t, map[string]interface{}{"features": outOfRange}), want: http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		fake := &fakePredictor{}
		handler, _ := newTestRouter(fake, fakeStatus{state: ml.StateLoaded})
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
		}
		if fake.calls != 0 {
			t.Fatalf("%s: predictor must not run on bad input", tc.name)
		}
	}
}

func TestHandlePredictArtifactsUnavailable(t *testing.T) {
	le := &ml.LoadError{Reason: ml.ReasonMissing, Artifact: "scaler", Path: "scaler.json", Err: errors.New("no such file")}
	fake := &fakePredictor{err: &ml.PredictionError{Kind: ml.KindArtifactsUnavailable, Cause: le}}
	handler, _ := newTestRouter(fake, fakeStatus{state: ml.StateFailed, err: le})

	req := httptest.NewRequest(http.MethodGet, "/api/predict/defaults", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var payload errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Kind != "artifacts_unavailable" || payload.Reason != "missing" {
		t.Fatalf("unexpected error payload: %+v", payload)
	}
}

func TestHandleReady(t *testing.T) {
	handler, _ := newTestRouter(&fakePredictor{}, fakeStatus{state: ml.StateNotLoaded})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	loadedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	handler, _ = newTestRouter(&fakePredictor{}, fakeStatus{state: ml.StateLoaded, loadedAt: loadedAt})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"loaded_at":"2024-03-01T12:00:00Z"`) {
		t.Fatalf("expected load time in %s", w.Body.String())
	}
}

func TestHandleFeatures(t *testing.T) {
	handler, _ := newTestRouter(&fakePredictor{}, fakeStatus{state: ml.StateLoaded})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/features", nil))

	var payload struct {
		Count    int              `json:"count"`
		Features []ml.FeatureSpec `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Count != 14 || len(payload.Features) != 14 || payload.Features[4].Name != "concave_points_mean" {
		t.Fatalf("unexpected features payload: %+v", payload)
	}
}

func TestHandleArtifactsAndMetrics(t *testing.T) {
	le := &ml.LoadError{Reason: ml.ReasonMalformed, Artifact: "classifier", Path: "model.json"}
	handler, _ := newTestRouter(&fakePredictor{}, fakeStatus{state: ml.StateFailed, err: le})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/artifacts", nil))
	if !strings.Contains(w.Body.String(), `"reason":"malformed"`) {
		t.Fatalf("expected load error in %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	var stats map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := stats["system"].(map[string]interface{}); !ok {
		t.Fatalf("expected runtime stats in %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics?format=prometheus", nil))
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected metrics response: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPanicLogCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := chi.NewRouter()
	r.Use(baseMiddleware(zap.New(core), cors.Options{AllowedOrigins: []string{"*"}})...)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	entries := logs.FilterMessage("panic recovered").All()
	if len(entries) != 1 {
		t.Fatalf("expected one panic entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "abc-123" {
		t.Fatalf("expected request id abc-123 in panic log, got %v", got)
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(payload)
}
