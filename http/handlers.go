package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"tumorscope/ml"
	"tumorscope/monitoring"
)

// Predictor the inference pipeline
type Predictor interface {
	Predict(raw ml.FeatureVector) (ml.PredictionResult, error)
}

// ArtifactStatus read-only view of the artifact loader
type ArtifactStatus interface {
	State() ml.LoaderState
	LastError() *ml.LoadError
	Diagnose() ml.Diagnostics
	LoadedAt() time.Time
}

// API prediction endpoints
type API struct {
	predictor Predictor
	status    ArtifactStatus
	metrics   *monitoring.InferenceMetrics
	logger    *zap.Logger
}

// NewAPI creates the API; metrics and logger may be nil
func NewAPI(predictor Predictor, status ArtifactStatus, metrics *monitoring.InferenceMetrics, logger *zap.Logger) *API {
	if metrics == nil {
		metrics = monitoring.NewInferenceMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{predictor: predictor, status: status, metrics: metrics, logger: logger}
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
}

type predictResponse struct {
	ml.PredictionResult
	Display  ml.Display         `json:"display"`
	Features map[string]float64 `json:"features"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

var displayLanguages = language.NewMatcher([]language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
})

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	state := a.status.State()
	body := map[string]string{"state": string(state)}
	if state == ml.StateLoaded {
		body["status"] = "ready"
		body["loaded_at"] = a.status.LoadedAt().Format(time.RFC3339)
		writeJSON(w, http.StatusOK, body)
		return
	}
	body["status"] = "unavailable"
	if le := a.status.LastError(); le != nil {
		body["reason"] = string(le.Reason)
		body["error"] = le.Error()
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}

func (a *API) handleFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    ml.FeatureCount,
		"features": ml.FeatureOrder,
	})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		a.metrics.RecordError("bad_request")
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	raw, err := ml.FeaturesFromMap(req.Features)
	if err != nil {
		a.metrics.RecordError("invalid_features")
		writeError(w, http.StatusBadRequest, "invalid_features", err.Error())
		return
	}
	a.predict(w, r, raw)
}

func (a *API) handlePredictDefaults(w http.ResponseWriter, r *http.Request) {
	a.predict(w, r, ml.DefaultFeatures())
}

func (a *API) predict(w http.ResponseWriter, r *http.Request, raw ml.FeatureVector) {
	resp, status, errResp := a.run(raw, r.Header.Get("Accept-Language"))
	if errResp != nil {
		writeJSON(w, status, errResp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// run validates and predicts; shared by the JSON and websocket handlers
func (a *API) run(raw ml.FeatureVector, acceptLanguage string) (*predictResponse, int, *errorResponse) {
	if err := raw.Validate(); err != nil {
		a.metrics.RecordError("invalid_features")
		return nil, http.StatusUnprocessableEntity, &errorResponse{Error: err.Error(), Kind: "invalid_features"}
	}

	start := time.Now()
	result, err := a.predictor.Predict(raw)
	if err != nil {
		if errors.Is(err, ml.ErrArtifactsUnavailable) {
			a.metrics.RecordError(string(ml.KindArtifactsUnavailable))
			resp := &errorResponse{Error: err.Error(), Kind: string(ml.KindArtifactsUnavailable)}
			if le, ok := ml.LoadFailure(err); ok {
				resp.Reason = string(le.Reason)
			}
			return nil, http.StatusServiceUnavailable, resp
		}
		a.metrics.RecordError("internal")
		a.logger.Error("prediction failed", zap.Error(err))
		return nil, http.StatusInternalServerError, &errorResponse{Error: "prediction failed", Kind: "internal"}
	}
	a.metrics.RecordPrediction(result.Label.String(), time.Since(start))

	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	tag, _, _ := displayLanguages.Match(tags...)
	return &predictResponse{
		PredictionResult: result,
		Display:          ml.Render(result, tag),
		Features:         raw.Map(),
	}, http.StatusOK, nil
}

func (a *API) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"state":       a.status.State(),
		"diagnostics": a.status.Diagnose(),
	}
	if at := a.status.LoadedAt(); !at.IsZero() {
		body["loaded_at"] = at
	}
	if le := a.status.LastError(); le != nil {
		body["error"] = map[string]string{
			"artifact": le.Artifact,
			"reason":   string(le.Reason),
			"path":     le.Path,
			"message":  le.Error(),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(a.metrics.Collector().ExportPrometheus()))
		return
	}
	writeJSON(w, http.StatusOK, a.metrics.Stats())
}

// decodeStrict rejects fields the request type does not declare
func decodeStrict(r io.Reader, v interface{}) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
