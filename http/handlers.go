package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"loanapproval/db"
	"loanapproval/ml"
	"loanapproval/monitoring"
	"loanapproval/predictor"
)

// PredictionStore 预测历史存储; *db.Store implements it.
type PredictionStore interface {
	Ping(ctx context.Context) error
	SavePrediction(ctx context.Context, rec db.PredictionRecord) error
	ListPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
	LatestTrainingLog(ctx context.Context) (*db.TrainingLog, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	healthPingTimeout   = 2 * time.Second
)

type handlers struct {
	registry *predictor.Registry
	store    PredictionStore
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func newHandlers(deps Deps) *handlers {
	return &handlers{
		registry: deps.Registry,
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterHandlers 注册路由
func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := newHandlers(deps)
	h.handle(mux, "GET /{$}", h.handleIndex)
	h.handle(mux, "POST /predict", h.handleFormPredict)
	h.handle(mux, "GET /api/health", h.handleHealth)
	h.handle(mux, "GET /api/schema", h.handleSchema)
	h.handle(mux, "GET /api/model", h.handleModel)
	h.handle(mux, "POST /api/predict", h.handlePredict)
	h.handle(mux, "GET /api/predictions", h.handlePredictions)
	h.handle(mux, "GET /api/ws/predict", h.handleWSPredict)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

// handle registers fn and records its status and latency under the route.
func (h *handlers) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			fn(w, r)
			return
		}
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		fn(wrapped, r)
		h.metrics.ObserveHTTP(r.Method, route, wrapped.statusCode, time.Since(start))
	})
}

type errorBody struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind"`
	Field string   `json:"field,omitempty"`
	Value string   `json:"value,omitempty"`
	Known []string `json:"known,omitempty"`
}

func newErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error(), Kind: predictor.ErrorKind(err)}
	var unencodable *predictor.UnencodableInputError
	if errors.As(err, &unencodable) {
		body.Field = unencodable.Field
		body.Value = unencodable.Value
		body.Known = unencodable.Known
	}
	return body
}

// statusFor 错误类型到HTTP状态码
func statusFor(err error) int {
	switch predictor.ErrorKind(err) {
	case "validation":
		return http.StatusBadRequest
	case "unencodable":
		return http.StatusUnprocessableEntity
	case "artifact":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), newErrorBody(err))
}

// predict runs one submission in its own session and records it.
func (h *handlers) predict(ctx context.Context, app ml.Applicant) (*predictor.Result, error) {
	session, err := h.registry.NewSession()
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordError(predictor.ErrorKind(err))
		}
		return nil, err
	}
	defer session.Close()
	return h.submit(ctx, session, app)
}

func (h *handlers) submit(ctx context.Context, session *predictor.Session, app ml.Applicant) (*predictor.Result, error) {
	res, err := session.Submit(app)
	if err != nil {
		return nil, err
	}
	h.record(ctx, app, res)
	return res, nil
}

func (h *handlers) record(ctx context.Context, app ml.Applicant, res *predictor.Result) {
	if h.store == nil {
		return
	}
	input, _ := json.Marshal(app)
	flags := make([]string, len(res.Flags))
	for i, f := range res.Flags {
		flags[i] = f.Code
	}
	rec := db.PredictionRecord{
		ID:           res.ID,
		RequestID:    GetRequestID(ctx),
		Input:        input,
		Approved:     res.Approved,
		Label:        res.Label,
		Probability:  res.Probability,
		Flags:        flags,
		ModelVersion: res.ModelVersion,
	}
	if err := h.store.SavePrediction(ctx, rec); err != nil {
		h.logger.Warn("failed to record prediction", zap.String("id", res.ID), zap.Error(err))
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Current()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	body := map[string]any{
		"status":        "ok",
		"model_version": p.Bundle().Version(),
		"history":       h.store != nil,
	}
	if err := h.registry.LastError(); err != nil {
		body["reload_error"] = err.Error()
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			body["database"] = "unavailable"
			body["database_error"] = err.Error()
		} else {
			body["database"] = "ok"
		}
	}
	if h.metrics != nil {
		body["uptime_seconds"] = int64(h.metrics.GetUptime().Seconds())
	}
	writeJSON(w, http.StatusOK, body)
}

type schemaField struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Options []string `json:"options,omitempty"`
	Known   []string `json:"known,omitempty"`
	Default string   `json:"default"`
	Min     *float64 `json:"min,omitempty"`
	Step    float64  `json:"step,omitempty"`
}

func (h *handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	var encoders ml.EncoderSet
	if p, err := h.registry.Current(); err == nil {
		encoders = p.Bundle().Encoders
	}
	fields := formFields()
	out := make([]schemaField, len(fields))
	for i, f := range fields {
		out[i] = schemaField{Name: f.Name, Kind: f.Kind, Options: f.Options, Default: f.Default, Step: f.Step}
		if f.Kind == "number" {
			zero := 0.0
			out[i].Min = &zero
		}
		if enc, ok := encoders[f.Name]; ok {
			out[i].Known = enc.Classes()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": out})
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	b := p.Bundle()
	encoders := make(map[string][]string, len(b.Encoders))
	for _, column := range b.Encoders.Columns() {
		encoders[column] = b.Encoders[column].Classes()
	}
	body := map[string]any{
		"version":       b.Version(),
		"model_type":    b.Meta.ModelType,
		"created_at":    b.Meta.CreatedAt,
		"dataset":       b.Meta.Dataset,
		"feature_names": b.Meta.FeatureNames,
		"class_labels":  b.ClassLabels(),
		"metrics":       b.Meta.Metrics,
		"params":        b.Meta.Params,
		"loaded_at":     b.LoadedAt,
		"encoders":      encoders,
	}
	if h.store != nil {
		if entry, err := h.store.LatestTrainingLog(r.Context()); err == nil {
			body["last_training"] = entry
		} else if !errors.Is(err, db.ErrNotFound) {
			h.logger.Warn("failed to read training log", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var app ml.Applicant
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&app); err != nil {
		writeError(w, &predictor.ValidationError{Err: err})
		return
	}
	res, err := h.predict(r.Context(), app)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "prediction history is disabled", Kind: "internal"})
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 500", Kind: "validation"})
			return
		}
		limit = n
	}
	records, err := h.store.ListPredictions(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list predictions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read history", Kind: "internal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": records})
}
