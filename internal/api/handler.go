// Package api exposes prediction over HTTP and websockets.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"callsense/internal/disposition"
	"callsense/internal/observability"
	"callsense/internal/predict"
	"callsense/internal/queue"
	"callsense/internal/store"
)

const (
	msgEmptyTranscript = "Transcript is empty"
	msgInvalidJSON     = "Model failed to generate valid JSON"
	msgBadDate         = "current_date must be YYYY-MM-DD"
)

// Predictor runs one transcript through the model.
type Predictor interface {
	Run(ctx context.Context, transcript, currentDate string) (predict.Outcome, error)
	EngineName() string
	ModelName() string
}

// PredictionStore is the subset of the store the API uses.
type PredictionStore interface {
	RecordPrediction(ctx context.Context, p store.Prediction) (string, error)
	GetPrediction(ctx context.Context, id string) (store.Prediction, error)
	Ping(ctx context.Context) error
}

// JobQueue is the subset of the queue the API uses.
type JobQueue interface {
	PushJob(ctx context.Context, job queue.Job) (queue.Job, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	Model   Predictor
	Store   PredictionStore
	Queue   JobQueue
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Limiter *RateLimiter

	MaxUploadBytes int64
	MetricsHandler http.Handler
}

func NewHandler(model Predictor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Model: model, Logger: logger, MaxUploadBytes: 32 << 20}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", h.limit("predict", h.handlePredict))
	mux.HandleFunc("GET /ws", h.limit("ws", h.handleWS))
	mux.HandleFunc("POST /upload", h.limit("upload", h.handleUpload))
	mux.HandleFunc("POST /jobs", h.limit("jobs", h.handleEnqueue))
	mux.HandleFunc("GET /predictions/{id}", h.handleGetPrediction)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	if h.MetricsHandler != nil {
		mux.Handle("GET /metrics", h.MetricsHandler)
	}
	mux.HandleFunc("GET /{$}", h.handleRoot)
}

var validate = validator.New()

type predictRequest struct {
	Transcript  string `json:"transcript" validate:"required"`
	CurrentDate string `json:"current_date" validate:"omitempty,datetime=2006-01-02"`
}

// check returns the client-facing message for an invalid request.
func (req predictRequest) check() (string, bool) {
	if strings.TrimSpace(req.Transcript) == "" {
		return msgEmptyTranscript, false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "CurrentDate" {
			return msgBadDate, false
		}
		return err.Error(), false
	}
	return "", true
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.Metrics.RecordRequest(ctx, "http")

	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody())).Decode(&req); err != nil {
		h.Metrics.RecordError(ctx, "http", "invalid_request")
		writeDetail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg, ok := req.check(); !ok {
		h.Metrics.RecordError(ctx, "http", "invalid_request")
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.predict(ctx, "http", "", req.Transcript, req.CurrentDate)
	if err != nil {
		var ee *disposition.ExtractionError
		if errors.As(err, &ee) {
			writeDetail(w, http.StatusInternalServerError, msgInvalidJSON)
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// predict runs the model, records metrics and persists the outcome.
func (h *Handler) predict(ctx context.Context, transport, jobID, transcript, currentDate string) (disposition.Result, error) {
	out, err := h.Model.Run(ctx, transcript, currentDate)
	h.Metrics.RecordInference(ctx, transport, out.Latency)
	if err != nil {
		kind := "generation"
		var ee *disposition.ExtractionError
		if errors.As(err, &ee) {
			kind = "extraction"
		}
		h.Metrics.RecordError(ctx, transport, kind)
		h.Logger.Warn("prediction failed", zap.String("transport", transport), zap.String("kind", kind), zap.Error(err))
	}
	if h.Store != nil {
		if _, rerr := RecordOutcome(ctx, h.Store, jobID, h.Model.EngineName(), out, err); rerr != nil {
			h.Logger.Error("record prediction", zap.Error(rerr))
		}
	}
	return out.Result, err
}

// RecordOutcome persists a finished prediction. Engine failures produce no
// row; extraction failures are stored with their raw text.
func RecordOutcome(ctx context.Context, st PredictionStore, jobID, engine string, out predict.Outcome, predErr error) (string, error) {
	status := store.StatusOK
	if predErr != nil {
		var ee *disposition.ExtractionError
		if !errors.As(predErr, &ee) {
			return "", nil
		}
		status = store.StatusExtractionError
	}
	return st.RecordPrediction(ctx, store.Prediction{
		JobID:       jobID,
		Transcript:  out.Transcript,
		CurrentDate: out.CurrentDate,
		RawOutput:   out.Raw,
		Status:      status,
		Result:      out.Result,
		Engine:      engine,
		Latency:     out.Latency,
	})
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeDetail(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody())).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if msg, ok := req.check(); !ok {
		writeDetail(w, http.StatusBadRequest, msg)
		return
	}
	job, err := h.Queue.PushJob(r.Context(), queue.Job{Transcript: req.Transcript, CurrentDate: req.CurrentDate})
	if err != nil {
		h.Logger.Error("enqueue job", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID})
}

type predictionView struct {
	ID          string             `json:"id"`
	JobID       string             `json:"job_id,omitempty"`
	Status      string             `json:"status"`
	CurrentDate string             `json:"current_date"`
	Result      disposition.Result `json:"result"`
	RawOutput   string             `json:"raw_output"`
	Engine      string             `json:"engine"`
	LatencyMS   int64              `json:"latency_ms"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (h *Handler) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeDetail(w, http.StatusServiceUnavailable, "prediction store not configured")
		return
	}
	p, err := h.Store.GetPrediction(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "prediction not found")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, predictionView{
		ID:          p.ID,
		JobID:       p.JobID,
		Status:      p.Status,
		CurrentDate: p.CurrentDate,
		Result:      p.Result,
		RawOutput:   p.RawOutput,
		Engine:      p.Engine,
		LatencyMS:   p.Latency.Milliseconds(),
		CreatedAt:   p.CreatedAt,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model": h.Model.ModelName()})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{}
	ready := true
	if h.Store != nil {
		checks["store"] = "ok"
		if err := h.Store.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			ready = false
		}
	}
	if h.Queue != nil {
		checks["queue"] = "ok"
		if err := h.Queue.Ping(ctx); err != nil {
			checks["queue"] = err.Error()
			ready = false
		}
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "running",
		"message": "Disposition extraction API is active. Use /predict for inference.",
	})
}

func (h *Handler) maxBody() int64 {
	if h.MaxUploadBytes <= 0 {
		return 32 << 20
	}
	return h.MaxUploadBytes
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
