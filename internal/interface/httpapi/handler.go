// Package httpapi は抽出ジョブの投入・進捗・停止・再実行を HTTP で公開する。
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jinford/cv-extract/internal/core/extraction"
	"github.com/jinford/cv-extract/internal/infra/llm"
	"github.com/jinford/cv-extract/internal/infra/postgres"
)

// JobService は HTTP から呼び出すジョブ操作
type JobService interface {
	Submit(ctx context.Context, req extraction.SubmitRequest) (*extraction.Job, error)
	Progress(ctx context.Context, jobID uuid.UUID) (extraction.Progress, error)
	List(ctx context.Context, limit int) ([]*extraction.Job, error)
	Stop(ctx context.Context, jobID uuid.UUID) (extraction.ControlResult, error)
	Retry(ctx context.Context, jobID uuid.UUID) (extraction.ControlResult, error)
	DeleteDocumentJobs(ctx context.Context, documentID uuid.UUID) (int, error)
}

// DocumentStore は抽出済みテキストの登録と結果の参照を行う
type DocumentStore interface {
	Create(ctx context.Context, doc postgres.Document) error
}

// RecordReader は保存済みのレコードを返す
type RecordReader interface {
	Get(ctx context.Context, documentID uuid.UUID) (*postgres.StoredRecord, error)
}

// StatusProvider は呼び出し制限の状態を返す
type StatusProvider interface {
	Status() llm.RateLimiterStatus
}

// Handler は HTTP ハンドラ
type Handler struct {
	jobs      JobService
	documents DocumentStore
	records   RecordReader
	metrics   *llm.Metrics
	limiter   StatusProvider
	logger    *slog.Logger
	now       func() time.Time
}

// Option は Handler のオプション
type Option func(*Handler)

// WithDocuments は文書登録とレコード参照のエンドポイントを有効にする
func WithDocuments(documents DocumentStore, records RecordReader) Option {
	return func(h *Handler) {
		h.documents = documents
		h.records = records
	}
}

// WithMetrics はモデル呼び出しのメトリクスを公開する
func WithMetrics(metrics *llm.Metrics, limiter StatusProvider) Option {
	return func(h *Handler) {
		h.metrics = metrics
		h.limiter = limiter
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler は新しい Handler を作成します
func NewHandler(jobs JobService, opts ...Option) *Handler {
	h := &Handler{jobs: jobs, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router はルーティングを設定した http.Handler を返します
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		if h.documents != nil {
			r.Post("/", h.createDocument)
			r.Get("/{documentID}/record", h.getRecord)
		}
		r.Post("/{documentID}/jobs", h.submitJob)
		r.Delete("/{documentID}/jobs", h.deleteDocumentJobs)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Get("/{jobID}", h.getProgress)
		r.Post("/{jobID}/stop", h.stopJob)
		r.Post("/{jobID}/retry", h.retryJob)
	})

	if h.metrics != nil {
		r.Get("/metrics/llm", h.getMetrics)
	}
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := h.now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"latencyMs", h.now().Sub(start).Milliseconds(),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

type createDocumentRequest struct {
	ID       *uuid.UUID `json:"id"`
	FileName string     `json:"file_name"`
	Text     string     `json:"text"`
}

type createDocumentResponse struct {
	DocumentID uuid.UUID `json:"document_id"`
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileName == "" {
		writeError(w, http.StatusBadRequest, "file_name is required")
		return
	}
	id := uuid.New()
	if req.ID != nil {
		id = *req.ID
	}

	err := h.documents.Create(r.Context(), postgres.Document{ID: id, FileName: req.FileName, Text: req.Text})
	if errors.Is(err, postgres.ErrDocumentExists) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createDocumentResponse{DocumentID: id})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	stored, err := h.records.Get(r.Context(), documentID)
	if errors.Is(err, postgres.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": stored.DocumentID,
		"record":      stored.Record,
		"metadata":    stored.Metadata,
		"updated_at":  stored.UpdatedAt,
	})
}

type submitJobRequest struct {
	FileName string   `json:"file_name"`
	Models   []string `json:"models"`
}

func (h *Handler) submitJob(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	var req submitJobRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	job, err := h.jobs.Submit(r.Context(), extraction.SubmitRequest{
		DocumentID: documentID,
		FileName:   req.FileName,
		Models:     req.Models,
	})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	w.Header().Set("Location", "/jobs/"+job.ID.String())
	writeJSON(w, http.StatusAccepted, job.ProgressAt(h.now()))
}

func (h *Handler) deleteDocumentJobs(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathUUID(w, r, "documentID")
	if !ok {
		return
	}
	n, err := h.jobs.DeleteDocumentJobs(r.Context(), documentID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	now := h.now()
	progress := make([]extraction.Progress, 0, len(jobs))
	for _, j := range jobs {
		progress = append(progress, j.ProgressAt(now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": progress})
}

func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathUUID(w, r, "jobID")
	if !ok {
		return
	}
	p, err := h.jobs.Progress(r.Context(), jobID)
	if errors.Is(err, extraction.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) stopJob(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.jobs.Stop)
}

func (h *Handler) retryJob(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.jobs.Retry)
}

type controlResponse struct {
	JobID  uuid.UUID                `json:"job_id"`
	Result extraction.ControlResult `json:"result"`
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (extraction.ControlResult, error)) {
	jobID, ok := pathUUID(w, r, "jobID")
	if !ok {
		return
	}
	res, err := fn(r.Context(), jobID)
	if errors.Is(err, extraction.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	status := http.StatusAccepted
	if !res.Accepted() {
		status = http.StatusConflict
	}
	writeJSON(w, status, controlResponse{JobID: jobID, Result: res})
}

type metricsResponse struct {
	Metrics     llm.MetricsSnapshot    `json:"metrics"`
	RateLimiter *llm.RateLimiterStatus `json:"rate_limiter,omitempty"`
}

func (h *Handler) getMetrics(w http.ResponseWriter, _ *http.Request) {
	resp := metricsResponse{Metrics: h.metrics.Snapshot()}
	if h.limiter != nil {
		status := h.limiter.Status()
		resp.RateLimiter = &status
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
