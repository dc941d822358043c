package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"solotranscribe/internal/model"
	"solotranscribe/internal/output"
	"solotranscribe/internal/runstore"
)

// Handler serves a read-only view of one manifest. The manifest is reread on
// every request so a running batch shows live progress.
type Handler struct {
	manifestPath string
	logger       *log.Logger
}

func NewHandler(manifestPath string, logger *log.Logger) *Handler {
	return &Handler{manifestPath: manifestPath, logger: logger}
}

type jobSummary struct {
	ID            string   `json:"id"`
	Index         int      `json:"index"`
	URL           string   `json:"url"`
	Status        string   `json:"status"`
	Title         string   `json:"title,omitempty"`
	Platform      string   `json:"platform,omitempty"`
	Duration      float64  `json:"duration,omitempty"`
	RetryCount    int      `json:"retry_count"`
	EstimatedCost float64  `json:"estimated_cost"`
	ActualCost    *float64 `json:"actual_cost,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	OutputFiles   []string `json:"output_files,omitempty"`
}

// NewRouter configures the API routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/api/manifest", h.Manifest).Methods("GET")
	r.HandleFunc("/api/stats", h.Stats).Methods("GET")
	r.HandleFunc("/api/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/api/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/api/jobs/{id}/files/{name}", h.JobFile).Methods("GET")
	return r
}

// NewServer wraps the router with CORS for browser dashboards.
func NewServer(addr, manifestPath string, logger *log.Logger) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	})
	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(NewRouter(NewHandler(manifestPath, logger))),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe runs srv until ctx is cancelled, then shuts it down.
func ListenAndServe(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	if logger != nil {
		logger.Info("status server listening", "addr", srv.Addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Manifest handles GET /api/manifest. Transcripts are omitted; fetch a job
// for its full record.
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	mf, ok := h.load(w)
	if !ok {
		return
	}
	for i := range mf.Jobs {
		mf.Jobs[i].Transcript = nil
	}
	writeJSON(w, http.StatusOK, mf)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	mf, ok := h.load(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.ComputeStats(mf))
}

// ListJobs handles GET /api/jobs with an optional status filter.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	mf, ok := h.load(w)
	if !ok {
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !model.IsKnownStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}
	out := make([]jobSummary, 0, len(mf.Jobs))
	for _, job := range mf.Jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, summarize(job))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	mf, ok := h.load(w)
	if !ok {
		return
	}
	job, found := mf.Job(mux.Vars(r)["id"])
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// JobFile handles GET /api/jobs/{id}/files/{name} for artifacts the job
// recorded.
func (h *Handler) JobFile(w http.ResponseWriter, r *http.Request) {
	mf, ok := h.load(w)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	job, found := mf.Job(vars["id"])
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	name := filepath.Base(vars["name"])
	allowed := name == output.MetaFileName
	for _, p := range job.OutputFiles {
		if filepath.Base(p) == name {
			allowed = true
			break
		}
	}
	if !allowed {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	path := filepath.Join(output.JobDir(filepath.Dir(h.manifestPath), job.ID), name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) load(w http.ResponseWriter) (*model.Manifest, bool) {
	mf, err := runstore.LoadManifest(h.manifestPath)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("load manifest", "path", h.manifestPath, "err", err)
		}
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "manifest not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return mf, true
}

func summarize(job model.Job) jobSummary {
	s := jobSummary{
		ID:            job.ID,
		Index:         job.Index,
		URL:           job.URL,
		Status:        job.Status,
		Title:         job.Title(),
		Platform:      job.Platform(),
		Duration:      job.KnownDuration(),
		RetryCount:    job.RetryCount,
		EstimatedCost: job.EstimatedCost,
		ActualCost:    job.ActualCost,
		Reason:        job.FailureReason,
		ErrorMessage:  job.ErrorMessage,
	}
	if s.Reason == "" {
		s.Reason = job.SkipReason
	}
	for _, p := range job.OutputFiles {
		s.OutputFiles = append(s.OutputFiles, filepath.Base(p))
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
