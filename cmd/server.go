package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/belivan/MaxantAgency-sub002/internal/grading"
	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/monitoring"
	"github.com/belivan/MaxantAgency-sub002/internal/pipeline"
	"github.com/belivan/MaxantAgency-sub002/internal/store"
)

// Runner runs one analysis. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, site model.Site, opts pipeline.Options) (*model.RunOutput, error)
}

// apiStore is the part of store.Store the HTTP API reads.
type apiStore interface {
	GetAnalysis(ctx context.Context, runID string) (*model.AnalysisResult, error)
	GetLeadScore(ctx context.Context, runID string) (*model.LeadScore, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.RunSummary, error)
	Ping(ctx context.Context) error
}

// job tracks a submitted run until its result is persisted.
type job struct {
	RunID       string          `json:"run_id"`
	RootURL     string          `json:"root_url"`
	Status      model.RunStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// analyzeRequest is the POST /analyses body.
type analyzeRequest struct {
	URL        string                `json:"url"`
	SiteID     string                `json:"site_id"`
	Name       string                `json:"name"`
	Industry   string                `json:"industry"`
	PageBudget *int                  `json:"page_budget"`
	Weights    map[string]float64    `json:"weights"`
	MaxCostUSD *float64              `json:"max_cost_usd"`
	Business   model.BusinessSignals `json:"business"`
}

// apiServer serves the analysis HTTP API. Runs execute in the background,
// at most MaxConcurrentRuns at a time; queued runs wait for a slot.
type apiServer struct {
	runner    Runner
	store     apiStore
	collector *monitoring.Collector
	defaults  pipeline.Options
	budget    int
	lookback  int
	origins   []string

	baseCtx context.Context
	slots   chan struct{}
	wg      sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job

	now func() time.Time
}

func newAPIServer(ctx context.Context, runner Runner, st apiStore, maxRuns int) *apiServer {
	if maxRuns <= 0 {
		maxRuns = 1
	}
	return &apiServer{
		runner:    runner,
		store:     st,
		collector: monitoring.NewCollector(st),
		budget:    5,
		lookback:  24,
		origins:   []string{"*"},
		baseCtx:   ctx,
		slots:     make(chan struct{}, maxRuns),
		jobs:      map[string]*job{},
		now:       time.Now,
	}
}

// routes builds the chi router.
func (s *apiServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Route("/analyses", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{runID}", s.handleGet)
		r.Get("/{runID}/lead", s.handleLead)
	})
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !strings.Contains(req.URL, "://") {
		req.URL = "https://" + req.URL
	}

	site := model.Site{
		ID:         req.SiteID,
		RootURL:    req.URL,
		Name:       req.Name,
		Industry:   req.Industry,
		PageBudget: s.budget,
		Business:   req.Business,
	}
	site.Business.Engagement = model.ParseEngagement(string(site.Business.Engagement))
	if req.PageBudget != nil {
		site.PageBudget = *req.PageBudget
	}
	if site.PageBudget < 1 {
		writeError(w, http.StatusBadRequest, "page_budget must be at least 1")
		return
	}

	opts := s.defaults
	opts.RunID = uuid.New().String()
	if len(req.Weights) > 0 {
		wv := model.WeightVector{}
		for k, v := range req.Weights {
			wv[model.Dimension(strings.ToLower(k))] = v
		}
		norm, err := grading.Normalize(wv)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.WeightOverride = norm
	}
	if req.MaxCostUSD != nil {
		opts.MaxCostUSD = *req.MaxCostUSD
	}

	j := &job{
		RunID:       opts.RunID,
		RootURL:     site.RootURL,
		Status:      model.RunStatusQueued,
		SubmittedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.jobs[j.RunID] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(site, opts)

	writeJSON(w, http.StatusAccepted, j)
}

// execute runs one queued job once a slot is free.
func (s *apiServer) execute(site model.Site, opts pipeline.Options) {
	defer s.wg.Done()
	log := zap.L().With(zap.String("run_id", opts.RunID), zap.String("site", site.RootURL))

	select {
	case s.slots <- struct{}{}:
	case <-s.baseCtx.Done():
		s.finish(opts.RunID, model.RunStatusFailed, "server shutting down")
		return
	}
	defer func() { <-s.slots }()

	s.setStatus(opts.RunID, model.RunStatusRunning)
	out, err := s.runner.Run(s.baseCtx, site, opts)
	if err != nil {
		log.Error("analysis failed", zap.Error(err))
		s.finish(opts.RunID, model.RunStatusFailed, err.Error())
		return
	}
	log.Info("analysis complete",
		zap.Float64("score", out.Analysis.OverallScore),
		zap.String("grade", out.Analysis.Grade),
		zap.Bool("incomplete", out.Analysis.Incomplete),
	)
	s.finish(opts.RunID, model.RunStatusComplete, "")
}

func (s *apiServer) setStatus(runID string, status model.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[runID]; ok {
		j.Status = status
	}
}

// finish records a terminal state. Completed jobs are dropped from memory
// since the store now has the result; failed ones are kept so clients can
// read the error.
func (s *apiServer) finish(runID string, status model.RunStatus, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[runID]
	if !ok {
		return
	}
	if status == model.RunStatusComplete {
		delete(s.jobs, runID)
		return
	}
	j.Status = status
	j.Error = reason
}

func (s *apiServer) lookupJob(runID string) (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[runID]
	if !ok {
		return job{}, false
	}
	return *j, true
}

// Wait blocks until every submitted job has finished.
func (s *apiServer) Wait() { s.wg.Wait() }

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if j, ok := s.lookupJob(runID); ok {
		code := http.StatusAccepted
		if j.Status == model.RunStatusFailed {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, j)
		return
	}

	res, err := s.store.GetAnalysis(r.Context(), runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleLead(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if j, ok := s.lookupJob(runID); ok {
		writeJSON(w, http.StatusAccepted, j)
		return
	}
	lead, err := s.store.GetLeadScore(r.Context(), runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{SiteID: q.Get("site_id")}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := s.lookback
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = n
	}
	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) writeStoreError(w http.ResponseWriter, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: store error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
