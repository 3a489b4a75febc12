package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galzu/leadfinder/internal/audit"
	"github.com/galzu/leadfinder/internal/ingest"
	"github.com/galzu/leadfinder/internal/lead"
	"github.com/galzu/leadfinder/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead review dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		api := &apiServer{
			store:      s,
			resolver:   initResolver(s),
			auditor:    initAuditor(),
			auditLimit: cfg.Audit.BatchLimit,
			jobCtx:     ctx,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type apiServer struct {
	store      store.Store
	resolver   *ingest.Resolver
	auditor    *audit.Auditor
	auditLimit int
	// jobCtx bounds background jobs to the server lifetime, not to the
	// HTTP request that kicked them off.
	jobCtx context.Context
}

func (a *apiServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/leads", a.handleListLeads)
		r.Patch("/leads/{id}", a.handleUpdateLead)
		r.Get("/stats", a.handleStats)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Post("/runs/audit-websites", a.handleAuditRun)
		r.Post("/import/leads-json", a.handleImportJSON)
	})

	return r
}

func (a *apiServer) handleListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		Query:          q.Get("q"),
		Status:         q.Get("status"),
		Source:         q.Get("source"),
		WebsiteVerdict: q.Get("website_verdict"),
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be an integer")
			return
		}
		filter.MinScore = &n
	}
	if v := q.Get("max_website_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_website_score must be an integer")
			return
		}
		filter.MaxWebsiteScore = &n
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	leads, err := a.store.ListLeads(r.Context(), filter)
	if err != nil {
		zap.L().Error("list leads failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	if leads == nil {
		leads = []lead.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (a *apiServer) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	var patch lead.OperatorPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "nothing to update: provide status, notes, or tags")
		return
	}

	l, err := a.resolver.UpdateOperator(r.Context(), id, patch)
	if err != nil {
		zap.L().Error("update lead failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.store.StatusCounts(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		zap.L().Error("stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"by_status": counts, "total": total})
}

func (a *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *apiServer) handleAuditRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	if r.Body != nil {
		// Empty body means default limit.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = a.auditLimit
	}

	run, err := a.store.CreateRun(r.Context(), "audit-websites", map[string]any{"limit": limit})
	if err != nil {
		zap.L().Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	go func() {
		audited, err := auditSweep(a.jobCtx, a.store, a.auditor, limit)
		status := store.RunStatusOK
		errMsg := ""
		if err != nil {
			status = store.RunStatusError
			errMsg = err.Error()
			zap.L().Error("audit run failed", zap.String("run_id", run.ID), zap.Error(err))
		} else {
			zap.L().Info("audit run complete", zap.String("run_id", run.ID), zap.Int("audited", audited))
		}
		if err := a.store.FinishRun(a.jobCtx, run.ID, status, errMsg); err != nil {
			zap.L().Error("finish run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": run.Status})
}

func (a *apiServer) handleImportJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string        `json:"source"`
		Rows   []lead.RawRow `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows is required")
		return
	}
	if req.Source == "" {
		req.Source = lead.SourceManual
	}

	written, err := a.resolver.IngestBatch(r.Context(), req.Source, req.Rows)
	if err != nil {
		zap.L().Error("import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": len(req.Rows), "written": written})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
