// Package bridge exposes the orchestration engine to the desktop shell
// over localhost HTTP. The shell owns all presentation; the bridge only
// translates between JSON and engine calls and maps taxonomy errors onto
// status codes.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/catalog"
	"github.com/casedesk/intel-cli/internal/export"
	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/model"
)

// Engine is the set of backend-facing calls the bridge needs beyond the
// gate and export adapter.
type Engine interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	Balance(ctx context.Context) (int, error)
	Disclaimer(ctx context.Context) (string, error)
}

// Server is the localhost bridge.
type Server struct {
	engine   Engine
	gate     *gate.Gate
	exporter *export.Adapter
	catalog  *catalog.Catalog
	origins  []string
}

// New creates a bridge server.
func New(engine Engine, g *gate.Gate, exporter *export.Adapter, cat *catalog.Catalog, allowedOrigins []string) *Server {
	return &Server{
		engine:   engine,
		gate:     g,
		exporter: exporter,
		catalog:  cat,
		origins:  allowedOrigins,
	}
}

// Router builds the chi router with CORS for the shell's renderer origin.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/catalog", s.handleCatalog)
	r.Get("/api/balance", s.handleBalance)
	r.Get("/api/disclaimer", s.handleDisclaimer)
	r.Post("/api/search", s.handleSearch)
	r.Get("/api/jobs/{id}", s.handleJob)
	r.Post("/api/export", s.handleExport)

	return r
}

// ListenAndServe runs the bridge until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	zap.L().Info("bridge: listening", zap.String("addr", srv.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.catalog.Providers()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	credits, err := s.engine.Balance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": credits})
}

func (s *Server) handleDisclaimer(w http.ResponseWriter, r *http.Request) {
	text, err := s.engine.Disclaimer(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind      model.JobKind `json:"kind"`
		CaseID    string        `json:"case_id"`
		Term      string        `json:"term"`
		TermType  string        `json:"term_type"`
		Providers []string      `json:"providers"`
		// Consented is set by the shell after it has displayed the
		// disclaimer (GET /api/disclaimer) and the user accepted it.
		Consented bool `json:"consented"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.gate.Submit(r.Context(), gate.Request{
		Kind:      req.Kind,
		CaseID:    req.CaseID,
		Term:      req.Term,
		TermType:  req.TermType,
		Providers: req.Providers,
		Consent:   func(string) bool { return req.Consented },
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"job":           result.Job,
		"cost":          result.Cost,
		"balance_after": result.BalanceAfter,
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.engine.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID  string `json:"job_id"`
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	job, err := s.engine.GetJob(r.Context(), req.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	path, err := s.exporter.Export(r.Context(), job, req.Format)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps taxonomy errors to HTTP statuses. Backend detail is
// passed through verbatim so the shell shows the same message the
// backend produced.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		ve *model.ValidationError
		ce *model.ConsentDeclinedError
		ie *model.InsufficientCreditsError
		te *model.TransportError
		be *model.BackendError
	)
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &ie):
		status = http.StatusPaymentRequired
	case errors.As(err, &ce):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrNoResults):
		status = http.StatusConflict
	case errors.As(err, &be):
		if be.Status >= 400 {
			status = be.Status
		} else {
			status = http.StatusBadGateway
		}
	case errors.As(err, &te):
		status = http.StatusBadGateway
	}

	zap.L().Warn("bridge: request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
