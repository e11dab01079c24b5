// Package api serves the engine's read side over HTTP plus a single
// endpoint to trigger a daily pipeline run.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/pipeline"
	"github.com/quantlens/eod-engine/internal/store"
	"github.com/quantlens/eod-engine/internal/types"
	"github.com/quantlens/eod-engine/internal/version"
	"github.com/quantlens/eod-engine/pkg/errors"
	"go.uber.org/zap"
)

// Server exposes stored decisions, snapshots, sectors, stops and deep dives,
// and triggers pipeline runs.
type Server struct {
	store      *store.Store
	runner     *pipeline.Runner
	logger     *logger.Logger
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, s *store.Store, runner *pipeline.Runner, l *logger.Logger) *Server {
	server := &Server{
		store:  s,
		runner: runner,
		logger: l.Named("api"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", server.handleHealth).Methods("GET")
	router.HandleFunc("/decisions/{market}/{date}", server.handleListDecisions).Methods("GET")
	router.HandleFunc("/decisions/{market}/{date}/{symbol}", server.handleGetDecision).Methods("GET")
	router.HandleFunc("/snapshots/{market}/{date}/{symbol}", server.handleGetSnapshot).Methods("GET")
	router.HandleFunc("/sectors/{market}/{date}", server.handleListSectors).Methods("GET")
	router.HandleFunc("/deepdives/{market}/{date}/{symbol}", server.handleGetDeepDive).Methods("GET")
	router.HandleFunc("/portfolios/{id}/stops", server.handleListStops).Methods("GET")
	router.HandleFunc("/portfolios/{id}/violations/{date}", server.handleListViolations).Methods("GET")
	router.HandleFunc("/pipeline/runs", server.handleRunPipeline).Methods("POST")

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeUnknown, err, "failed to listen on %s", s.httpServer.Addr)
	}

	s.listener = listener
	s.logger.Info("api listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, useful when Start was given port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}

	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.GetVersion(),
	})
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	market, date, ok := s.marketAndDate(w, r)
	if !ok {
		return
	}

	decisions, err := s.store.ListDecisionsByDate(r.Context(), market, date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	market, date, ok := s.marketAndDate(w, r)
	if !ok {
		return
	}

	symbol := mux.Vars(r)["symbol"]

	decision, err := s.store.GetDecision(r.Context(), symbol, market, date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if decision.IsNone() {
		s.writeError(w, http.StatusNotFound,
			errors.Newf(errors.ErrCodeDataNotFound, "no decision for %s on %s", symbol, date.Format("2006-01-02")))

		return
	}

	s.writeJSON(w, http.StatusOK, decision.Unwrap())
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	market, date, ok := s.marketAndDate(w, r)
	if !ok {
		return
	}

	symbol := mux.Vars(r)["symbol"]

	snapshot, err := s.store.GetSnapshot(r.Context(), symbol, market, date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if snapshot.IsNone() {
		s.writeError(w, http.StatusNotFound,
			errors.Newf(errors.ErrCodeSnapshotMissing, "no features found for %s on %s", symbol, date.Format("2006-01-02")))

		return
	}

	s.writeJSON(w, http.StatusOK, snapshot.Unwrap())
}

func (s *Server) handleListSectors(w http.ResponseWriter, r *http.Request) {
	market, date, ok := s.marketAndDate(w, r)
	if !ok {
		return
	}

	strengths, err := s.store.ListSectorStrengths(r.Context(), market, date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, strengths)
}

func (s *Server) handleGetDeepDive(w http.ResponseWriter, r *http.Request) {
	market, date, ok := s.marketAndDate(w, r)
	if !ok {
		return
	}

	symbol := mux.Vars(r)["symbol"]

	report, err := s.store.GetDeepDiveReport(r.Context(), symbol, market, date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if report.IsNone() {
		s.writeError(w, http.StatusNotFound,
			errors.Newf(errors.ErrCodeDataNotFound, "no deep dive for %s on %s", symbol, date.Format("2006-01-02")))

		return
	}

	s.writeJSON(w, http.StatusOK, report.Unwrap())
}

func (s *Server) handleListStops(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]

	states, err := s.store.ListStopStates(r.Context(), portfolioID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolioID := vars["id"]

	date, err := time.Parse("2006-01-02", vars["date"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.Wrapf(errors.ErrCodeInvalidDate, err, "invalid date %q", vars["date"]))

		return
	}

	violations, err := s.runner.CheckViolations(r.Context(), portfolioID, date)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, violations)
}

type runRequest struct {
	Date  string `json:"date"`
	Force bool   `json:"force"`
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.Wrap(errors.ErrCodeInvalidParameter, "invalid run request", err))

		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.Wrapf(errors.ErrCodeInvalidDate, err, "invalid date %q", req.Date))

		return
	}

	summary, err := s.runner.RunDaily(r.Context(), date, req.Force)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.HasCode(err, errors.ErrCodePipelineAlreadyRan) {
			status = http.StatusConflict
		}

		s.writeError(w, status, err)

		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) marketAndDate(w http.ResponseWriter, r *http.Request) (types.Market, time.Time, bool) {
	vars := mux.Vars(r)

	market, err := types.ParseMarket(vars["market"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return "", time.Time{}, false
	}

	date, err := time.Parse("2006-01-02", vars["date"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.Wrapf(errors.ErrCodeInvalidDate, err, "invalid date %q", vars["date"]))

		return "", time.Time{}, false
	}

	return market, date, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
