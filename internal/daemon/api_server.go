package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenecraft/internal/api"
	"scenecraft/internal/archive"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/config"
	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/pipeline"
	"scenecraft/internal/preflight"
	"scenecraft/internal/services"
	"scenecraft/internal/session"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

const maxRequestBody = 4 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/stages", srv.handleStages)
	mux.HandleFunc("GET /api/sessions", srv.handleListSessions)
	mux.HandleFunc("POST /api/sessions", srv.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", srv.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", srv.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/stages/{stage}", srv.handleGetStage)
	mux.HandleFunc("POST /api/sessions/{id}/stages/{stage}/run", srv.handleRunStage)
	mux.HandleFunc("POST /api/sessions/{id}/export", srv.handleExport)
	mux.HandleFunc("GET /api/blobs/{key}", srv.handleBlob)
	mux.HandleFunc("GET /api/archive", srv.handleListArchive)
	mux.HandleFunc("POST /api/archive/{id}/restore", srv.handleRestore)
	mux.HandleFunc("GET /api/events", srv.handleEvents)

	srv.server = &http.Server{
		Handler:           srv.withRequestContext(authMiddleware(cfg.Paths.APIToken, mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestContext tags each request with an id that flows into the run's
// log records.
func (s *apiServer) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldCorrelationID, requestID),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

func (s *apiServer) runtime() *pipeline.Runtime {
	return s.daemon.runtime
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.daemon.Status()
	cfg := s.daemon.cfg
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Bind:         status.Bind,
		LockFilePath: status.LockFilePath,
		Sessions:     status.Sessions,
		DevMode:      cfg.Session.DevMode,
		VideoMode:    cfg.Video.Mode,
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleStages(w http.ResponseWriter, _ *http.Request) {
	graph := stagegraph.Default()
	health := preflight.StageReadiness(s.daemon.cfg)
	s.writeJSON(w, http.StatusOK, api.StageListResponse{Stages: api.FromDefinitions(graph, health)})
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.runtime().Sessions().List()
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromSessions(sessions)})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	ctrl, err := s.runtime().Sessions().Create()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromSessionDetail(ctrl))
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSessionDetail(ctrl))
}

func (s *apiServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.runtime().Sessions().Delete(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleGetStage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := stage.Parse(r.PathValue("stage"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := ctrl.StateOf(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromStageState(st, len(ctrl.History(id))))
}

func (s *apiServer) handleRunStage(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := stage.Parse(r.PathValue("stage"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.RunRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	clearWriteDeadline(w)

	ctx := services.WithSessionID(r.Context(), ctrl.ID())
	report, err := ctrl.RequestRun(ctx, id, orchestrator.Overrides(req.Overrides))
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := ctrl.StateOf(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReport(report, st, len(ctrl.History(id))))
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	clearWriteDeadline(w)
	ctx := services.WithSessionID(r.Context(), ctrl.ID())
	res, err := s.runtime().Exporter().Export(ctx, ctrl)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromExportResult(res))
}

func (s *apiServer) handleBlob(w http.ResponseWriter, r *http.Request) {
	blobs := s.runtime().Blobs()
	ref, err := blobs.Lookup(r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := blobs.Read(ref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", ref.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("blob write failed", logging.Error(err), logging.String("key", ref.Key))
	}
}

func (s *apiServer) handleListArchive(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.runtime().Archive().List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *apiServer) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.runtime().Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromSessionDetail(ctrl))
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := queryFlag(query.Get("follow"))
	tail := queryFlag(query.Get("tail"))
	filter := logging.EventFilter{
		SessionID: strings.TrimSpace(query.Get("session")),
		Stage:     strings.TrimSpace(query.Get("stage")),
	}

	if tail && since == 0 && !follow && filter == (logging.EventFilter{}) {
		events, next := hub.Tail(limit)
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: api.FromLogEvents(events), Next: next})
		return
	}

	ctx := r.Context()
	if follow {
		clearWriteDeadline(w)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, since, limit, filter, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, err)
		return
	}
	if r.Context().Err() != nil {
		return
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: api.FromLogEvents(events), Next: next})
}

func (s *apiServer) session(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	ctrl, err := s.runtime().Sessions().Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return ctrl, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	err = classify(err)
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.Error(err),
			logging.String("error_kind", services.MarkerName(err)),
		)
	}
	s.writeJSON(w, status, api.FromError(err))
}

// classify marks storage errors that do not carry a failure marker yet.
func classify(err error) error {
	if services.Marker(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, blobstore.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		return services.Wrap(services.ErrNotFound, "", "lookup", err.Error(), nil)
	case errors.Is(err, archive.ErrIncompatibleFormat):
		return services.Wrap(services.ErrValidation, "", "restore", err.Error(), nil)
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return services.Wrap(services.ErrValidation, "", "decode request", "invalid JSON body", err)
	}
	return nil
}

// clearWriteDeadline lifts the server write timeout for long-running handlers.
func clearWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}

func queryFlag(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}
