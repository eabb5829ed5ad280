package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/runner"
	"github.com/scriptify-labs/worker-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger/status HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		api := &apiServer{env: e, baseCtx: ctx}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer exposes run submission and inspection over HTTP. Runs execute
// on the server's base context so a finished request does not cancel them;
// only an explicit abort or server shutdown does.
type apiServer struct {
	env     *env
	baseCtx context.Context
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/jobs", s.handleJobs)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleShow)
		r.Post("/{id}/abort", s.handleAbort)
		r.Get("/{id}/result", s.handleResult)
		r.Get("/{id}/logs", s.handleLogs)
		r.Get("/{id}/logs/stream", s.handleLogStream)
	})

	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := make([]any, 0)
	for _, name := range s.env.Registry.Names() {
		if def, ok := s.env.Registry.Get(name); ok {
			jobs = append(jobs, def)
		}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobType string          `json:"job_type"`
		Input   json.RawMessage `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobType == "" {
		writeError(w, http.StatusBadRequest, "job_type is required")
		return
	}

	input, err := s.env.Registry.MergeInput(req.JobType, req.Input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.env.Runner.Submit(r.Context(), req.JobType, input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	go func() {
		if err := s.env.Runner.Execute(s.baseCtx, run.ID); err != nil {
			zap.L().Error("run execution failed",
				zap.String("run_id", run.ID),
				zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, run)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		JobType: q.Get("job_type"),
		Status:  model.RunStatus(q.Get("status")),
		Limit:   50,
	}
	if limit := q.Get("limit"); limit != "" {
		fmt.Sscanf(limit, "%d", &filter.Limit) //nolint:errcheck
	}

	runs, err := s.env.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) handleShow(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleAbort cancels a run. A run executing in this process is cancelled
// cooperatively; a run still waiting in the queue is revoked directly.
func (s *apiServer) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.env.Runner.Abort(id) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "aborting"})
		return
	}

	run, err := s.env.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if run.Status.Terminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("run is already %s", run.Status))
		return
	}
	if run.Status == model.RunStatusPending {
		if err := s.env.Store.FinishRun(r.Context(), id, model.RunStatusRevoked, nil, "aborted", time.Now().UTC()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
		return
	}
	writeError(w, http.StatusConflict, "run is not executing in this process")
}

func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	data, err := loadResult(r.Context(), s.env.Store, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// handleLogs returns one chunk of the run log starting at ?offset=.
func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var offset int64
	if o := r.URL.Query().Get("offset"); o != "" {
		fmt.Sscanf(o, "%d", &offset) //nolint:errcheck
	}

	chunk, next, err := runner.ReadLogFrom(run.LogPath, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":     string(chunk),
		"offset":   next,
		"finished": run.Status.Terminal(),
	})
}

// handleLogStream streams the run log as server-sent events until the run
// reaches a terminal state and the log is drained.
func (s *apiServer) handleLogStream(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	var offset int64
	for {
		chunk, next, err := runner.ReadLogFrom(run.LogPath, offset)
		if err != nil {
			return
		}
		if len(chunk) > 0 {
			writeSSEData(w, chunk)
			flusher.Flush()
		}
		offset = next

		run, err = s.env.Store.GetRun(r.Context(), run.ID)
		if err != nil {
			return
		}
		if run.Status.Terminal() && len(chunk) == 0 {
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", run.Status)
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// writeSSEData frames a log chunk as one event, giving every line its
// own data: field. A bare multi-line payload would lose every line after
// the first on a conforming client.
func writeSSEData(w io.Writer, chunk []byte) {
	for _, line := range bytes.Split(bytes.TrimRight(chunk, "\n"), []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
