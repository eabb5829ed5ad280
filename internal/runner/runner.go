// Package runner orchestrates job runs: it owns the run lifecycle from
// submission through a single terminal state, persists every transition,
// and mediates cooperative cancellation.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/store"
)

// Pipeline executes one job type. Run returns the final result payload;
// intermediate progress goes through the RunContext's checkpoint writer.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) (json.RawMessage, error)
}

// RunContext carries the per-run facilities a pipeline works with.
type RunContext struct {
	Run    *model.Run
	Log    *zap.Logger
	Result *ResultWriter
}

// FatalError marks an error where re-running cannot help, such as an
// expired login session. The run fails either way; the marker exists so
// callers and logs can tell operator-actionable failures from flaky ones.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as fatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err is marked fatal.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Config locates the runner's working directories.
type Config struct {
	LogDir    string
	ResultDir string
}

type runHandle struct {
	cancel  context.CancelFunc
	aborted bool
}

// Runner executes registered pipelines against the store.
type Runner struct {
	store store.Store
	cfg   Config

	mu        sync.Mutex
	pipelines map[string]Pipeline
	running   map[string]*runHandle
}

// New creates a runner.
func New(st store.Store, cfg Config) *Runner {
	return &Runner{
		store:     st,
		cfg:       cfg,
		pipelines: make(map[string]Pipeline),
		running:   make(map[string]*runHandle),
	}
}

// Register adds a pipeline. Registering two pipelines under one name is a
// programming error.
func (r *Runner) Register(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.pipelines[p.Name()]; dup {
		panic(fmt.Sprintf("runner: duplicate pipeline %q", p.Name()))
	}
	r.pipelines[p.Name()] = p
}

// JobTypes lists the registered pipeline names.
func (r *Runner) JobTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	return names
}

// Submit creates a PENDING run for the given job type.
func (r *Runner) Submit(ctx context.Context, jobType string, input json.RawMessage) (*model.Run, error) {
	r.mu.Lock()
	_, ok := r.pipelines[jobType]
	r.mu.Unlock()
	if !ok {
		return nil, eris.Errorf("runner: unknown job type %q", jobType)
	}

	id := uuid.New().String()
	run := &model.Run{
		ID:         id,
		JobType:    jobType,
		Status:     model.RunStatusPending,
		Input:      input,
		LogPath:    filepath.Join(r.cfg.LogDir, id+".log"),
		ResultPath: filepath.Join(r.cfg.ResultDir, id+".json"),
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Execute runs a PENDING run to its terminal state. The returned error
// reflects the pipeline outcome; the terminal state is persisted in every
// case, including panic.
func (r *Runner) Execute(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != model.RunStatusPending {
		return eris.Errorf("runner: run %s is %s, not PENDING", runID, run.Status)
	}

	r.mu.Lock()
	pipeline, ok := r.pipelines[run.JobType]
	r.mu.Unlock()
	if !ok {
		return eris.Errorf("runner: unknown job type %q", run.JobType)
	}

	if err := r.store.UpdateRunStatus(ctx, runID, model.RunStatusReceived); err != nil {
		return err
	}

	cctx, cancel := context.WithCancel(ctx)
	handle := &runHandle{cancel: cancel}
	r.mu.Lock()
	r.running[runID] = handle
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.running, runID)
		r.mu.Unlock()
	}()

	log, closeLog, err := NewRunLogger(run.LogPath)
	if err != nil {
		r.finish(runID, model.RunStatusFailure, nil, err)
		return err
	}
	defer closeLog() //nolint:errcheck
	log = log.With(zap.String("run_id", runID), zap.String("job_type", run.JobType))

	if err := r.store.MarkRunStarted(ctx, runID, time.Now().UTC()); err != nil {
		r.finish(runID, model.RunStatusFailure, nil, err)
		return err
	}
	log.Info("run started")

	rc := &RunContext{
		Run:    run,
		Log:    log,
		Result: NewResultWriter(run.ResultPath),
	}

	result, runErr := r.runPipeline(cctx, pipeline, rc)

	switch {
	case runErr == nil:
		log.Info("run succeeded")
		r.finish(runID, model.RunStatusSuccess, result, nil)
		return nil
	case wasCancelled(cctx, runErr):
		cause := "cancelled"
		if r.wasAborted(runID) {
			cause = "aborted"
		}
		log.Warn("run revoked", zap.String("cause", cause))
		r.finish(runID, model.RunStatusRevoked, nil, eris.New(cause))
		return runErr
	default:
		if IsFatal(runErr) {
			log.Error("run failed (not retryable)", zap.Error(runErr))
		} else {
			log.Error("run failed", zap.Error(runErr))
		}
		r.finish(runID, model.RunStatusFailure, nil, runErr)
		return runErr
	}
}

// runPipeline isolates pipeline panics so a crashing job still reaches a
// terminal state.
func (r *Runner) runPipeline(ctx context.Context, p Pipeline, rc *RunContext) (result json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("pipeline panic: %v", rec)
		}
	}()
	return p.Run(ctx, rc)
}

// Abort requests cancellation of a running run. It returns false when the
// run is not currently executing in this process.
func (r *Runner) Abort(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.running[runID]
	if !ok {
		return false
	}
	handle.aborted = true
	handle.cancel()
	return true
}

// wasAborted reports whether the run was cancelled by an explicit Abort
// rather than by its parent context, such as a server shutdown.
func (r *Runner) wasAborted(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.running[runID]
	return ok && handle.aborted
}

// Running reports whether the run is executing in this process.
func (r *Runner) Running(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[runID]
	return ok
}

func (r *Runner) finish(runID string, status model.RunStatus, result json.RawMessage, cause error) {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	// The run context may already be cancelled; the terminal state must
	// still be persisted.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.FinishRun(ctx, runID, status, result, errMsg, time.Now().UTC()); err != nil {
		zap.L().Error("persisting terminal state failed",
			zap.String("run_id", runID), zap.String("status", string(status)), zap.Error(err))
	}
}

func wasCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}
