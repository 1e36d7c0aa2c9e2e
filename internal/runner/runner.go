// Package runner drives a job's work units through the provider one at a
// time, checkpointing the job state after every unit.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/provider"
	"transcript-cleaner/internal/runstore"
	"transcript-cleaner/internal/segment"
)

type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomePaused    OutcomeKind = "paused"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is how a Run call ended. Failed outcomes are also returned as a
// *JobError so callers can use either form.
type Outcome struct {
	Kind      OutcomeKind
	SessionID string
	JobID     string
	Completed int
	Total     int
	Results   []model.UnitResult
	Summary   model.Summary
	Err       error
}

type Phase string

const (
	PhaseSkipped    Phase = "skipped"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

type ProgressEvent struct {
	UnitIndex  int
	Total      int
	Completed  int
	Phase      Phase
	ActualCost decimal.Decimal
	Err        error
}

type RunOptions struct {
	Template   string
	Title      string
	Language   string
	Resume     bool
	OnProgress func(ProgressEvent)
}

type NewJob struct {
	SourceName    string
	SourceSize    int64
	Title         string
	TotalUnits    int
	Config        map[string]any
	EstimatedCost decimal.Decimal
}

// RunRecord is handed to the Recorder when a run ends, whatever the outcome.
type RunRecord struct {
	SessionID    string
	JobID        string
	Title        string
	Status       string
	UnitsDone    int
	UnitsTotal   int
	Cost         decimal.Decimal
	InputTokens  int
	OutputTokens int
	Model        string
	Error        string
	FinishedAt   time.Time
}

type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

type Runner struct {
	caller   provider.Caller
	store    *runstore.Store
	logger   *slog.Logger
	recorder Recorder

	pause   atomic.Bool
	running atomic.Bool
	session atomic.Value
}

func New(caller provider.Caller, store *runstore.Store, opts ...Option) *Runner {
	r := &Runner{
		caller: caller,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.session.Store("")
	return r
}

// Pause asks the active run to stop before its next unit. The unit in flight
// is allowed to finish. Returns false when no run is active.
func (r *Runner) Pause() bool {
	if !r.running.Load() {
		return false
	}
	r.pause.Store(true)
	return true
}

func (r *Runner) Processing() bool {
	return r.running.Load()
}

// Session returns the id of the active or most recent run.
func (r *Runner) Session() string {
	s, _ := r.session.Load().(string)
	return s
}

func (r *Runner) Current(ctx context.Context) (*model.JobState, error) {
	return r.store.Read(ctx)
}

func (r *Runner) Clear(ctx context.Context) error {
	if r.running.Load() {
		return ErrAlreadyActive
	}
	return r.store.Clear(ctx)
}

// StartNewJob discards any existing state and persists a fresh idle job.
func (r *Runner) StartNewJob(ctx context.Context, job NewJob) (*model.JobState, error) {
	if r.running.Load() {
		return nil, ErrAlreadyActive
	}
	if err := r.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear previous job: %w", err)
	}
	st := runstore.CreateNew(runstore.NewJobOptions{
		SourceName:    job.SourceName,
		SourceSize:    job.SourceSize,
		Title:         job.Title,
		TotalUnits:    job.TotalUnits,
		Config:        job.Config,
		EstimatedCost: job.EstimatedCost,
	})
	if err := r.store.Write(ctx, st); err != nil {
		return nil, fmt.Errorf("persist new job: %w", err)
	}
	r.logger.Info("job created", "job_id", st.JobID, "source", st.SourceName, "units", st.TotalUnits)
	return st, nil
}

// Recover moves a crashed job back to paused so it can be resumed.
func (r *Runner) Recover(ctx context.Context) (*model.JobState, error) {
	if r.running.Load() {
		return nil, ErrAlreadyActive
	}
	st, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNoJob
	}
	if err := st.Recover(); err != nil {
		return nil, err
	}
	if err := r.store.Write(ctx, st); err != nil {
		return nil, fmt.Errorf("persist recovered job: %w", err)
	}
	r.logger.Info("job recovered", "job_id", st.JobID, "failed_units", len(st.FailedIndices))
	return st, nil
}

// Run processes every unit not yet completed, in index order. Cancelling ctx
// behaves like Pause, except that an in-flight call is abandoned and not
// recorded.
func (r *Runner) Run(ctx context.Context, units []segment.WorkUnit, opts RunOptions) (Outcome, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyActive
	}
	defer r.running.Store(false)
	r.pause.Store(false)

	sessionID := uuid.NewString()
	r.session.Store(sessionID)
	// Checkpoints must land even after ctx is cancelled.
	persistCtx := context.WithoutCancel(ctx)

	st, err := r.store.Read(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read job state: %w", err)
	}
	if st == nil {
		return Outcome{}, ErrNoJob
	}
	if err := checkStartable(st, opts.Resume); err != nil {
		return Outcome{}, err
	}
	if err := checkUnits(st, units); err != nil {
		return Outcome{}, err
	}

	if err := st.Transition(model.StatusProcessing); err != nil {
		return Outcome{}, err
	}
	if err := r.store.Write(persistCtx, st); err != nil {
		return Outcome{}, fmt.Errorf("persist job start: %w", err)
	}

	log := r.logger.With("session_id", sessionID, "job_id", st.JobID)
	log.Info("run started", "resume", opts.Resume, "completed", len(st.CompletedIndices), "total", st.TotalUnits)

	total := len(units)
	emit := func(idx int, phase Phase, err error) {
		if opts.OnProgress == nil {
			return
		}
		opts.OnProgress(ProgressEvent{
			UnitIndex:  idx,
			Total:      total,
			Completed:  len(st.CompletedIndices),
			Phase:      phase,
			ActualCost: st.ActualCost,
			Err:        err,
		})
	}

	for _, unit := range units {
		if st.IsCompleted(unit.Index) {
			emit(unit.Index, PhaseSkipped, nil)
			continue
		}
		if r.pause.Load() || ctx.Err() != nil {
			return r.pauseJob(persistCtx, log, sessionID, st)
		}

		emit(unit.Index, PhaseProcessing, nil)
		res, callErr := r.caller.Call(ctx, provider.Request{
			Unit:     unit,
			Template: opts.Template,
			Title:    opts.Title,
			Language: opts.Language,
		})
		if callErr != nil {
			if ctx.Err() != nil {
				log.Info("call abandoned by cancellation", "unit", unit.Index)
				return r.pauseJob(persistCtx, log, sessionID, st)
			}
			return r.failJob(persistCtx, log, sessionID, st, unit.Index, callErr, emit)
		}

		st.AddResult(res)
		if err := r.store.Write(persistCtx, st); err != nil {
			return Outcome{}, fmt.Errorf("checkpoint unit %d: %w", unit.Index, err)
		}
		log.Debug("unit completed", "unit", unit.Index, "cost", res.Cost.String(), "input_tokens", res.InputTokens, "output_tokens", res.OutputTokens)
		emit(unit.Index, PhaseCompleted, nil)
	}

	if err := st.Transition(model.StatusCompleted); err != nil {
		return Outcome{}, err
	}
	if err := r.store.Write(persistCtx, st); err != nil {
		return Outcome{}, fmt.Errorf("persist completion: %w", err)
	}
	log.Info("run completed", "units", st.TotalUnits, "cost", st.ActualCost.String())
	r.record(persistCtx, log, sessionID, st, "")

	return Outcome{
		Kind:      OutcomeCompleted,
		SessionID: sessionID,
		JobID:     st.JobID,
		Completed: len(st.CompletedIndices),
		Total:     st.TotalUnits,
		Results:   st.SortedResults(),
		Summary:   st.Summary(),
	}, nil
}

func (r *Runner) pauseJob(ctx context.Context, log *slog.Logger, sessionID string, st *model.JobState) (Outcome, error) {
	if err := st.Transition(model.StatusPaused); err != nil {
		return Outcome{}, err
	}
	if err := r.store.Write(ctx, st); err != nil {
		return Outcome{}, fmt.Errorf("persist pause: %w", err)
	}
	log.Info("run paused", "completed", len(st.CompletedIndices), "total", st.TotalUnits)
	r.record(ctx, log, sessionID, st, "")

	return Outcome{
		Kind:      OutcomePaused,
		SessionID: sessionID,
		JobID:     st.JobID,
		Completed: len(st.CompletedIndices),
		Total:     st.TotalUnits,
		Results:   st.SortedResults(),
		Summary:   st.Summary(),
	}, nil
}

func (r *Runner) failJob(ctx context.Context, log *slog.Logger, sessionID string, st *model.JobState, idx int, cause error, emit func(int, Phase, error)) (Outcome, error) {
	st.AddFailure(idx, cause.Error())
	if err := r.store.Write(ctx, st); err != nil {
		return Outcome{}, fmt.Errorf("persist failure of unit %d: %w", idx, err)
	}
	if err := st.Transition(model.StatusCrashed); err != nil {
		return Outcome{}, err
	}
	if err := r.store.Write(ctx, st); err != nil {
		return Outcome{}, fmt.Errorf("persist crash: %w", err)
	}
	emit(idx, PhaseFailed, cause)

	jobErr := &JobError{
		UnitIndex: idx,
		Completed: len(st.CompletedIndices),
		Failed:    len(st.FailedIndices),
		Total:     st.TotalUnits,
		Err:       cause,
	}
	log.Error("run failed", "unit", idx, "auth", provider.IsAuth(cause), "err", cause)
	r.record(ctx, log, sessionID, st, cause.Error())

	return Outcome{
		Kind:      OutcomeFailed,
		SessionID: sessionID,
		JobID:     st.JobID,
		Completed: len(st.CompletedIndices),
		Total:     st.TotalUnits,
		Results:   st.SortedResults(),
		Summary:   st.Summary(),
		Err:       jobErr,
	}, jobErr
}

func (r *Runner) record(ctx context.Context, log *slog.Logger, sessionID string, st *model.JobState, errMsg string) {
	if r.recorder == nil {
		return
	}
	rec := RunRecord{
		SessionID:    sessionID,
		JobID:        st.JobID,
		Title:        st.Title,
		Status:       st.Status,
		UnitsDone:    len(st.CompletedIndices),
		UnitsTotal:   st.TotalUnits,
		Cost:         st.ActualCost,
		InputTokens:  st.TotalInputTokens,
		OutputTokens: st.TotalOutputTokens,
		Model:        st.ConfigString(model.ConfigModel),
		Error:        errMsg,
		FinishedAt:   time.Now().UTC(),
	}
	if err := r.recorder.Record(ctx, rec); err != nil {
		log.Warn("record run outcome", "err", err)
	}
}

func checkStartable(st *model.JobState, resume bool) error {
	if resume {
		if !st.Resumable() {
			return fmt.Errorf("%w: job %s is %s with %d/%d units completed", ErrNotResumable, st.JobID, st.Status, len(st.CompletedIndices), st.TotalUnits)
		}
		return nil
	}
	switch st.Status {
	case model.StatusCompleted, model.StatusCrashed:
		return fmt.Errorf("%w: job %s is %s", ErrNotResumable, st.JobID, st.Status)
	}
	return nil
}

func checkUnits(st *model.JobState, units []segment.WorkUnit) error {
	if len(units) != st.TotalUnits {
		return fmt.Errorf("%w: got %d units, job %s expects %d", ErrUnitMismatch, len(units), st.JobID, st.TotalUnits)
	}
	for i, u := range units {
		if u.Index != i {
			return fmt.Errorf("%w: unit at position %d has index %d", ErrUnitMismatch, i, u.Index)
		}
	}
	return nil
}
