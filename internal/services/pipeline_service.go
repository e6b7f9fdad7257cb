package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"etaanalyzer/internal/config"
	"etaanalyzer/internal/dataprocessing"
	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/internal/exporter"
	"etaanalyzer/internal/files"
	"etaanalyzer/internal/infrastructure"
	"etaanalyzer/internal/operations"
)

// RunRequest describes one run. Empty fields fall back to the pipeline configuration.
type RunRequest struct {
	Source            string `json:"source" validate:"required"`
	Identifier        string `json:"identifier,omitempty" validate:"omitempty,max=128"`
	InputEncoding     string `json:"input_encoding,omitempty" validate:"omitempty,oneof=utf_8 shift_jis"`
	OutputEncoding    string `json:"output_encoding,omitempty" validate:"omitempty,oneof=utf_8 shift_jis"`
	WriteLFHFComputed *bool  `json:"write_lfhf_computed,omitempty"`
	HeaderPolicy      string `json:"header_policy,omitempty" validate:"omitempty,oneof=strict lenient"`
	SequencePolicy    string `json:"sequence_policy,omitempty" validate:"omitempty,oneof=strict tolerant"`
	SkipSummary       bool   `json:"skip_summary,omitempty"`
	SkipWorkbook      bool   `json:"skip_workbook,omitempty"`
}

// RunResult is the outcome of a synchronous run
type RunResult struct {
	RunID    string                          `json:"run_id"`
	Source   string                          `json:"source"`
	Dir      string                          `json:"dir"`
	Status   operations.OperationStatusValue `json:"status"`
	Duration time.Duration                   `json:"duration"`
	Manifest *operations.RunManifest         `json:"manifest,omitempty"`
	Summary  *exporter.CategorySummary       `json:"summary,omitempty"`
	Error    error                           `json:"-"`
}

// PipelineService resolves run requests against the configuration and
// executes them through the operations manager.
type PipelineService struct {
	cfg        config.PipelineConfig
	manager    *operations.Manager
	dictionary *dataprocessing.Dictionary
	store      *RunStore
	validate   *validator.Validate
	logger     *slog.Logger

	// bounds concurrent Submit runs
	sem *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now func() time.Time
}

// NewPipelineService builds the manager with the five pipeline steps.
// The category dictionary is loaded once here.
func NewPipelineService(cfg config.PipelineConfig, hub operations.WebSocketHub, tracer *operations.OperationTracer, logger *slog.Logger) (*PipelineService, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = infrastructure.WithComponent(logger, "pipeline_service")

	dictionary := dataprocessing.DefaultDictionary()
	if cfg.CategoriesFile != "" {
		d, err := dataprocessing.LoadDictionary(cfg.CategoriesFile)
		if err != nil {
			return nil, apperrors.NewConfigError("failed to load category dictionary", err)
		}
		dictionary = d
	}

	opsConfig := operations.NewConfigBuilder().
		WithDefaultTimeout(cfg.StageTimeout).
		Build()
	manager := operations.NewManager(hub, nil, opsConfig)
	manager.SetLogger(logger)
	manager.SetTracer(tracer)

	fm := files.NewManager("")
	for _, step := range operations.PipelineSteps(fm, logger) {
		if err := manager.RegisterStage(step); err != nil {
			return nil, fmt.Errorf("failed to register step %s: %w", step.ID(), err)
		}
	}

	concurrency := cfg.BatchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger.Info("pipeline service initialized",
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("categories", dictionary.Len()),
		slog.Int("concurrency", concurrency))

	return &PipelineService{
		cfg:        cfg,
		manager:    manager,
		dictionary: dictionary,
		store:      NewRunStore(),
		validate:   validator.New(),
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		baseCtx:    ctx,
		cancel:     cancel,
		now:        time.Now,
	}, nil
}

// Manager exposes the operations manager
func (s *PipelineService) Manager() *operations.Manager {
	return s.manager
}

// Store exposes the run store
func (s *PipelineService) Store() *RunStore {
	return s.store
}

// Validate checks a request's fields without running it
func (s *PipelineService) Validate(req RunRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if req.Identifier != "" {
		if err := files.ValidateRunID(req.Identifier); err != nil {
			return apperrors.NewAppValidationError(err.Error())
		}
	}
	return nil
}

// resolve builds the run spec for a request
func (s *PipelineService) resolve(req RunRequest, runID string) (*operations.RunSpec, error) {
	inEnc, err := files.ParseEncoding(firstNonEmpty(req.InputEncoding, s.cfg.InputEncoding))
	if err != nil {
		return nil, apperrors.NewConfigError("invalid input encoding", err)
	}
	outEnc, err := files.ParseEncoding(firstNonEmpty(req.OutputEncoding, s.cfg.OutputEncoding))
	if err != nil {
		return nil, apperrors.NewConfigError("invalid output encoding", err)
	}
	headerPolicy, err := dataprocessing.ParseHeaderPolicy(firstNonEmpty(req.HeaderPolicy, s.cfg.HeaderPolicy))
	if err != nil {
		return nil, apperrors.NewConfigError("invalid header policy", err)
	}
	sequencePolicy, err := dataprocessing.ParseSequencePolicy(firstNonEmpty(req.SequencePolicy, s.cfg.SequencePolicy))
	if err != nil {
		return nil, apperrors.NewConfigError("invalid sequence policy", err)
	}
	layout, err := files.NewRunLayout(s.cfg.OutputDir, runID)
	if err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}

	writeComputed := s.cfg.WriteLFHFComputed
	if req.WriteLFHFComputed != nil {
		writeComputed = *req.WriteLFHFComputed
	}

	return &operations.RunSpec{
		Source:         req.Source,
		Layout:         layout,
		InputEncoding:  inEnc,
		OutputEncoding: outEnc,
		Options: dataprocessing.Options{
			Dictionary:        s.dictionary,
			HeaderPolicy:      headerPolicy,
			SequencePolicy:    sequencePolicy,
			WriteLFHFComputed: writeComputed,
		},
		SkipSummary:  s.cfg.SkipSummary || req.SkipSummary,
		SkipWorkbook: s.cfg.SkipWorkbook || req.SkipWorkbook,
	}, nil
}

// Run executes one run synchronously. The result is returned even when the
// run fails, so callers can report the manifest.
func (s *PipelineService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	runID := req.Identifier
	if runID == "" {
		runID = files.DefaultRunID(s.now())
	}
	return s.execute(ctx, req, runID)
}

func (s *PipelineService) execute(ctx context.Context, req RunRequest, runID string) (*RunResult, error) {
	spec, err := s.resolve(req, runID)
	if err != nil {
		return nil, err
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	logger := s.logger.With(slog.String("run_id", runID), slog.String("trace_id", infrastructure.GetTraceID(ctx)))

	// a previous aborted run with the same id may have left partial files
	if removed, err := files.NewManager("").RemovePartials(spec.Layout.Dir()); err != nil {
		logger.Warn("failed to remove stale partial files", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("stale_partials_removed", slog.Int("count", removed))
	}

	state := operations.NewOperationState(runID, spec)
	resp, runErr := s.manager.Execute(ctx, state)

	result := &RunResult{
		RunID:   runID,
		Source:  req.Source,
		Dir:     spec.Layout.Dir(),
		Status:  state.GetStatus(),
		Summary: state.GetSummary(),
		Error:   runErr,
	}
	if resp != nil {
		result.Duration = resp.Duration
		result.Manifest = resp.Manifest
	}

	if runErr != nil {
		infrastructure.WithError(logger, runErr).Error("run_failed",
			slog.String("source", req.Source),
			slog.String("status", string(result.Status)))
		return result, runErr
	}
	logger.Info("run_succeeded",
		slog.String("source", req.Source),
		slog.String("dir", result.Dir),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// RunBatch executes independent runs with at most concurrency in flight.
// Each run's stages stay sequential. A failing run does not stop the others;
// the returned error joins every run error. Runs must not share an
// identifier, or they would share a run directory.
func (s *PipelineService) RunBatch(ctx context.Context, reqs []RunRequest, concurrency int) ([]*RunResult, error) {
	if len(reqs) == 0 {
		return nil, ErrNoSources
	}
	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if _, dup := seen[req.Identifier]; dup && len(reqs) > 1 {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRunID, req.Identifier)
		}
		seen[req.Identifier] = struct{}{}
	}

	if concurrency < 1 {
		concurrency = s.cfg.BatchConcurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*RunResult, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Run(ctx, req)
			if res == nil {
				res = &RunResult{RunID: req.Identifier, Source: req.Source, Status: operations.OperationStatusFailed, Error: err}
			}
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", req.Source, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// BatchRequests turns sources into requests sharing base. With more than one
// source each run id gets the source file stem appended, so runs never share
// a directory. Stems that map to an id already taken (same name in another
// directory, or names with no ASCII letters) get a numeric suffix.
func BatchRequests(base RunRequest, sources []string, now time.Time) []RunRequest {
	id := base.Identifier
	if id == "" {
		id = files.DefaultRunID(now)
	}

	used := make(map[string]struct{}, len(sources))
	reqs := make([]RunRequest, len(sources))
	for i, src := range sources {
		req := base
		req.Source = src
		req.Identifier = id
		if len(sources) > 1 {
			stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
			candidate := id + "_" + sanitizeID(stem)
			req.Identifier = candidate
			for n := 2; ; n++ {
				if _, taken := used[req.Identifier]; !taken {
					break
				}
				req.Identifier = candidate + "_" + strconv.Itoa(n)
			}
		}
		used[req.Identifier] = struct{}{}
		reqs[i] = req
	}
	return reqs
}

// Submit queues a run and returns its id immediately. The run executes in
// the background once a concurrency slot is free.
func (s *PipelineService) Submit(req RunRequest) (string, error) {
	if err := s.baseCtx.Err(); err != nil {
		return "", ErrShuttingDown
	}
	if err := s.Validate(req); err != nil {
		return "", err
	}

	runID := req.Identifier
	if runID == "" {
		runID = uuid.NewString()
	}
	layout, err := files.NewRunLayout(s.cfg.OutputDir, runID)
	if err != nil {
		return "", apperrors.NewAppValidationError(err.Error())
	}

	rec := &RunRecord{
		ID:          runID,
		Source:      req.Source,
		Dir:         layout.Dir(),
		Status:      operations.OperationStatusPending,
		SubmittedAt: s.now(),
	}
	if err := s.store.Create(rec); err != nil {
		return "", err
	}

	s.wg.Add(1)
	go s.runSubmitted(req, runID)

	s.logger.Info("run_submitted", slog.String("run_id", runID), slog.String("source", req.Source))
	return runID, nil
}

func (s *PipelineService) runSubmitted(req RunRequest, runID string) {
	defer s.wg.Done()

	ctx := s.baseCtx
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finish(runID, nil, operations.NewCancellationError("", err))
		return
	}
	defer s.sem.Release(1)

	started := s.now()
	_ = s.store.Update(runID, func(r *RunRecord) {
		r.Status = operations.OperationStatusRunning
		r.StartedAt = &started
	})

	res, err := s.execute(ctx, req, runID)
	s.finish(runID, res, err)
}

func (s *PipelineService) finish(runID string, res *RunResult, err error) {
	completed := s.now()
	_ = s.store.Update(runID, func(r *RunRecord) {
		r.CompletedAt = &completed
		r.Status = operations.OperationStatusFailed
		if res != nil {
			r.Status = res.Status
			r.Manifest = res.Manifest
			r.Summary = res.Summary
		}
		if operations.GetErrorType(err) == operations.ErrorTypeCancellation {
			r.Status = operations.OperationStatusCancelled
		}
		if err != nil {
			r.Error = err.Error()
		}
	})
}

// GetRun returns a submitted run
func (s *PipelineService) GetRun(id string) (*RunRecord, error) {
	return s.store.Get(id)
}

// ListRuns returns submitted runs, newest first
func (s *PipelineService) ListRuns(filter RunFilter) []*RunRecord {
	return s.store.List(filter)
}

// Summary returns the category summary of a completed run
func (s *PipelineService) Summary(id string) (*exporter.CategorySummary, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status != operations.OperationStatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunNotComplete, id, rec.Status)
	}
	if rec.Summary == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSummary, id)
	}
	return rec.Summary, nil
}

// Progress returns the live step snapshot of a run the broadcaster still tracks
func (s *PipelineService) Progress(id string) (*operations.RunSnapshot, bool) {
	return s.manager.GetBroadcaster().GetSnapshot(id)
}

// Prune drops finished runs completed before cutoff from the store and
// the broadcaster. It returns the number of store records removed.
func (s *PipelineService) Prune(ctx context.Context, maxAge time.Duration) int {
	s.manager.GetBroadcaster().CleanupOldRuns(ctx, maxAge)
	n := s.store.Prune(s.now().Add(-maxAge))
	if n > 0 {
		s.logger.Info("runs_pruned", slog.Int("count", n), slog.Duration("max_age", maxAge))
	}
	return n
}

// ActiveRuns is the number of runs currently executing
func (s *PipelineService) ActiveRuns() int {
	return len(s.manager.ListOperations())
}

// Shutdown cancels queued and running submissions and waits for them to stop
func (s *PipelineService) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sanitizeID maps characters a run id cannot carry to '_'
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}
