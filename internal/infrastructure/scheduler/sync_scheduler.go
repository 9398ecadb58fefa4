package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/catalog"
)

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusPartial JobStatus = "PARTIAL"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusSkipped JobStatus = "SKIPPED"
)

// Job is one queued or executed reconciliation run
type Job struct {
	ID          uuid.UUID           `json:"id"`
	Trigger     catalog.SyncTrigger `json:"trigger"`
	Status      JobStatus           `json:"status"`
	Error       string              `json:"error,omitempty"`
	QueuedAt    time.Time           `json:"queuedAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	Report      *catalog.SyncReport `json:"report,omitempty"`
}

// NewJob creates a pending job
func NewJob(trigger catalog.SyncTrigger) *Job {
	return &Job{
		ID:       uuid.New(),
		Trigger:  trigger,
		Status:   JobStatusPending,
		QueuedAt: time.Now(),
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Finish records the run report and derives the job status from it
func (j *Job) Finish(report *catalog.SyncReport) {
	now := time.Now()
	j.CompletedAt = &now
	j.Report = report

	switch {
	case report == nil:
		j.Status = JobStatusFailed
		j.Error = "sync returned no report"
	case report.Status == catalog.SyncStatusAlreadyRunning:
		j.Status = JobStatusSkipped
		j.Error = report.Message
	case !report.Success:
		j.Status = JobStatusFailed
		j.Error = report.Message
	case len(report.Errors) > 0:
		j.Status = JobStatusPartial
	default:
		j.Status = JobStatusSuccess
	}
}

// IsTerminal reports whether the job has finished
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusSuccess, JobStatusPartial, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// SyncRunner executes one reconciliation run
type SyncRunner interface {
	Run(ctx context.Context, trigger catalog.SyncTrigger) *catalog.SyncReport
}

// SyncSchedulerConfig holds sync scheduler configuration
type SyncSchedulerConfig struct {
	// Enabled turns on the periodic ticker; manual triggers work either way
	Enabled      bool
	Interval     time.Duration
	RunOnStartup bool
	HistorySize  int
}

// DefaultSyncSchedulerConfig returns default sync scheduler configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Enabled:     false,
		Interval:    time.Hour,
		HistorySize: 20,
	}
}

// Validate checks the configuration
func (c SyncSchedulerConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history size must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// SyncScheduler runs catalog reconciliation in-process.
// A single worker executes jobs one at a time and at most one job waits in the queue.
type SyncScheduler struct {
	config SyncSchedulerConfig
	runner SyncRunner
	logger *zap.Logger

	jobs      chan *Job
	quit      chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	history   []*Job
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, runner SyncRunner, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		config: config,
		runner: runner,
		logger: logger,
	}, nil
}

// Start starts the worker and, when enabled, the periodic ticker
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.jobs = make(chan *Job, 1)
	s.quit = make(chan struct{})
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.worker(ctx)

	if s.config.Enabled {
		s.wg.Add(1)
		go s.tickLoop()
	}

	s.logger.Info("Sync scheduler started",
		zap.Bool("periodic", s.config.Enabled),
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_startup", s.config.RunOnStartup),
	)

	if s.config.RunOnStartup {
		if _, err := s.submit(catalog.SyncTriggerStartup); err != nil {
			s.logger.Warn("Failed to queue startup sync", zap.Error(err))
		}
	}
	return nil
}

// Stop stops accepting jobs and waits for the running one to finish.
// When ctx expires first the running job is cancelled.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.quit)
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		s.logger.Warn("Sync scheduler stop timed out, running sync cancelled")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Trigger queues a manual run without waiting for it
func (s *SyncScheduler) Trigger() (Job, error) {
	job, err := s.submit(catalog.SyncTriggerManual)
	if err != nil {
		return Job{}, err
	}
	return s.snapshot(job), nil
}

// History returns the most recent jobs, newest first
func (s *SyncScheduler) History() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		out = append(out, *s.history[i])
	}
	return out
}

// GetJob returns a job from the history
func (s *SyncScheduler) GetJob(id uuid.UUID) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.history {
		if job.ID == id {
			return *job, true
		}
	}
	return Job{}, false
}

func (s *SyncScheduler) submit(trigger catalog.SyncTrigger) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil, ErrSchedulerNotRunning
	}

	job := NewJob(trigger)
	select {
	case s.jobs <- job:
		s.record(job)
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("trigger", string(trigger)),
		)
		return job, nil
	default:
		return nil, ErrJobQueueFull
	}
}

// record appends to the bounded history; callers hold s.mu
func (s *SyncScheduler) record(job *Job) {
	s.history = append(s.history, job)
	if over := len(s.history) - s.config.HistorySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

func (s *SyncScheduler) snapshot(job *Job) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *job
}

func (s *SyncScheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if _, err := s.submit(catalog.SyncTriggerSchedule); err != nil {
				s.logger.Info("Skipping scheduled sync", zap.Error(err))
			}
		}
	}
}

func (s *SyncScheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for job := range s.jobs {
		s.processJob(ctx, job)
	}
}

func (s *SyncScheduler) processJob(ctx context.Context, job *Job) {
	s.mu.Lock()
	job.Start()
	s.mu.Unlock()

	s.logger.Info("Processing sync job",
		zap.String("job_id", job.ID.String()),
		zap.String("trigger", string(job.Trigger)),
	)

	report := s.runSafely(ctx, job)

	s.mu.Lock()
	job.Finish(report)
	status, errMsg := job.Status, job.Error
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(status)),
	}
	switch status {
	case JobStatusFailed:
		s.logger.Error("Sync job failed", append(fields, zap.String("error", errMsg))...)
	case JobStatusSkipped:
		s.logger.Info("Sync job skipped", fields...)
	default:
		s.logger.Info("Sync job completed", fields...)
	}
}

func (s *SyncScheduler) runSafely(ctx context.Context, job *Job) (report *catalog.SyncReport) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sync job panicked",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
			)
			report = catalog.NewSyncReport().Fail(catalog.SyncStatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()
	return s.runner.Run(ctx, job.Trigger)
}
