// Package scheduler manages the background worker tasks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig contains configuration for a scheduled task.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Interval    time.Duration
	Func        TaskFunc
	RunOnStart  bool
}

// TaskInfo describes a scheduled task for the status surface.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Interval    string     `json:"interval"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	lastRun *time.Time
	running bool
}

// Scheduler manages background scheduled tasks. Each task owns its cadence
// and runs its iterations sequentially on itself; a long iteration delays
// the next rather than overlapping it.
type Scheduler struct {
	gocron  gocron.Scheduler
	logger  zerolog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	tasks   map[string]*taskEntry
	mu      sync.RWMutex
}

// New creates a new scheduler.
func New(logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron:  gs,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		baseCtx: baseCtx,
		cancel:  cancel,
		tasks:   make(map[string]*taskEntry),
	}, nil
}

// RegisterTask registers a new scheduled task.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}

	job, err := s.gocron.NewJob(
		gocron.DurationJob(config.Interval),
		gocron.NewTask(func() { s.executeTask(config.ID) }),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{config: config, job: job}

	s.logger.Info().
		Str("id", config.ID).
		Str("name", config.Name).
		Dur("interval", config.Interval).
		Bool("runOnStart", config.RunOnStart).
		Msg("Registered task")

	return nil
}

// executeTask runs a task and updates its state. The task receives the
// scheduler's base context, which is cancelled at shutdown; workers check it
// between items.
func (s *Scheduler) executeTask(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	startTime := time.Now()
	s.logger.Debug().Str("id", taskID).Msg("Starting task")

	err := entry.config.Func(s.baseCtx)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &startTime
	s.mu.Unlock()

	duration := time.Since(startTime)
	if err != nil && s.baseCtx.Err() == nil {
		s.logger.Error().
			Err(err).
			Str("id", taskID).
			Dur("duration", duration).
			Msg("Task failed")
	} else {
		s.logger.Debug().
			Str("id", taskID).
			Dur("duration", duration).
			Msg("Task completed")
	}
}

// Start starts the scheduler and runs any tasks configured with RunOnStart.
func (s *Scheduler) Start() error {
	s.logger.Info().Msg("Starting scheduler")
	s.gocron.Start()

	s.mu.RLock()
	var startup []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			startup = append(startup, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range startup {
		go s.executeTask(taskID)
	}
	return nil
}

// Stop stops the scheduler and signals every running task to return.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.cancel()
	return s.gocron.Shutdown()
}

// RunNow manually triggers a task to run immediately.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if entry.running {
		return fmt.Errorf("task %q is already running", taskID)
	}

	go s.executeTask(taskID)
	return nil
}

// ListTasks returns information about all registered tasks.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		info := TaskInfo{
			ID:          entry.config.ID,
			Name:        entry.config.Name,
			Description: entry.config.Description,
			Interval:    entry.config.Interval.String(),
			LastRun:     entry.lastRun,
			Running:     entry.running,
		}
		if nextRun, err := entry.job.NextRun(); err == nil {
			info.NextRun = &nextRun
		}
		tasks = append(tasks, info)
	}
	return tasks
}
