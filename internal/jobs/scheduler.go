package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
	// Schedule is a five-field cron expression evaluated in UTC.
	Schedule() string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a usable five-field cron expression
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first activation of expr strictly after from
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from.UTC()), nil
}

// JobScheduler manages and runs scheduled jobs
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]Job
	lastRun   map[string]time.Time
	lastErr   map[string]string
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]Job),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]string),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register adds a job to the scheduler
func (s *JobScheduler) Register(name string, job Job) error {
	if err := ValidateSchedule(job.Schedule()); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("job %s: scheduler already started", name)
	}
	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job: %s (%s)", name, job.Schedule())
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	for name, job := range s.jobs {
		name, job := name, job
		_, err := s.scheduler.NewJob(
			gocron.CronJob(job.Schedule(), false),
			gocron.NewTask(func() {
				s.runJob(name, job)
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", name, err)
		}
		if next, err := NextRun(job.Schedule(), time.Now()); err == nil {
			log.Printf("⏰ [SCHEDULER] Job '%s' scheduled to run at %s", name, next.Format(time.RFC3339))
		}
	}

	s.scheduler.Start()
	s.running = true
	log.Printf("🚀 [SCHEDULER] Started job scheduler with %d jobs", len(s.jobs))
	return nil
}

// runJob executes a job and records its outcome
func (s *JobScheduler) runJob(name string, job Job) error {
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	err := job.Run(s.ctx)

	s.mu.Lock()
	s.lastRun[name] = startTime
	if err != nil {
		s.lastErr[name] = err.Error()
	} else {
		delete(s.lastErr, name)
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return err
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
	return nil
}

// Stop gracefully stops all jobs, waiting for running ones to return
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if wasRunning {
		if err := s.scheduler.Shutdown(); err != nil {
			log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
		}
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow immediately runs a specific job
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return s.runJob(name, job)
}

// GetStatus returns the status of all jobs
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	status := make(map[string]JobStatus, len(s.jobs))
	for name, job := range s.jobs {
		st := JobStatus{
			Name:       name,
			Schedule:   job.Schedule(),
			Registered: true,
			LastError:  s.lastErr[name],
		}
		if next, err := NextRun(job.Schedule(), now); err == nil {
			st.NextRunTime = next
		}
		if last, ok := s.lastRun[name]; ok {
			st.LastRunTime = &last
		}
		status[name] = st
	}

	return status
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	NextRunTime time.Time  `json:"next_run_time"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Registered  bool       `json:"registered"`
}
