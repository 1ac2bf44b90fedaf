// Package cron runs configured scheduled actions against the agent
// runtime or external webhooks.
package cron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hayahq/haya/internal/config"
	"github.com/hayahq/haya/internal/observability"
)

// Action prefixes in a job's action string.
const (
	actionAgentPrefix   = "agent:"
	actionWebhookPrefix = "webhook:"
)

// AgentRunner is the slice of the runtime the scheduler needs.
type AgentRunner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// JobStatus is one job's snapshot for cron.list and cron.status.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Action    string     `json:"action"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	RunCount  int        `json:"runCount"`
}

type jobState struct {
	job      config.CronJob
	entryID  cron.EntryID
	lastRun  *time.Time
	lastErr  string
	runCount int
}

// Scheduler wraps robfig/cron with job bookkeeping. Jobs whose action
// starts with "agent:" run an agent turn; "webhook:" POSTs the job name
// to a URL.
type Scheduler struct {
	runner  AgentRunner
	logger  *observability.Logger
	metrics *observability.Metrics
	client  *http.Client

	mu    sync.Mutex
	cron  *cron.Cron
	jobs  map[string]*jobState
	order []string
}

// NewScheduler creates a scheduler. runner may be nil when no agent
// jobs are configured.
func NewScheduler(runner AgentRunner, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Scheduler{
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		client:  &http.Client{Timeout: 30 * time.Second},
		cron:    cron.New(),
		jobs:    make(map[string]*jobState),
	}
}

// AddJob registers a job. Disabled jobs are tracked for status but not
// scheduled. Duplicate names and bad schedules fail.
func (s *Scheduler) AddJob(job config.CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("cron job already registered: %s", job.Name)
	}
	if err := validateAction(job.Action); err != nil {
		return fmt.Errorf("cron job %s: %w", job.Name, err)
	}

	state := &jobState{job: job}
	if job.Enabled {
		entryID, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(job.Name) })
		if err != nil {
			return fmt.Errorf("cron job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
		state.entryID = entryID
	}
	s.jobs[job.Name] = state
	s.order = append(s.order, job.Name)
	return nil
}

// Start begins dispatching scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// List snapshots every job in registration order.
func (s *Scheduler) List() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		state := s.jobs[name]
		status := JobStatus{
			Name:     state.job.Name,
			Schedule: state.job.Schedule,
			Action:   state.job.Action,
			Enabled:  state.job.Enabled,
			LastRun:  state.lastRun,
			RunCount: state.runCount,
		}
		status.LastError = state.lastErr
		if state.job.Enabled {
			if next := s.cron.Entry(state.entryID).Next; !next.IsZero() {
				status.NextRun = &next
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Status returns one job's snapshot.
func (s *Scheduler) Status(name string) (JobStatus, error) {
	for _, status := range s.List() {
		if status.Name == name {
			return status, nil
		}
	}
	return JobStatus{}, fmt.Errorf("cron job not found: %s", name)
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron job not found: %s", name)
	}
	s.runJob(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if lastErr := s.jobs[name].lastErr; lastErr != "" {
		return fmt.Errorf("%s", lastErr)
	}
	return nil
}

func (s *Scheduler) runJob(name string) {
	s.mu.Lock()
	state, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	action := state.job.Action
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "cron job running", "job", name)
	err := s.execute(ctx, name, action)

	now := time.Now()
	s.mu.Lock()
	state.lastRun = &now
	state.runCount++
	if err != nil {
		state.lastErr = err.Error()
	} else {
		state.lastErr = ""
	}
	s.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error(ctx, "cron job failed", "job", name, "error", err)
	}
	if s.metrics != nil {
		s.metrics.CronRunCounter.WithLabelValues(name, status).Inc()
	}
}

func (s *Scheduler) execute(ctx context.Context, name, action string) error {
	switch {
	case strings.HasPrefix(action, actionAgentPrefix):
		if s.runner == nil {
			return fmt.Errorf("agent runner is not configured")
		}
		prompt := strings.TrimPrefix(action, actionAgentPrefix)
		_, err := s.runner.Run(ctx, prompt)
		return err

	case strings.HasPrefix(action, actionWebhookPrefix):
		url := strings.TrimPrefix(action, actionWebhookPrefix)
		body, _ := json.Marshal(map[string]string{"job": name})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil

	default:
		return fmt.Errorf("unknown action: %s", action)
	}
}

func validateAction(action string) error {
	if strings.HasPrefix(action, actionAgentPrefix) || strings.HasPrefix(action, actionWebhookPrefix) {
		return nil
	}
	return fmt.Errorf("action must start with %q or %q", actionAgentPrefix, actionWebhookPrefix)
}
