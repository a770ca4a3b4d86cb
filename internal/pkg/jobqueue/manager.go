package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Manager owns the job queue workers and the periodic schedule.
// Scheduled entries are dispatched as regular jobs, so they share retry
// and inline fallback behavior with everything else.
type Manager struct {
	queue   *Queue
	cron    *cron.Cron
	entries []scheduledJob
	mu      sync.Mutex
	running bool
}

type scheduledJob struct {
	spec    string
	jobType JobType
	payload map[string]interface{}
}

// NewManager creates a manager for q.
func NewManager(q *Queue) *Manager {
	return &Manager{queue: q}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Schedule registers jobType to be dispatched on the cron spec.
// It must be called before Start.
func (m *Manager) Schedule(spec string, jobType JobType, payload map[string]interface{}) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, jobType, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, scheduledJob{spec: spec, jobType: jobType, payload: payload})
	return nil
}

// Start starts the job queue and the scheduler
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	log.Info("[JobQueue Manager] Starting job queue and scheduler")
	m.queue.Start()

	m.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	for _, entry := range m.entries {
		entry := entry
		if _, err := m.cron.AddFunc(entry.spec, func() { m.fire(entry) }); err != nil {
			log.Errorf("[JobQueue Manager] Could not schedule %s: %v", entry.jobType, err)
			continue
		}
		log.Infof("[JobQueue Manager] Scheduled %s (%s)", entry.jobType, entry.spec)
	}
	m.cron.Start()
	m.running = true

	log.Info("[JobQueue Manager] Started successfully")
}

func (m *Manager) fire(entry scheduledJob) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultJobTimeout)
	defer cancel()

	payload := make(map[string]interface{}, len(entry.payload)+1)
	for k, v := range entry.payload {
		payload[k] = v
	}
	payload["scheduled_at"] = time.Now().UTC().Format(time.RFC3339)
	if err := m.queue.Dispatch(ctx, entry.jobType, payload); err != nil {
		log.Errorf("[JobQueue Manager] Scheduled %s failed: %v", entry.jobType, err)
	}
}

// Stop stops the scheduler, waits for running schedule callbacks and then
// stops the workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping scheduler and job queue...")
	if m.cron != nil {
		<-m.cron.Stop().Done()
		m.cron = nil
	}
	m.queue.Stop()
	m.running = false

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
