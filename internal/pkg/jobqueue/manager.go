package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/loadway/Loadway/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue         *Queue
	archiveTicker *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 3
		if v, err := strconv.Atoi(env.GetEnv("JOB_WORKERS", "3")); err == nil && v > 0 {
			workerCount = v
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Periodic payment event archival
	archiveInterval := 15 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("ARCHIVE_INTERVAL_MINUTES", "15")); err == nil && v > 0 {
		archiveInterval = time.Duration(v) * time.Minute
	}
	m.archiveTicker = time.NewTicker(archiveInterval)
	m.wg.Add(1)
	go m.archiveWorker()
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks")
	close(m.stopCh)
	if m.archiveTicker != nil {
		m.archiveTicker.Stop()
	}
	m.queue.Stop()
	m.wg.Wait()
	m.running = false
}

// archiveWorker periodically enqueues an event archive job
func (m *Manager) archiveWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.archiveTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeEventArchive, map[string]interface{}{}); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue archive job: %v", err)
			}
		}
	}
}
