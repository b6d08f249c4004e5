package queue

import (
	"log"
	"sync"
	"time"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs jobs on a fixed worker pool. Delayed jobs are held
// on timers and enter the same channel when due, so a scheduled retry does not
// depend on the goroutine that requested it.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		timers:     make(map[*time.Timer]struct{}),
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			for job := range rqm.JobQueue {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				} else if err != nil {
					log.Printf("queue: job failed: %v", err)
				}
			}
		}(i)
	}
}

func (rqm *RequestQueueManager) EnqueueJob(job Job) {
	rqm.JobQueue <- job
}

// EnqueueAfter schedules a job to enter the queue once the delay elapses.
// A zero or negative delay enqueues immediately.
func (rqm *RequestQueueManager) EnqueueAfter(delay time.Duration, job Job) {
	if delay <= 0 {
		rqm.EnqueueJob(job)
		return
	}

	rqm.mu.Lock()
	if rqm.closed {
		rqm.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		rqm.mu.Lock()
		delete(rqm.timers, timer)
		closed := rqm.closed
		rqm.mu.Unlock()
		if closed {
			return
		}
		rqm.EnqueueJob(job)
	})
	rqm.timers[timer] = struct{}{}
	rqm.mu.Unlock()
}

func (rqm *RequestQueueManager) Shutdown() {
	rqm.mu.Lock()
	rqm.closed = true
	for timer := range rqm.timers {
		timer.Stop()
	}
	rqm.timers = make(map[*time.Timer]struct{})
	rqm.mu.Unlock()

	close(rqm.JobQueue)
	rqm.wg.Wait()
}
