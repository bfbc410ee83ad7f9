package realtime

import (
	"log"
	"sync"
	"time"
)

// Scheduler runs deferred tasks keyed by entity id. Scheduling a key that is
// already pending replaces the earlier task; cancelled tasks never run.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	stopped bool
}

type scheduledTask struct {
	timer *time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[string]*scheduledTask)}
}

// Schedule runs fn once after delay unless key is cancelled first.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}

	task := &scheduledTask{}
	task.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.tasks[key] != task {
			s.mu.Unlock()
			return
		}
		delete(s.tasks, key)
		s.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("scheduled task panicked: key=%s panic=%v", key, r)
			}
		}()
		fn()
	})
	s.tasks[key] = task
}

// Cancel drops the pending task for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.tasks, key)
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, key)
	}
}
