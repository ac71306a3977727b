package bot

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Task is one in-flight download request.
type Task struct {
	ID        string
	UserID    int64
	ChatID    int64
	URL       string
	StartedAt time.Time

	mu     sync.Mutex
	stage  string
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *Task) SetStage(stage string) {
	t.mu.Lock()
	t.stage = stage
	t.mu.Unlock()
}

func (t *Task) Stage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// TaskSnapshot is the status API view of a task.
type TaskSnapshot struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Stage     string    `json:"stage"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
}

// Registry owns admission control. A global semaphore caps total
// concurrent downloads and one lazily created semaphore per user caps
// how many slots a single user may hold. User slots are claimed before
// global slots, so a user at their own cap never occupies global
// capacity while waiting.
type Registry struct {
	global  *semaphore.Weighted
	userCap int64

	mu      sync.Mutex
	perUser map[int64]*semaphore.Weighted
	tasks   map[*Task]struct{}
	wg      sync.WaitGroup
}

func NewRegistry(globalCap, userCap int) *Registry {
	return &Registry{
		global:  semaphore.NewWeighted(int64(globalCap)),
		userCap: int64(userCap),
		perUser: make(map[int64]*semaphore.Weighted),
		tasks:   make(map[*Task]struct{}),
	}
}

func (r *Registry) userSem(userID int64) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.perUser[userID]
	if !ok {
		sem = semaphore.NewWeighted(r.userCap)
		r.perUser[userID] = sem
	}
	return sem
}

// Acquire claims a user slot, then a global slot. Both waits respect
// ctx. The returned release function gives the slots back in reverse
// order and is safe to defer.
func (r *Registry) Acquire(ctx context.Context, userID int64) (func(), error) {
	userSem := r.userSem(userID)
	if err := userSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := r.global.Acquire(ctx, 1); err != nil {
		userSem.Release(1)
		return nil, err
	}
	return func() {
		r.global.Release(1)
		userSem.Release(1)
	}, nil
}

func (r *Registry) track(t *Task) {
	r.mu.Lock()
	t.done = make(chan struct{})
	r.tasks[t] = struct{}{}
	r.mu.Unlock()
	r.wg.Add(1)
}

func (r *Registry) untrack(t *Task) {
	r.mu.Lock()
	delete(r.tasks, t)
	r.mu.Unlock()
	close(t.done)
	r.wg.Done()
}

func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *Registry) Snapshot() []TaskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskSnapshot, 0, len(r.tasks))
	for t := range r.tasks {
		out = append(out, TaskSnapshot{
			ID:        t.ID,
			UserID:    t.UserID,
			Stage:     t.Stage(),
			URL:       t.URL,
			StartedAt: t.StartedAt,
		})
	}
	return out
}

// CancelUser cancels every outstanding task belonging to one user and
// waits for those tasks to finish. Other users' work is untouched.
// Returns how many tasks were cancelled.
func (r *Registry) CancelUser(userID int64) int {
	r.mu.Lock()
	var targets []*Task
	for t := range r.tasks {
		if t.UserID == userID {
			targets = append(targets, t)
		}
	}
	r.mu.Unlock()

	for _, t := range targets {
		t.Cancel()
	}
	for _, t := range targets {
		<-t.done
	}
	if len(targets) > 0 {
		log.Printf("[Registry] cancelled %d task(s) for user %d", len(targets), userID)
	}
	return len(targets)
}

// CancelAll cancels every tracked task and waits for their goroutines
// to finish. Used on shutdown before the temp root is wiped.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	n := len(r.tasks)
	for t := range r.tasks {
		t.Cancel()
	}
	r.mu.Unlock()

	if n > 0 {
		log.Printf("[Registry] cancelling %d active tasks", n)
	}
	r.wg.Wait()
}
