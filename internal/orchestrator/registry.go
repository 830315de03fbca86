package orchestrator

import (
	"sync"

	"github.com/zhoukaigo/docling-serve/internal/model"
)

// Registry is the in-memory, mutex-guarded Task store. All mutation goes
// through Mutate so that read and read-modify-write access are
// serialized identically; every read hands back a copy so callers can
// never mutate a Task outside the lock.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*model.Task)}
}

// Put inserts a freshly created Task.
func (r *Registry) Put(task *model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
}

// Get returns a copy of the Task with the given id.
func (r *Registry) Get(id string) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	return *t, nil
}

// Mutate runs fn against the live Task under the write lock and returns a
// copy of the result. fn must not retain the pointer it is given.
func (r *Registry) Mutate(id string, fn func(*model.Task) error) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	if err := fn(t); err != nil {
		return model.Task{}, err
	}
	return *t, nil
}

// Delete removes a Task. It is not an error to delete a missing id: the
// caller (deferred deletion) may race a manual delete.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

// Exists reports whether id is present.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[id]
	return ok
}

// FinishedBefore returns the ids of every completed Task whose FinishedAt
// predates cutoff, used by clear_results.
func (r *Registry) FinishedBefore(cutoffUnixNano int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, t := range r.tasks {
		if !t.Status.Terminal() || t.FinishedAt.IsZero() {
			continue
		}
		if t.FinishedAt.UnixNano() < cutoffUnixNano {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingIDs returns every task-id currently PENDING, in no particular
// order; callers needing dequeue order must use the Queue instead.
func (r *Registry) PendingIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, t := range r.tasks {
		if t.Status == model.StatusPending {
			ids = append(ids, id)
		}
	}
	return ids
}
