package tasks

import "sync"

// Registry tracks in-flight tasks and their latest status. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Status
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Status)}
}

// Set records the latest status for a task.
func (r *Registry) Set(taskID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID] = status
}

// Remove drops a task once its callback has been sent.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// ActiveCount returns the number of in-flight tasks.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Snapshot returns a copy of the in-flight task statuses.
func (r *Registry) Snapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Status, len(r.tasks))
	for id, status := range r.tasks {
		snapshot[id] = status
	}
	return snapshot
}
