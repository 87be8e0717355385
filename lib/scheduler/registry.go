package scheduler

import (
	"context"
	"sync"
)

// job is the runtime handle for one tenant's recurring work. Never persisted.
type job struct {
	tenantID uint64
	cancel   context.CancelFunc
}

// Registry maps tenant ids to their live job handles. At most one live job
// exists per tenant: registering over an existing handle cancels the old one
// synchronously with the insert.
type Registry struct {
	mu   sync.Mutex
	jobs map[uint64]*job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[uint64]*job)}
}

// Register inserts the job, cancelling and returning any predecessor.
func (r *Registry) Register(tenantID uint64, j *job) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.jobs[tenantID]
	if ok {
		old.cancel()
	}
	r.jobs[tenantID] = j
	return ok
}

// Remove cancels and drops the tenant's job. Removing an absent tenant is a
// no-op.
func (r *Registry) Remove(tenantID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[tenantID]; ok {
		j.cancel()
		delete(r.jobs, tenantID)
	}
}

// Deregister drops the handle only if it is still the tenant's current job.
// A job that was replaced must not remove its successor on the way out.
func (r *Registry) Deregister(j *job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.jobs[j.tenantID]; ok && current == j {
		delete(r.jobs, j.tenantID)
	}
}

// IsRunning is a point-in-time membership check with no ordering guarantee
// relative to concurrent registrations.
func (r *Registry) IsRunning(tenantID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.jobs[tenantID]
	return ok
}

// StopAll cancels every live job. Used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for tenantID, j := range r.jobs {
		j.cancel()
		delete(r.jobs, tenantID)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.jobs)
}
