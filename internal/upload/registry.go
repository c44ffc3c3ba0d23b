package upload

import (
	"fmt"
	"sync"
	"time"
)

// DefaultKeep is how long a succeeded workflow stays visible after it
// finished.
const DefaultKeep = time.Minute

type entry struct {
	wf *Workflow
	// succeeded is when the workflow last reached Succeeded, zero otherwise.
	succeeded time.Time
}

// Registry keeps one workflow per (principal, order) so a failed upload can
// be retried without sending the file again. Succeeded workflows are dropped
// once Keep has passed.
type Registry struct {
	Keep time.Duration

	mu        sync.Mutex
	workflows map[string]*entry
	notify    func(topic string, s Snapshot)
	now       func() time.Time
}

// NewRegistry builds a registry. notify, if set, receives every state change.
func NewRegistry(notify func(topic string, s Snapshot)) *Registry {
	return &Registry{Keep: DefaultKeep, workflows: make(map[string]*entry), notify: notify, now: time.Now}
}

// Topic names the live channel carrying progress of one workflow.
func Topic(principal string, orderID uint64) string {
	return fmt.Sprintf("upload/%s/%d", principal, orderID)
}

func (r *Registry) Get(principal string, orderID uint64) *Workflow {
	topic := Topic(principal, orderID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	if e, ok := r.workflows[topic]; ok {
		return e.wf
	}
	e := &entry{}
	e.wf = NewWorkflow(func(s Snapshot) {
		r.mark(topic, e, s)
		if r.notify != nil {
			r.notify(topic, s)
		}
	})
	r.workflows[topic] = e
	return e.wf
}

// Lookup returns the workflow without creating one.
func (r *Registry) Lookup(principal string, orderID uint64) (*Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	e, ok := r.workflows[Topic(principal, orderID)]
	if !ok {
		return nil, false
	}
	return e.wf, true
}

// Len reports how many workflows are kept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweep()
	return len(r.workflows)
}

// Forget drops a finished workflow. Active uploads are kept.
func (r *Registry) Forget(principal string, orderID uint64) {
	topic := Topic(principal, orderID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.workflows[topic]; ok && e.wf.Snapshot().State != Uploading {
		delete(r.workflows, topic)
	}
}

func (r *Registry) mark(topic string, e *entry, s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workflows[topic] != e {
		return
	}
	if s.State == Succeeded {
		e.succeeded = r.now()
	} else {
		e.succeeded = time.Time{}
	}
}

// sweep drops workflows that succeeded more than Keep ago. r.mu must be held.
func (r *Registry) sweep() {
	now := r.now()
	for topic, e := range r.workflows {
		if !e.succeeded.IsZero() && now.Sub(e.succeeded) >= r.Keep {
			delete(r.workflows, topic)
		}
	}
}
