package backend

import (
	"context"
	"fmt"
	"sync"
)

// State is the lifecycle of the backend client: Uninitialized, Ready or Failed.
type State interface{ isState() }

type Uninitialized struct{}

type Ready struct{ Service Service }

type Failed struct{ Err error }

func (Uninitialized) isState() {}
func (Ready) isState()         {}
func (Failed) isState()        {}

// Dialer constructs a Service.
type Dialer func(ctx context.Context) (Service, error)

// Actor owns the shared backend client for the whole application.
type Actor struct {
	mu       sync.RWMutex
	state    State
	fetching bool
}

func NewActor() *Actor { return &Actor{state: Uninitialized{}} }

// NewReadyActor wraps an already constructed service.
func NewReadyActor(s Service) *Actor { return &Actor{state: Ready{Service: s}} }

func (a *Actor) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Fetching reports whether the client is being (re)initialised.
func (a *Actor) Fetching() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fetching
}

// Connect (re)initialises the client. While it runs Fetching reports true.
func (a *Actor) Connect(ctx context.Context, dial Dialer) error {
	a.mu.Lock()
	a.fetching = true
	a.mu.Unlock()

	svc, err := dial(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetching = false
	if err != nil {
		a.state = Failed{Err: err}
		return err
	}
	a.state = Ready{Service: svc}
	return nil
}

// Service returns the ready client or an error describing why there is none.
func (a *Actor) Service() (Service, error) {
	switch s := a.State().(type) {
	case Ready:
		return s.Service, nil
	case Failed:
		return nil, fmt.Errorf("%w: %v", ErrNotReady, s.Err)
	case Uninitialized:
		return nil, ErrNotReady
	}
	return nil, ErrNotReady
}

// Usable reports whether reads may be issued now.
func (a *Actor) Usable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.state.(Ready)
	return ok && !a.fetching
}
