// Package upload runs proof of delivery uploads: select a file, stream it to
// blob storage, then attach the stored handle to an order.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/observability"
)

type State int

const (
	Idle State = iota
	Selected
	Uploading
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case Uploading:
		return "uploading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrBusy   = errors.New("upload: an upload is already in progress")
	ErrNoFile = errors.New("upload: no file selected")

	errUnchanged = errors.New("unchanged")
)

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Snapshot is a point-in-time view of a workflow.
type Snapshot struct {
	State    State
	FileName string
	Progress int
	Err      error
	Handle   *blob.Handle
}

// Uploader streams a file to storage.
type Uploader func(ctx context.Context, name, contentType string, data []byte) <-chan blob.Progress

// Attacher links a stored handle to its order.
type Attacher func(ctx context.Context, h blob.Handle) error

// Workflow holds one file selection and at most one active upload of it.
type Workflow struct {
	mu       sync.Mutex
	state    State
	file     *File
	progress int
	err      error
	handle   *blob.Handle
	onChange func(Snapshot)
}

func NewWorkflow(onChange func(Snapshot)) *Workflow {
	return &Workflow{onChange: onChange}
}

func (w *Workflow) snapshot() Snapshot {
	s := Snapshot{State: w.state, Progress: w.progress, Err: w.err, Handle: w.handle}
	if w.file != nil {
		s.FileName = w.file.Name
	}
	return s
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

// update applies fn under the lock and, if it succeeds, reports the
// resulting snapshot.
func (w *Workflow) update(fn func() error) error {
	w.mu.Lock()
	if err := fn(); err != nil {
		w.mu.Unlock()
		return err
	}
	s := w.snapshot()
	w.mu.Unlock()
	if w.onChange != nil {
		w.onChange(s)
	}
	return nil
}

// Select replaces the selected file. It is refused while uploading.
func (w *Workflow) Select(f File) error {
	if len(f.Data) == 0 {
		return blob.ErrEmpty
	}
	return w.update(func() error {
		if w.state == Uploading {
			return ErrBusy
		}
		w.file = &f
		w.state = Selected
		w.progress = 0
		w.err = nil
		w.handle = nil
		return nil
	})
}

// begin moves the workflow into Uploading and returns the file to send.
func (w *Workflow) begin() (File, error) {
	var f File
	err := w.update(func() error {
		switch {
		case w.state == Uploading:
			return ErrBusy
		case w.file == nil:
			return ErrNoFile
		}
		f = *w.file
		w.state = Uploading
		w.progress = 0
		w.err = nil
		return nil
	})
	return f, err
}

// Run uploads the selected file and attaches the result, blocking until
// both finish. Observed progress never decreases and stays in [0, 100].
func (w *Workflow) Run(ctx context.Context, upload Uploader, attach Attacher) error {
	f, err := w.begin()
	if err != nil {
		return err
	}
	return w.run(ctx, f, upload, attach)
}

// Start is Run in the background. The returned channel yields Run's error.
func (w *Workflow) Start(ctx context.Context, upload Uploader, attach Attacher) (<-chan error, error) {
	f, err := w.begin()
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- w.run(context.WithoutCancel(ctx), f, upload, attach) }()
	return done, nil
}

func (w *Workflow) run(ctx context.Context, f File, upload Uploader, attach Attacher) error {
	observability.UploadBytes.Observe(float64(len(f.Data)))
	h, err := blob.Wait(upload(ctx, f.Name, f.ContentType, f.Data), w.advance)
	if err == nil {
		err = attach(ctx, h)
	}
	if err != nil {
		observability.UploadsTotal.WithLabelValues("failed").Inc()
		_ = w.update(func() error {
			w.state = Failed
			w.progress = 0
			w.err = err
			return nil
		})
		return err
	}
	observability.UploadsTotal.WithLabelValues("succeeded").Inc()
	_ = w.update(func() error {
		w.state = Succeeded
		w.file = nil
		w.progress = 0
		w.handle = &h
		return nil
	})
	return nil
}

func (w *Workflow) advance(pct int) {
	pct = min(max(pct, 0), 100)
	_ = w.update(func() error {
		if w.state != Uploading || pct <= w.progress {
			return errUnchanged
		}
		w.progress = pct
		return nil
	})
}
