// Package blob holds opaque references to uploaded binary objects (proof of
// delivery photos) and the stores that upload and resolve them.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnbound  = errors.New("blob: handle is not bound to a store")
	ErrNotFound = errors.New("blob: not found")
	ErrEmpty    = errors.New("blob: empty upload")
)

// Handle is an opaque reference to a stored object. Only Key, URL and
// ContentType travel over the wire; byte access needs a handle returned by
// (or re-bound through) a Store.
type Handle struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`

	fetch func(ctx context.Context, key string) ([]byte, error)
}

// DirectURL returns a URL the object can be fetched from directly.
func (h Handle) DirectURL() string { return h.URL }

// Bytes fetches the object's content.
func (h Handle) Bytes(ctx context.Context) ([]byte, error) {
	if h.fetch == nil {
		return nil, ErrUnbound
	}
	return h.fetch(ctx, h.Key)
}

// Progress is one event of an upload. Exactly one terminal event (Handle or
// Err set) ends every upload stream.
type Progress struct {
	Percent int
	Handle  *Handle
	Err     error
}

func (p Progress) Done() bool { return p.Handle != nil || p.Err != nil }

// Store uploads and resolves objects.
type Store interface {
	// Upload streams progress events and closes the channel after the
	// terminal event.
	Upload(ctx context.Context, name, contentType string, data []byte) <-chan Progress
	Get(ctx context.Context, key string) ([]byte, error)
	// Bind attaches byte access to a handle decoded from the wire.
	Bind(h Handle) Handle
}

// Wait drains an upload stream, forwarding intermediate percentages.
func Wait(events <-chan Progress, onProgress func(int)) (Handle, error) {
	for ev := range events {
		if ev.Err != nil {
			return Handle{}, ev.Err
		}
		if onProgress != nil {
			onProgress(ev.Percent)
		}
		if ev.Handle != nil {
			return *ev.Handle, nil
		}
	}
	return Handle{}, errors.New("blob: upload stream ended without result")
}

// newKey derives a unique object key keeping the original extension.
func newKey(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) > 8 || strings.ContainsAny(ext, " ?#&/") {
		ext = ""
	}
	return "proofs/" + uuid.NewString() + ext
}

// events is sized so that emitting never blocks: percentages are strictly
// increasing in [0,100] plus one terminal event.
func newEvents() chan Progress { return make(chan Progress, 102) }

// progressReader reports monotonically increasing percentages of bytes read.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	emit  func(int)
}

func newProgressReader(r io.Reader, total int64, emit func(int)) *progressReader {
	return &progressReader{r: r, total: total, last: -1, emit: emit}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report()
	}
	return n, err
}

func (p *progressReader) start() { p.report() }

func (p *progressReader) report() {
	pct := 100
	if p.total > 0 {
		pct = int(p.read * 100 / p.total)
	}
	if pct > 100 {
		pct = 100
	}
	if pct > p.last {
		p.last = pct
		p.emit(pct)
	}
}
