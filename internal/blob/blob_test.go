package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func collect(t *testing.T, ch <-chan Progress) []Progress {
	t.Helper()
	var out []Progress
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func assertMonotonic(t *testing.T, evs []Progress) {
	t.Helper()
	last := -1
	for _, ev := range evs {
		if ev.Percent < 0 || ev.Percent > 100 {
			t.Fatalf("percent out of range: %d", ev.Percent)
		}
		if ev.Percent < last {
			t.Fatalf("percent decreased: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
	}
}

func TestMemoryUploadProgressAndFetch(t *testing.T) {
	m := NewMemoryStore("/blobs")
	m.ChunkSize = 7
	data := bytes.Repeat([]byte("x"), 1000)
	evs := collect(t, m.Upload(context.Background(), "photo.JPG", "image/jpeg", data))
	if len(evs) < 3 {
		t.Fatalf("expected several events, got %d", len(evs))
	}
	assertMonotonic(t, evs)
	last := evs[len(evs)-1]
	if last.Handle == nil || last.Err != nil {
		t.Fatalf("expected terminal handle, got %+v", last)
	}
	for _, ev := range evs[:len(evs)-1] {
		if ev.Done() {
			t.Fatal("only the last event may be terminal")
		}
	}
	if !strings.HasPrefix(last.Handle.DirectURL(), "/blobs/proofs/") || !strings.HasSuffix(last.Handle.Key, ".jpg") {
		t.Fatalf("unexpected handle %+v", last.Handle)
	}
	got, err := last.Handle.Bytes(context.Background())
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("bytes mismatch: %v", err)
	}
}

func TestMemoryUploadEmpty(t *testing.T) {
	m := NewMemoryStore("/blobs")
	_, err := Wait(m.Upload(context.Background(), "a.png", "image/png", nil), nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestUnboundHandle(t *testing.T) {
	if _, err := (Handle{Key: "k"}).Bytes(context.Background()); !errors.Is(err, ErrUnbound) {
		t.Fatalf("expected ErrUnbound, got %v", err)
	}
}

func TestWaitForwardsProgress(t *testing.T) {
	m := NewMemoryStore("")
	m.ChunkSize = 10
	var seen []int
	h, err := Wait(m.Upload(context.Background(), "a", "", bytes.Repeat([]byte("y"), 100)), func(p int) { seen = append(seen, p) })
	if err != nil || h.Key == "" {
		t.Fatalf("wait: %v", err)
	}
	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("expected progress ending at 100, got %v", seen)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	fail    error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("missing")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3StoreUpload(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{}}
	s := &S3Store{client: f, bucket: "proofs", region: "ap-south-1"}
	data := []byte("photo-bytes")
	evs := collect(t, s.Upload(context.Background(), "p.png", "image/png", data))
	assertMonotonic(t, evs)
	last := evs[len(evs)-1]
	if last.Handle == nil {
		t.Fatalf("expected handle, got %+v", last)
	}
	if !strings.HasPrefix(last.Handle.URL, "https://proofs.s3.ap-south-1.amazonaws.com/proofs/") {
		t.Fatalf("unexpected url %s", last.Handle.URL)
	}
	got, err := last.Handle.Bytes(context.Background())
	if err != nil || string(got) != "photo-bytes" {
		t.Fatalf("get: %q %v", got, err)
	}
}

func TestS3StoreUploadFailure(t *testing.T) {
	s := &S3Store{client: &fakeS3{fail: errors.New("denied")}, bucket: "b", region: "r"}
	evs := collect(t, s.Upload(context.Background(), "p.png", "image/png", []byte("z")))
	if last := evs[len(evs)-1]; last.Err == nil {
		t.Fatalf("expected error event, got %+v", last)
	}
}
