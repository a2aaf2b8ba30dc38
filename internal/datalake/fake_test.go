package datalake

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"datavant-style-exchange/datalake/internal/objectstore"
)

const testURLPrefix = "https://objectstorage.us-phoenix-1.oraclecloud.com/n/namespace/b/datalakebucket/o/"

type fakeUploader struct {
	mu sync.Mutex

	writes map[string][]byte
	order  []string
	reject map[string]bool
	errs   map[string]error
	block  map[string]bool

	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		writes: map[string][]byte{},
		reject: map[string]bool{},
		errs:   map[string]error{},
		block:  map[string]bool{},
	}
}

func (f *fakeUploader) UploadToDatalake(ctx context.Context, key string, payload []byte, _ ...objectstore.PutOption) (bool, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	blocked := f.block[key]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if blocked {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, key)
	if err := f.errs[key]; err != nil {
		return false, err
	}
	if f.reject[key] {
		return false, nil
	}
	f.writes[key] = payload
	return true, nil
}

func (f *fakeUploader) DatalakeURL(key string) string {
	return testURLPrefix + key
}

func (f *fakeUploader) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	objects []PublishedObject
	err     error
}

func (n *recordingNotifier) ObjectsPublished(_ context.Context, objects []PublishedObject) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.objects = append(n.objects, objects...)
	return n.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPublisher(store Uploader, opts Options) *Publisher {
	p := NewPublisher(store, testLogger(), opts)
	p.now = func() time.Time {
		return time.Date(1990, time.January, 3, 10, 30, 0, 0, time.UTC)
	}
	p.newID = func() string {
		return "0d6a2b6e-0f58-4c3b-9a55-0b3b1d1a7b7e"
	}
	return p
}
