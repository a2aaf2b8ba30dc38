package objectstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

type putCall struct {
	bucket string
	key    string
	body   []byte
}

// fakeBackend scripts responses per call. putErrs is consumed one entry per
// PutObject call; once exhausted every put answers putStatus.
type fakeBackend struct {
	mu sync.Mutex

	putErrs   []error
	putStatus int
	puts      []putCall

	objects  map[string][]byte
	nilBody  bool
	getErr   error
	getCalls int

	headStatus int
	headErr    error
	headCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		putStatus:  http.StatusOK,
		headStatus: http.StatusOK,
		objects:    map[string][]byte{},
	}
}

func (f *fakeBackend) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64) (int, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{bucket: bucket, key: key, body: data})
	if len(f.putErrs) > 0 {
		next := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if next != nil {
			return 0, next
		}
	}
	f.objects[bucket+"/"+key] = data
	return f.putStatus, nil
}

func (f *fakeBackend) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.nilBody {
		return nil, nil
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, &StatusError{StatusCode: http.StatusNotFound, Code: "NoSuchKey", Message: "not found"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBackend) HeadObject(_ context.Context, _, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.headStatus, nil
}

func (f *fakeBackend) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Namespace:      "namespace",
		Region:         "us-phoenix-1",
		Domain:         "oraclecloud.com",
		DatalakeBucket: "datalakebucket",
	}
}

func newTestClient(backend Backend) *Client {
	client := NewClient(testConfig(), testLogger(), func() (Backend, error) {
		return backend, nil
	})
	client.retryDelay = 0
	return client
}
