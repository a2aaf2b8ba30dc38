package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"datavant-style-exchange/datalake/internal/metrics"
)

const (
	// The backend SDK already retries internally; this covers only the
	// client side failures it surfaces instead of retrying.
	clientFailureRetryDelay = 5 * time.Second

	DefaultReferenceBucket = "infx-shared"
)

type Config struct {
	Namespace       string
	Region          string
	Domain          string
	DatalakeBucket  string
	ReferenceBucket string
}

// Client is the single point of contact with the object store. The shared
// backend is built on first use and reused by every caller.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	newBackend func() (Backend, error)
	retryDelay time.Duration

	mu     sync.Mutex
	shared Backend
}

func NewClient(cfg Config, logger *slog.Logger, newBackend func() (Backend, error)) *Client {
	if cfg.ReferenceBucket == "" {
		cfg.ReferenceBucket = DefaultReferenceBucket
	}
	return &Client{
		cfg:        cfg,
		logger:     logger,
		newBackend: newBackend,
		retryDelay: clientFailureRetryDelay,
	}
}

type putOptions struct {
	backend Backend
}

type PutOption func(*putOptions)

// WithBackend sends a single put through b instead of the shared backend.
func WithBackend(b Backend) PutOption {
	return func(o *putOptions) {
		o.backend = b
	}
}

func (c *Client) sharedBackend() (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shared != nil {
		return c.shared, nil
	}
	backend, err := c.newBackend()
	if err != nil {
		return nil, fmt.Errorf("build object storage backend: %w", err)
	}
	c.shared = backend
	return backend, nil
}

func (c *Client) UploadToDatalake(ctx context.Context, key string, payload []byte, opts ...PutOption) (bool, error) {
	return c.Put(ctx, c.cfg.DatalakeBucket, key, payload, opts...)
}

// Put writes payload to bucket/key and reports whether the store accepted it.
func (c *Client) Put(ctx context.Context, bucket, key string, payload []byte, opts ...PutOption) (bool, error) {
	return c.PutReader(ctx, bucket, key, bytes.NewReader(payload), opts...)
}

// PutReader writes the contents of body to bucket/key. It returns true when
// the store answers 200-202. A client side failure is retried once after a
// fixed delay and an error from that retry is returned as is. Any other
// rejection from the store is logged and reported as false.
func (c *Client) PutReader(ctx context.Context, bucket, key string, body io.ReadSeeker, opts ...PutOption) (bool, error) {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	backend := o.backend
	if backend == nil {
		shared, err := c.sharedBackend()
		if err != nil {
			return false, err
		}
		backend = shared
	}

	size, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return false, err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return false, err
	}

	status, err := backend.PutObject(ctx, bucket, key, body, size)
	if err != nil {
		switch Classify(err) {
		case ClassTransient:
			metrics.StorageRetries.Inc()
			c.logger.Warn("client side failure uploading to object storage, retrying",
				"error", err, "bucket", bucket, "key", key, "delay", c.retryDelay)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return false, err
			}
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return false, err
			}
			status, err = backend.PutObject(ctx, bucket, key, body, size)
			if err != nil {
				metrics.StorageRequests.WithLabelValues("put", "error").Inc()
				return false, err
			}
		case ClassUnknown:
			metrics.StorageRequests.WithLabelValues("put", "error").Inc()
			return false, err
		default:
			metrics.StorageRequests.WithLabelValues("put", "rejected").Inc()
			c.logger.Error("error while uploading to object storage",
				"error", err, "status", statusOf(err), "bucket", bucket, "key", key)
			return false, nil
		}
	}

	ok := status >= http.StatusOK && status <= http.StatusAccepted
	if ok {
		metrics.StorageRequests.WithLabelValues("put", "ok").Inc()
	} else {
		metrics.StorageRequests.WithLabelValues("put", "rejected").Inc()
	}
	return ok, nil
}

// Get returns the body of bucket/key, or nil when the object does not exist.
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	backend, err := c.sharedBackend()
	if err != nil {
		return nil, err
	}

	body, err := backend.GetObject(ctx, bucket, key)
	if err != nil {
		if Classify(err) == ClassNotFound {
			metrics.StorageRequests.WithLabelValues("get", "not_found").Inc()
			return nil, nil
		}
		metrics.StorageRequests.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	if body == nil {
		metrics.StorageRequests.WithLabelValues("get", "empty").Inc()
		return nil, nil
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		metrics.StorageRequests.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	metrics.StorageRequests.WithLabelValues("get", "ok").Inc()
	return data, nil
}

func (c *Client) GetDatalakeObject(ctx context.Context, key string) ([]byte, error) {
	return c.Get(ctx, c.cfg.DatalakeBucket, key)
}

// GetReferenceObject reads name from the shared reference bucket that holds
// concept maps and value sets.
func (c *Client) GetReferenceObject(ctx context.Context, name string) ([]byte, error) {
	return c.Get(ctx, c.cfg.ReferenceBucket, name)
}

// GetURL fetches the object addressed by an object storage URL. A URL that
// cannot be parsed is treated as a missing object.
func (c *Client) GetURL(ctx context.Context, rawURL string) ([]byte, error) {
	loc, err := ParseURL(rawURL)
	if err != nil {
		c.logger.Debug("ignoring unparseable object storage url", "url", rawURL, "error", err)
		return nil, nil
	}
	return c.Get(ctx, loc.Bucket, loc.Key)
}

// Exists reports whether a head on bucket/key answers exactly 200. A missing
// object is false; every other failure is returned.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	backend, err := c.sharedBackend()
	if err != nil {
		return false, err
	}

	status, err := backend.HeadObject(ctx, bucket, key)
	if err != nil {
		if Classify(err) == ClassNotFound {
			metrics.StorageRequests.WithLabelValues("head", "not_found").Inc()
			return false, nil
		}
		metrics.StorageRequests.WithLabelValues("head", "error").Inc()
		return false, fmt.Errorf("head object %s/%s: %w", bucket, key, err)
	}
	metrics.StorageRequests.WithLabelValues("head", "ok").Inc()
	return status == http.StatusOK, nil
}

func (c *Client) DatalakeObjectExists(ctx context.Context, key string) (bool, error) {
	return c.Exists(ctx, c.cfg.DatalakeBucket, key)
}

func (c *Client) ExistsURL(ctx context.Context, rawURL string) (bool, error) {
	loc, err := ParseURL(rawURL)
	if err != nil {
		if errors.Is(err, ErrMalformedURL) {
			return false, nil
		}
		return false, err
	}
	return c.Exists(ctx, loc.Bucket, loc.Key)
}

// DatalakeURL is the display URL of key in the datalake bucket. No call is made.
func (c *Client) DatalakeURL(key string) string {
	return ObjectURL(c.cfg.Region, c.cfg.Domain, c.cfg.Namespace, c.cfg.DatalakeBucket, key)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
