package datalake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"datavant-style-exchange/datalake/internal/fhir"
	"datavant-style-exchange/datalake/internal/metrics"
	"datavant-style-exchange/datalake/internal/objectstore"
)

const (
	KindResource = "resource"
	KindBinary   = "binary"
	KindRaw      = "raw"

	rawTimeLayout = "2006-01-02T15:04:05.999999999"
)

var (
	ErrWriteFailed       = errors.New("one or more writes to datalake failed")
	ErrMissingResourceID = errors.New("some resources lacked FHIR ids")
)

// Uploader is the write side of objectstore.Client.
type Uploader interface {
	UploadToDatalake(ctx context.Context, key string, payload []byte, opts ...objectstore.PutOption) (bool, error)
	DatalakeURL(key string) string
}

type PublishedObject struct {
	Kind     string
	TenantID string
	Key      string
	URL      string
}

// Notifier hears about objects after they were written. It is told about
// every successful write of a call, including writes of a batch that failed
// as a whole.
type Notifier interface {
	ObjectsPublished(ctx context.Context, objects []PublishedObject) error
}

type Options struct {
	PoolSize    int
	ItemTimeout time.Duration
	Notifier    Notifier
}

type Publisher struct {
	store  Uploader
	logger *slog.Logger
	opts   Options
	now    func() time.Time
	newID  func() string
}

func NewPublisher(store Uploader, logger *slog.Logger, opts Options) *Publisher {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	return &Publisher{
		store:  store,
		logger: logger,
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

type publishItem struct {
	key      string
	resource fhir.Resource
}

// PublishResources writes each resource to its own object under the
// date-partitioned ehr layout. Resources without an id are skipped; once every
// other write has finished the call fails with ErrMissingResourceID. Any
// failed write fails the call with ErrWriteFailed.
func (p *Publisher) PublishResources(ctx context.Context, tenantID string, resources []fhir.Resource) error {
	p.logger.Info("publishing clinical data to datalake", "root", ehrRoot, "tenant_id", tenantID, "count", len(resources))
	if len(resources) == 0 {
		p.logger.Debug("publishing nothing to datalake because the supplied data is empty", "tenant_id", tenantID)
		return nil
	}

	// One date for the whole call keeps a batch in a single partition.
	date := p.now()
	items := make([]publishItem, 0, len(resources))
	for _, resource := range resources {
		if resource == nil || resource.GetID() == "" {
			resourceType := ""
			if resource != nil {
				resourceType = resource.GetResourceType()
			}
			p.logger.Error("resource lacks a FHIR id and will not be published",
				"tenant_id", tenantID, "resource_type", resourceType)
			continue
		}
		items = append(items, publishItem{
			key:      ResourcePath(tenantID, resource.GetResourceType(), resource.GetID(), date),
			resource: resource,
		})
	}

	if err := p.publishAll(ctx, KindResource, tenantID, items); err != nil {
		return err
	}

	if skipped := len(resources) - len(items); skipped > 0 {
		metrics.PublishBatches.WithLabelValues(KindResource, "incomplete").Inc()
		return fmt.Errorf("%w: did not publish %d of %d resources for tenant %s",
			ErrMissingResourceID, skipped, len(resources), tenantID)
	}
	return nil
}

// PublishBinaries writes each Binary to ehr/Binary/fhir_tenant_id=<tenant>/<id>.json.
func (p *Publisher) PublishBinaries(ctx context.Context, tenantID string, binaries []*fhir.Binary) error {
	items := make([]publishItem, 0, len(binaries))
	for _, binary := range binaries {
		if binary == nil {
			continue
		}
		items = append(items, publishItem{key: BinaryPath(tenantID, binary.ID), resource: binary})
	}
	if len(items) < len(binaries) {
		p.logger.Error("nil Binary in publish request", "tenant_id", tenantID)
	}

	err := p.publishAll(ctx, KindBinary, tenantID, items)
	if err == nil && len(items) < len(binaries) {
		return fmt.Errorf("%w: nil Binary for tenant %s", ErrWriteFailed, tenantID)
	}
	return err
}

type rawDataEnvelope struct {
	URL  string `json:"url"`
	Time string `json:"time"`
	Body string `json:"body"`
}

// PublishRaw stores data as returned by sourceURL under a fresh transaction id
// and returns the display URL of the written object.
func (p *Publisher) PublishRaw(ctx context.Context, tenantID, data, sourceURL string) (string, error) {
	key := RawDataPath(tenantID, p.newID())
	p.logger.Info("publishing raw data to datalake", "root", rawRoot, "tenant_id", tenantID)
	p.logger.Debug("publishing raw data", "key", key)

	payload, err := json.Marshal(rawDataEnvelope{
		URL:  sourceURL,
		Time: p.now().Format(rawTimeLayout),
		Body: data,
	})
	if err != nil {
		return "", err
	}

	ok, putErr := p.store.UploadToDatalake(ctx, key, payload)
	if err := p.finish(ctx, KindRaw, tenantID, []string{key}, []outcome{{ok: ok, err: putErr}}); err != nil {
		return "", err
	}
	return p.store.DatalakeURL(key), nil
}

func (p *Publisher) publishAll(ctx context.Context, kind, tenantID string, items []publishItem) error {
	if len(items) == 0 {
		return nil
	}

	outcomes := runInPool(ctx, p.opts.PoolSize, p.opts.ItemTimeout, items, func(ctx context.Context, item publishItem) (bool, error) {
		p.logger.Debug("publishing to datalake", "key", item.key)
		payload, err := fhir.Marshal(item.resource)
		if err != nil {
			return false, err
		}
		return p.store.UploadToDatalake(ctx, item.key, payload)
	})

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.key
	}
	return p.finish(ctx, kind, tenantID, keys, outcomes)
}

// finish folds per-item outcomes into the call result and notifies about the
// objects that were written.
func (p *Publisher) finish(ctx context.Context, kind, tenantID string, keys []string, outcomes []outcome) error {
	var (
		errs      []error
		failed    int
		published []PublishedObject
	)
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", keys[i], o.err))
		case !o.ok:
			failed++
		default:
			published = append(published, PublishedObject{
				Kind:     kind,
				TenantID: tenantID,
				Key:      keys[i],
				URL:      p.store.DatalakeURL(keys[i]),
			})
		}
	}

	metrics.PublishedObjects.WithLabelValues(kind).Add(float64(len(published)))
	p.notify(ctx, published)

	if len(errs) == 0 && failed == 0 {
		metrics.PublishBatches.WithLabelValues(kind, "ok").Inc()
		return nil
	}

	metrics.PublishBatches.WithLabelValues(kind, "failed").Inc()
	p.logger.Error("datalake publish failed",
		"kind", kind, "tenant_id", tenantID, "attempted", len(outcomes), "rejected", failed, "errors", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("%w for tenant %s: %w", ErrWriteFailed, tenantID, errors.Join(errs...))
	}
	return fmt.Errorf("%w for tenant %s", ErrWriteFailed, tenantID)
}

func (p *Publisher) notify(ctx context.Context, published []PublishedObject) {
	if p.opts.Notifier == nil || len(published) == 0 {
		return
	}
	if err := p.opts.Notifier.ObjectsPublished(ctx, published); err != nil {
		p.logger.Error("failed to record published objects", "error", err, "count", len(published))
	}
}
