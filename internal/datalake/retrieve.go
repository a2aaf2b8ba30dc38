package datalake

import (
	"context"
	"errors"

	"datavant-style-exchange/datalake/internal/fhir"
)

// Reader is the read side of objectstore.Client.
type Reader interface {
	GetURL(ctx context.Context, rawURL string) ([]byte, error)
	GetDatalakeObject(ctx context.Context, key string) ([]byte, error)
	ExistsURL(ctx context.Context, rawURL string) (bool, error)
	DatalakeObjectExists(ctx context.Context, key string) (bool, error)
	GetReferenceObject(ctx context.Context, name string) ([]byte, error)
}

var ErrEmptyReferenceName = errors.New("empty reference name")

type Retriever struct {
	store Reader
}

func NewRetriever(store Reader) *Retriever {
	return &Retriever{store: store}
}

// RetrieveBinaries fetches the Binary stored at each URL. URLs with no object
// behind them are left out of the result. A stored object that does not parse
// as a Binary fails the call.
func (r *Retriever) RetrieveBinaries(ctx context.Context, urls []string) (map[string]*fhir.Binary, error) {
	found := make(map[string]*fhir.Binary, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		binary, err := r.RetrieveBinary(ctx, url)
		if err != nil {
			return nil, err
		}
		if binary != nil {
			found[url] = binary
		}
	}
	return found, nil
}

func (r *Retriever) RetrieveBinary(ctx context.Context, url string) (*fhir.Binary, error) {
	data, err := r.store.GetURL(ctx, url)
	if err != nil || data == nil {
		return nil, err
	}
	return fhir.UnmarshalBinary(data)
}

func (r *Retriever) RetrieveBinaryByID(ctx context.Context, tenantID, resourceID string) (*fhir.Binary, error) {
	data, err := r.store.GetDatalakeObject(ctx, BinaryPath(tenantID, resourceID))
	if err != nil || data == nil {
		return nil, err
	}
	return fhir.UnmarshalBinary(data)
}

func (r *Retriever) ObjectExists(ctx context.Context, url string) (bool, error) {
	return r.store.ExistsURL(ctx, url)
}

func (r *Retriever) BinaryExists(ctx context.Context, tenantID, resourceID string) (bool, error) {
	return r.store.DatalakeObjectExists(ctx, BinaryPath(tenantID, resourceID))
}

// RetrieveReference returns the shared reference document (a concept map or
// value set) stored under name, or nil when there is none. Reference data is
// not tenant scoped.
func (r *Retriever) RetrieveReference(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyReferenceName
	}
	return r.store.GetReferenceObject(ctx, name)
}
