// Package fhir holds the small slice of the FHIR R4 model the datalake needs:
// enough to read a resource's type and id, and a typed Binary.
package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
)

const ResourceTypeBinary = "Binary"

var ErrMissingResourceType = errors.New("missing resourceType")

// Resource is anything publishable to the datalake.
type Resource interface {
	GetResourceType() string
	GetID() string
}

type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Source      string   `json:"source,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Binary struct {
	ResourceType    string     `json:"resourceType"`
	ID              string     `json:"id,omitempty"`
	Meta            *Meta      `json:"meta,omitempty"`
	ContentType     string     `json:"contentType"`
	SecurityContext *Reference `json:"securityContext,omitempty"`
	Data            string     `json:"data,omitempty"`
}

func NewBinary(id, contentType, data string) *Binary {
	return &Binary{
		ResourceType: ResourceTypeBinary,
		ID:           id,
		ContentType:  contentType,
		Data:         data,
	}
}

// The getters are safe on a nil receiver; a nil resource has no id.

func (b *Binary) GetResourceType() string { return ResourceTypeBinary }

func (b *Binary) GetID() string {
	if b == nil {
		return ""
	}
	return b.ID
}

func (b *Binary) MarshalJSON() ([]byte, error) {
	type alias Binary
	out := alias(*b)
	out.ResourceType = ResourceTypeBinary
	return json.Marshal(out)
}

// RawResource is a resource of any type kept as the JSON it arrived as, so
// fields this package does not model survive publishing untouched.
type RawResource struct {
	ResourceType string
	ID           string
	raw          json.RawMessage
}

func (r *RawResource) GetResourceType() string {
	if r == nil {
		return ""
	}
	return r.ResourceType
}

func (r *RawResource) GetID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *RawResource) UnmarshalJSON(data []byte) error {
	var head struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.ResourceType == "" {
		return ErrMissingResourceType
	}
	r.ResourceType = head.ResourceType
	r.ID = head.ID
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r *RawResource) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	return json.Marshal(struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id,omitempty"`
	}{r.ResourceType, r.ID})
}

// Marshal serializes a resource the way it is stored in the datalake.
func Marshal(r Resource) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize %s/%s: %w", r.GetResourceType(), r.GetID(), err)
	}
	return data, nil
}

func UnmarshalBinary(data []byte) (*Binary, error) {
	var binary Binary
	if err := json.Unmarshal(data, &binary); err != nil {
		return nil, fmt.Errorf("parse Binary: %w", err)
	}
	return &binary, nil
}
