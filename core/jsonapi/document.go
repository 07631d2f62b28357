// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package jsonapi carries the wire types of the JSON:API dialect spoken
// by the generated REST endpoints, the transformer that turns storage
// records into resource documents, and the error mapper.
package jsonapi

import (
	"github.com/goccy/go-json"
)

// MediaType is the JSON:API content type. Responses always carry it;
// relationship mutations require it on requests.
const MediaType = "application/vnd.api+json"

// Version is the JSON:API version advertised in the jsonapi member.
const Version = "1.1"

// VersionObject is the top-level jsonapi member.
type VersionObject struct {
	Version string `json:"version"`
}

// ResourceIdentifier is the type/id linkage of one resource.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Links is a JSON:API links object. Pagination members are only set on
// collection documents.
type Links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
	First   string `json:"first,omitempty"`
	Last    string `json:"last,omitempty"`
	Prev    string `json:"prev,omitempty"`
	Next    string `json:"next,omitempty"`
}

// Relationship is the relationship object of one resource. Data is only
// serialized once set, so that relationships that were not loaded do not
// masquerade as empty ones.
type Relationship struct {
	Links   *Links
	Data    any
	dataSet bool
}

// SetData marks the relationship as loaded with the given linkage:
// a ResourceIdentifier, a []ResourceIdentifier, or nil for an empty
// to-one relationship.
func (r *Relationship) SetData(data any) {
	r.Data = data
	r.dataSet = true
}

// MarshalJSON serializes links always and data only when set.
func (r Relationship) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 2)
	if r.Links != nil {
		out["links"] = r.Links
	}
	if r.dataSet {
		out["data"] = r.Data
	}
	return json.Marshal(out)
}

// Resource is one JSON:API resource document.
type Resource struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id"`
	Attributes    map[string]any           `json:"attributes,omitempty"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
	Links         *Links                   `json:"links,omitempty"`
	Meta          map[string]any           `json:"meta,omitempty"`
}

// Identifier returns the resource's linkage.
func (r *Resource) Identifier() ResourceIdentifier {
	return ResourceIdentifier{Type: r.Type, ID: r.ID}
}

// Document is a top-level success document. Data serializes even when
// null; meta and the jsonapi member are always present.
type Document struct {
	Data     any            `json:"data"`
	Included []Resource     `json:"included,omitempty"`
	Links    *Links         `json:"links,omitempty"`
	Meta     map[string]any `json:"meta"`
	JSONAPI  *VersionObject `json:"jsonapi"`
}

// NewDocument creates a success document around the given primary data.
func NewDocument(data any) *Document {
	return &Document{
		Data:    data,
		Meta:    map[string]any{},
		JSONAPI: &VersionObject{Version: Version},
	}
}

// ErrorDocument is a top-level failure document.
type ErrorDocument struct {
	Errors  []*ErrorObject `json:"errors"`
	JSONAPI *VersionObject `json:"jsonapi,omitempty"`
}
