// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package jsonapi

import (
	"github.com/goccy/go-json"
)

// atomic-operations verbs
const (
	AtomicAdd    = "add"
	AtomicUpdate = "update"
	AtomicRemove = "remove"
)

// AtomicRequest is the request body of the batch endpoint: an ordered
// list of operations executed inside one transaction.
type AtomicRequest struct {
	Operations []AtomicOperation `json:"atomic:operations"`
}

// AtomicOperation is one entry of an atomic batch. Data stays raw until
// the executor knows which model the operation addresses.
type AtomicOperation struct {
	Op   string          `json:"op"`
	Ref  *AtomicRef      `json:"ref,omitempty"`
	Href string          `json:"href,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AtomicRef addresses the target of an operation. A set Relationship
// turns a remove into a relation disconnect instead of a record delete.
type AtomicRef struct {
	Type         string `json:"type"`
	ID           string `json:"id,omitempty"`
	Lid          string `json:"lid,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// AtomicResultsDocument is the response of a successful batch: one entry
// per operation in order, null for removes.
type AtomicResultsDocument struct {
	Results []*Resource    `json:"atomic:results"`
	JSONAPI *VersionObject `json:"jsonapi"`
}
