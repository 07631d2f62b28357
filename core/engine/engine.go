// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package engine defines the storage contract of the generated REST
// backend. Handlers build option structs from validated query input and
// hand them to an engine; engines translate them to their native storage
// operations. Implementations live in the memory and sqldb sub-packages.
package engine

import (
	"context"
	"fmt"
	"strconv"
)

// Record is one stored row, keyed by field name. Values use the engine
// representation: int64, float64, bool, string, time.Time or nil. To-one
// relation values loaded through Include appear as Record, to-many values
// as []Record.
type Record = map[string]any

// Op is a predicate operator.
type Op string

// all supported predicate operators
const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpContains Op = "contains"
	OpIn       Op = "in"
	OpNull     Op = "null"
	OpNotNull  Op = "notnull"
)

// Condition is one field predicate. Conditions of a Where combine
// conjunctively.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Where is a conjunctive list of conditions.
type Where []Condition

// And returns a copy of w extended by the given condition.
func (w Where) And(field string, op Op, value any) Where {
	out := make(Where, len(w), len(w)+1)
	copy(out, w)
	return append(out, Condition{Field: field, Op: op, Value: value})
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Include selects relations to load with a query, keyed by relation
// name. A nil value loads the relation without nested includes.
type Include map[string]Include

// FindManyOptions parameterizes a list query.
type FindManyOptions struct {
	Where Where
	Order []Order
	// Skip and Take implement offset pagination.
	Skip int
	Take int
	// After positions the page strictly behind the record with this
	// primary-key value. Cursor and offset positioning are mutually
	// exclusive.
	After   any
	Include Include
}

// FindOptions parameterizes a single-record search.
type FindOptions struct {
	Where   Where
	Include Include
}

// CountOptions parameterizes a count. It carries the predicate of the
// matching list query with all pagination stripped.
type CountOptions struct {
	Where Where
}

// RelationOp mutates one relation as part of Create or Update.
type RelationOp struct {
	// Connect links existing target records by primary key.
	Connect []any
	// Create inserts new target records and links them.
	Create []Record
	// Set replaces the full target set of a to-many relation. A non-nil
	// empty slice clears it.
	Set *[]any
	// Disconnect unlinks the given target records.
	Disconnect []any
	// Clear unlinks a to-one relation.
	Clear bool
}

// Data carries the writable portion of a Create or Update.
type Data struct {
	Attributes Record
	Relations  map[string]RelationOp
}

// ModelClient executes storage operations for one model.
type ModelClient interface {
	FindMany(ctx context.Context, opts FindManyOptions) ([]Record, error)
	Count(ctx context.Context, opts CountOptions) (int64, error)
	// FindUnique fetches the single record matching the unique selector,
	// or ErrNotFound.
	FindUnique(ctx context.Context, where Where) (Record, error)
	// FindFirst fetches the first record matching the predicate, or
	// ErrNotFound.
	FindFirst(ctx context.Context, opts FindOptions) (Record, error)
	Create(ctx context.Context, data Data) (Record, error)
	Update(ctx context.Context, where Where, data Data) (Record, error)
	Delete(ctx context.Context, where Where) (Record, error)
}

// Client is a connected storage engine.
type Client interface {
	// Model returns the client for the named model. Unknown models yield
	// a client whose operations fail with ErrUnknownModel.
	Model(name string) ModelClient
	// Tx runs fn inside a transaction. An error returned by fn rolls
	// back every operation made through the transactional client.
	Tx(ctx context.Context, fn func(tx Client) error) error
	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// FormatKey renders a primary-key value canonically, for document IDs
// and cursor payloads.
func FormatKey(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case int64:
		return strconv.FormatInt(k, 10)
	case int:
		return strconv.Itoa(k)
	case float64:
		return strconv.FormatInt(int64(k), 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", k)
	}
}
