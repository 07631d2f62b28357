// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package engine

import "errors"

// Sentinel errors returned by engine implementations. Handlers map them
// to HTTP status codes, so engines must wrap them with %w when adding
// detail.
var (
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks a unique-constraint violation, including
	// duplicate primary keys.
	ErrConflict = errors.New("unique constraint violation")
	// ErrConstraint marks any other constraint violation, such as a
	// missing required value.
	ErrConstraint = errors.New("constraint violation")
	// ErrForeignKey marks a reference to a related record that does
	// not exist.
	ErrForeignKey = errors.New("related record not found")
	// ErrUnknownModel marks an operation on a model the engine was not
	// configured with.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNotConnected marks an operation on a database handle that was
	// never registered or has been closed.
	ErrNotConnected = errors.New("database not connected")
)
