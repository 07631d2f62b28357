// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package query

import (
	"encoding/base64"
	"strconv"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// Cursors are the primary-key value of the last record on a page,
// base64url-encoded. Clients must treat them as opaque; the engine
// resumes iteration strictly after the referenced record.

// EncodeCursor renders a primary-key value as an opaque page cursor.
func EncodeCursor(key any) string {
	return base64.RawURLEncoding.EncodeToString([]byte(engine.FormatKey(key)))
}

// DecodeCursor parses an opaque page cursor back into a primary-key
// value of the given kind.
func DecodeCursor(cursor string, kind model.KeyKind) (any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, &ParseError{Parameter: "page[cursor]", Message: "invalid cursor"}
	}
	switch kind {
	case model.KeyKindInteger:
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, &ParseError{Parameter: "page[cursor]", Message: "invalid cursor"}
		}
		return n, nil
	default:
		return string(raw), nil
	}
}
