// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/crudite-tech/crudite/core/jsonapi"
	"github.com/crudite-tech/crudite/core/model"
)

// keyParser parses the primary-key segment of a request path into its
// typed engine value.
type keyParser func(raw string) (any, error)

// newKeyParser selects the parser for a key kind. UUID keys get a
// strict format validator. Everything else goes through the heuristic
// parser, which classifies keys by shape rather than by the declared
// column type.
func newKeyParser(kind model.KeyKind) keyParser {
	if kind == model.KeyKindUUID {
		return parseUUIDKey
	}
	return parseKey
}

func parseUUIDKey(raw string) (any, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return nil, jsonapi.BadRequest(fmt.Sprintf("invalid id %q, expected a UUID", raw))
	}
	return u.String(), nil
}

var opaqueKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// parseKey classifies a key by shape: a strict UUID stays a canonical
// UUID string, a pure digit run becomes an integer, and any other run
// of letters, digits, hyphens and underscores passes through as an
// opaque string.
func parseKey(raw string) (any, error) {
	if u, err := uuid.Parse(raw); err == nil {
		return u.String(), nil
	}
	if isDigits(raw) {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
	}
	if opaqueKeyPattern.MatchString(raw) {
		return raw, nil
	}
	return nil, jsonapi.BadRequest(fmt.Sprintf("invalid id %q", raw))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// requireMediaType enforces the JSON:API content type, required on all
// mutating relationship requests.
func requireMediaType(r *http.Request) error {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != jsonapi.MediaType {
		return jsonapi.UnsupportedMediaType(fmt.Sprintf("request requires Content-Type %s", jsonapi.MediaType))
	}
	return nil
}

// readData reads the request body and extracts the mandatory data
// member. A body without a data key is rejected; an explicit null data
// member is returned as the raw token "null".
func readData(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, jsonapi.BadRequest("cannot read request body")
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, jsonapi.BadRequest("invalid JSON in request body")
	}
	raw, ok := doc["data"]
	if !ok {
		return nil, jsonapi.BadRequestPointer("/data", "missing data member")
	}
	return raw, nil
}

// resourcePayload is the decoded data member of a create or update
// request. ID stays a pointer so an absent id can be told apart from an
// empty one.
type resourcePayload struct {
	Type          string                     `json:"type"`
	ID            *string                    `json:"id"`
	Lid           string                     `json:"lid"`
	Attributes    map[string]any             `json:"attributes"`
	Relationships map[string]json.RawMessage `json:"relationships"`
}

func decodeResourcePayload(raw json.RawMessage) (*resourcePayload, error) {
	if isNullToken(raw) {
		return nil, jsonapi.BadRequestPointer("/data", "expected a resource object")
	}
	var payload resourcePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, jsonapi.BadRequestPointer("/data", "invalid resource object")
	}
	return &payload, nil
}

func isNullToken(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// matchesType checks a payload type leniently: the registered resource
// type matches, and so does anything that resolves to the same model
// through the registry or the naming fallback.
func (b *Backend) matchesType(d *model.Descriptor, typeName string) bool {
	if typeName == d.Type {
		return true
	}
	return b.registry.ModelForType(typeName) == d.Name
}
