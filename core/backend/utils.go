// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/jsonapi"
	"github.com/crudite-tech/crudite/core/logger"
)

// bytesToEtag returns the Etag of a response body.
func bytesToEtag(b []byte) string {
	return fmt.Sprintf("\"%x\"", md5.Sum(b))
}

// bytesPlusTotalCountToEtag returns the Etag of a collection response.
// The total count is folded in so that changes beyond the page boundary
// invalidate cached pages as well.
func bytesPlusTotalCountToEtag(b []byte, totalCount int64) string {
	return fmt.Sprintf("\"%x-%d\"", md5.Sum(b), totalCount)
}

// ifNoneMatchFound returns true if etag is found in ifNoneMatch. The
// format of ifNoneMatch is one of the following:
// If-None-Match: "<etag_value>"
// If-None-Match: "<etag_value>", "<etag_value>"
// If-None-Match: *
func ifNoneMatchFound(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.Trim(ifNoneMatch, " ")
	if len(ifNoneMatch) == 0 {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, s := range strings.Split(ifNoneMatch, ",") {
		s = strings.Trim(s, " \"")
		t := strings.Trim(etag, " \"")
		if s == t {
			return true
		}
	}
	return false
}

// marshal serializes a response document. A marshalling failure is a
// server fault and answered directly.
func (b *Backend) marshal(ctx context.Context, w http.ResponseWriter, doc any) ([]byte, bool) {
	body, err := json.MarshalWithOption(doc, json.DisableHTMLEscape())
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2302: cannot marshal response document")
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2302"), b.production)
		return nil, false
	}
	return body, true
}

// respond marshals doc and writes it with the JSON:API media type.
func (b *Backend) respond(ctx context.Context, w http.ResponseWriter, status int, doc any) {
	body, ok := b.marshal(ctx, w, doc)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", jsonapi.MediaType)
	w.WriteHeader(status)
	w.Write(body)
}

// respondCached writes body with its Etag, answering 304 Not Modified
// when the client's If-None-Match already covers it. The Etag header
// must be provided also in the 304 case.
func respondCached(w http.ResponseWriter, r *http.Request, etag string, body []byte) {
	w.Header().Set("Etag", etag)
	if ifNoneMatchFound(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", jsonapi.MediaType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// stripEmptyValues drops empty arrays and objects from update
// attributes, the "omit" empty-value policy. Explicit null survives, it
// clears the field.
func stripEmptyValues(attributes engine.Record) {
	for name, value := range attributes {
		switch v := value.(type) {
		case []any:
			if len(v) == 0 {
				delete(attributes, name)
			}
		case map[string]any:
			if len(v) == 0 {
				delete(attributes, name)
			}
		}
	}
}
