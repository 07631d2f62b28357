// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package jsonapi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/query"
)

func TestFromErrorClassification(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{engine.ErrNotFound, 404, "not_found"},
		{fmt.Errorf("Article 7: %w", engine.ErrNotFound), 404, "not_found"},
		{engine.ErrConflict, 409, "conflict"},
		{engine.ErrConstraint, 422, "unprocessable"},
		{engine.ErrForeignKey, 422, "unprocessable"},
		{&query.ParseError{Parameter: "page[size]", Message: "missing"}, 400, "validation_failed"},
		{Gone("deleted"), 410, "gone"},
		{fmt.Errorf("wrapped: %w", Conflict("already active")), 409, "conflict"},
		{fmt.Errorf("boom"), 500, "internal"},
		{engine.ErrNotConnected, 500, "internal"},
	}
	for _, c := range cases {
		structured := FromError(c.err)
		assert.Equal(t, c.status, structured.StatusCode, "error %v", c.err)
		assert.Equal(t, c.code, structured.Code, "error %v", c.err)
	}
}

func TestFromErrorKeepsParameterSource(t *testing.T) {
	structured := FromError(&query.ParseError{Parameter: "filter[views]", Message: "expected an integer"})
	require.NotNil(t, structured.Source)
	assert.Equal(t, "filter[views]", structured.Source.Parameter)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), w, NotFound("Article 9"), false)

	assert.Equal(t, 404, w.Code)
	assert.Equal(t, MediaType, w.Header().Get("Content-Type"))

	var doc ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "not_found", doc.Errors[0].Code)
	assert.Equal(t, "404", doc.Errors[0].Status)
	assert.Equal(t, "Article 9", doc.Errors[0].Detail)
}

func TestWriteErrorProductionSanitizesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), w, fmt.Errorf("pq: secret table missing"), true)

	var doc ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, 500, w.Code)
	assert.Empty(t, doc.Errors[0].Detail, "internal detail must not leak in production")

	// client errors keep their detail even in production
	w = httptest.NewRecorder()
	WriteError(context.Background(), w, BadRequest("missing data member"), true)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "missing data member", doc.Errors[0].Detail)
}
