// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package jsonapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/logger"
	"github.com/crudite-tech/crudite/core/query"
)

// ErrorSource points at the offending part of a request.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ErrorObject is one serialized error.
type ErrorObject struct {
	Code   string       `json:"code"`
	Status string       `json:"status"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// Error is a structured request error with a stable machine-readable
// code. Handlers and hooks can return it directly; everything else is
// classified by FromError.
type Error struct {
	StatusCode int
	Code       string
	Title      string
	Detail     string
	Source     *ErrorSource
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// BadRequest creates a 400 validation error.
func BadRequest(detail string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "validation_failed",
		Title: "Bad Request", Detail: detail}
}

// BadRequestParameter creates a 400 validation error naming the query
// parameter that caused it.
func BadRequestParameter(parameter, detail string) *Error {
	err := BadRequest(detail)
	err.Source = &ErrorSource{Parameter: parameter}
	return err
}

// BadRequestPointer creates a 400 validation error naming the document
// member that caused it.
func BadRequestPointer(pointer, detail string) *Error {
	err := BadRequest(detail)
	err.Source = &ErrorSource{Pointer: pointer}
	return err
}

// NotFound creates a 404 error.
func NotFound(detail string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Code: "not_found",
		Title: "Not Found", Detail: detail}
}

// Gone creates a 410 error for soft-deleted records.
func Gone(detail string) *Error {
	return &Error{StatusCode: http.StatusGone, Code: "gone",
		Title: "Gone", Detail: detail}
}

// Conflict creates a 409 error.
func Conflict(detail string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: "conflict",
		Title: "Conflict", Detail: detail}
}

// Unprocessable creates a 422 error, used for relationship resolution
// and constraint failures.
func Unprocessable(detail string) *Error {
	return &Error{StatusCode: http.StatusUnprocessableEntity, Code: "unprocessable",
		Title: "Unprocessable Entity", Detail: detail}
}

// UnsupportedMediaType creates a 415 error.
func UnsupportedMediaType(detail string) *Error {
	return &Error{StatusCode: http.StatusUnsupportedMediaType, Code: "unsupported_media_type",
		Title: "Unsupported Media Type", Detail: detail}
}

// Internal creates a 500 error carrying a stable marker that can be
// grepped in the logs.
func Internal(marker string) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: "internal",
		Title: "Internal Server Error", Detail: marker}
}

// FromError classifies any error into a structured one. Structured
// errors pass through, query parse errors become 400 with a parameter
// source, engine sentinels map to their statuses, and everything else
// is internal.
func FromError(err error) *Error {
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	var parseErr *query.ParseError
	if errors.As(err, &parseErr) {
		return BadRequestParameter(parseErr.Parameter, parseErr.Message)
	}
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return NotFound(err.Error())
	case errors.Is(err, engine.ErrConflict):
		return Conflict(err.Error())
	case errors.Is(err, engine.ErrConstraint), errors.Is(err, engine.ErrForeignKey):
		return Unprocessable(err.Error())
	default:
		internal := Internal("")
		internal.Detail = err.Error()
		return internal
	}
}

// object renders the error for the wire. In production mode the detail
// of server errors is reduced to the marker-free title so internal error
// text never leaks.
func (e *Error) object(production bool) *ErrorObject {
	out := &ErrorObject{
		Code:   e.Code,
		Status: strconv.Itoa(e.StatusCode),
		Title:  e.Title,
		Detail: e.Detail,
		Source: e.Source,
	}
	if production && e.StatusCode >= 500 {
		out.Detail = ""
		out.Source = nil
	}
	return out
}

// Write serializes a success document with the JSON:API media type.
func Write(w http.ResponseWriter, status int, doc any) error {
	body, err := json.MarshalWithOption(doc, json.DisableHTMLEscape())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// WriteError classifies err, logs it and writes the JSON:API error
// document. Server errors log at error level with the original error
// attached, client errors at debug.
func WriteError(ctx context.Context, w http.ResponseWriter, err error, production bool) {
	rlog := logger.FromContext(ctx)
	structured := FromError(err)
	if structured.StatusCode >= 500 {
		rlog.WithError(err).Errorf("request failed with %d %s", structured.StatusCode, structured.Code)
	} else {
		rlog.Debugf("request rejected with %d %s: %s", structured.StatusCode, structured.Code, structured.Detail)
	}
	doc := &ErrorDocument{
		Errors:  []*ErrorObject{structured.object(production)},
		JSONAPI: &VersionObject{Version: Version},
	}
	body, merr := json.MarshalWithOption(doc, json.DisableHTMLEscape())
	if merr != nil {
		rlog.WithError(merr).Errorf("Error 3001: cannot marshal error document")
		http.Error(w, "Error 3001", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(structured.StatusCode)
	w.Write(body)
}
