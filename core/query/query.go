// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package query parses JSON:API query strings into a structured
// descriptor and translates the descriptor into storage-engine options.
//
// Parsing is strict about pagination and lenient about everything else:
// filters with unrecognized operators or unknown fields and unknown sort
// keys are dropped rather than rejected, so that unrelated query
// parameters never break a read.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// ParseError describes a rejected query parameter. Handlers map it to a
// 400 response carrying the parameter name.
type ParseError struct {
	Parameter string
	Message   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query parameter %s: %s", e.Parameter, e.Message)
}

// Pagination is the validated page selection of a list request. Cursor
// mode is active when Cursor is non-empty, otherwise Number positions
// the page.
type Pagination struct {
	Number int
	Cursor string
	Size   int
}

// Filter is one predicate entry parsed from a filter[...] parameter.
// Raw is the uninterpreted parameter value; the builder converts it to
// the field's type.
type Filter struct {
	Field string
	Op    engine.Op
	Raw   string
}

// Sort is one sort key.
type Sort struct {
	Field string
	Desc  bool
}

// Query is the structured descriptor of one request's query string.
type Query struct {
	// Pagination is nil when the request carries no page[...] parameter
	// at all. List handlers reject that case.
	Pagination     *Pagination
	Filters        []Filter
	Sorts          []Sort
	Fields         map[string][]string
	Includes       [][]string
	IncludeDeleted bool
	// Dropped lists parameters that were ignored fail-open, for debug
	// logging.
	Dropped []string
	// Values is the original query string, kept for pagination-link
	// building.
	Values url.Values
}

// filter operators accepted as a key suffix behind the last underscore
var filterOps = map[string]engine.Op{
	"eq":   engine.OpEq,
	"ne":   engine.OpNe,
	"gt":   engine.OpGt,
	"gte":  engine.OpGte,
	"lt":   engine.OpLt,
	"lte":  engine.OpLte,
	"like": engine.OpContains,
	"in":   engine.OpIn,
}

// Parse validates the query string of a request against the model. Page
// parameters are validated strictly: page[size] is mandatory and exactly
// one of page[number] and page[cursor] must be given, where maxPageSize
// bounds the size. All other recognized parameters are parsed leniently.
func Parse(values url.Values, d *model.Descriptor, registry *model.Registry, maxPageSize int) (*Query, error) {
	q := &Query{
		Fields: make(map[string][]string),
		Values: values,
	}

	if err := q.parsePagination(values, maxPageSize); err != nil {
		return nil, err
	}

	columns := storedColumns(d, registry)
	for key, vv := range values {
		switch {
		case strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]"):
			name := key[len("filter[") : len(key)-1]
			for _, raw := range vv {
				q.parseFilter(key, name, raw, columns)
			}
		case strings.HasPrefix(key, "fields[") && strings.HasSuffix(key, "]"):
			typeName := key[len("fields[") : len(key)-1]
			fields := []string{}
			for _, raw := range vv {
				for _, f := range strings.Split(raw, ",") {
					if f = strings.TrimSpace(f); f != "" {
						fields = append(fields, f)
					}
				}
			}
			q.Fields[typeName] = fields
		case key == "sort":
			for _, raw := range vv {
				q.parseSort(raw, columns)
			}
		case key == "include":
			for _, raw := range vv {
				for _, path := range strings.Split(raw, ",") {
					if path = strings.TrimSpace(path); path != "" {
						q.Includes = append(q.Includes, strings.Split(path, "."))
					}
				}
			}
		case key == "include_deleted":
			on := values.Get(key) == "true" || values.Get(key) == "1"
			if on && !d.HasSoftDelete() {
				q.Dropped = append(q.Dropped, key)
				continue
			}
			q.IncludeDeleted = on
		}
	}
	return q, nil
}

func (q *Query) parsePagination(values url.Values, maxPageSize int) error {
	var (
		number    = values.Get("page[number]")
		cursor    = values.Get("page[cursor]")
		size      = values.Get("page[size]")
		hasNumber = values.Has("page[number]")
		hasCursor = values.Has("page[cursor]")
		hasSize   = values.Has("page[size]")
	)
	if !hasNumber && !hasCursor && !hasSize {
		return nil
	}
	if !hasSize {
		return &ParseError{Parameter: "page[size]", Message: "missing page size"}
	}
	if hasNumber && hasCursor {
		return &ParseError{Parameter: "page[cursor]", Message: "page[number] and page[cursor] are mutually exclusive"}
	}
	if !hasNumber && !hasCursor {
		return &ParseError{Parameter: "page[number]", Message: "missing page[number] or page[cursor]"}
	}

	n, err := strconv.Atoi(size)
	if err != nil || n < 1 {
		return &ParseError{Parameter: "page[size]", Message: "invalid page size"}
	}
	if n > maxPageSize {
		return &ParseError{Parameter: "page[size]", Message: fmt.Sprintf("page size out of range, max is %d", maxPageSize)}
	}
	p := &Pagination{Size: n}

	if hasNumber {
		p.Number, err = strconv.Atoi(number)
		if err != nil || p.Number < 1 {
			return &ParseError{Parameter: "page[number]", Message: "invalid page number"}
		}
	} else {
		if cursor == "" {
			return &ParseError{Parameter: "page[cursor]", Message: "empty cursor"}
		}
		p.Cursor = cursor
	}
	q.Pagination = p
	return nil
}

// parseFilter resolves the filter key to a field and an operator. A key
// that names a field verbatim filters for equality; otherwise the
// segment behind the last underscore is tried as an operator suffix.
// Everything else is dropped.
func (q *Query) parseFilter(param, name, raw string, columns map[string]bool) {
	if columns[name] {
		q.Filters = append(q.Filters, Filter{Field: name, Op: engine.OpEq, Raw: raw})
		return
	}
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		field, suffix := name[:idx], name[idx+1:]
		if op, ok := filterOps[suffix]; ok && columns[field] {
			q.Filters = append(q.Filters, Filter{Field: field, Op: op, Raw: raw})
			return
		}
	}
	q.Dropped = append(q.Dropped, param)
}

func (q *Query) parseSort(raw string, columns map[string]bool) {
	for _, key := range strings.Split(raw, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		s := Sort{Field: key}
		if strings.HasPrefix(key, "-") {
			s.Field = key[1:]
			s.Desc = true
		}
		if !columns[s.Field] {
			q.Dropped = append(q.Dropped, "sort="+key)
			continue
		}
		q.Sorts = append(q.Sorts, s)
	}
}

// storedColumns collects the filterable and sortable columns of the
// model: the primary key, the declared fields, every foreign-key column
// stored on its table and the soft-delete marker.
func storedColumns(d *model.Descriptor, registry *model.Registry) map[string]bool {
	columns := make(map[string]bool, len(d.Fields)+2)
	columns[d.PrimaryKey] = true
	for _, f := range d.Fields {
		columns[f.Name] = true
	}
	for column := range registry.ForeignKeyColumns(d.Name) {
		columns[column] = true
	}
	if d.HasSoftDelete() {
		columns[d.SoftDelete] = true
	}
	return columns
}
