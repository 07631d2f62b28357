// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// Built is the storage-engine form of a parsed query.
type Built struct {
	FindMany engine.FindManyOptions
	// Count carries the same predicate with all pagination stripped,
	// for the total-count query.
	Count engine.CountOptions
	// Dropped lists include paths that were ignored because they name
	// unknown relations.
	Dropped []string
}

// Build translates a parsed query into engine options for the given
// model. Offset pages become skip/take, cursor pages become an after
// marker plus take; in both modes a primary-key sort is appended as
// tie-breaker unless the caller sorted by the key already. Include
// paths are checked against the registered relations level by level;
// unknown names are dropped.
func Build(q *Query, d *model.Descriptor, registry *model.Registry) (*Built, error) {
	b := &Built{}

	where, err := buildWhere(q.Filters, d, registry)
	if err != nil {
		return nil, err
	}
	b.FindMany.Where = where
	b.Count.Where = where

	for _, s := range q.Sorts {
		b.FindMany.Order = append(b.FindMany.Order, engine.Order{Field: s.Field, Desc: s.Desc})
	}

	if p := q.Pagination; p != nil {
		sorted := false
		for _, o := range b.FindMany.Order {
			if o.Field == d.PrimaryKey {
				sorted = true
				break
			}
		}
		if !sorted {
			b.FindMany.Order = append(b.FindMany.Order, engine.Order{Field: d.PrimaryKey})
		}
		b.FindMany.Take = p.Size
		if p.Cursor != "" {
			after, err := DecodeCursor(p.Cursor, d.KeyKind)
			if err != nil {
				return nil, err
			}
			b.FindMany.After = after
		} else {
			b.FindMany.Skip = (p.Number - 1) * p.Size
		}
	}

	b.FindMany.Include = buildInclude(q.Includes, d, registry, &b.Dropped)
	return b, nil
}

// BuildInclude translates raw include paths for single-record reads.
func BuildInclude(q *Query, d *model.Descriptor, registry *model.Registry) engine.Include {
	var dropped []string
	return buildInclude(q.Includes, d, registry, &dropped)
}

func buildInclude(paths [][]string, d *model.Descriptor, registry *model.Registry, dropped *[]string) engine.Include {
	if len(paths) == 0 {
		return nil
	}
	include := engine.Include{}
	for _, path := range paths {
		if !addIncludePath(include, path, d, registry) {
			*dropped = append(*dropped, "include="+strings.Join(path, "."))
		}
	}
	if len(include) == 0 {
		return nil
	}
	return include
}

func addIncludePath(include engine.Include, path []string, d *model.Descriptor, registry *model.Registry) bool {
	if len(path) == 0 {
		return true
	}
	rel, ok := d.Relation(path[0])
	if !ok {
		return false
	}
	target, ok := registry.Model(rel.Model)
	if !ok {
		return false
	}
	nested := include[path[0]]
	if len(path) > 1 {
		if nested == nil {
			nested = engine.Include{}
		}
		if !addIncludePath(nested, path[1:], target, registry) {
			return false
		}
	}
	include[path[0]] = nested
	return true
}

func buildWhere(filters []Filter, d *model.Descriptor, registry *model.Registry) (engine.Where, error) {
	var where engine.Where
	for _, f := range filters {
		fieldType := columnType(d, registry, f.Field)
		if f.Op == engine.OpIn {
			parts := strings.Split(f.Raw, ",")
			items := make([]any, 0, len(parts))
			for _, part := range parts {
				v, err := convertValue(f.Field, fieldType, strings.TrimSpace(part))
				if err != nil {
					return nil, err
				}
				items = append(items, v)
			}
			where = append(where, engine.Condition{Field: f.Field, Op: f.Op, Value: items})
			continue
		}
		v, err := convertValue(f.Field, fieldType, f.Raw)
		if err != nil {
			return nil, err
		}
		where = append(where, engine.Condition{Field: f.Field, Op: f.Op, Value: v})
	}
	return where, nil
}

// columnType resolves the value type of a stored column. Foreign keys
// take the key kind of the relation target, the soft-delete marker is a
// timestamp.
func columnType(d *model.Descriptor, registry *model.Registry, name string) string {
	if name == d.PrimaryKey {
		return keyType(d.KeyKind)
	}
	if f, ok := d.Field(name); ok {
		return f.Type
	}
	if ref, ok := registry.ForeignKeyColumns(d.Name)[name]; ok {
		if target, ok := registry.Model(ref); ok {
			return keyType(target.KeyKind)
		}
	}
	if d.HasSoftDelete() && name == d.SoftDelete {
		return "time"
	}
	return "string"
}

func keyType(kind model.KeyKind) string {
	if kind == model.KeyKindInteger {
		return "integer"
	}
	return "string"
}

func convertValue(field, fieldType, raw string) (any, error) {
	bad := func(msg string) error {
		return &ParseError{Parameter: "filter[" + field + "]", Message: msg}
	}
	switch fieldType {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, bad("expected an integer")
		}
		return n, nil
	case "float":
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, bad("expected a number")
		}
		return n, nil
	case "boolean":
		switch raw {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, bad("expected a boolean")
	case "time":
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, bad("expected an RFC 3339 timestamp")
		}
		return t, nil
	default:
		return raw, nil
	}
}
