// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package sqldb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	json "github.com/goccy/go-json"
	"github.com/lib/pq"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// dialect covers the few places where postgres and SQLite genuinely
// differ: placeholder style, column types, case-insensitive matching,
// parameter representation and the shape of constraint errors.
type dialect interface {
	placeholder() sq.PlaceholderFormat
	columnDDL(kind string) string
	keyDDL(kind model.KeyKind) string
	contains(column, value string) sq.Sqlizer
	bind(kind string, v any) any
	translate(err error) error
}

// sqliteTimeLayout is fixed-width so that the textual order of stored
// timestamps equals their chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// likePattern escapes the LIKE metacharacters of value and wraps it for
// substring matching. Both dialects get ESCAPE '\'.
func likePattern(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(value) + "%"
}

func marshalJSONValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		// normalizeAttribute admitted the value, so it came from a
		// decoded document and marshals back
		return nil
	}
	return string(b)
}

type postgresDialect struct{}

func (postgresDialect) placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (postgresDialect) columnDDL(kind string) string {
	switch kind {
	case "integer":
		return "BIGINT"
	case "float":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "time":
		return "TIMESTAMPTZ"
	case "json":
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (postgresDialect) keyDDL(kind model.KeyKind) string {
	if kind == model.KeyKindInteger {
		return "BIGINT PRIMARY KEY"
	}
	return "TEXT PRIMARY KEY"
}

func (postgresDialect) contains(column, value string) sq.Sqlizer {
	return sq.Expr(column+` ILIKE ? ESCAPE '\'`, likePattern(value))
}

func (postgresDialect) bind(kind string, v any) any {
	if v == nil {
		return nil
	}
	if kind == "json" {
		return marshalJSONValue(v)
	}
	return v
}

func (postgresDialect) translate(err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return err
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%s: %w", pqErr.Message, engine.ErrConflict)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%s: %w", pqErr.Message, engine.ErrForeignKey)
	case "23502", "23514", "22P02":
		return fmt.Errorf("%s: %w", pqErr.Message, engine.ErrConstraint)
	}
	return err
}

type sqliteDialect struct{}

func (sqliteDialect) placeholder() sq.PlaceholderFormat { return sq.Question }

func (sqliteDialect) columnDDL(kind string) string {
	switch kind {
	case "integer":
		return "INTEGER"
	case "float":
		return "REAL"
	case "boolean":
		return "INTEGER"
	default: // time, json and string are all stored as text
		return "TEXT"
	}
}

func (sqliteDialect) keyDDL(kind model.KeyKind) string {
	if kind == model.KeyKindInteger {
		return "INTEGER PRIMARY KEY"
	}
	return "TEXT PRIMARY KEY"
}

func (sqliteDialect) contains(column, value string) sq.Sqlizer {
	// LIKE is case-insensitive for ASCII in SQLite
	return sq.Expr(column+` LIKE ? ESCAPE '\'`, likePattern(value))
}

func (sqliteDialect) bind(kind string, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case "time":
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(sqliteTimeLayout)
		}
	case "boolean":
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	case "json":
		return marshalJSONValue(v)
	}
	return v
}

func (sqliteDialect) translate(err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return err
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%s: %w", se.Error(), engine.ErrConflict)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%s: %w", se.Error(), engine.ErrForeignKey)
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return fmt.Errorf("%s: %w", se.Error(), engine.ErrConstraint)
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		// some statement paths report the plain constraint code, the
		// message still names the violated constraint
		msg := se.Error()
		switch {
		case strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "PRIMARY KEY"):
			return fmt.Errorf("%s: %w", msg, engine.ErrConflict)
		case strings.Contains(msg, "FOREIGN KEY"):
			return fmt.Errorf("%s: %w", msg, engine.ErrForeignKey)
		}
		return fmt.Errorf("%s: %w", msg, engine.ErrConstraint)
	}
	return err
}
