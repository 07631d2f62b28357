// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package core

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Operation represents one of the generated resource operations, one of
// Index, Show, Create, Update, Delete, Recover, Atomic
//
type Operation string

// all supported resource operations
const (
	OperationIndex   Operation = "index"
	OperationShow    Operation = "show"
	OperationCreate  Operation = "create"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationRecover Operation = "recover"
	OperationAtomic  Operation = "atomic"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationIndex, OperationShow, OperationCreate, OperationUpdate,
		OperationDelete, OperationRecover, OperationAtomic:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to create idiomatic REST routes and
// resource type names.
func Plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	if strings.HasSuffix(singular, "child") {
		return strings.TrimSuffix(singular, "child") + "children"
	}
	if strings.HasSuffix(singular, "s") {
		return singular + "es"
	}
	return singular + "s"
}

// Singular undoes Plural. It maps "-ies" back to "-y", "-children" back
// to "-child", and otherwise trims a trailing "s".
func Singular(plural string) string {
	if strings.HasSuffix(plural, "ies") {
		return strings.TrimSuffix(plural, "ies") + "y"
	}
	if strings.HasSuffix(plural, "children") {
		return strings.TrimSuffix(plural, "children") + "child"
	}
	if strings.HasSuffix(plural, "ses") {
		return strings.TrimSuffix(plural, "es")
	}
	return strings.TrimSuffix(plural, "s")
}

// SnakeCase converts a PascalCase or camelCase model name to its
// snake_case wire representation. Example: "TodoItem" becomes "todo_item".
func SnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if 'A' <= r && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PascalCase converts a snake_case or kebab-case wire name to a
// PascalCase model name. Example: "todo_item" becomes "TodoItem".
func PascalCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i := 0; i < len(parts); i++ {
		s := parts[i]
		runes := []rune(s)
		r := runes[0]
		if 'a' <= r && r <= 'z' {
			r += 'A' - 'a'
			runes[0] = r
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, "")
}

// DefaultTypeName derives the default resource type for a model name:
// the pluralized snake_case form. Example: "TodoItem" becomes "todo_items".
func DefaultTypeName(model string) string {
	return Plural(SnakeCase(model))
}

// TypeNameToModel is the fallback conversion from a resource type to a
// model name, used for types that were never registered. It converts
// kebab-case and snake_case to PascalCase and singularizes the result.
// Example: "todo-items" becomes "TodoItem".
func TypeNameToModel(typeName string) string {
	return PascalCase(Singular(typeName))
}
