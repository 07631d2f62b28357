// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package model describes registered data models: their fields, primary
// keys and relations. Descriptors drive route generation, query building
// and response shaping; they are normalized once at registration time and
// treated as read-only afterwards.
package model

import (
	"fmt"
	"strings"

	"github.com/crudite-tech/crudite/core"
)

// KeyKind is the semantic type of a model's primary key.
type KeyKind string

// all supported primary-key kinds
const (
	KeyKindInteger KeyKind = "integer"
	KeyKindUUID    KeyKind = "uuid"
	KeyKindString  KeyKind = "string"
)

// Field describes one scalar attribute of a model.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "string", "integer", "float", "boolean", "time" or "json"
	Optional bool   `json:"optional,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
}

// Relation describes a reference from one model to another.
//
// A to-one relation stores a foreign-key column on the owning model,
// a to-many relation stores the foreign-key column on the target model.
type Relation struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Many       bool   `json:"many,omitempty"`
	ForeignKey string `json:"foreign_key,omitempty"`
}

// Descriptor is the normalized description of one registered model.
type Descriptor struct {
	// Name is the model name in PascalCase, for example "TodoItem".
	Name string `json:"name"`
	// Type is the resource type used on routes and in documents. It
	// defaults to the pluralized snake_case form of Name.
	Type string `json:"type,omitempty"`
	// PrimaryKey is the name of the primary-key field, default "id".
	PrimaryKey string `json:"primary_key,omitempty"`
	// KeyKind is the semantic type of the primary key. If empty it is
	// derived from the primary-key name: names containing "uuid" become
	// KeyKindUUID, the default name "id" becomes KeyKindInteger, and
	// everything else becomes KeyKindString.
	KeyKind KeyKind `json:"key_kind,omitempty"`
	// SoftDelete names the timestamp field marking a record deleted.
	// Empty disables soft deletion for this model.
	SoftDelete string `json:"soft_delete,omitempty"`
	// IncludeMerge inlines related records under the relation name in
	// attributes instead of building a compound document.
	IncludeMerge bool       `json:"include_merge,omitempty"`
	Fields       []Field    `json:"fields,omitempty"`
	Relations    []Relation `json:"relations,omitempty"`
}

// normalize fills derived defaults. Called by Registry.Register.
func (d *Descriptor) normalize() error {
	if d.Name == "" {
		return fmt.Errorf("model without name")
	}
	if d.Type == "" {
		d.Type = core.DefaultTypeName(d.Name)
	}
	if d.PrimaryKey == "" {
		d.PrimaryKey = "id"
	}
	if d.KeyKind == "" {
		d.KeyKind = deriveKeyKind(d.PrimaryKey)
	}
	switch d.KeyKind {
	case KeyKindInteger, KeyKindUUID, KeyKindString:
	default:
		return fmt.Errorf("model %s: invalid key kind %q", d.Name, d.KeyKind)
	}
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("model %s: field without name", d.Name)
		}
		switch f.Type {
		case "":
			f.Type = "string"
		case "string", "integer", "float", "boolean", "time", "json":
		default:
			return fmt.Errorf("model %s: field %s has invalid type %q", d.Name, f.Name, f.Type)
		}
	}
	for i := range d.Relations {
		r := &d.Relations[i]
		if r.Name == "" || r.Model == "" {
			return fmt.Errorf("model %s: relation needs name and model", d.Name)
		}
		if r.ForeignKey == "" {
			if r.Many {
				r.ForeignKey = core.SnakeCase(d.Name) + "_id"
			} else {
				r.ForeignKey = r.Name + "_id"
			}
		}
	}
	return nil
}

func deriveKeyKind(name string) KeyKind {
	if strings.Contains(strings.ToLower(name), "uuid") {
		return KeyKindUUID
	}
	if name == "id" {
		return KeyKindInteger
	}
	return KeyKindString
}

// Field returns the named scalar field.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Relation returns the named relation.
func (d *Descriptor) Relation(name string) (Relation, bool) {
	for _, r := range d.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// IsRelation reports whether name is a declared relation of this model.
func (d *Descriptor) IsRelation(name string) bool {
	_, ok := d.Relation(name)
	return ok
}

// HasSoftDelete reports whether the model carries a delete marker field.
func (d *Descriptor) HasSoftDelete() bool {
	return d.SoftDelete != ""
}

// OwnForeignKeys returns the foreign-key columns stored on this model,
// which are those of its to-one relations.
func (d *Descriptor) OwnForeignKeys() []string {
	var columns []string
	for _, r := range d.Relations {
		if !r.Many {
			columns = append(columns, r.ForeignKey)
		}
	}
	return columns
}

// IsOwnForeignKey reports whether column is the foreign key of one of
// this model's to-one relations.
func (d *Descriptor) IsOwnForeignKey(column string) bool {
	for _, r := range d.Relations {
		if !r.Many && r.ForeignKey == column {
			return true
		}
	}
	return false
}
