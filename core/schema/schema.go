// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package schema validates record attributes against JSON schemas.
//
// Models can reference a schema through their schema_id configuration.
// The backend then rejects create and update payloads that do not
// conform, so a schemaless engine still stores well-formed documents.
package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator holds the compiled schemas of one backend, addressable by
// their $id.
type Validator struct {
	compiled map[string]*gojsonschema.Schema
}

// NewValidator compiles the given top-level schemas. Each of them must
// carry an $id. References between top-level schemas are not resolved;
// anything a schema wants to $ref must be in refs.
func NewValidator(schemas, refs []string) (*Validator, error) {
	type identified struct {
		ID string `json:"$id"`
	}
	v := &Validator{compiled: make(map[string]*gojsonschema.Schema)}
	for _, raw := range schemas {
		var s identified
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, raw)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", raw)
		}

		sl := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
				return nil, fmt.Errorf("cannot add schema reference: %s", err)
			}
		}
		compiled, err := sl.Compile(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %s", s.ID, err)
		}
		v.compiled[s.ID] = compiled
	}
	return v, nil
}

// LoadFS reads schemas from a file system, typically an embedded one.
// Json files at the root are returned as top-level schemas, json files
// under refs/ as references, ready to be handed to a backend Builder.
func LoadFS(fsys fs.FS) (schemas, refs []string, err error) {
	readDir := func(dir string) ([]string, error) {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read schema dir %s: %w", dir, err)
		}
		var list []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			name := entry.Name()
			if dir != "." {
				name = dir + "/" + name
			}
			raw, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, fmt.Errorf("cannot read schema %s: %w", name, err)
			}
			list = append(list, string(raw))
		}
		return list, nil
	}

	if schemas, err = readDir("."); err != nil {
		return nil, nil, err
	}
	if _, statErr := fs.Stat(fsys, "refs"); statErr == nil {
		if refs, err = readDir("refs"); err != nil {
			return nil, nil, err
		}
	}
	return schemas, refs, nil
}

// HasSchema returns true if schemaID was compiled into this validator.
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.compiled[schemaID]
	return ok
}

// ValidateStruct validates a Go value, typically the decoded attributes
// of a request, against schemaID.
func (v *Validator) ValidateStruct(document interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(document), schemaID)
}

// ValidateString validates a JSON string against schemaID.
func (v *Validator) ValidateString(document, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(document), schemaID)
}

func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {
	compiled, ok := v.compiled[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s", schemaID)
	}
	result, err := compiled.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s: %s", schemaID, err)
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			violations = append(violations, e.String())
		}
		return errors.New("document is not valid: " + strings.Join(violations, "; "))
	}
	return nil
}
