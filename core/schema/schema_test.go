// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package schema_test

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/crudite-tech/crudite/core/schema"
)

const (
	labelRef = `{ "type" : "string",
		      "$id" : "http://crudite.dev/schemas/label.json"}`
	shortRef = `{ "$id" : "http://crudite.dev/schemas/short.json",
	 	      "maxLength" : 5 }`

	taskSchema = `
	{ "$id" : "http://crudite.dev/schemas/task.json",
	  "type": "object",
	  "required": ["title"],
	  "properties": {
		"title":    { "$ref": "http://crudite.dev/schemas/label.json" },
		"priority": { "type": "integer", "minimum": 0, "maximum": 9 }
	  }
	}`
	codeSchema = `
	{ "$id" : "http://crudite.dev/schemas/code.json",
	  "allOf" : [
		{ "$ref" : "http://crudite.dev/schemas/label.json" },
		{ "$ref" : "http://crudite.dev/schemas/short.json" }
	  ]
	}`
)

func TestValidateStruct(t *testing.T) {
	v, err := schema.NewValidator([]string{taskSchema}, []string{labelRef})
	if err != nil {
		t.Fatal(err)
	}

	schemaID := "http://crudite.dev/schemas/task.json"

	// attribute maps are what the backend hands in
	valid := map[string]any{"title": "write tests", "priority": 3}
	if err := v.ValidateStruct(valid, schemaID); err != nil {
		t.Fatal("expected valid, got:", err)
	}

	testCases := []struct {
		name       string
		attributes map[string]any
	}{
		{"missing required member", map[string]any{"priority": 3}},
		{"wrong type", map[string]any{"title": 42}},
		{"out of range", map[string]any{"title": "x", "priority": 11}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateStruct(tc.attributes, schemaID)
			if err == nil {
				t.Fatal("expected a violation")
			}
			if !strings.Contains(err.Error(), "document is not valid") {
				t.Fatal("unexpected error:", err)
			}
		})
	}

	if err := v.ValidateStruct(valid, "http://crudite.dev/schemas/unknown.json"); err == nil {
		t.Fatal("expected an error for an unknown schema")
	}
}

func TestValidateString(t *testing.T) {
	v, err := schema.NewValidator([]string{codeSchema}, []string{labelRef, shortRef})
	if err != nil {
		t.Fatal(err)
	}

	schemaID := "http://crudite.dev/schemas/code.json"
	if err := v.ValidateString(`"abc"`, schemaID); err != nil {
		t.Fatal("expected valid, got:", err)
	}
	if err := v.ValidateString(`"much too long"`, schemaID); err == nil {
		t.Fatal("expected a violation")
	}
	if err := v.ValidateString(`42`, schemaID); err == nil {
		t.Fatal("expected a violation")
	}
}

func TestHasSchema(t *testing.T) {
	v, err := schema.NewValidator([]string{taskSchema, codeSchema}, []string{labelRef, shortRef})
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{
		"http://crudite.dev/schemas/task.json",
		"http://crudite.dev/schemas/code.json",
	} {
		if !v.HasSchema(id) {
			t.Fatal("expected schema:", id)
		}
	}
	if v.HasSchema("http://crudite.dev/schemas/unknown.json") {
		t.Fatal("unexpected schema")
	}
}

func TestNewValidatorRejectsAnonymousSchema(t *testing.T) {
	if _, err := schema.NewValidator([]string{`{"type": "object"}`}, nil); err == nil {
		t.Fatal("expected an error for a schema without $id")
	}
	if _, err := schema.NewValidator([]string{`not json`}, nil); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"task.json":        {Data: []byte(taskSchema)},
		"notes.txt":        {Data: []byte("not a schema")},
		"refs/label.json":  {Data: []byte(labelRef)},
		"refs/ignored.yml": {Data: []byte("nope")},
	}

	schemas, refs, err := schema.LoadFS(fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 1 || len(refs) != 1 {
		t.Fatal("unexpected load result:", len(schemas), len(refs))
	}

	v, err := schema.NewValidator(schemas, refs)
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasSchema("http://crudite.dev/schemas/task.json") {
		t.Fatal("loaded schema not compiled")
	}

	// a file system without refs is fine
	schemas, refs, err = schema.LoadFS(fstest.MapFS{"task.json": {Data: []byte(taskSchema)}})
	if err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 1 || len(refs) != 0 {
		t.Fatal("unexpected load result:", len(schemas), len(refs))
	}
}
