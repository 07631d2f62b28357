// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package test runs the generated API end to end, wired the way a
// deployed service wires it: a relational engine on SQLite, the full
// router with route prefix, JSON schemas and the health route, and the
// in-process client driving everything through HTTP semantics.
//
// The per-package tests cover the same handlers against the memory
// engine; this suite is where the SQL engine, the router and the client
// prove they agree.
package test

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"

	"github.com/crudite-tech/crudite/core/backend"
	"github.com/crudite-tech/crudite/core/client"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/engine/sqldb"
	"github.com/crudite-tech/crudite/core/jsonapi"
)

var configurationJSON string = `{
	"models": [
	  {
		"model": "User",
		"fields": [
		  { "name": "name", "type": "string" },
		  { "name": "email", "type": "string", "unique": true }
		]
	  },
	  {
		"model": "Project",
		"soft_delete": "deleted_at",
		"fields": [
		  { "name": "title", "type": "string" },
		  { "name": "description", "type": "string", "optional": true }
		],
		"relations": [
		  { "name": "owner", "model": "User" },
		  { "name": "tasks", "model": "Task", "many": true }
		]
	  },
	  {
		"model": "Task",
		"schema_id": "https://todo.example.com/schemas/task.json",
		"fields": [
		  { "name": "title", "type": "string" },
		  { "name": "done", "type": "boolean", "optional": true },
		  { "name": "priority", "type": "integer", "optional": true },
		  { "name": "due_at", "type": "time", "optional": true },
		  { "name": "details", "type": "json", "optional": true }
		],
		"relations": [
		  { "name": "assignee", "model": "User" },
		  { "name": "comments", "model": "Comment", "many": true }
		]
	  },
	  {
		"model": "Comment",
		"operations": ["index", "show", "create", "delete"],
		"fields": [
		  { "name": "body", "type": "string" }
		],
		"relations": [
		  { "name": "author", "model": "User" }
		]
	  },
	  {
		"model": "Tag",
		"primary_key": "uuid",
		"fields": [
		  { "name": "label", "type": "string", "unique": true }
		]
	  }
	]
  }
`

var taskSchemaJSON = `{
	"$id": "https://todo.example.com/schemas/task.json",
	"type": "object",
	"properties": {
		"title": { "type": "string", "minLength": 1 },
		"done": { "type": "boolean" },
		"priority": { "type": "integer", "minimum": 0, "maximum": 5 },
		"due_at": { "type": "string" }
	}
  }
`

// EndToEndTestSuite boots the full stack once for all tests.
type EndToEndTestSuite struct {
	suite.Suite
	engine  *sqldb.Engine
	backend *backend.Backend
	router  *mux.Router
	client  client.Client
}

func (s *EndToEndTestSuite) SetupSuite() {
	registry, err := backend.NewRegistry(configurationJSON)
	s.Require().NoError(err)

	s.engine, err = sqldb.NewSQLite(":memory:", registry)
	s.Require().NoError(err)
	s.Require().NoError(s.engine.EnsureSchema(context.Background()))

	manager := engine.NewManager()
	manager.Register("todo", s.engine)

	s.router = mux.NewRouter()
	s.backend = backend.New(&backend.Builder{
		Config:      configurationJSON,
		Engine:      s.engine,
		Router:      s.router,
		Prefix:      "/api",
		JSONSchemas: []string{taskSchemaJSON},
		Manager:     manager,
		HealthRoute: true,
	})
	s.client = client.NewWithRouter(s.router).
		WithPrefix("/api").
		WithHeader("Content-Type", jsonapi.MediaType)
}

func (s *EndToEndTestSuite) TearDownSuite() {
	s.Require().NoError(s.engine.Close())
}
