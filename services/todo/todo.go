// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/crudite-tech/crudite/core/backend"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/engine/memory"
	"github.com/crudite-tech/crudite/core/engine/sqldb"
	"github.com/crudite-tech/crudite/core/logger"
	"github.com/crudite-tech/crudite/core/schema"
)

var configurationJSON string = `{
	"models": [
	  {
		"model": "User",
		"description": "a person who owns projects and gets tasks assigned",
		"fields": [
		  { "name": "name", "type": "string" },
		  { "name": "email", "type": "string", "unique": true }
		]
	  },
	  {
		"model": "Project",
		"soft_delete": "deleted_at",
		"description": "a collection of tasks; destroy tombstones, recover restores",
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
		  { "name": "comments", "model": "Comment", "many": true },
		  { "name": "tags", "model": "Tag", "many": true }
		]
	  },
	  {
		"model": "Comment",
		"operations": ["index", "show", "create", "delete"],
		"fields": [
		  { "name": "body", "type": "string" },
		  { "name": "created_at", "type": "time", "optional": true }
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

//go:embed schemas
var schemaFS embed.FS

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
// to store records in postgres; without it the service keeps them in a
// local SQLite file.
type Service struct {
	Postgres   string `env:"POSTGRES,optional" description:"the connection string for the Postgres DB"`
	SQLite     string `env:"SQLITE,default=todo.db" description:"the SQLite database file, ':memory:' for a throwaway"`
	Memory     bool   `env:"MEMORY,default=false" description:"keep records in process memory, for demos and tests"`
	Addr       string `env:"ADDR,default=:3000" description:"the listen address"`
	Prefix     string `env:"PREFIX,default=/api" description:"the route prefix"`
	LogLevel   string `env:"LOG_LEVEL,default=info" description:"the log level"`
	Production bool   `env:"PRODUCTION,default=false" description:"reduce error detail in responses"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	level, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(level)

	registry, err := backend.NewRegistry(configurationJSON)
	if err != nil {
		panic(err)
	}

	var client engine.Client
	switch {
	case service.Memory:
		client = memory.New(registry)
	case service.Postgres != "":
		db, err := sqldb.NewPostgres(service.Postgres, registry)
		if err != nil {
			panic(err)
		}
		if err := db.EnsureSchema(context.Background()); err != nil {
			panic(err)
		}
		client = db
	default:
		db, err := sqldb.NewSQLite(service.SQLite, registry)
		if err != nil {
			panic(err)
		}
		if err := db.EnsureSchema(context.Background()); err != nil {
			panic(err)
		}
		client = db
	}
	defer client.Close()

	schemaDir, err := fs.Sub(schemaFS, "schemas")
	if err != nil {
		panic(err)
	}
	schemas, refs, err := schema.LoadFS(schemaDir)
	if err != nil {
		panic(err)
	}

	manager := engine.NewManager()
	manager.Register("todo", client)

	router := mux.NewRouter()
	backend.New(&backend.Builder{
		Config:          configurationJSON,
		Engine:          client,
		Router:          router,
		Prefix:          service.Prefix,
		JSONSchemas:     schemas,
		JSONSchemasRefs: refs,
		Manager:         manager,
		HealthRoute:     true,
		Production:      service.Production,
	})

	logger.Default().Infoln("listen on", service.Addr)
	if err := http.ListenAndServe(service.Addr, handlers.RecoveryHandler()(router)); err != nil {
		panic(err)
	}
}
