// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Command routes prints the routes a backend configuration generates,
// without starting a server. Useful to eyeball a configuration change
// before deploying it:
//
//	go run ./tools/routes -config configuration.json -prefix /api
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/crudite-tech/crudite/core/backend"
	"github.com/crudite-tech/crudite/core/engine/memory"
)

var (
	configFile = flag.String("config", "", "the backend configuration file")
	prefix     = flag.String("prefix", "", "the route prefix")
)

func main() {
	flag.Parse()
	if *configFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	raw, err := os.ReadFile(*configFile)
	if err != nil {
		panic(err)
	}

	// schemas only gate payloads, not routing, so the references need
	// not resolve here
	var config backend.Configuration
	if err := json.Unmarshal(raw, &config); err != nil {
		panic(fmt.Errorf("parse error in backend configuration: %s", err))
	}
	for i := range config.Models {
		config.Models[i].SchemaID = ""
	}
	stripped, err := json.Marshal(config)
	if err != nil {
		panic(err)
	}

	registry, err := backend.NewRegistry(string(stripped))
	if err != nil {
		panic(err)
	}

	router := mux.NewRouter()
	backend.New(&backend.Builder{
		Config: string(stripped),
		Engine: memory.New(registry),
		Router: router,
		Prefix: *prefix,
	})

	err = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			return nil
		}
		var verbs []string
		for _, m := range methods {
			if m != "OPTIONS" {
				verbs = append(verbs, m)
			}
		}
		if len(verbs) > 0 {
			fmt.Printf("%-18s %s\n", strings.Join(verbs, ","), path)
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
}
