// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/crudite-tech/crudite/core"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/logger"
	"github.com/crudite-tech/crudite/core/model"
	"github.com/crudite-tech/crudite/core/schema"
)

var (
	// Version is the version of the current build
	Version = "unset"
)

// Backend is the generic JSON:API backend
type Backend struct {
	config      Configuration
	engine      engine.Client
	manager     *engine.Manager
	router      *mux.Router
	registry    *model.Registry
	validator   *schema.Validator
	resources   map[string]*resource // by model name
	ordered     []*resource          // in configuration order
	prefix      string
	maxPageSize int
	production  bool

	indexHooks    map[string]IndexHook
	showHooks     map[string]ShowHook
	mutationHooks map[string]MutationHook
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of all generated models. This is
	// mandatory.
	Config string
	// Engine is a connected data engine. This is mandatory.
	Engine engine.Client
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Prefix is put in front of every generated route and link, for
	// example "/api". This is optional.
	Prefix string
	// MaxPageSize bounds page[size] on list requests. Default is 100.
	MaxPageSize int
	// Production reduces the error detail of server faults to an opaque
	// marker so internal error text never reaches clients.
	Production bool
	// JSONSchemas are top-level JSON schemas referenced by schema_id in
	// the model configurations. This is optional.
	JSONSchemas []string
	// JSONSchemasRefs are schemas the top-level schemas may reference.
	JSONSchemasRefs []string
	// Manager optionally provides the named engines checked by the
	// health route in addition to Engine itself.
	Manager *engine.Manager
	// HealthRoute enables GET {prefix}/healthz.
	HealthRoute bool
	// DisableCORS disables the CORS middleware.
	DisableCORS bool
	// DisableCompression disables the compression middleware.
	DisableCompression bool
}

// New realizes the actual backend. It registers all configured models
// and adds the generated routes to the router. Configuration errors
// panic: a backend that cannot serve its resources must not start.
func New(bb *Builder) *Backend {

	var config Configuration
	err := json.Unmarshal([]byte(bb.Config), &config)
	if err != nil {
		panic(fmt.Errorf("parse error in backend configuration: %s", err))
	}

	if bb.Engine == nil {
		panic("Engine is missing")
	}

	if bb.Router == nil {
		panic("Router is missing")
	}

	maxPageSize := bb.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 100
	}

	b := &Backend{
		config:        config,
		engine:        bb.Engine,
		manager:       bb.Manager,
		router:        bb.Router,
		registry:      model.NewRegistry(),
		resources:     make(map[string]*resource),
		prefix:        normalizePrefix(bb.Prefix),
		maxPageSize:   maxPageSize,
		production:    bb.Production,
		indexHooks:    make(map[string]IndexHook),
		showHooks:     make(map[string]ShowHook),
		mutationHooks: make(map[string]MutationHook),
	}

	if len(bb.JSONSchemas) > 0 {
		b.validator, err = schema.NewValidator(bb.JSONSchemas, bb.JSONSchemasRefs)
		if err != nil {
			panic(fmt.Errorf("backend configuration: %s", err))
		}
	}

	for i := range config.Models {
		mc := &config.Models[i]
		rsc, err := b.makeResource(mc)
		if err != nil {
			if errors.Is(err, model.ErrDuplicate) {
				logger.Default().Warnf("backend configuration: %s, keeping the first registration", err)
				continue
			}
			panic(fmt.Errorf("backend configuration: %s", err))
		}
		b.resources[rsc.descriptor.Name] = rsc
		b.ordered = append(b.ordered, rsc)
	}
	if err := b.registry.Validate(); err != nil {
		panic(fmt.Errorf("backend configuration: %s", err))
	}

	if !bb.DisableCORS {
		b.handleCORS()
	}
	if !bb.DisableCompression {
		b.handleCompression()
	}
	logger.AddRequestID(b.router)

	if bb.HealthRoute {
		b.handleHealthRoute(b.router)
	}
	b.handleRoutes(b.router)
	return b
}

// resource is the registration record of one configured model: its
// descriptor, enabled operations, primary-key parser and policies.
type resource struct {
	descriptor *model.Descriptor
	enabled    map[core.Operation]bool
	parseKey   keyParser
	applyEmpty bool
	schemaID   string
}

func (b *Backend) makeResource(mc *ModelConfiguration) (*resource, error) {
	d := mc.descriptor()
	if err := b.registry.Register(d); err != nil {
		return nil, err
	}
	enabled, err := mc.enabledOperations()
	if err != nil {
		return nil, err
	}
	policy, err := mc.emptyValuesPolicy()
	if err != nil {
		return nil, err
	}
	if mc.SchemaID != "" && (b.validator == nil || !b.validator.HasSchema(mc.SchemaID)) {
		return nil, fmt.Errorf("model %s references unknown schema %q", mc.Model, mc.SchemaID)
	}
	return &resource{
		descriptor: d,
		enabled:    enabled,
		parseKey:   newKeyParser(d.KeyKind),
		applyEmpty: policy == emptyValuesApply,
		schemaID:   mc.SchemaID,
	}, nil
}

// Registry exposes the type and model mapping built from the
// configuration, for engines and tools working on the same models.
func (b *Backend) Registry() *model.Registry {
	return b.registry
}

// handleRoutes adds all necessary handlers for the configured models
func (b *Backend) handleRoutes(router *mux.Router) {

	logger.Default().Debugln("backend: handle routes")
	for _, rsc := range b.ordered {
		b.createModelRoutes(router, rsc)
	}
}

// createModelRoutes registers the generated routes of one model, in
// this order: index, show, create, update, destroy, atomic, recover,
// relationships. Routing is purely additive; later registrations never
// affect earlier ones.
func (b *Backend) createModelRoutes(router *mux.Router, rsc *resource) {
	d := rsc.descriptor
	collectionRoute := b.prefix + "/" + d.Type
	itemRoute := collectionRoute + "/{" + d.PrimaryKey + "}"

	logger.Default().Debugln("create routes for model:", d.Name)
	logger.Default().Debugln("  handle collection route:", collectionRoute)
	logger.Default().Debugln("  handle item route:", itemRoute)

	if rsc.enabled[core.OperationIndex] {
		router.HandleFunc(collectionRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.collectionGet(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodGet)
	}

	if rsc.enabled[core.OperationShow] {
		router.HandleFunc(itemRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.itemGet(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodGet)
	}

	if rsc.enabled[core.OperationCreate] {
		router.HandleFunc(collectionRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.collectionPost(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodPost)
	}

	if rsc.enabled[core.OperationUpdate] {
		// PUT and PATCH share one handler, there is no semantic
		// difference between the two verbs
		router.HandleFunc(itemRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.itemUpdate(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodPut, http.MethodPatch)
	}

	if rsc.enabled[core.OperationDelete] {
		router.HandleFunc(itemRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.itemDelete(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodDelete)
	}

	if rsc.enabled[core.OperationAtomic] {
		logger.Default().Debugln("  handle atomic route:", collectionRoute+"/atomic", "POST")
		router.HandleFunc(collectionRoute+"/atomic", func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.atomicPost(w, r)
		}).Methods(http.MethodOptions, http.MethodPost)
	}

	if rsc.enabled[core.OperationRecover] {
		logger.Default().Debugln("  handle recover route:", itemRoute+"/recover", "POST")
		router.HandleFunc(itemRoute+"/recover", func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.itemRecover(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodPost)
	}

	if len(d.Relations) > 0 {
		relationshipsRoute := itemRoute + "/relationships/{relationship}"
		relatedRoute := itemRoute + "/{related}"
		logger.Default().Debugln("  handle relationship routes:", relationshipsRoute, "GET, POST, PATCH, DELETE")

		router.HandleFunc(relationshipsRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.relationshipGet(rsc, w, r, true)
		}).Methods(http.MethodOptions, http.MethodGet)

		router.HandleFunc(relationshipsRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.relationshipMutate(rsc, w, r)
		}).Methods(http.MethodOptions, http.MethodPost, http.MethodPatch, http.MethodDelete)

		router.HandleFunc(relatedRoute, func(w http.ResponseWriter, r *http.Request) {
			logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
			b.relationshipGet(rsc, w, r, false)
		}).Methods(http.MethodOptions, http.MethodGet)
	}
}

// handleHealthRoute reports engine reachability, including all engines
// of the manager when one was provided.
func (b *Backend) handleHealthRoute(router *mux.Router) {
	logger.Default().Debugln("  handle health route:", b.prefix+"/healthz", "GET")
	router.HandleFunc(b.prefix+"/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		err := b.engine.Ping(ctx)
		if err == nil && b.manager != nil {
			err = b.manager.HealthCheck(ctx)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err != nil {
			logger.FromContext(ctx).WithError(err).Errorf("Error 2301: health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			data, _ := json.Marshal(map[string]string{"status": "unavailable", "version": Version})
			w.Write(data)
			return
		}
		data, _ := json.Marshal(map[string]string{"status": "ok", "version": Version})
		w.Write(data)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func normalizePrefix(prefix string) string {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}
