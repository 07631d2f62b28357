// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/crudite-tech/crudite/core"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/jsonapi"
	"github.com/crudite-tech/crudite/core/logger"
	"github.com/crudite-tech/crudite/core/model"
	"github.com/crudite-tech/crudite/core/query"
)

// transformer builds the document shaper for one request.
func (b *Backend) transformer(d *model.Descriptor, fields map[string][]string) *jsonapi.Transformer {
	return &jsonapi.Transformer{
		Registry: b.registry,
		Fields:   fields,
		Prefix:   b.prefix,
		Compound: !d.IncludeMerge,
	}
}

// validatePayload checks attributes against the model's JSON schema, if
// one was configured. Violations reject the request with 422.
func (b *Backend) validatePayload(rsc *resource, attributes engine.Record) error {
	if rsc.schemaID == "" {
		return nil
	}
	if err := b.validator.ValidateStruct(attributes, rsc.schemaID); err != nil {
		return jsonapi.Unprocessable(err.Error())
	}
	return nil
}

// classifyMiss explains a read miss. On soft-delete models the record
// may still exist as a tombstone, which reads answer with 410 Gone
// instead of 404, unless deleted records were requested explicitly.
func (b *Backend) classifyMiss(ctx context.Context, rsc *resource, key any, includeDeleted bool) error {
	d := rsc.descriptor
	if d.HasSoftDelete() && !includeDeleted {
		_, err := b.engine.Model(d.Name).FindFirst(ctx, engine.FindOptions{
			Where: engine.Where{
				{Field: d.PrimaryKey, Op: engine.OpEq, Value: key},
				{Field: d.SoftDelete, Op: engine.OpNotNull},
			},
		})
		if err == nil {
			return jsonapi.Gone(fmt.Sprintf("%s %s has been deleted", d.Type, engine.FormatKey(key)))
		}
		if !errors.Is(err, engine.ErrNotFound) {
			return err
		}
	}
	return jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key)))
}

// collectionGet answers list requests: parse and build the query, run
// the index hook, hide tombstones, then count and fetch concurrently
// and answer with pagination links and collection meta.
func (b *Backend) collectionGet(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	q, err := query.Parse(r.URL.Query(), d, b.registry, b.maxPageSize)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if q.Pagination == nil {
		jsonapi.WriteError(ctx, w, jsonapi.BadRequestParameter("page[size]",
			"list requests must be paginated with page[size] and page[number] or page[cursor]"), b.production)
		return
	}
	if len(q.Dropped) > 0 {
		logger.FromContext(ctx).Debugln("ignored query parameters:", strings.Join(q.Dropped, ", "))
	}

	built, err := query.Build(q, d, b.registry)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if len(built.Dropped) > 0 {
		logger.FromContext(ctx).Debugln("ignored include paths:", strings.Join(built.Dropped, ", "))
	}

	if err := b.runIndexHook(ctx, d.Name, &built.FindMany); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if d.HasSoftDelete() && !q.IncludeDeleted {
		built.FindMany.Where = built.FindMany.Where.And(d.SoftDelete, engine.OpNull, nil)
	}
	// the count must see exactly the predicate the page was cut from
	built.Count.Where = built.FindMany.Where

	mc := b.engine.Model(d.Name)
	var (
		recs  []engine.Record
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recs, err = mc.FindMany(gctx, built.FindMany)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = mc.Count(gctx, built.Count)
		return err
	})
	if err := g.Wait(); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	doc, err := b.transformer(d, q.Fields).Collection(d, recs)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2303: cannot shape %s collection", d.Type)
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2303"), b.production)
		return
	}
	var lastKey any
	if len(recs) > 0 {
		lastKey = recs[len(recs)-1][d.PrimaryKey]
	}
	doc.Links = jsonapi.PaginationLinks(b.prefix+"/"+d.Type, q.Values, q.Pagination, total, len(recs), lastKey)
	doc.Meta = jsonapi.CollectionMeta(total, len(recs), q.Pagination)

	body, ok := b.marshal(ctx, w, doc)
	if !ok {
		return
	}
	respondCached(w, r, bytesPlusTotalCountToEtag(body, total), body)
}

// itemGet answers single-record reads, with includes and sparse
// fieldsets applied the same way as on collections.
func (b *Backend) itemGet(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	key, err := rsc.parseKey(mux.Vars(r)[d.PrimaryKey])
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	q, err := query.Parse(r.URL.Query(), d, b.registry, b.maxPageSize)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	opts := engine.FindOptions{
		Where:   engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}},
		Include: query.BuildInclude(q, d, b.registry),
	}
	if err := b.runShowHook(ctx, d.Name, &opts); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if d.HasSoftDelete() && !q.IncludeDeleted {
		opts.Where = opts.Where.And(d.SoftDelete, engine.OpNull, nil)
	}

	rec, err := b.engine.Model(d.Name).FindFirst(ctx, opts)
	if errors.Is(err, engine.ErrNotFound) {
		jsonapi.WriteError(ctx, w, b.classifyMiss(ctx, rsc, key, q.IncludeDeleted), b.production)
		return
	}
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	doc, err := b.transformer(d, q.Fields).Single(d, rec)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2304: cannot shape %s resource", d.Type)
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2304"), b.production)
		return
	}
	body, ok := b.marshal(ctx, w, doc)
	if !ok {
		return
	}
	respondCached(w, r, bytesToEtag(body), body)
}

// collectionPost creates a record from a resource document. A client
// supplied id is honored when it parses; the schema check and the
// before-create hook both run before the engine sees the data.
func (b *Backend) collectionPost(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	raw, err := readData(r)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	payload, err := decodeResourcePayload(raw)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if payload.Type == "" {
		jsonapi.WriteError(ctx, w, jsonapi.BadRequestPointer("/data/type", "missing resource type"), b.production)
		return
	}
	if !b.matchesType(d, payload.Type) {
		jsonapi.WriteError(ctx, w, jsonapi.BadRequestPointer("/data/type",
			fmt.Sprintf("resource type %q does not belong here, expected %q", payload.Type, d.Type)), b.production)
		return
	}

	attributes := payload.Attributes
	if attributes == nil {
		attributes = engine.Record{}
	}
	if err := b.validatePayload(rsc, attributes); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if payload.ID != nil && *payload.ID != "" {
		key, err := rsc.parseKey(*payload.ID)
		if err != nil {
			jsonapi.WriteError(ctx, w, err, b.production)
			return
		}
		attributes[d.PrimaryKey] = key
	}

	relations, err := b.resolveRelationships(ctx, b.engine, d, payload.Relationships, true, false, nil)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	event := &HookEvent{
		Model:     d.Name,
		Operation: core.OperationCreate,
		Data:      &engine.Data{Attributes: attributes, Relations: relations},
	}
	if err := b.runMutationHook(ctx, hookBefore, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	rec, err := b.engine.Model(d.Name).Create(ctx, *event.Data)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	event.Key = rec[d.PrimaryKey]
	event.Record = rec
	if err := b.runMutationHook(ctx, hookAfter, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	doc, err := b.transformer(d, nil).Single(d, rec)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2305: cannot shape %s resource", d.Type)
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2305"), b.production)
		return
	}
	w.Header().Set("Location", b.prefix+"/"+d.Type+"/"+engine.FormatKey(rec[d.PrimaryKey]))
	b.respond(ctx, w, http.StatusCreated, doc)
}

// itemUpdate answers PUT and PATCH with identical semantics: a partial
// update of the attributes and relationships present in the document.
func (b *Backend) itemUpdate(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	key, err := rsc.parseKey(mux.Vars(r)[d.PrimaryKey])
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	raw, err := readData(r)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	payload, err := decodeResourcePayload(raw)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	if payload.Type != "" && !b.matchesType(d, payload.Type) {
		jsonapi.WriteError(ctx, w, jsonapi.BadRequestPointer("/data/type",
			fmt.Sprintf("resource type %q does not belong here, expected %q", payload.Type, d.Type)), b.production)
		return
	}
	if payload.ID != nil && *payload.ID != "" {
		bodyKey, err := rsc.parseKey(*payload.ID)
		if err != nil {
			jsonapi.WriteError(ctx, w, err, b.production)
			return
		}
		if engine.FormatKey(bodyKey) != engine.FormatKey(key) {
			jsonapi.WriteError(ctx, w,
				jsonapi.BadRequestPointer("/data/id", "id does not match the request path"), b.production)
			return
		}
	}

	attributes := payload.Attributes
	if attributes == nil {
		attributes = engine.Record{}
	}
	// the primary key travels in data.id, never in attributes
	delete(attributes, d.PrimaryKey)
	if !rsc.applyEmpty {
		stripEmptyValues(attributes)
	}
	if len(attributes) > 0 {
		if err := b.validatePayload(rsc, attributes); err != nil {
			jsonapi.WriteError(ctx, w, err, b.production)
			return
		}
	}

	relations, err := b.resolveRelationships(ctx, b.engine, d, payload.Relationships, false, false, nil)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	where := engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}}
	if d.HasSoftDelete() {
		where = where.And(d.SoftDelete, engine.OpNull, nil)
	}

	event := &HookEvent{
		Model:     d.Name,
		Operation: core.OperationUpdate,
		Key:       key,
		Data:      &engine.Data{Attributes: attributes, Relations: relations},
	}
	if err := b.runMutationHook(ctx, hookBefore, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	rec, err := b.engine.Model(d.Name).Update(ctx, where, *event.Data)
	if errors.Is(err, engine.ErrNotFound) {
		jsonapi.WriteError(ctx, w,
			jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key))), b.production)
		return
	}
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	event.Record = rec
	if err := b.runMutationHook(ctx, hookAfter, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	doc, err := b.transformer(d, nil).Single(d, rec)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2306: cannot shape %s resource", d.Type)
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2306"), b.production)
		return
	}
	b.respond(ctx, w, http.StatusOK, doc)
}

// itemDelete destroys a record. Soft-delete models are marked with the
// deletion timestamp and answer 200 with deletion meta, hard deletes
// answer 204.
func (b *Backend) itemDelete(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	key, err := rsc.parseKey(mux.Vars(r)[d.PrimaryKey])
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	mc := b.engine.Model(d.Name)
	event := &HookEvent{Model: d.Name, Operation: core.OperationDelete, Key: key}

	if d.HasSoftDelete() {
		event.Data = &engine.Data{Attributes: engine.Record{d.SoftDelete: time.Now().UTC()}}
		if err := b.runMutationHook(ctx, hookBefore, event); err != nil {
			jsonapi.WriteError(ctx, w, err, b.production)
			return
		}
		where := engine.Where{
			{Field: d.PrimaryKey, Op: engine.OpEq, Value: key},
			{Field: d.SoftDelete, Op: engine.OpNull},
		}
		rec, err := mc.Update(ctx, where, *event.Data)
		if errors.Is(err, engine.ErrNotFound) {
			jsonapi.WriteError(ctx, w,
				jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key))), b.production)
			return
		}
		if err != nil {
			jsonapi.WriteError(ctx, w, err, b.production)
			return
		}
		event.Record = rec
		if err := b.runMutationHook(ctx, hookAfter, event); err != nil {
			jsonapi.WriteError(ctx, w, err, b.production)
			return
		}

		doc := jsonapi.NewDocument(nil)
		doc.Meta["deleted"] = true
		doc.Meta[d.SoftDelete] = rec[d.SoftDelete]
		b.respond(ctx, w, http.StatusOK, doc)
		return
	}

	if err := b.runMutationHook(ctx, hookBefore, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	rec, err := mc.Delete(ctx, engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}})
	if errors.Is(err, engine.ErrNotFound) {
		jsonapi.WriteError(ctx, w,
			jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key))), b.production)
		return
	}
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	event.Record = rec
	if err := b.runMutationHook(ctx, hookAfter, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// itemRecover clears the deletion marker of a soft-deleted record. A
// record that is alive answers 409 Conflict, a record that never
// existed 404.
func (b *Backend) itemRecover(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	key, err := rsc.parseKey(mux.Vars(r)[d.PrimaryKey])
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	mc := b.engine.Model(d.Name)
	where := engine.Where{
		{Field: d.PrimaryKey, Op: engine.OpEq, Value: key},
		{Field: d.SoftDelete, Op: engine.OpNotNull},
	}
	if _, err := mc.FindFirst(ctx, engine.FindOptions{Where: where}); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			if _, probeErr := mc.FindUnique(ctx,
				engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}}); probeErr == nil {
				jsonapi.WriteError(ctx, w,
					jsonapi.Conflict(fmt.Sprintf("%s %s is already active", d.Type, engine.FormatKey(key))), b.production)
				return
			}
			jsonapi.WriteError(ctx, w,
				jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key))), b.production)
			return
		}
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	event := &HookEvent{
		Model:     d.Name,
		Operation: core.OperationRecover,
		Key:       key,
		Data:      &engine.Data{Attributes: engine.Record{d.SoftDelete: nil}},
	}
	if err := b.runMutationHook(ctx, hookBefore, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	rec, err := mc.Update(ctx, where, *event.Data)
	if errors.Is(err, engine.ErrNotFound) {
		jsonapi.WriteError(ctx, w,
			jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key))), b.production)
		return
	}
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	event.Record = rec
	if err := b.runMutationHook(ctx, hookAfter, event); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	doc, err := b.transformer(d, nil).Single(d, rec)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2307: cannot shape %s resource", d.Type)
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2307"), b.production)
		return
	}
	b.respond(ctx, w, http.StatusOK, doc)
}
