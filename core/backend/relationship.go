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

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/jsonapi"
	"github.com/crudite-tech/crudite/core/logger"
	"github.com/crudite-tech/crudite/core/model"
)

// linkageDocument builds the resource-linkage document of one relation
// from an owner record loaded with that relation included.
func (b *Backend) linkageDocument(d *model.Descriptor, rel model.Relation, key any, rec engine.Record) *jsonapi.Document {
	target, _ := b.registry.Model(rel.Model)
	base := b.prefix + "/" + d.Type + "/" + engine.FormatKey(key)

	var doc *jsonapi.Document
	if rel.Many {
		related, _ := rec[rel.Name].([]engine.Record)
		identifiers := make([]jsonapi.ResourceIdentifier, 0, len(related))
		for _, r := range related {
			identifiers = append(identifiers,
				jsonapi.ResourceIdentifier{Type: target.Type, ID: engine.FormatKey(r[target.PrimaryKey])})
		}
		doc = jsonapi.NewDocument(identifiers)
		doc.Meta = jsonapi.CollectionMeta(int64(len(identifiers)), len(identifiers), nil)
	} else {
		if related, ok := rec[rel.Name].(engine.Record); ok {
			doc = jsonapi.NewDocument(
				jsonapi.ResourceIdentifier{Type: target.Type, ID: engine.FormatKey(related[target.PrimaryKey])})
		} else {
			doc = jsonapi.NewDocument(nil)
		}
	}
	doc.Links = &jsonapi.Links{
		Self:    base + "/relationships/" + rel.Name,
		Related: base + "/" + rel.Name,
	}
	return doc
}

// relationshipGet serves both read shapes of one relation: the
// resource-linkage form under /relationships/{name} and the full
// related documents under /{name}.
func (b *Backend) relationshipGet(rsc *resource, w http.ResponseWriter, r *http.Request, linkageOnly bool) {
	ctx := r.Context()
	d := rsc.descriptor
	vars := mux.Vars(r)

	name := vars["relationship"]
	if !linkageOnly {
		name = vars["related"]
	}
	rel, ok := d.Relation(name)
	if !ok {
		jsonapi.WriteError(ctx, w,
			jsonapi.NotFound(fmt.Sprintf("%s has no relationship %s", d.Type, name)), b.production)
		return
	}
	key, err := rsc.parseKey(vars[d.PrimaryKey])
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	opts := engine.FindOptions{
		Where:   engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}},
		Include: engine.Include{rel.Name: nil},
	}
	if d.HasSoftDelete() {
		opts.Where = opts.Where.And(d.SoftDelete, engine.OpNull, nil)
	}
	rec, err := b.engine.Model(d.Name).FindFirst(ctx, opts)
	if errors.Is(err, engine.ErrNotFound) {
		jsonapi.WriteError(ctx, w, b.classifyMiss(ctx, rsc, key, false), b.production)
		return
	}
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	if linkageOnly {
		body, ok := b.marshal(ctx, w, b.linkageDocument(d, rel, key, rec))
		if !ok {
			return
		}
		respondCached(w, r, bytesToEtag(body), body)
		return
	}

	target, _ := b.registry.Model(rel.Model)
	var doc *jsonapi.Document
	if rel.Many {
		related, _ := rec[rel.Name].([]engine.Record)
		doc, err = b.transformer(target, nil).Collection(target, related)
		if err == nil {
			doc.Meta = jsonapi.CollectionMeta(int64(len(related)), len(related), nil)
		}
	} else if related, ok := rec[rel.Name].(engine.Record); ok {
		doc, err = b.transformer(target, nil).Single(target, related)
	} else {
		doc = jsonapi.NewDocument(nil)
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 2308: cannot shape %s relationship %s", d.Type, rel.Name)
		jsonapi.WriteError(ctx, w, jsonapi.Internal("Error 2308"), b.production)
		return
	}
	doc.Links = &jsonapi.Links{
		Self: b.prefix + "/" + d.Type + "/" + engine.FormatKey(key) + "/" + rel.Name,
	}
	body, ok := b.marshal(ctx, w, doc)
	if !ok {
		return
	}
	respondCached(w, r, bytesToEtag(body), body)
}

// relationshipMutate answers POST, PATCH and DELETE on the relationship
// routes: connect, replace and disconnect for to-many relations, replace
// and clear for to-one. The JSON:API media type is mandatory here and
// every identifier must name an existing record.
func (b *Backend) relationshipMutate(rsc *resource, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := rsc.descriptor

	if err := requireMediaType(r); err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	vars := mux.Vars(r)
	name := vars["relationship"]
	rel, ok := d.Relation(name)
	if !ok {
		jsonapi.WriteError(ctx, w,
			jsonapi.NotFound(fmt.Sprintf("%s has no relationship %s", d.Type, name)), b.production)
		return
	}
	key, err := rsc.parseKey(vars[d.PrimaryKey])
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	raw, err := readData(r)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	op, err := b.relationOpFromLinkage(ctx, b.engine, rel, raw, r.Method)
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	where := engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}}
	if d.HasSoftDelete() {
		where = where.And(d.SoftDelete, engine.OpNull, nil)
	}
	mc := b.engine.Model(d.Name)
	data := engine.Data{Relations: map[string]engine.RelationOp{rel.Name: op}}
	if _, err := mc.Update(ctx, where, data); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			jsonapi.WriteError(ctx, w,
				jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key))), b.production)
			return
		}
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	rec, err := mc.FindFirst(ctx, engine.FindOptions{Where: where, Include: engine.Include{rel.Name: nil}})
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}
	b.respond(ctx, w, http.StatusOK, b.linkageDocument(d, rel, key, rec))
}

// relationOpFromLinkage maps a relationship mutation onto the engine
// verb matching the HTTP method.
func (b *Backend) relationOpFromLinkage(ctx context.Context, client engine.Client, rel model.Relation, raw json.RawMessage, method string) (engine.RelationOp, error) {
	var op engine.RelationOp
	items, null, array, err := decodeLinkages(raw)
	if err != nil {
		return op, jsonapi.BadRequestPointer("/data", "malformed relationship data")
	}

	if !rel.Many {
		switch method {
		case http.MethodPatch:
			if null {
				op.Clear = true
				return op, nil
			}
			if array {
				return op, jsonapi.BadRequestPointer("/data", "to-one relationships take a single resource identifier")
			}
			keys, err := b.connectKeys(ctx, client, rel, items)
			if err != nil {
				return op, err
			}
			op.Connect = keys
			return op, nil
		case http.MethodDelete:
			op.Clear = true
			return op, nil
		}
		return op, jsonapi.BadRequest("to-one relationships support PATCH and DELETE only")
	}

	if !null && !array {
		return op, jsonapi.BadRequestPointer("/data", "to-many relationships take an array of resource identifiers")
	}
	keys, err := b.connectKeys(ctx, client, rel, items)
	if err != nil {
		return op, err
	}
	switch method {
	case http.MethodPost:
		if null {
			return op, jsonapi.BadRequestPointer("/data", "missing resource identifiers")
		}
		op.Connect = keys
	case http.MethodPatch:
		op.Set = &keys
	default: // DELETE
		if null {
			return op, jsonapi.BadRequestPointer("/data", "missing resource identifiers")
		}
		op.Disconnect = keys
	}
	return op, nil
}

// connectKeys parses and verifies the identifiers of a relationship
// mutation. Unlike document writes, the dedicated relationship routes
// verify every target strictly.
func (b *Backend) connectKeys(ctx context.Context, client engine.Client, rel model.Relation, items []linkage) ([]any, error) {
	target, ok := b.registry.Model(rel.Model)
	if !ok {
		return nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s references unknown model %s", rel.Name, rel.Model))
	}
	parse := newKeyParser(target.KeyKind)
	keys := make([]any, 0, len(items))
	for _, item := range items {
		if item.ID == nil {
			return nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s: element needs an id", rel.Name))
		}
		key, _, err := b.resolveLinkage(rel, target, item, parse, nil)
		if err != nil {
			return nil, err
		}
		if err := b.verifyExists(ctx, client, target, key, true); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
