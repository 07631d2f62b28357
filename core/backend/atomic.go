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
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/crudite-tech/crudite/core"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/jsonapi"
)

// atomicPost executes an ordered batch of operations inside one engine
// transaction. Any failure rolls back the whole batch, so a valid add
// followed by an invalid update leaves zero net changes.
func (b *Backend) atomicPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonapi.WriteError(ctx, w, jsonapi.BadRequest("cannot read request body"), b.production)
		return
	}
	var req jsonapi.AtomicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		jsonapi.WriteError(ctx, w, jsonapi.BadRequest("invalid JSON in request body"), b.production)
		return
	}

	// reject malformed operations before the transaction starts
	for i, op := range req.Operations {
		switch op.Op {
		case jsonapi.AtomicAdd:
			if len(op.Data) == 0 || isNullToken(op.Data) {
				jsonapi.WriteError(ctx, w,
					jsonapi.BadRequest(fmt.Sprintf("operation %d: add requires data", i)), b.production)
				return
			}
		case jsonapi.AtomicUpdate, jsonapi.AtomicRemove:
			if op.Ref == nil {
				jsonapi.WriteError(ctx, w,
					jsonapi.BadRequest(fmt.Sprintf("operation %d: %s requires a ref", i, op.Op)), b.production)
				return
			}
		default:
			jsonapi.WriteError(ctx, w,
				jsonapi.BadRequest(fmt.Sprintf("operation %d: unknown op %q", i, op.Op)), b.production)
			return
		}
	}

	results := make([]*jsonapi.Resource, len(req.Operations))
	lids := make(map[string]any)
	err = b.engine.Tx(ctx, func(tx engine.Client) error {
		for i := range req.Operations {
			res, err := b.applyAtomic(ctx, tx, &req.Operations[i], lids)
			if err != nil {
				return err
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		jsonapi.WriteError(ctx, w, err, b.production)
		return
	}

	b.respond(ctx, w, http.StatusOK, &jsonapi.AtomicResultsDocument{
		Results: results,
		JSONAPI: &jsonapi.VersionObject{Version: jsonapi.Version},
	})
}

// applyAtomic executes one batch operation on the transactional client.
// Removes yield a nil result, which serializes as null.
func (b *Backend) applyAtomic(ctx context.Context, tx engine.Client, op *jsonapi.AtomicOperation, lids map[string]any) (*jsonapi.Resource, error) {
	switch op.Op {
	case jsonapi.AtomicAdd:
		return b.atomicAdd(ctx, tx, op, lids)
	case jsonapi.AtomicUpdate:
		return b.atomicUpdate(ctx, tx, op, lids)
	default:
		return nil, b.atomicRemove(ctx, tx, op, lids)
	}
}

// resourceForType resolves an atomic ref or payload type to its
// registered resource. Inside a batch an unknown type is the client's
// mistake, not a routing miss, so it answers 400 rather than 404.
func (b *Backend) resourceForType(typeName string) (*resource, error) {
	if typeName == "" {
		return nil, jsonapi.BadRequest("operation needs a resource type")
	}
	if d, ok := b.registry.Type(typeName); ok {
		return b.resources[d.Name], nil
	}
	if rsc, ok := b.resources[core.TypeNameToModel(typeName)]; ok {
		return rsc, nil
	}
	return nil, jsonapi.BadRequest(fmt.Sprintf("unknown resource type %q", typeName))
}

// atomicKey resolves the record an update or remove ref addresses,
// either a verbatim id or the local id assigned by an earlier add.
func atomicKey(rsc *resource, ref *jsonapi.AtomicRef, lids map[string]any) (any, error) {
	if ref.Lid != "" {
		key, ok := lids[ref.Lid]
		if !ok {
			return nil, jsonapi.BadRequest(fmt.Sprintf("unknown lid %q", ref.Lid))
		}
		return key, nil
	}
	if ref.ID == "" {
		return nil, jsonapi.BadRequest("ref needs an id or lid")
	}
	return rsc.parseKey(ref.ID)
}

func (b *Backend) atomicAdd(ctx context.Context, tx engine.Client, op *jsonapi.AtomicOperation, lids map[string]any) (*jsonapi.Resource, error) {
	payload, err := decodeResourcePayload(op.Data)
	if err != nil {
		return nil, err
	}
	typeName := payload.Type
	if typeName == "" && op.Ref != nil {
		typeName = op.Ref.Type
	}
	rsc, err := b.resourceForType(typeName)
	if err != nil {
		return nil, err
	}
	d := rsc.descriptor

	attributes := payload.Attributes
	if attributes == nil {
		attributes = engine.Record{}
	}
	if err := b.validatePayload(rsc, attributes); err != nil {
		return nil, err
	}
	if payload.ID != nil && *payload.ID != "" {
		key, err := rsc.parseKey(*payload.ID)
		if err != nil {
			return nil, err
		}
		attributes[d.PrimaryKey] = key
	}
	relations, err := b.resolveRelationships(ctx, tx, d, payload.Relationships, true, false, lids)
	if err != nil {
		return nil, err
	}

	rec, err := tx.Model(d.Name).Create(ctx, engine.Data{Attributes: attributes, Relations: relations})
	if err != nil {
		return nil, err
	}
	if payload.Lid != "" {
		lids[payload.Lid] = rec[d.PrimaryKey]
	}
	return b.transformer(d, nil).Resource(d, rec)
}

func (b *Backend) atomicUpdate(ctx context.Context, tx engine.Client, op *jsonapi.AtomicOperation, lids map[string]any) (*jsonapi.Resource, error) {
	rsc, err := b.resourceForType(op.Ref.Type)
	if err != nil {
		return nil, err
	}
	d := rsc.descriptor
	key, err := atomicKey(rsc, op.Ref, lids)
	if err != nil {
		return nil, err
	}

	attributes := engine.Record{}
	var relations map[string]engine.RelationOp
	if len(op.Data) > 0 && !isNullToken(op.Data) {
		payload, err := decodeResourcePayload(op.Data)
		if err != nil {
			return nil, err
		}
		if payload.Attributes != nil {
			attributes = payload.Attributes
		}
		delete(attributes, d.PrimaryKey)
		if !rsc.applyEmpty {
			stripEmptyValues(attributes)
		}
		if len(attributes) > 0 {
			if err := b.validatePayload(rsc, attributes); err != nil {
				return nil, err
			}
		}
		relations, err = b.resolveRelationships(ctx, tx, d, payload.Relationships, false, false, lids)
		if err != nil {
			return nil, err
		}
	}

	where := engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}}
	if d.HasSoftDelete() {
		where = where.And(d.SoftDelete, engine.OpNull, nil)
	}
	rec, err := tx.Model(d.Name).Update(ctx, where, engine.Data{Attributes: attributes, Relations: relations})
	if errors.Is(err, engine.ErrNotFound) {
		return nil, jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key)))
	}
	if err != nil {
		return nil, err
	}
	return b.transformer(d, nil).Resource(d, rec)
}

// atomicRemove deletes the addressed record, or disconnects relation
// targets when the ref names a relationship. Soft-delete models are
// marked rather than purged, the same as on the destroy route.
func (b *Backend) atomicRemove(ctx context.Context, tx engine.Client, op *jsonapi.AtomicOperation, lids map[string]any) error {
	rsc, err := b.resourceForType(op.Ref.Type)
	if err != nil {
		return err
	}
	d := rsc.descriptor
	key, err := atomicKey(rsc, op.Ref, lids)
	if err != nil {
		return err
	}
	mc := tx.Model(d.Name)

	if op.Ref.Relationship != "" {
		rel, ok := d.Relation(op.Ref.Relationship)
		if !ok {
			return jsonapi.BadRequest(fmt.Sprintf("%s has no relationship %s", d.Type, op.Ref.Relationship))
		}
		var relOp engine.RelationOp
		if rel.Many {
			target, _ := b.registry.Model(rel.Model)
			parse := newKeyParser(target.KeyKind)
			items, null, _, err := decodeLinkages(op.Data)
			if err != nil {
				return jsonapi.BadRequestPointer("/data", "malformed relationship data")
			}
			if null || len(items) == 0 {
				return jsonapi.BadRequest(fmt.Sprintf("remove from relationship %s needs resource identifiers", rel.Name))
			}
			keys := make([]any, 0, len(items))
			for _, item := range items {
				if item.ID == nil {
					return jsonapi.Unprocessable(fmt.Sprintf("relationship %s: element needs an id", rel.Name))
				}
				k, err := parse(*item.ID)
				if err != nil {
					return jsonapi.Unprocessable(fmt.Sprintf("relationship %s: invalid id %q", rel.Name, *item.ID))
				}
				keys = append(keys, k)
			}
			relOp.Disconnect = keys
		} else {
			relOp.Clear = true
		}
		where := engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}}
		if d.HasSoftDelete() {
			where = where.And(d.SoftDelete, engine.OpNull, nil)
		}
		_, err = mc.Update(ctx, where, engine.Data{Relations: map[string]engine.RelationOp{rel.Name: relOp}})
		if errors.Is(err, engine.ErrNotFound) {
			return jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key)))
		}
		return err
	}

	if d.HasSoftDelete() {
		where := engine.Where{
			{Field: d.PrimaryKey, Op: engine.OpEq, Value: key},
			{Field: d.SoftDelete, Op: engine.OpNull},
		}
		_, err = mc.Update(ctx, where, engine.Data{Attributes: engine.Record{d.SoftDelete: time.Now().UTC()}})
	} else {
		_, err = mc.Delete(ctx, engine.Where{{Field: d.PrimaryKey, Op: engine.OpEq, Value: key}})
	}
	if errors.Is(err, engine.ErrNotFound) {
		return jsonapi.NotFound(fmt.Sprintf("no such %s %s", d.Type, engine.FormatKey(key)))
	}
	return err
}
