// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/jsonapi"
	"github.com/crudite-tech/crudite/core/logger"
	"github.com/crudite-tech/crudite/core/model"
)

// linkage is one element of relationship data on a write request. An
// element with an id connects an existing record, an element with
// attributes creates the record inline.
type linkage struct {
	Type       string         `json:"type"`
	ID         *string        `json:"id,omitempty"`
	Lid        string         `json:"lid,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// relationshipData unwraps the optional {"data": ...} envelope of a
// relationship object. Bare linkage values pass through unchanged.
func relationshipData(raw json.RawMessage) json.RawMessage {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Data != nil {
		return wrapper.Data
	}
	return raw
}

// decodeLinkages parses relationship data into its elements and reports
// whether the data was null and whether it was an array.
func decodeLinkages(raw json.RawMessage) ([]linkage, bool, bool, error) {
	data := relationshipData(raw)
	if isNullToken(data) {
		return nil, true, false, nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []linkage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false, true, err
		}
		return items, false, true, nil
	}
	var item linkage
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return nil, false, false, err
	}
	return []linkage{item}, false, false, nil
}

// resolveRelationships turns the relationships member of a write request
// into engine relation operations. In create mode a null or empty
// relationship is omitted, in update mode it clears the relation. With
// strict set, connecting a missing record fails the request; otherwise
// the miss is logged and the engine's own constraints have the last
// word. lids resolves local ids assigned by earlier operations of an
// atomic batch and is nil everywhere else.
func (b *Backend) resolveRelationships(ctx context.Context, client engine.Client, d *model.Descriptor, raw map[string]json.RawMessage, creating, strict bool, lids map[string]any) (map[string]engine.RelationOp, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ops := make(map[string]engine.RelationOp)
	for name, value := range raw {
		rel, ok := d.Relation(name)
		if !ok {
			return nil, jsonapi.Unprocessable(fmt.Sprintf("model %s has no relationship %s", d.Name, name))
		}
		op, include, err := b.resolveRelation(ctx, client, rel, value, creating, strict, lids)
		if err != nil {
			return nil, err
		}
		if include {
			ops[name] = op
		}
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return ops, nil
}

func (b *Backend) resolveRelation(ctx context.Context, client engine.Client, rel model.Relation, raw json.RawMessage, creating, strict bool, lids map[string]any) (engine.RelationOp, bool, error) {
	var op engine.RelationOp
	pointer := "/data/relationships/" + rel.Name

	items, null, array, err := decodeLinkages(raw)
	if err != nil {
		return op, false, jsonapi.BadRequestPointer(pointer, "malformed relationship data")
	}
	if null {
		if creating {
			return op, false, nil
		}
		if rel.Many {
			empty := []any{}
			op.Set = &empty
		} else {
			op.Clear = true
		}
		return op, true, nil
	}
	if rel.Many && !array {
		return op, false, jsonapi.BadRequestPointer(pointer, "to-many relationships take an array of resource objects")
	}
	if !rel.Many && array {
		return op, false, jsonapi.BadRequestPointer(pointer, "to-one relationships take a single resource object")
	}
	if array && len(items) == 0 {
		if creating {
			return op, false, nil
		}
		empty := []any{}
		op.Set = &empty
		return op, true, nil
	}

	target, ok := b.registry.Model(rel.Model)
	if !ok {
		return op, false, jsonapi.Unprocessable(fmt.Sprintf("relationship %s references unknown model %s", rel.Name, rel.Model))
	}
	parse := newKeyParser(target.KeyKind)

	var connects []any
	var creates []engine.Record
	for _, item := range items {
		key, attributes, err := b.resolveLinkage(rel, target, item, parse, lids)
		if err != nil {
			return op, false, err
		}
		if attributes != nil {
			creates = append(creates, engine.Record(attributes))
			continue
		}
		if err := b.verifyExists(ctx, client, target, key, strict); err != nil {
			return op, false, err
		}
		connects = append(connects, key)
	}

	// a resource update replaces a to-many relationship rather than
	// extending it, unless inline creates force additive mode
	if rel.Many && !creating && len(creates) == 0 {
		keys := connects
		op.Set = &keys
		return op, true, nil
	}
	op.Connect = connects
	op.Create = creates
	return op, true, nil
}

// resolveLinkage validates one linkage element against the relation
// target and returns either the parsed key of the record to connect or
// the attributes of a record to create inline. A lid resolves through
// the batch-local id map and is only meaningful inside an atomic batch.
func (b *Backend) resolveLinkage(rel model.Relation, target *model.Descriptor, item linkage, parse keyParser, lids map[string]any) (any, map[string]any, error) {
	if item.Type == "" {
		return nil, nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s: resource linkage needs a type", rel.Name))
	}
	if b.registry.ModelForType(item.Type) != target.Name {
		return nil, nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s takes %s resources, got %q", rel.Name, target.Type, item.Type))
	}
	if item.ID != nil {
		key, err := parse(*item.ID)
		if err != nil {
			return nil, nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s: invalid id %q", rel.Name, *item.ID))
		}
		return key, nil, nil
	}
	if item.Lid != "" {
		key, ok := lids[item.Lid]
		if !ok {
			return nil, nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s: unknown lid %q", rel.Name, item.Lid))
		}
		return key, nil, nil
	}
	if item.Attributes != nil {
		return nil, item.Attributes, nil
	}
	return nil, nil, jsonapi.Unprocessable(fmt.Sprintf("relationship %s: element needs id or attributes", rel.Name))
}

// verifyExists probes the relation target before a connect. In strict
// mode a miss rejects the request; otherwise the engine's referential
// constraints remain authoritative and the miss is only logged.
func (b *Backend) verifyExists(ctx context.Context, client engine.Client, target *model.Descriptor, key any, strict bool) error {
	_, err := client.Model(target.Name).FindUnique(ctx,
		engine.Where{{Field: target.PrimaryKey, Op: engine.OpEq, Value: key}})
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrNotFound) {
		detail := fmt.Sprintf("no %s with %s %s", target.Type, target.PrimaryKey, engine.FormatKey(key))
		if strict {
			return jsonapi.Unprocessable(detail)
		}
		logger.FromContext(ctx).Warnln("relationship connect:", detail)
		return nil
	}
	return err
}
