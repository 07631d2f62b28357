// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package jsonapi

import (
	"fmt"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// Transformer shapes storage records into JSON:API documents. The
// relation list of each model descriptor decides what becomes a
// relationship; attribute values never get reclassified by shape.
type Transformer struct {
	Registry *model.Registry
	// Fields holds the sparse fieldsets of the request, keyed by
	// resource type.
	Fields map[string][]string
	// Prefix is prepended to all generated resource links.
	Prefix string
	// Compound collects related records into a deduplicated included
	// array. It is off for models running in include-merge mode.
	Compound bool

	included []Resource
	seen     map[string]bool
}

// Collection builds a document whose primary data is a resource array.
func (t *Transformer) Collection(d *model.Descriptor, recs []engine.Record) (*Document, error) {
	t.reset()
	resources := make([]Resource, 0, len(recs))
	for _, rec := range recs {
		res, err := t.resource(d, rec)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *res)
	}
	doc := NewDocument(resources)
	doc.Included = t.included
	return doc, nil
}

// Single builds a document whose primary data is one resource.
func (t *Transformer) Single(d *model.Descriptor, rec engine.Record) (*Document, error) {
	t.reset()
	res, err := t.resource(d, rec)
	if err != nil {
		return nil, err
	}
	doc := NewDocument(res)
	doc.Included = t.included
	return doc, nil
}

// Resource builds one resource document without collecting included
// resources, for per-operation results.
func (t *Transformer) Resource(d *model.Descriptor, rec engine.Record) (*Resource, error) {
	sub := &Transformer{Registry: t.Registry, Fields: t.Fields, Prefix: t.Prefix}
	sub.reset()
	return sub.resource(d, rec)
}

func (t *Transformer) reset() {
	t.included = nil
	t.seen = make(map[string]bool)
}

func (t *Transformer) resource(d *model.Descriptor, rec engine.Record) (*Resource, error) {
	key, ok := rec[d.PrimaryKey]
	if !ok || key == nil {
		return nil, fmt.Errorf("%s record without %s", d.Name, d.PrimaryKey)
	}
	id := engine.FormatKey(key)
	base := t.Prefix + "/" + d.Type + "/" + id

	res := &Resource{
		Type:       d.Type,
		ID:         id,
		Attributes: make(map[string]any),
		Links:      &Links{Self: base},
	}

	for name, value := range rec {
		if name == d.PrimaryKey || d.IsRelation(name) || d.IsOwnForeignKey(name) {
			continue
		}
		res.Attributes[name] = value
	}

	for _, rel := range d.Relations {
		target, ok := t.Registry.Model(rel.Model)
		if !ok {
			continue
		}
		relationship := &Relationship{
			Links: &Links{
				Self:    base + "/relationships/" + rel.Name,
				Related: base + "/" + rel.Name,
			},
		}
		loaded, wasLoaded := rec[rel.Name]

		if d.IncludeMerge {
			if wasLoaded {
				res.Attributes[rel.Name] = loaded
			}
			res.relationships(rel.Name, relationship)
			continue
		}

		if rel.Many {
			if related, ok := loaded.([]engine.Record); ok {
				identifiers := make([]ResourceIdentifier, 0, len(related))
				for _, r := range related {
					identifier, err := t.collect(target, r)
					if err != nil {
						return nil, err
					}
					identifiers = append(identifiers, identifier)
				}
				relationship.SetData(identifiers)
			}
		} else {
			switch {
			case wasLoaded && loaded == nil:
				relationship.SetData(nil)
			case wasLoaded:
				related, ok := loaded.(engine.Record)
				if !ok {
					return nil, fmt.Errorf("%s.%s: unexpected relation value", d.Name, rel.Name)
				}
				identifier, err := t.collect(target, related)
				if err != nil {
					return nil, err
				}
				relationship.SetData(identifier)
			default:
				// linkage synthesized from the stored foreign key
				if fk, ok := rec[rel.ForeignKey]; ok {
					if fk == nil {
						relationship.SetData(nil)
					} else {
						relationship.SetData(ResourceIdentifier{Type: target.Type, ID: engine.FormatKey(fk)})
					}
				}
			}
		}
		res.relationships(rel.Name, relationship)
	}

	t.sparse(d, res)
	return res, nil
}

// collect returns the identifier of a related record and, in compound
// mode, adds the record itself to the included array exactly once.
func (t *Transformer) collect(target *model.Descriptor, rec engine.Record) (ResourceIdentifier, error) {
	identifier := ResourceIdentifier{Type: target.Type, ID: engine.FormatKey(rec[target.PrimaryKey])}
	if !t.Compound {
		return identifier, nil
	}
	dedupe := identifier.Type + ":" + identifier.ID
	if t.seen[dedupe] {
		return identifier, nil
	}
	t.seen[dedupe] = true
	res, err := t.resource(target, rec)
	if err != nil {
		return identifier, err
	}
	t.included = append(t.included, *res)
	return identifier, nil
}

// sparse applies the fieldset of the resource's type. The primary key
// and relationship entries survive regardless of the fieldset.
func (t *Transformer) sparse(d *model.Descriptor, res *Resource) {
	fields, ok := t.Fields[d.Type]
	if !ok {
		return
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	for name := range res.Attributes {
		if keep[name] || d.IsRelation(name) {
			continue
		}
		delete(res.Attributes, name)
	}
}

func (r *Resource) relationships(name string, relationship *Relationship) {
	if r.Relationships == nil {
		r.Relationships = make(map[string]*Relationship)
	}
	r.Relationships[name] = relationship
}
