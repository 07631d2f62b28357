// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package model

import (
	"fmt"

	"github.com/crudite-tech/crudite/core"
)

// ErrDuplicate is returned by Register when a model or resource type of
// the same name was registered before. Callers are expected to log and
// carry on; the first registration stays authoritative.
var ErrDuplicate = fmt.Errorf("already registered")

// Registry maps model names and resource types to their descriptors.
//
// The registry is populated at startup and read-only afterwards, so it
// needs no locking.
type Registry struct {
	byModel map[string]*Descriptor
	byType  map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byModel: make(map[string]*Descriptor),
		byType:  make(map[string]*Descriptor),
	}
}

// Register normalizes d and adds it to the registry. Registering a model
// name or resource type twice returns ErrDuplicate and keeps the first
// registration.
func (r *Registry) Register(d *Descriptor) error {
	if err := d.normalize(); err != nil {
		return err
	}
	if _, ok := r.byModel[d.Name]; ok {
		return fmt.Errorf("model %s: %w", d.Name, ErrDuplicate)
	}
	if _, ok := r.byType[d.Type]; ok {
		return fmt.Errorf("type %s: %w", d.Type, ErrDuplicate)
	}
	r.byModel[d.Name] = d
	r.byType[d.Type] = d
	return nil
}

// Validate checks cross-references between registered models. It must be
// called after all models have been registered.
func (r *Registry) Validate() error {
	for _, d := range r.byModel {
		for _, rel := range d.Relations {
			target, ok := r.byModel[rel.Model]
			if !ok {
				return fmt.Errorf("model %s: relation %s references unknown model %s",
					d.Name, rel.Name, rel.Model)
			}
			if !rel.Many {
				continue
			}
			// A to-many and the target's inverse to-one share one
			// foreign-key column; that pair is the normal shape. Only a
			// to-one claiming the column for a different model is a
			// configuration error.
			for _, inverse := range target.Relations {
				if !inverse.Many && inverse.ForeignKey == rel.ForeignKey && inverse.Model != d.Name {
					return fmt.Errorf("model %s: relation %s foreign key %s collides with the %s key of %s",
						d.Name, rel.Name, rel.ForeignKey, inverse.Name, target.Name)
				}
			}
		}
	}
	return nil
}

// Model returns the descriptor for the given model name.
func (r *Registry) Model(name string) (*Descriptor, bool) {
	d, ok := r.byModel[name]
	return d, ok
}

// Type returns the descriptor for the given resource type.
func (r *Registry) Type(typeName string) (*Descriptor, bool) {
	d, ok := r.byType[typeName]
	return d, ok
}

// ModelForType resolves a resource type to a model name. Registered
// types win; unregistered types fall back to the naming heuristic.
func (r *Registry) ModelForType(typeName string) string {
	if d, ok := r.byType[typeName]; ok {
		return d.Name
	}
	return core.TypeNameToModel(typeName)
}

// Models returns all registered descriptors.
func (r *Registry) Models() []*Descriptor {
	all := make([]*Descriptor, 0, len(r.byModel))
	for _, d := range r.byModel {
		all = append(all, d)
	}
	return all
}

// ForeignKeyColumns returns the foreign-key columns stored on model
// name, mapped to the model each column references. The model's own
// to-one relations contribute their foreign keys; the to-many relations
// of other models targeting name store theirs here too, pointing back
// at the declaring model.
func (r *Registry) ForeignKeyColumns(name string) map[string]string {
	out := make(map[string]string)
	d, ok := r.byModel[name]
	if !ok {
		return out
	}
	for _, rel := range d.Relations {
		if !rel.Many {
			out[rel.ForeignKey] = rel.Model
		}
	}
	for _, other := range r.byModel {
		for _, rel := range other.Relations {
			if rel.Many && rel.Model == name {
				out[rel.ForeignKey] = other.Name
			}
		}
	}
	return out
}
