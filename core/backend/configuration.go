// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/crudite-tech/crudite/core"
	"github.com/crudite-tech/crudite/core/model"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Models []ModelConfiguration `json:"models"`
}

// ModelConfiguration describes one generated resource
type ModelConfiguration struct {
	// Model is the model name in PascalCase. This is mandatory.
	Model string `json:"model"`
	// Type overrides the resource type used on routes and in documents.
	// The default is the pluralized snake_case form of the model name.
	Type string `json:"type,omitempty"`
	// PrimaryKey names the primary-key field, default "id".
	PrimaryKey string `json:"primary_key,omitempty"`
	// PrimaryKeyType is "integer", "uuid" or "string". If empty it is
	// derived from the primary-key name.
	PrimaryKeyType string `json:"primary_key_type,omitempty"`
	// SoftDelete names the timestamp field that marks a record deleted.
	// Empty disables soft deletion; destroy then deletes for real.
	SoftDelete string `json:"soft_delete,omitempty"`
	// IncludeMerge inlines included records under the relation name in
	// attributes instead of building a compound document.
	IncludeMerge bool `json:"include_merge,omitempty"`
	// EmptyValues selects the update cleanup policy: "omit" (default)
	// drops empty arrays and empty objects from update payloads, "apply"
	// persists them verbatim. Explicit null always clears the field.
	EmptyValues string `json:"empty_values,omitempty"`
	// Operations restricts the generated operations. Empty means all,
	// where recover additionally requires soft_delete.
	Operations []core.Operation `json:"operations,omitempty"`
	// SchemaID selects the JSON schema that create and update attribute
	// payloads are validated against. The schema must be one of the
	// JSONSchemas handed to the builder.
	SchemaID    string           `json:"schema_id,omitempty"`
	Description string           `json:"description,omitempty"`
	Fields      []model.Field    `json:"fields,omitempty"`
	Relations   []model.Relation `json:"relations,omitempty"`
}

// empty-value policies for update payloads
const (
	emptyValuesOmit  = "omit"
	emptyValuesApply = "apply"
)

// NewRegistry parses a configuration and builds the model registry that
// storage engines are constructed from. The backend builds the same
// registry from the same configuration, so engine and backend agree on
// models, keys and relations.
func NewRegistry(config string) (*model.Registry, error) {
	var c Configuration
	if err := json.Unmarshal([]byte(config), &c); err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %s", err)
	}
	registry := model.NewRegistry()
	for i := range c.Models {
		err := registry.Register(c.Models[i].descriptor())
		if err != nil && !errors.Is(err, model.ErrDuplicate) {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return registry, nil
}

var allOperations = []core.Operation{
	core.OperationIndex,
	core.OperationShow,
	core.OperationCreate,
	core.OperationUpdate,
	core.OperationDelete,
	core.OperationRecover,
	core.OperationAtomic,
}

// descriptor converts the configuration into a model descriptor. The
// registry normalizes defaults during registration.
func (mc *ModelConfiguration) descriptor() *model.Descriptor {
	return &model.Descriptor{
		Name:         mc.Model,
		Type:         mc.Type,
		PrimaryKey:   mc.PrimaryKey,
		KeyKind:      model.KeyKind(mc.PrimaryKeyType),
		SoftDelete:   mc.SoftDelete,
		IncludeMerge: mc.IncludeMerge,
		Fields:       mc.Fields,
		Relations:    mc.Relations,
	}
}

// enabledOperations returns the operation set generated for this model.
func (mc *ModelConfiguration) enabledOperations() (map[core.Operation]bool, error) {
	requested := mc.Operations
	if len(requested) == 0 {
		requested = allOperations
	}
	enabled := make(map[core.Operation]bool, len(requested))
	for _, op := range requested {
		switch op {
		case core.OperationIndex, core.OperationShow, core.OperationCreate,
			core.OperationUpdate, core.OperationDelete, core.OperationRecover,
			core.OperationAtomic:
		default:
			return nil, fmt.Errorf("model %s: invalid operation %q", mc.Model, op)
		}
		if op == core.OperationRecover && mc.SoftDelete == "" {
			if len(mc.Operations) > 0 {
				return nil, fmt.Errorf("model %s: recover requires soft_delete", mc.Model)
			}
			continue
		}
		enabled[op] = true
	}
	return enabled, nil
}

// emptyValuesPolicy validates and defaults the cleanup policy.
func (mc *ModelConfiguration) emptyValuesPolicy() (string, error) {
	switch mc.EmptyValues {
	case "":
		return emptyValuesOmit, nil
	case emptyValuesOmit, emptyValuesApply:
		return mc.EmptyValues, nil
	default:
		return "", fmt.Errorf("model %s: invalid empty_values policy %q", mc.Model, mc.EmptyValues)
	}
}
