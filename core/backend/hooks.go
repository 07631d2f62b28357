// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"context"

	"github.com/crudite-tech/crudite/core"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/logger"
)

// HookEvent carries one mutation through its before and after hooks.
type HookEvent struct {
	// Model is the model name the operation addresses.
	Model string
	// Operation is one of create, update, delete or recover.
	Operation core.Operation
	// Key is the parsed primary key of the addressed record. It is nil
	// for create.
	Key any
	// Data is the mutation about to be executed. Before hooks may
	// rewrite it; delete on a hard-delete model carries none.
	Data *engine.Data
	// Record is the mutation result, set when the after hooks run.
	Record engine.Record
}

// hook phases
const (
	hookBefore = "before"
	hookAfter  = "after"
)

// IndexHook can rewrite the engine options of a list request before it
// executes, for example to add a mandatory predicate.
type IndexHook func(ctx context.Context, opts *engine.FindManyOptions) error

// ShowHook can rewrite the engine options of a single-record read
// before it executes.
type ShowHook func(ctx context.Context, opts *engine.FindOptions) error

// MutationHook runs before or after a mutation. An error from a before
// hook aborts the operation; an error from an after hook fails the
// request while the mutation stays applied. A returned *jsonapi.Error
// keeps its status, anything else is reported as an internal error.
type MutationHook func(ctx context.Context, event *HookEvent) error

// BeforeIndex installs a hook for the index operation of the given
// model. Installing a hook twice or for an unknown model is a
// programming error and fatal.
func (b *Backend) BeforeIndex(model string, hook IndexHook) {
	b.checkHookTarget(model)
	key := hookKey(model, hookBefore, core.OperationIndex)
	if _, ok := b.indexHooks[key]; ok {
		logger.Default().Fatalf("hook for %s already installed", key)
	}
	logger.Default().Debugf("install hook for %s", key)
	b.indexHooks[key] = hook
}

// BeforeShow installs a hook for the show operation of the given model.
func (b *Backend) BeforeShow(model string, hook ShowHook) {
	b.checkHookTarget(model)
	key := hookKey(model, hookBefore, core.OperationShow)
	if _, ok := b.showHooks[key]; ok {
		logger.Default().Fatalf("hook for %s already installed", key)
	}
	logger.Default().Debugf("install hook for %s", key)
	b.showHooks[key] = hook
}

// BeforeCreate installs a hook running before create mutations.
func (b *Backend) BeforeCreate(model string, hook MutationHook) {
	b.installMutationHook(model, hookBefore, core.OperationCreate, hook)
}

// AfterCreate installs a hook running after create mutations.
func (b *Backend) AfterCreate(model string, hook MutationHook) {
	b.installMutationHook(model, hookAfter, core.OperationCreate, hook)
}

// BeforeUpdate installs a hook running before update mutations.
func (b *Backend) BeforeUpdate(model string, hook MutationHook) {
	b.installMutationHook(model, hookBefore, core.OperationUpdate, hook)
}

// AfterUpdate installs a hook running after update mutations.
func (b *Backend) AfterUpdate(model string, hook MutationHook) {
	b.installMutationHook(model, hookAfter, core.OperationUpdate, hook)
}

// BeforeDestroy installs a hook running before destroy mutations, both
// soft and hard.
func (b *Backend) BeforeDestroy(model string, hook MutationHook) {
	b.installMutationHook(model, hookBefore, core.OperationDelete, hook)
}

// AfterDestroy installs a hook running after destroy mutations, both
// soft and hard.
func (b *Backend) AfterDestroy(model string, hook MutationHook) {
	b.installMutationHook(model, hookAfter, core.OperationDelete, hook)
}

// BeforeRecover installs a hook running before a soft-deleted record is
// recovered.
func (b *Backend) BeforeRecover(model string, hook MutationHook) {
	b.installMutationHook(model, hookBefore, core.OperationRecover, hook)
}

// AfterRecover installs a hook running after a soft-deleted record was
// recovered.
func (b *Backend) AfterRecover(model string, hook MutationHook) {
	b.installMutationHook(model, hookAfter, core.OperationRecover, hook)
}

func (b *Backend) installMutationHook(model, phase string, op core.Operation, hook MutationHook) {
	b.checkHookTarget(model)
	key := hookKey(model, phase, op)
	if _, ok := b.mutationHooks[key]; ok {
		logger.Default().Fatalf("hook for %s already installed", key)
	}
	logger.Default().Debugf("install hook for %s", key)
	b.mutationHooks[key] = hook
}

func (b *Backend) checkHookTarget(model string) {
	if _, ok := b.resources[model]; !ok {
		logger.Default().Fatalf("install hook: no such model %s", model)
	}
}

func hookKey(model, phase string, op core.Operation) string {
	return model + "(" + phase + ":" + string(op) + ")"
}

func (b *Backend) runIndexHook(ctx context.Context, model string, opts *engine.FindManyOptions) error {
	if hook, ok := b.indexHooks[hookKey(model, hookBefore, core.OperationIndex)]; ok {
		return hook(ctx, opts)
	}
	return nil
}

func (b *Backend) runShowHook(ctx context.Context, model string, opts *engine.FindOptions) error {
	if hook, ok := b.showHooks[hookKey(model, hookBefore, core.OperationShow)]; ok {
		return hook(ctx, opts)
	}
	return nil
}

func (b *Backend) runMutationHook(ctx context.Context, phase string, event *HookEvent) error {
	if hook, ok := b.mutationHooks[hookKey(event.Model, phase, event.Operation)]; ok {
		return hook(ctx, event)
	}
	return nil
}
