// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package memory implements the storage engine contract with plain maps.
//
// The engine keeps every record in process memory, guarded by a single
// mutex. It exists for tests and for services that want a full REST
// backend without a database; transactions are snapshots of the whole
// store, rolled back on error.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// Engine is an in-memory implementation of engine.Client.
type Engine struct {
	registry *model.Registry
	mu       sync.Mutex
	s        *store
	closed   bool
}

type store struct {
	rows  map[string]map[string]engine.Record // model name -> key -> record
	order map[string][]string                 // model name -> keys in insertion order
	seq   map[string]int64                    // model name -> last integer key
}

// New creates an empty engine for the models of the given registry.
func New(registry *model.Registry) *Engine {
	s := &store{
		rows:  make(map[string]map[string]engine.Record),
		order: make(map[string][]string),
		seq:   make(map[string]int64),
	}
	for _, d := range registry.Models() {
		s.rows[d.Name] = make(map[string]engine.Record)
	}
	return &Engine{registry: registry, s: s}
}

// Model returns the client for the named model.
func (e *Engine) Model(name string) engine.ModelClient {
	d, ok := e.registry.Model(name)
	if !ok {
		return errModelClient{name: name}
	}
	return &modelClient{e: e, d: d, locked: false}
}

// Tx runs fn on a snapshot of the store. Any error restores the
// snapshot, discarding every change fn made. Transactions nested inside
// fn join the outer transaction.
func (e *Engine) Tx(ctx context.Context, fn func(tx engine.Client) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrNotConnected
	}
	snapshot := e.s.clone()
	if err := fn(&txClient{e: e}); err != nil {
		e.s = snapshot
		return err
	}
	return nil
}

// Ping reports whether the engine is still open.
func (e *Engine) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrNotConnected
	}
	return nil
}

// Close shuts the engine down. Subsequent operations fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// txClient is the engine.Client handed to transaction callbacks. The
// engine mutex is already held, so its model clients skip locking.
type txClient struct {
	e *Engine
}

func (t *txClient) Model(name string) engine.ModelClient {
	d, ok := t.e.registry.Model(name)
	if !ok {
		return errModelClient{name: name}
	}
	return &modelClient{e: t.e, d: d, locked: true}
}

func (t *txClient) Tx(ctx context.Context, fn func(tx engine.Client) error) error {
	return fn(t)
}

func (t *txClient) Ping(ctx context.Context) error { return nil }

func (t *txClient) Close() error { return nil }

// errModelClient fails every operation with ErrUnknownModel.
type errModelClient struct{ name string }

func (c errModelClient) err() error {
	return fmt.Errorf("%s: %w", c.name, engine.ErrUnknownModel)
}

func (c errModelClient) FindMany(context.Context, engine.FindManyOptions) ([]engine.Record, error) {
	return nil, c.err()
}
func (c errModelClient) Count(context.Context, engine.CountOptions) (int64, error) {
	return 0, c.err()
}
func (c errModelClient) FindUnique(context.Context, engine.Where) (engine.Record, error) {
	return nil, c.err()
}
func (c errModelClient) FindFirst(context.Context, engine.FindOptions) (engine.Record, error) {
	return nil, c.err()
}
func (c errModelClient) Create(context.Context, engine.Data) (engine.Record, error) {
	return nil, c.err()
}
func (c errModelClient) Update(context.Context, engine.Where, engine.Data) (engine.Record, error) {
	return nil, c.err()
}
func (c errModelClient) Delete(context.Context, engine.Where) (engine.Record, error) {
	return nil, c.err()
}

type modelClient struct {
	e      *Engine
	d      *model.Descriptor
	locked bool // true inside transactions, where the engine mutex is held
}

func (c *modelClient) lock() (func(), error) {
	if c.locked {
		return func() {}, nil
	}
	c.e.mu.Lock()
	if c.e.closed {
		c.e.mu.Unlock()
		return nil, engine.ErrNotConnected
	}
	return c.e.mu.Unlock, nil
}

func (c *modelClient) FindMany(ctx context.Context, opts engine.FindManyOptions) ([]engine.Record, error) {
	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.e.findManyLocked(c.d, opts)
}

func (c *modelClient) Count(ctx context.Context, opts engine.CountOptions) (int64, error) {
	unlock, err := c.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return c.e.countLocked(c.d, opts)
}

func (c *modelClient) FindUnique(ctx context.Context, where engine.Where) (engine.Record, error) {
	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.e.findFirstLocked(c.d, engine.FindOptions{Where: where})
}

func (c *modelClient) FindFirst(ctx context.Context, opts engine.FindOptions) (engine.Record, error) {
	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.e.findFirstLocked(c.d, opts)
}

func (c *modelClient) Create(ctx context.Context, data engine.Data) (engine.Record, error) {
	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	// mutations with relation side effects stay all-or-nothing even
	// outside an explicit transaction
	snapshot := c.e.s.clone()
	rec, err := c.e.createLocked(c.d, data)
	if err != nil {
		c.e.s = snapshot
		return nil, err
	}
	return rec, nil
}

func (c *modelClient) Update(ctx context.Context, where engine.Where, data engine.Data) (engine.Record, error) {
	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	snapshot := c.e.s.clone()
	rec, err := c.e.updateLocked(c.d, where, data)
	if err != nil {
		c.e.s = snapshot
		return nil, err
	}
	return rec, nil
}

func (c *modelClient) Delete(ctx context.Context, where engine.Where) (engine.Record, error) {
	unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.e.deleteLocked(c.d, where)
}

// ------------------------------------------------------------------
// store internals, all called with the engine mutex held
// ------------------------------------------------------------------

func (s *store) clone() *store {
	out := &store{
		rows:  make(map[string]map[string]engine.Record, len(s.rows)),
		order: make(map[string][]string, len(s.order)),
		seq:   make(map[string]int64, len(s.seq)),
	}
	for name, table := range s.rows {
		rows := make(map[string]engine.Record, len(table))
		for key, rec := range table {
			rows[key] = cloneRecord(rec)
		}
		out.rows[name] = rows
	}
	for name, keys := range s.order {
		out.order[name] = append([]string(nil), keys...)
	}
	for name, n := range s.seq {
		out.seq[name] = n
	}
	return out
}

func cloneRecord(rec engine.Record) engine.Record {
	out := make(engine.Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case engine.Record:
		return cloneRecord(t)
	case []engine.Record:
		out := make([]engine.Record, len(t))
		for i, r := range t {
			out[i] = cloneRecord(r)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func (e *Engine) tableKeys(d *model.Descriptor) []string {
	return e.s.order[d.Name]
}

func (e *Engine) findManyLocked(d *model.Descriptor, opts engine.FindManyOptions) ([]engine.Record, error) {
	var matches []engine.Record
	for _, key := range e.tableKeys(d) {
		rec := e.s.rows[d.Name][key]
		ok, err := matchWhere(rec, opts.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, rec)
		}
	}
	sortRecords(matches, opts.Order)

	if opts.After != nil {
		after := engine.FormatKey(opts.After)
		from := len(matches)
		for i, rec := range matches {
			if engine.FormatKey(rec[d.PrimaryKey]) == after {
				from = i + 1
				break
			}
		}
		matches = matches[from:]
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(matches) {
			matches = nil
		} else {
			matches = matches[opts.Skip:]
		}
	}
	if opts.Take > 0 && opts.Take < len(matches) {
		matches = matches[:opts.Take]
	}

	out := make([]engine.Record, len(matches))
	for i, rec := range matches {
		clone := cloneRecord(rec)
		if err := e.attachIncludes(d, clone, opts.Include); err != nil {
			return nil, err
		}
		out[i] = clone
	}
	return out, nil
}

func (e *Engine) countLocked(d *model.Descriptor, opts engine.CountOptions) (int64, error) {
	var n int64
	for _, key := range e.tableKeys(d) {
		ok, err := matchWhere(e.s.rows[d.Name][key], opts.Where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (e *Engine) findFirstLocked(d *model.Descriptor, opts engine.FindOptions) (engine.Record, error) {
	for _, key := range e.tableKeys(d) {
		rec := e.s.rows[d.Name][key]
		ok, err := matchWhere(rec, opts.Where)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		clone := cloneRecord(rec)
		if err := e.attachIncludes(d, clone, opts.Include); err != nil {
			return nil, err
		}
		return clone, nil
	}
	return nil, engine.ErrNotFound
}

func (e *Engine) createLocked(d *model.Descriptor, data engine.Data) (engine.Record, error) {
	rec := make(engine.Record)
	for name, value := range data.Attributes {
		normalized, err := e.normalizeAttribute(d, name, value)
		if err != nil {
			return nil, err
		}
		rec[name] = normalized
	}

	key, err := e.assignKey(d, rec)
	if err != nil {
		return nil, err
	}
	if err := e.checkUnique(d, rec, key); err != nil {
		return nil, err
	}
	e.s.rows[d.Name][key] = rec
	e.s.order[d.Name] = append(e.s.order[d.Name], key)

	if err := e.applyRelations(d, key, data.Relations); err != nil {
		return nil, err
	}
	return cloneRecord(e.s.rows[d.Name][key]), nil
}

func (e *Engine) updateLocked(d *model.Descriptor, where engine.Where, data engine.Data) (engine.Record, error) {
	key, rec, err := e.findKeyLocked(d, where)
	if err != nil {
		return nil, err
	}
	for name, value := range data.Attributes {
		normalized, err := e.normalizeAttribute(d, name, value)
		if err != nil {
			return nil, err
		}
		if name == d.PrimaryKey {
			if engine.FormatKey(normalized) != key {
				return nil, fmt.Errorf("%s: primary key is immutable: %w", d.Name, engine.ErrConstraint)
			}
			continue
		}
		rec[name] = normalized
	}
	if err := e.checkUnique(d, rec, key); err != nil {
		return nil, err
	}
	if err := e.applyRelations(d, key, data.Relations); err != nil {
		return nil, err
	}
	return cloneRecord(e.s.rows[d.Name][key]), nil
}

func (e *Engine) deleteLocked(d *model.Descriptor, where engine.Where) (engine.Record, error) {
	key, rec, err := e.findKeyLocked(d, where)
	if err != nil {
		return nil, err
	}
	delete(e.s.rows[d.Name], key)
	keys := e.s.order[d.Name]
	for i, k := range keys {
		if k == key {
			e.s.order[d.Name] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	// null out references to the deleted record, like ON DELETE SET NULL
	for _, other := range e.registry.Models() {
		for column, ref := range e.registry.ForeignKeyColumns(other.Name) {
			if ref != d.Name {
				continue
			}
			for _, k := range e.tableKeys(other) {
				row := e.s.rows[other.Name][k]
				if row[column] != nil && engine.FormatKey(row[column]) == key {
					row[column] = nil
				}
			}
		}
	}
	return rec, nil
}

func (e *Engine) findKeyLocked(d *model.Descriptor, where engine.Where) (string, engine.Record, error) {
	for _, key := range e.tableKeys(d) {
		rec := e.s.rows[d.Name][key]
		ok, err := matchWhere(rec, where)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return key, rec, nil
		}
	}
	return "", nil, engine.ErrNotFound
}

// assignKey canonicalizes a client-generated key or generates a fresh
// one, stores it in the record, and returns its canonical string form.
func (e *Engine) assignKey(d *model.Descriptor, rec engine.Record) (string, error) {
	if v, ok := rec[d.PrimaryKey]; ok && v != nil {
		v, err := canonicalKey(d, v)
		if err != nil {
			return "", err
		}
		rec[d.PrimaryKey] = v
		key := engine.FormatKey(v)
		if _, exists := e.s.rows[d.Name][key]; exists {
			return "", fmt.Errorf("%s %s: %w", d.Name, key, engine.ErrConflict)
		}
		if n, isInt := v.(int64); isInt && n > e.s.seq[d.Name] {
			e.s.seq[d.Name] = n
		}
		return key, nil
	}
	switch d.KeyKind {
	case model.KeyKindUUID:
		id := uuid.New().String()
		rec[d.PrimaryKey] = id
		return id, nil
	case model.KeyKindInteger:
		e.s.seq[d.Name]++
		n := e.s.seq[d.Name]
		rec[d.PrimaryKey] = n
		return engine.FormatKey(n), nil
	default:
		return "", fmt.Errorf("%s: missing primary key %s: %w", d.Name, d.PrimaryKey, engine.ErrConstraint)
	}
}

func canonicalKey(d *model.Descriptor, v any) (any, error) {
	switch d.KeyKind {
	case model.KeyKindInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		default:
			return nil, fmt.Errorf("%s: bad primary key type: %w", d.Name, engine.ErrConstraint)
		}
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: bad primary key type: %w", d.Name, engine.ErrConstraint)
		}
		return s, nil
	}
}

// normalizeAttribute converts an incoming value to the engine
// representation of the field's declared type.
func (e *Engine) normalizeAttribute(d *model.Descriptor, name string, v any) (any, error) {
	if name == d.PrimaryKey {
		return canonicalKey(d, v)
	}
	if d.HasSoftDelete() && name == d.SoftDelete {
		return normalizeValue(model.Field{Name: name, Type: "time"}, v)
	}
	if ref, ok := e.registry.ForeignKeyColumns(d.Name)[name]; ok {
		// foreign keys carry the key type of the referenced model
		target, _ := e.registry.Model(ref)
		kind := "string"
		if target.KeyKind == model.KeyKindInteger {
			kind = "integer"
		}
		return normalizeValue(model.Field{Name: name, Type: kind}, v)
	}
	f, ok := d.Field(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown field %s: %w", d.Name, name, engine.ErrConstraint)
	}
	return normalizeValue(f, v)
}

func normalizeValue(f model.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	bad := func() error {
		return fmt.Errorf("field %s: expected %s: %w", f.Name, f.Type, engine.ErrConstraint)
	}
	switch f.Type {
	case "integer":
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			if n != float64(int64(n)) {
				return nil, bad()
			}
			return int64(n), nil
		}
		return nil, bad()
	case "float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
		return nil, bad()
	case "boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, bad()
	case "time":
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, bad()
			}
			return parsed, nil
		}
		return nil, bad()
	case "json":
		return cloneValue(v), nil
	default: // string
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, bad()
	}
}

func (e *Engine) checkUnique(d *model.Descriptor, rec engine.Record, selfKey string) error {
	for _, f := range d.Fields {
		if !f.Unique {
			continue
		}
		value := rec[f.Name]
		if value == nil {
			continue
		}
		for _, key := range e.tableKeys(d) {
			if key == selfKey {
				continue
			}
			other := e.s.rows[d.Name][key]
			if equalValues(other[f.Name], value) {
				return fmt.Errorf("%s.%s: %w", d.Name, f.Name, engine.ErrConflict)
			}
		}
	}
	return nil
}

func (e *Engine) applyRelations(d *model.Descriptor, key string, relations map[string]engine.RelationOp) error {
	if len(relations) == 0 {
		return nil
	}
	// stable application order
	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rel, ok := d.Relation(name)
		if !ok {
			return fmt.Errorf("%s: unknown relation %s: %w", d.Name, name, engine.ErrConstraint)
		}
		target, _ := e.registry.Model(rel.Model)
		if target == nil {
			return fmt.Errorf("%s: relation %s: %w", d.Name, name, engine.ErrUnknownModel)
		}
		op := relations[name]
		var err error
		if rel.Many {
			err = e.applyToMany(d, target, rel, key, op)
		} else {
			err = e.applyToOne(d, target, rel, key, op)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyToOne(d, target *model.Descriptor, rel model.Relation, key string, op engine.RelationOp) error {
	row := e.s.rows[d.Name][key]
	if op.Clear {
		row[rel.ForeignKey] = nil
	}
	if op.Set != nil {
		ids := *op.Set
		if len(ids) == 0 {
			row[rel.ForeignKey] = nil
		} else {
			op.Connect = append(op.Connect, ids[len(ids)-1])
		}
	}
	for _, rec := range op.Create {
		created, err := e.createLocked(target, engine.Data{Attributes: rec})
		if err != nil {
			return err
		}
		row[rel.ForeignKey] = created[target.PrimaryKey]
	}
	for _, id := range op.Connect {
		targetKey, targetRec, err := e.lookupTarget(target, id)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, rel.Name, err)
		}
		_ = targetKey
		row[rel.ForeignKey] = targetRec[target.PrimaryKey]
	}
	for _, id := range op.Disconnect {
		if row[rel.ForeignKey] != nil && engine.FormatKey(row[rel.ForeignKey]) == engine.FormatKey(id) {
			row[rel.ForeignKey] = nil
		}
	}
	return nil
}

func (e *Engine) applyToMany(d, target *model.Descriptor, rel model.Relation, key string, op engine.RelationOp) error {
	owner := e.s.rows[d.Name][key][d.PrimaryKey]
	if op.Set != nil || op.Clear {
		for _, k := range e.tableKeys(target) {
			row := e.s.rows[target.Name][k]
			if row[rel.ForeignKey] != nil && engine.FormatKey(row[rel.ForeignKey]) == key {
				row[rel.ForeignKey] = nil
			}
		}
		if op.Set != nil {
			op.Connect = append(op.Connect, *op.Set...)
		}
	}
	for _, id := range op.Connect {
		_, targetRec, err := e.lookupTarget(target, id)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, rel.Name, err)
		}
		targetRec[rel.ForeignKey] = owner
	}
	for _, rec := range op.Create {
		attrs := cloneRecord(rec)
		attrs[rel.ForeignKey] = owner
		if _, err := e.createLocked(target, engine.Data{Attributes: attrs}); err != nil {
			return err
		}
	}
	for _, id := range op.Disconnect {
		targetKey, targetRec, err := e.lookupTarget(target, id)
		if err != nil {
			continue // disconnecting a missing record is a no-op
		}
		_ = targetKey
		if targetRec[rel.ForeignKey] != nil && engine.FormatKey(targetRec[rel.ForeignKey]) == key {
			targetRec[rel.ForeignKey] = nil
		}
	}
	return nil
}

func (e *Engine) lookupTarget(target *model.Descriptor, id any) (string, engine.Record, error) {
	canonical, err := canonicalKey(target, id)
	if err != nil {
		return "", nil, err
	}
	key := engine.FormatKey(canonical)
	rec, ok := e.s.rows[target.Name][key]
	if !ok {
		return "", nil, fmt.Errorf("%s %s: %w", target.Name, key, engine.ErrForeignKey)
	}
	return key, rec, nil
}

func (e *Engine) attachIncludes(d *model.Descriptor, rec engine.Record, include engine.Include) error {
	for name, nested := range include {
		rel, ok := d.Relation(name)
		if !ok {
			continue
		}
		target, _ := e.registry.Model(rel.Model)
		if target == nil {
			continue
		}
		if rel.Many {
			owner := engine.FormatKey(rec[d.PrimaryKey])
			var related []engine.Record
			for _, k := range e.tableKeys(target) {
				row := e.s.rows[target.Name][k]
				if row[rel.ForeignKey] != nil && engine.FormatKey(row[rel.ForeignKey]) == owner {
					clone := cloneRecord(row)
					if err := e.attachIncludes(target, clone, nested); err != nil {
						return err
					}
					related = append(related, clone)
				}
			}
			if related == nil {
				related = []engine.Record{}
			}
			rec[name] = related
		} else {
			fk := rec[rel.ForeignKey]
			if fk == nil {
				rec[name] = nil
				continue
			}
			row, ok := e.s.rows[target.Name][engine.FormatKey(fk)]
			if !ok {
				rec[name] = nil
				continue
			}
			clone := cloneRecord(row)
			if err := e.attachIncludes(target, clone, nested); err != nil {
				return err
			}
			rec[name] = clone
		}
	}
	return nil
}

// ------------------------------------------------------------------
// predicates and ordering
// ------------------------------------------------------------------

func matchWhere(rec engine.Record, where engine.Where) (bool, error) {
	for _, cond := range where {
		ok, err := matchCondition(rec, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(rec engine.Record, cond engine.Condition) (bool, error) {
	value := rec[cond.Field]
	switch cond.Op {
	case engine.OpNull:
		return value == nil, nil
	case engine.OpNotNull:
		return value != nil, nil
	case engine.OpEq:
		return equalValues(value, cond.Value), nil
	case engine.OpNe:
		return !equalValues(value, cond.Value), nil
	case engine.OpGt, engine.OpGte, engine.OpLt, engine.OpLte:
		c, ok := compareValues(value, cond.Value)
		if !ok {
			return false, nil
		}
		switch cond.Op {
		case engine.OpGt:
			return c > 0, nil
		case engine.OpGte:
			return c >= 0, nil
		case engine.OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case engine.OpContains:
		s, ok1 := value.(string)
		sub, ok2 := cond.Value.(string)
		if !ok1 || !ok2 {
			return false, nil
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	case engine.OpIn:
		items, ok := cond.Value.([]any)
		if !ok {
			return false, fmt.Errorf("in condition on %s needs a list: %w", cond.Field, engine.ErrConstraint)
		}
		for _, item := range items {
			if equalValues(value, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %q: %w", cond.Op, engine.ErrConstraint)
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return false
}

// compareValues orders two values of compatible types. Numeric types
// compare across int64 and float64.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if an, ok := toFloat(a); ok {
		bn, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	switch at := a.(type) {
	case string:
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(at, bs), true
	case bool:
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case at == bb:
			return 0, true
		case !at:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bt, ok := b.(time.Time)
		if !ok {
			if s, isString := b.(string); isString {
				parsed, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return 0, false
				}
				bt = parsed
			} else {
				return 0, false
			}
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sortRecords(recs []engine.Record, order []engine.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, o := range order {
			c, ok := compareValues(recs[i][o.Field], recs[j][o.Field])
			if !ok || c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
