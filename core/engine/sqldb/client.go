// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// runner is the statement surface shared by sql.DB and sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type modelClient struct {
	e  *Engine
	t  *table
	tx *sql.Tx // set inside transactions
}

func (c *modelClient) runner() runner {
	if c.tx != nil {
		return c.tx
	}
	return c.e.db
}

func (c *modelClient) ready() error {
	if c.tx == nil && c.e.closed.Load() {
		return engine.ErrNotConnected
	}
	return nil
}

// mutate runs fn in a fresh transaction, so relation side effects stay
// all-or-nothing even outside an explicit engine.Tx.
func (c *modelClient) mutate(ctx context.Context, fn func(r runner) (engine.Record, error)) (engine.Record, error) {
	if c.tx != nil {
		return fn(c.tx)
	}
	tx, err := c.e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	rec, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *modelClient) FindMany(ctx context.Context, opts engine.FindManyOptions) ([]engine.Record, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.e.findMany(ctx, c.runner(), c.t, opts)
}

func (c *modelClient) Count(ctx context.Context, opts engine.CountOptions) (int64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.e.count(ctx, c.runner(), c.t, opts)
}

func (c *modelClient) FindUnique(ctx context.Context, where engine.Where) (engine.Record, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.e.findFirst(ctx, c.runner(), c.t, engine.FindOptions{Where: where})
}

func (c *modelClient) FindFirst(ctx context.Context, opts engine.FindOptions) (engine.Record, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.e.findFirst(ctx, c.runner(), c.t, opts)
}

func (c *modelClient) Create(ctx context.Context, data engine.Data) (engine.Record, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.mutate(ctx, func(r runner) (engine.Record, error) {
		return c.e.create(ctx, r, c.t, data)
	})
}

func (c *modelClient) Update(ctx context.Context, where engine.Where, data engine.Data) (engine.Record, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.mutate(ctx, func(r runner) (engine.Record, error) {
		return c.e.update(ctx, r, c.t, where, data)
	})
}

func (c *modelClient) Delete(ctx context.Context, where engine.Where) (engine.Record, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.mutate(ctx, func(r runner) (engine.Record, error) {
		return c.e.delete(ctx, r, c.t, where)
	})
}

// ------------------------------------------------------------------
// reads
// ------------------------------------------------------------------

func (e *Engine) findMany(ctx context.Context, r runner, t *table, opts engine.FindManyOptions) ([]engine.Record, error) {
	pred, err := t.predicate(opts.Where, e.dialect)
	if err != nil {
		return nil, err
	}
	orders := t.orderings(opts.Order)

	qb := e.sb.Select(t.selectColumns()...).From(t.ident())
	if pred != nil {
		qb = qb.Where(pred)
	}
	if opts.After != nil {
		cursor, err := e.cursorRow(ctx, r, t, opts.Where, opts.After)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				return nil, nil // a vanished cursor yields an empty page
			}
			return nil, err
		}
		qb = qb.Where(t.afterCondition(orders, cursor, e.dialect))
	}
	for _, o := range orders {
		qb = qb.OrderBy(o.clause())
	}
	if opts.Skip > 0 {
		qb = qb.Offset(uint64(opts.Skip))
		if opts.Take <= 0 {
			qb = qb.Limit(math.MaxInt32) // sqlite rejects a bare OFFSET
		}
	}
	if opts.Take > 0 {
		qb = qb.Limit(uint64(opts.Take))
	}

	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, e.wrapModel(t, err)
	}
	defer rows.Close()
	recs, err := t.scanAll(rows)
	if err != nil {
		return nil, err
	}
	if err := e.attachIncludes(ctx, r, t, recs, opts.Include); err != nil {
		return nil, err
	}
	return recs, nil
}

func (e *Engine) count(ctx context.Context, r runner, t *table, opts engine.CountOptions) (int64, error) {
	pred, err := t.predicate(opts.Where, e.dialect)
	if err != nil {
		return 0, err
	}
	qb := e.sb.Select("COUNT(*)").From(t.ident())
	if pred != nil {
		qb = qb.Where(pred)
	}
	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, e.wrapModel(t, err)
	}
	return n, nil
}

func (e *Engine) findFirst(ctx context.Context, r runner, t *table, opts engine.FindOptions) (engine.Record, error) {
	recs, err := e.findMany(ctx, r, t, engine.FindManyOptions{
		Where:   opts.Where,
		Take:    1,
		Include: opts.Include,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, engine.ErrNotFound
	}
	return recs[0], nil
}

func (e *Engine) byKey(ctx context.Context, r runner, t *table, key any) (engine.Record, error) {
	return e.findFirst(ctx, r, t, engine.FindOptions{
		Where: engine.Where{{Field: t.d.PrimaryKey, Op: engine.OpEq, Value: key}},
	})
}

// cursorRow fetches the record a cursor points at, constrained by the
// same predicate as the page itself.
func (e *Engine) cursorRow(ctx context.Context, r runner, t *table, where engine.Where, after any) (engine.Record, error) {
	key, err := t.canonicalKey(after)
	if err != nil {
		return nil, engine.ErrNotFound // a malformed cursor points nowhere
	}
	return e.findFirst(ctx, r, t, engine.FindOptions{
		Where: where.And(t.d.PrimaryKey, engine.OpEq, key),
	})
}

// ------------------------------------------------------------------
// writes
// ------------------------------------------------------------------

func (e *Engine) create(ctx context.Context, r runner, t *table, data engine.Data) (engine.Record, error) {
	rec := make(engine.Record, len(data.Attributes))
	for name, value := range data.Attributes {
		normalized, err := t.normalizeAttribute(name, value)
		if err != nil {
			return nil, err
		}
		rec[name] = normalized
	}

	keyValue, err := t.insertKey(rec)
	if err != nil {
		return nil, err
	}
	cols := []string{quoteIdent(t.d.PrimaryKey)}
	values := []any{keyValue}
	for _, col := range t.columns[1:] {
		v, ok := rec[col]
		if !ok {
			continue
		}
		cols = append(cols, quoteIdent(col))
		values = append(values, e.dialect.bind(t.kinds[col], v))
	}

	qb := e.sb.Insert(t.ident()).Columns(cols...).Values(values...).
		Suffix("RETURNING " + quoteIdent(t.d.PrimaryKey))
	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var raw any
	if err := r.QueryRowContext(ctx, sqlStr, args...).Scan(&raw); err != nil {
		return nil, e.wrapModel(t, err)
	}
	key, err := fromDB(t.kinds[t.d.PrimaryKey], raw)
	if err != nil {
		return nil, err
	}

	if err := e.applyRelations(ctx, r, t, key, data.Relations); err != nil {
		return nil, err
	}
	return e.byKey(ctx, r, t, key)
}

func (e *Engine) update(ctx context.Context, r runner, t *table, where engine.Where, data engine.Data) (engine.Record, error) {
	current, err := e.findFirst(ctx, r, t, engine.FindOptions{Where: where})
	if err != nil {
		return nil, err
	}
	key := current[t.d.PrimaryKey]

	sets := make(map[string]any, len(data.Attributes))
	for name, value := range data.Attributes {
		normalized, err := t.normalizeAttribute(name, value)
		if err != nil {
			return nil, err
		}
		if name == t.d.PrimaryKey {
			if engine.FormatKey(normalized) != engine.FormatKey(key) {
				return nil, fmt.Errorf("%s: primary key is immutable: %w", t.d.Name, engine.ErrConstraint)
			}
			continue
		}
		sets[quoteIdent(name)] = e.dialect.bind(t.kinds[name], normalized)
	}
	if len(sets) > 0 {
		qb := e.sb.Update(t.ident()).SetMap(sets).Where(t.keyEq(key, e.dialect))
		sqlStr, args, err := qb.ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := r.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, e.wrapModel(t, err)
		}
	}

	if err := e.applyRelations(ctx, r, t, key, data.Relations); err != nil {
		return nil, err
	}
	return e.byKey(ctx, r, t, key)
}

func (e *Engine) delete(ctx context.Context, r runner, t *table, where engine.Where) (engine.Record, error) {
	current, err := e.findFirst(ctx, r, t, engine.FindOptions{Where: where})
	if err != nil {
		return nil, err
	}
	key := current[t.d.PrimaryKey]
	bound := e.dialect.bind(t.kinds[t.d.PrimaryKey], key)

	// columns whose constraint fell to a reference cycle get nulled out
	// by hand; the rest is ON DELETE SET NULL
	for _, ref := range e.referrers[t.d.Name] {
		if ref.constrained {
			continue
		}
		qb := e.sb.Update(ref.t.ident()).Set(quoteIdent(ref.foreignKey), nil).
			Where(sq.Eq{quoteIdent(ref.foreignKey): bound})
		sqlStr, args, err := qb.ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := r.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, e.wrapModel(ref.t, err)
		}
	}

	qb := e.sb.Delete(t.ident()).Where(t.keyEq(key, e.dialect))
	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := r.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, e.wrapModel(t, err)
	}
	return current, nil
}

// ------------------------------------------------------------------
// relation operations
// ------------------------------------------------------------------

func (e *Engine) applyRelations(ctx context.Context, r runner, t *table, key any, relations map[string]engine.RelationOp) error {
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
		rel, ok := t.d.Relation(name)
		if !ok {
			return fmt.Errorf("%s: unknown relation %s: %w", t.d.Name, name, engine.ErrConstraint)
		}
		target := e.tables[rel.Model]
		if target == nil {
			return fmt.Errorf("%s: relation %s: %w", t.d.Name, name, engine.ErrUnknownModel)
		}
		op := relations[name]
		var err error
		if rel.Many {
			err = e.applyToMany(ctx, r, t, target, rel, key, op)
		} else {
			err = e.applyToOne(ctx, r, t, target, rel, key, op)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyToOne(ctx context.Context, r runner, t, target *table, rel model.Relation, key any, op engine.RelationOp) error {
	if op.Clear {
		if err := e.setColumn(ctx, r, t, rel.ForeignKey, nil, t.keyEq(key, e.dialect)); err != nil {
			return err
		}
	}
	if op.Set != nil {
		ids := *op.Set
		if len(ids) == 0 {
			if err := e.setColumn(ctx, r, t, rel.ForeignKey, nil, t.keyEq(key, e.dialect)); err != nil {
				return err
			}
		} else {
			op.Connect = append(op.Connect, ids[len(ids)-1])
		}
	}
	for _, attrs := range op.Create {
		created, err := e.create(ctx, r, target, engine.Data{Attributes: attrs})
		if err != nil {
			return err
		}
		fk := e.dialect.bind(t.kinds[rel.ForeignKey], created[target.d.PrimaryKey])
		if err := e.setColumn(ctx, r, t, rel.ForeignKey, fk, t.keyEq(key, e.dialect)); err != nil {
			return err
		}
	}
	for _, id := range op.Connect {
		targetKey, err := e.lookupTarget(ctx, r, target, id)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.d.Name, rel.Name, err)
		}
		fk := e.dialect.bind(t.kinds[rel.ForeignKey], targetKey)
		if err := e.setColumn(ctx, r, t, rel.ForeignKey, fk, t.keyEq(key, e.dialect)); err != nil {
			return err
		}
	}
	for _, id := range op.Disconnect {
		canonical, err := target.canonicalKey(id)
		if err != nil {
			continue // unlinking something that cannot be linked is a no-op
		}
		cond := sq.And{
			t.keyEq(key, e.dialect),
			sq.Eq{quoteIdent(rel.ForeignKey): e.dialect.bind(t.kinds[rel.ForeignKey], canonical)},
		}
		if err := e.setColumn(ctx, r, t, rel.ForeignKey, nil, cond); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyToMany(ctx context.Context, r runner, t, target *table, rel model.Relation, key any, op engine.RelationOp) error {
	owner := e.dialect.bind(t.kinds[t.d.PrimaryKey], key)
	fkCol := quoteIdent(rel.ForeignKey)

	if op.Set != nil || op.Clear {
		if err := e.setColumn(ctx, r, target, rel.ForeignKey, nil, sq.Eq{fkCol: owner}); err != nil {
			return err
		}
		if op.Set != nil {
			op.Connect = append(op.Connect, *op.Set...)
		}
	}
	for _, id := range op.Connect {
		targetKey, err := e.lookupTarget(ctx, r, target, id)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.d.Name, rel.Name, err)
		}
		if err := e.setColumn(ctx, r, target, rel.ForeignKey, owner, target.keyEq(targetKey, e.dialect)); err != nil {
			return err
		}
	}
	for _, attrs := range op.Create {
		data := engine.Data{Attributes: make(engine.Record, len(attrs)+1)}
		for k, v := range attrs {
			data.Attributes[k] = v
		}
		data.Attributes[rel.ForeignKey] = key
		if _, err := e.create(ctx, r, target, data); err != nil {
			return err
		}
	}
	for _, id := range op.Disconnect {
		canonical, err := target.canonicalKey(id)
		if err != nil {
			continue // unlinking a missing record is a no-op
		}
		cond := sq.And{target.keyEq(canonical, e.dialect), sq.Eq{fkCol: owner}}
		if err := e.setColumn(ctx, r, target, rel.ForeignKey, nil, cond); err != nil {
			return err
		}
	}
	return nil
}

// lookupTarget verifies a connect target exists and returns its key in
// canonical form.
func (e *Engine) lookupTarget(ctx context.Context, r runner, target *table, id any) (any, error) {
	canonical, err := target.canonicalKey(id)
	if err != nil {
		return nil, err
	}
	pk := quoteIdent(target.d.PrimaryKey)
	qb := e.sb.Select(pk).From(target.ident()).
		Where(target.keyEq(canonical, e.dialect)).Limit(1)
	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var raw any
	if err := r.QueryRowContext(ctx, sqlStr, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", target.d.Name, engine.FormatKey(canonical), engine.ErrForeignKey)
		}
		return nil, e.wrapModel(target, err)
	}
	return fromDB(target.kinds[target.d.PrimaryKey], raw)
}

func (e *Engine) setColumn(ctx context.Context, r runner, t *table, column string, value any, cond sq.Sqlizer) error {
	qb := e.sb.Update(t.ident()).Set(quoteIdent(column), value).Where(cond)
	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return err
	}
	if _, err := r.ExecContext(ctx, sqlStr, args...); err != nil {
		return e.wrapModel(t, err)
	}
	return nil
}

// ------------------------------------------------------------------
// includes
// ------------------------------------------------------------------

func (e *Engine) attachIncludes(ctx context.Context, r runner, t *table, recs []engine.Record, include engine.Include) error {
	if len(include) == 0 || len(recs) == 0 {
		return nil
	}
	for name, nested := range include {
		rel, ok := t.d.Relation(name)
		if !ok {
			continue
		}
		target := e.tables[rel.Model]
		if target == nil {
			continue
		}
		var err error
		if rel.Many {
			err = e.attachToMany(ctx, r, t, target, rel, recs, nested)
		} else {
			err = e.attachToOne(ctx, r, target, rel, recs, nested)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// attachToMany loads all related records of one relation level in a
// single query and groups them onto their owners.
func (e *Engine) attachToMany(ctx context.Context, r runner, t, target *table, rel model.Relation, recs []engine.Record, nested engine.Include) error {
	owners := make([]any, 0, len(recs))
	for _, rec := range recs {
		owners = append(owners, rec[t.d.PrimaryKey])
	}
	related, err := e.findMany(ctx, r, target, engine.FindManyOptions{
		Where:   engine.Where{{Field: rel.ForeignKey, Op: engine.OpIn, Value: owners}},
		Include: nested,
	})
	if err != nil {
		return err
	}
	grouped := make(map[string][]engine.Record, len(recs))
	for _, row := range related {
		k := engine.FormatKey(row[rel.ForeignKey])
		grouped[k] = append(grouped[k], row)
	}
	for _, rec := range recs {
		group := grouped[engine.FormatKey(rec[t.d.PrimaryKey])]
		if group == nil {
			group = []engine.Record{}
		}
		rec[rel.Name] = group
	}
	return nil
}

func (e *Engine) attachToOne(ctx context.Context, r runner, target *table, rel model.Relation, recs []engine.Record, nested engine.Include) error {
	ids := make([]any, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		fk := rec[rel.ForeignKey]
		if fk == nil {
			continue
		}
		k := engine.FormatKey(fk)
		if !seen[k] {
			seen[k] = true
			ids = append(ids, fk)
		}
	}
	index := make(map[string]engine.Record, len(ids))
	if len(ids) > 0 {
		related, err := e.findMany(ctx, r, target, engine.FindManyOptions{
			Where:   engine.Where{{Field: target.d.PrimaryKey, Op: engine.OpIn, Value: ids}},
			Include: nested,
		})
		if err != nil {
			return err
		}
		for _, row := range related {
			index[engine.FormatKey(row[target.d.PrimaryKey])] = row
		}
	}
	for _, rec := range recs {
		fk := rec[rel.ForeignKey]
		if fk == nil {
			rec[rel.Name] = nil
			continue
		}
		if row, ok := index[engine.FormatKey(fk)]; ok {
			rec[rel.Name] = row
		} else {
			rec[rel.Name] = nil
		}
	}
	return nil
}

// ------------------------------------------------------------------
// predicates, ordering, cursors
// ------------------------------------------------------------------

func (t *table) predicate(where engine.Where, dl dialect) (sq.Sqlizer, error) {
	if len(where) == 0 {
		return nil, nil
	}
	and := make(sq.And, 0, len(where))
	for _, cond := range where {
		kind, ok := t.kinds[cond.Field]
		if !ok {
			return nil, fmt.Errorf("%s: unknown field %s: %w", t.d.Name, cond.Field, engine.ErrConstraint)
		}
		col := quoteIdent(cond.Field)
		var expr sq.Sqlizer
		switch cond.Op {
		case engine.OpNull:
			expr = sq.Eq{col: nil}
		case engine.OpNotNull:
			expr = sq.NotEq{col: nil}
		case engine.OpEq:
			expr = sq.Eq{col: dl.bind(kind, cond.Value)}
		case engine.OpNe:
			if cond.Value == nil {
				expr = sq.NotEq{col: nil}
			} else {
				// null columns differ from every concrete value
				expr = sq.Or{sq.NotEq{col: dl.bind(kind, cond.Value)}, sq.Eq{col: nil}}
			}
		case engine.OpGt:
			expr = sq.Gt{col: dl.bind(kind, cond.Value)}
		case engine.OpGte:
			expr = sq.GtOrEq{col: dl.bind(kind, cond.Value)}
		case engine.OpLt:
			// nulls sort below every value
			expr = sq.Or{sq.Lt{col: dl.bind(kind, cond.Value)}, sq.Eq{col: nil}}
		case engine.OpLte:
			expr = sq.Or{sq.LtOrEq{col: dl.bind(kind, cond.Value)}, sq.Eq{col: nil}}
		case engine.OpContains:
			if s, ok := cond.Value.(string); ok {
				expr = dl.contains(col, s)
			} else {
				expr = sq.Expr("1 = 0")
			}
		case engine.OpIn:
			items, ok := cond.Value.([]any)
			if !ok {
				return nil, fmt.Errorf("in condition on %s needs a list: %w", cond.Field, engine.ErrConstraint)
			}
			bound := make([]any, len(items))
			for i, item := range items {
				bound[i] = dl.bind(kind, item)
			}
			expr = sq.Eq{col: bound}
		default:
			return nil, fmt.Errorf("unsupported operator %q: %w", cond.Op, engine.ErrConstraint)
		}
		and = append(and, expr)
	}
	return and, nil
}

func (t *table) keyEq(key any, dl dialect) sq.Eq {
	return sq.Eq{quoteIdent(t.d.PrimaryKey): dl.bind(t.kinds[t.d.PrimaryKey], key)}
}

type ordering struct {
	column string
	desc   bool
}

// clause renders the sort key with explicit null placement: nulls sort
// below every value, like the comparison rules of the memory engine.
func (o ordering) clause() string {
	if o.desc {
		return quoteIdent(o.column) + " DESC NULLS LAST"
	}
	return quoteIdent(o.column) + " ASC NULLS FIRST"
}

// orderings returns the effective sort keys. Unknown fields are
// dropped and the primary key is appended as tie-breaker unless it
// already takes part in the ordering.
func (t *table) orderings(order []engine.Order) []ordering {
	out := make([]ordering, 0, len(order)+1)
	havePK := false
	for _, o := range order {
		if _, ok := t.kinds[o.Field]; !ok {
			continue
		}
		if o.Field == t.d.PrimaryKey {
			havePK = true
		}
		out = append(out, ordering{column: o.Field, desc: o.Desc})
	}
	if !havePK {
		out = append(out, ordering{column: t.d.PrimaryKey})
	}
	return out
}

// afterCondition positions a page strictly behind the cursor record in
// the given ordering, comparing the full sort-key tuple.
func (t *table) afterCondition(orders []ordering, cursor engine.Record, dl dialect) sq.Sqlizer {
	or := make(sq.Or, 0, len(orders))
	for i, o := range orders {
		and := make(sq.And, 0, i+1)
		for _, prev := range orders[:i] {
			and = append(and, t.cursorEq(prev, cursor, dl))
		}
		and = append(and, t.cursorAfter(o, cursor, dl))
		or = append(or, and)
	}
	return or
}

func (t *table) cursorEq(o ordering, cursor engine.Record, dl dialect) sq.Sqlizer {
	col := quoteIdent(o.column)
	v := cursor[o.column]
	if v == nil {
		return sq.Eq{col: nil}
	}
	return sq.Eq{col: dl.bind(t.kinds[o.column], v)}
}

// cursorAfter is the strict "sorts behind the cursor" comparison for
// one key, with nulls placed below every value.
func (t *table) cursorAfter(o ordering, cursor engine.Record, dl dialect) sq.Sqlizer {
	col := quoteIdent(o.column)
	v := cursor[o.column]
	if o.desc {
		if v == nil {
			return sq.Expr("1 = 0") // nothing sorts below null
		}
		return sq.Or{sq.Lt{col: dl.bind(t.kinds[o.column], v)}, sq.Eq{col: nil}}
	}
	if v == nil {
		return sq.NotEq{col: nil}
	}
	return sq.Gt{col: dl.bind(t.kinds[o.column], v)}
}

// ------------------------------------------------------------------
// value handling
// ------------------------------------------------------------------

// insertKey canonicalizes a client-generated key or produces the value,
// or expression, generating a fresh one.
func (t *table) insertKey(rec engine.Record) (any, error) {
	if v, ok := rec[t.d.PrimaryKey]; ok && v != nil {
		return t.canonicalKey(v)
	}
	switch t.d.KeyKind {
	case model.KeyKindUUID:
		return uuid.New().String(), nil
	case model.KeyKindInteger:
		// The next key is derived inside the INSERT itself. Two
		// concurrent creates can still compute the same value; the loser
		// hits the primary-key constraint and surfaces ErrConflict, it
		// never overwrites.
		pk := quoteIdent(t.d.PrimaryKey)
		return sq.Expr("(SELECT COALESCE(MAX(" + pk + "), 0) + 1 FROM " + t.ident() + ")"), nil
	default:
		return nil, fmt.Errorf("%s: missing primary key %s: %w", t.d.Name, t.d.PrimaryKey, engine.ErrConstraint)
	}
}

func (t *table) canonicalKey(v any) (any, error) {
	switch t.d.KeyKind {
	case model.KeyKindInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%s: bad primary key type: %w", t.d.Name, engine.ErrConstraint)
}

// normalizeAttribute converts an incoming value to the engine
// representation of the column's declared type.
func (t *table) normalizeAttribute(name string, v any) (any, error) {
	if name == t.d.PrimaryKey {
		return t.canonicalKey(v)
	}
	if t.d.HasSoftDelete() && name == t.d.SoftDelete {
		return normalizeValue(model.Field{Name: name, Type: "time"}, v)
	}
	if t.isForeignKey(name) {
		// foreign keys carry the key type of the referenced model
		return normalizeValue(model.Field{Name: name, Type: t.kinds[name]}, v)
	}
	f, ok := t.d.Field(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown field %s: %w", t.d.Name, name, engine.ErrConstraint)
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
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, bad()
			}
			return parsed, nil
		}
		return nil, bad()
	case "json":
		return v, nil // serialized at bind time
	default: // string
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, bad()
	}
}

func (t *table) scanAll(rows *sql.Rows) ([]engine.Record, error) {
	var out []engine.Record
	for rows.Next() {
		rec, err := t.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *table) scanRow(s interface{ Scan(...any) error }) (engine.Record, error) {
	dest := make([]any, len(t.columns))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	rec := make(engine.Record, len(t.columns))
	for i, col := range t.columns {
		v, err := fromDB(t.kinds[col], *dest[i].(*any))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.d.Name, col, err)
		}
		rec[col] = v
	}
	return rec, nil
}

// fromDB converts a scanned driver value to the engine representation
// of the column kind.
func fromDB(kind string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch kind {
	case "integer":
		switch n := v.(type) {
		case int64:
			return n, nil
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	case "float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		}
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	case "time":
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case string:
			if parsed, err := time.Parse(sqliteTimeLayout, ts); err == nil {
				return parsed, nil
			}
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				return parsed, nil
			}
		}
	case "json":
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, err
			}
			return out, nil
		}
	default: // string
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s value of type %T", kind, v)
}

func (e *Engine) wrapModel(t *table, err error) error {
	return fmt.Errorf("%s: %w", t.d.Name, e.dialect.translate(err))
}
