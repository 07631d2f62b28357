// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

// Package sqldb implements the storage engine contract on relational
// databases, currently postgres and SQLite.
//
// EnsureSchema derives the table layout from the registered model
// descriptors; statements are built with squirrel in the placeholder
// style of the active driver. Mutations outside an explicit transaction
// run in one of their own, so relation side effects stay
// all-or-nothing. To-one references are declared ON DELETE SET NULL;
// where a reference cycle makes the constraint impossible to order, the
// engine nulls the column out by hand while deleting.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	sq "github.com/Masterminds/squirrel"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

// Engine is a relational implementation of engine.Client.
type Engine struct {
	registry    *model.Registry
	db          *sql.DB
	dialect     dialect
	sb          sq.StatementBuilderType
	tables      map[string]*table    // by model name
	order       []*table             // creation order, references first
	referrers   map[string][]referee // model name -> to-one columns pointing at it
	constrained map[string]map[string]bool
	closed      atomic.Bool
}

// table is the storage layout of one model.
type table struct {
	d       *model.Descriptor
	columns []string          // select order: key, fields, foreign keys, delete marker
	kinds   map[string]string // column -> value kind
	fks     map[string]string // foreign-key column -> referenced model
}

func (t *table) isForeignKey(column string) bool {
	_, ok := t.fks[column]
	return ok
}

func (t *table) foreignKeyColumns() []string {
	cols := make([]string, 0, len(t.fks))
	for col := range t.fks {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func (t *table) ident() string {
	return quoteIdent(t.d.Type)
}

func (t *table) selectColumns() []string {
	out := make([]string, len(t.columns))
	for i, col := range t.columns {
		out[i] = quoteIdent(col)
	}
	return out
}

// referee is a foreign-key column on some table referencing this model,
// from a to-one relation of its own or a to-many relation pointing at
// it. Columns whose constraint fell victim to a reference cycle are
// unconstrained and need manual care on delete.
type referee struct {
	t           *table
	foreignKey  string
	constrained bool
}

// Open connects to the database behind the given driver, "postgres" or
// "sqlite", and binds the models of the registry. The schema is not
// touched; call EnsureSchema to create missing tables.
func Open(driver, dsn string, registry *model.Registry) (*Engine, error) {
	var dl dialect
	switch driver {
	case "postgres":
		dl = postgresDialect{}
	case "sqlite":
		dl = sqliteDialect{}
	default:
		return nil, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one pooled connection: the pool would otherwise hand callers
		// of a :memory: DSN separate, empty databases
		db.SetMaxOpenConns(1)
	}
	e := &Engine{
		registry: registry,
		db:       db,
		dialect:  dl,
		sb:       sq.StatementBuilder.PlaceholderFormat(dl.placeholder()),
	}
	if err := e.buildTables(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// NewPostgres opens a postgres database through lib/pq.
func NewPostgres(dsn string, registry *model.Registry) (*Engine, error) {
	return Open("postgres", dsn, registry)
}

// NewSQLite opens a SQLite database through the modernc driver. Foreign
// key enforcement is switched on unless the DSN configures it already.
func NewSQLite(dsn string, registry *model.Registry) (*Engine, error) {
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}
	return Open("sqlite", dsn, registry)
}

func (e *Engine) buildTables() error {
	models := e.registry.Models()
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	e.tables = make(map[string]*table, len(models))
	for _, d := range models {
		t := &table{d: d, kinds: make(map[string]string)}
		seen := map[string]bool{d.PrimaryKey: true}
		t.columns = append(t.columns, d.PrimaryKey)
		for _, f := range d.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				t.columns = append(t.columns, f.Name)
			}
			t.kinds[f.Name] = f.Type
		}
		t.fks = e.registry.ForeignKeyColumns(d.Name)
		for _, col := range t.foreignKeyColumns() {
			target, ok := e.registry.Model(t.fks[col])
			if !ok {
				return fmt.Errorf("sqldb: model %s: column %s references unknown model %s",
					d.Name, col, t.fks[col])
			}
			if !seen[col] {
				seen[col] = true
				t.columns = append(t.columns, col)
			}
			t.kinds[col] = keyKindType(target.KeyKind)
		}
		if d.HasSoftDelete() {
			if !seen[d.SoftDelete] {
				seen[d.SoftDelete] = true
				t.columns = append(t.columns, d.SoftDelete)
			}
			t.kinds[d.SoftDelete] = "time"
		}
		t.kinds[d.PrimaryKey] = keyKindType(d.KeyKind)
		e.tables[d.Name] = t
	}

	e.orderTables(models)
	return nil
}

// orderTables sorts tables so that to-one targets are created before
// their referrers and records which foreign keys can carry a database
// constraint. Cycle back edges cannot.
func (e *Engine) orderTables(models []*model.Descriptor) {
	state := make(map[string]int, len(models)) // 0 new, 1 visiting, 2 done
	e.constrained = make(map[string]map[string]bool, len(models))
	e.order = e.order[:0]

	var visit func(d *model.Descriptor)
	visit = func(d *model.Descriptor) {
		if state[d.Name] != 0 {
			return
		}
		state[d.Name] = 1
		e.constrained[d.Name] = make(map[string]bool)
		t := e.tables[d.Name]
		for _, col := range t.foreignKeyColumns() {
			if t.fks[col] == d.Name {
				e.constrained[d.Name][col] = true // self references need no ordering
				continue
			}
			target, _ := e.registry.Model(t.fks[col])
			if state[target.Name] == 1 {
				continue // cycle: leave this column unconstrained
			}
			visit(target)
			e.constrained[d.Name][col] = true
		}
		state[d.Name] = 2
		e.order = append(e.order, e.tables[d.Name])
	}
	for _, d := range models {
		visit(d)
	}

	e.referrers = make(map[string][]referee)
	for _, d := range models {
		t := e.tables[d.Name]
		for _, col := range t.foreignKeyColumns() {
			e.referrers[t.fks[col]] = append(e.referrers[t.fks[col]], referee{
				t:           t,
				foreignKey:  col,
				constrained: e.constrained[d.Name][col],
			})
		}
	}
}

// EnsureSchema creates missing tables and foreign-key indexes for every
// registered model. Existing tables are left untouched; there is no
// migration of layout changes.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	if e.closed.Load() {
		return engine.ErrNotConnected
	}
	for _, t := range e.order {
		for _, stmt := range e.createStatements(t) {
			if _, err := e.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqldb: schema for %s: %w", t.d.Name, err)
			}
		}
	}
	return nil
}

func (e *Engine) createStatements(t *table) []string {
	defs := make([]string, 0, len(t.columns))
	var indexes []string
	for _, col := range t.columns {
		switch {
		case col == t.d.PrimaryKey:
			defs = append(defs, quoteIdent(col)+" "+e.dialect.keyDDL(t.d.KeyKind))
		case t.isForeignKey(col):
			def := quoteIdent(col) + " " + e.dialect.columnDDL(t.kinds[col])
			if target := e.foreignKeyTarget(t, col); target != nil {
				def += " REFERENCES " + target.ident() +
					" (" + quoteIdent(target.d.PrimaryKey) + ") ON DELETE SET NULL"
			}
			defs = append(defs, def)
			indexes = append(indexes,
				"CREATE INDEX IF NOT EXISTS "+quoteIdent("idx_"+t.d.Type+"_"+col)+
					" ON "+t.ident()+" ("+quoteIdent(col)+")")
		default:
			def := quoteIdent(col) + " " + e.dialect.columnDDL(t.kinds[col])
			if f, ok := t.d.Field(col); ok && f.Unique {
				def += " UNIQUE"
			}
			defs = append(defs, def)
		}
	}
	create := "CREATE TABLE IF NOT EXISTS " + t.ident() + " (\n  " +
		strings.Join(defs, ",\n  ") + "\n)"
	return append([]string{create}, indexes...)
}

// foreignKeyTarget returns the referenced table when the column may
// carry a constraint, nil when a reference cycle forbids one.
func (e *Engine) foreignKeyTarget(t *table, column string) *table {
	if !e.constrained[t.d.Name][column] {
		return nil
	}
	return e.tables[t.fks[column]]
}

// Model returns the client for the named model.
func (e *Engine) Model(name string) engine.ModelClient {
	t, ok := e.tables[name]
	if !ok {
		return errModelClient{name: name}
	}
	return &modelClient{e: e, t: t}
}

// Tx runs fn inside a database transaction. An error returned by fn
// rolls the transaction back; transactions nested inside fn join the
// outer one.
func (e *Engine) Tx(ctx context.Context, fn func(tx engine.Client) error) error {
	if e.closed.Load() {
		return engine.ErrNotConnected
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txClient{e: e, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Ping verifies the database is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return engine.ErrNotConnected
	}
	return e.db.PingContext(ctx)
}

// Close shuts the connection pool down. Subsequent operations fail.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.db.Close()
}

// txClient is the engine.Client handed to transaction callbacks.
type txClient struct {
	e  *Engine
	tx *sql.Tx
}

func (t *txClient) Model(name string) engine.ModelClient {
	tab, ok := t.e.tables[name]
	if !ok {
		return errModelClient{name: name}
	}
	return &modelClient{e: t.e, t: tab, tx: t.tx}
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

func keyKindType(kind model.KeyKind) string {
	if kind == model.KeyKindInteger {
		return "integer"
	}
	return "string"
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
