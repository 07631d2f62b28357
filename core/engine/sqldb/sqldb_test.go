// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := model.NewRegistry()
	require.NoError(t, reg.Register(&model.Descriptor{
		Name: "Article",
		Fields: []model.Field{
			{Name: "title", Type: "string"},
			{Name: "slug", Type: "string", Unique: true},
			{Name: "rating", Type: "float"},
			{Name: "views", Type: "integer"},
			{Name: "published", Type: "boolean"},
			{Name: "created_at", Type: "time"},
			{Name: "meta", Type: "json"},
		},
		Relations: []model.Relation{
			{Name: "author", Model: "Author"},
			{Name: "comments", Model: "Comment", Many: true},
		},
	}))
	require.NoError(t, reg.Register(&model.Descriptor{
		Name:   "Author",
		Fields: []model.Field{{Name: "name", Type: "string"}},
	}))
	require.NoError(t, reg.Register(&model.Descriptor{
		Name:      "Comment",
		Fields:    []model.Field{{Name: "body", Type: "string"}},
		Relations: []model.Relation{{Name: "author", Model: "Author"}},
	}))
	require.NoError(t, reg.Validate())

	e, err := NewSQLite(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.EnsureSchema(context.Background()))
	return e
}

func mustCreate(t *testing.T, e *Engine, modelName string, attrs engine.Record) engine.Record {
	t.Helper()
	rec, err := e.Model(modelName).Create(context.Background(), engine.Data{Attributes: attrs})
	require.NoError(t, err)
	return rec
}

func TestCreateGeneratesSequentialKeys(t *testing.T) {
	e := newTestEngine(t)
	first := mustCreate(t, e, "Article", engine.Record{"title": "one"})
	second := mustCreate(t, e, "Article", engine.Record{"title": "two"})
	assert.Equal(t, int64(1), first["id"])
	assert.Equal(t, int64(2), second["id"])

	// a client-generated key advances the sequence
	third := mustCreate(t, e, "Article", engine.Record{"id": 10, "title": "ten"})
	assert.Equal(t, int64(10), third["id"])
	fourth := mustCreate(t, e, "Article", engine.Record{"title": "eleven"})
	assert.Equal(t, int64(11), fourth["id"])
}

func TestCreateDuplicateKeyConflicts(t *testing.T) {
	e := newTestEngine(t)
	mustCreate(t, e, "Article", engine.Record{"id": 7, "title": "seven"})
	_, err := e.Model("Article").Create(context.Background(), engine.Data{
		Attributes: engine.Record{"id": 7, "title": "again"},
	})
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestUniqueFieldConflicts(t *testing.T) {
	e := newTestEngine(t)
	mustCreate(t, e, "Article", engine.Record{"title": "one", "slug": "one"})
	_, err := e.Model("Article").Create(context.Background(), engine.Data{
		Attributes: engine.Record{"title": "other", "slug": "one"},
	})
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestUnknownFieldRejected(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Model("Article").Create(context.Background(), engine.Data{
		Attributes: engine.Record{"nope": 1},
	})
	assert.ErrorIs(t, err, engine.ErrConstraint)
}

func TestUnknownModel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Model("Nope").Count(context.Background(), engine.CountOptions{})
	assert.ErrorIs(t, err, engine.ErrUnknownModel)
}

func TestFindManyPredicates(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UTC().Truncate(time.Second)
	mustCreate(t, e, "Article", engine.Record{"title": "Alpha Intro", "views": 10, "rating": 1.5, "published": true, "created_at": now})
	mustCreate(t, e, "Article", engine.Record{"title": "Beta Guide", "views": 20, "rating": 4.5, "published": false, "created_at": now.Add(time.Hour)})
	mustCreate(t, e, "Article", engine.Record{"title": "Gamma Notes", "views": 30, "rating": 3.0, "published": true})

	ctx := context.Background()
	articles := e.Model("Article")

	recs, err := articles.FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "published", Op: engine.OpEq, Value: true}},
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "views", Op: engine.OpGt, Value: int64(10)}},
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "title", Op: engine.OpContains, Value: "beta"}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Beta Guide", recs[0]["title"])

	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "views", Op: engine.OpIn, Value: []any{int64(10), int64(30)}}},
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "created_at", Op: engine.OpNull}},
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// comparisons treat nulls as smaller than every value
	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "created_at", Op: engine.OpLt, Value: now.Add(time.Minute)}},
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	n, err := articles.Count(ctx, engine.CountOptions{
		Where: engine.Where{{Field: "views", Op: engine.OpLte, Value: int64(20)}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestFindManyOrderAndPaging(t *testing.T) {
	e := newTestEngine(t)
	for _, title := range []string{"c", "a", "b", "d"} {
		mustCreate(t, e, "Article", engine.Record{"title": title})
	}
	ctx := context.Background()
	articles := e.Model("Article")

	recs, err := articles.FindMany(ctx, engine.FindManyOptions{
		Order: []engine.Order{{Field: "title"}},
		Skip:  1,
		Take:  2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0]["title"])
	assert.Equal(t, "c", recs[1]["title"])

	// cursor positioning starts strictly after the record with the key
	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		Order: []engine.Order{{Field: "title"}, {Field: "id"}},
		After: recs[1]["id"],
		Take:  10,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "d", recs[0]["title"])

	// a vanished cursor row yields an empty page, not an error
	recs, err = articles.FindMany(ctx, engine.FindManyOptions{
		After: int64(999),
		Take:  10,
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCursorAfterNullSortValues(t *testing.T) {
	e := newTestEngine(t)
	first := mustCreate(t, e, "Article", engine.Record{"title": "n1"})
	mustCreate(t, e, "Article", engine.Record{"title": "n2"})
	mustCreate(t, e, "Article", engine.Record{"title": "low", "rating": 0.5})
	mustCreate(t, e, "Article", engine.Record{"title": "high", "rating": 1.5})

	// null ratings sort first; the cursor sits on one of them
	recs, err := e.Model("Article").FindMany(context.Background(), engine.FindManyOptions{
		Order: []engine.Order{{Field: "rating"}},
		After: first["id"],
		Take:  10,
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "n2", recs[0]["title"])
	assert.Equal(t, "low", recs[1]["title"])
	assert.Equal(t, "high", recs[2]["title"])
}

func TestFindUniqueAndFirst(t *testing.T) {
	e := newTestEngine(t)
	created := mustCreate(t, e, "Article", engine.Record{"title": "solo"})
	ctx := context.Background()

	rec, err := e.Model("Article").FindUnique(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: created["id"]}})
	require.NoError(t, err)
	assert.Equal(t, "solo", rec["title"])

	_, err = e.Model("Article").FindUnique(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: int64(42)}})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = e.Model("Article").FindFirst(ctx, engine.FindOptions{
		Where: engine.Where{{Field: "title", Op: engine.OpEq, Value: "missing"}},
	})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	e := newTestEngine(t)
	created := mustCreate(t, e, "Article", engine.Record{"title": "before", "views": 1})
	ctx := context.Background()
	byID := engine.Where{{Field: "id", Op: engine.OpEq, Value: created["id"]}}

	rec, err := e.Model("Article").Update(ctx, byID, engine.Data{
		Attributes: engine.Record{"title": "after"},
	})
	require.NoError(t, err)
	assert.Equal(t, "after", rec["title"])
	assert.Equal(t, int64(1), rec["views"], "untouched fields survive")

	_, err = e.Model("Article").Update(ctx, byID, engine.Data{
		Attributes: engine.Record{"id": 99},
	})
	assert.ErrorIs(t, err, engine.ErrConstraint)

	_, err = e.Model("Article").Update(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: int64(12345)}},
		engine.Data{Attributes: engine.Record{"title": "x"}})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDeleteNullsReferences(t *testing.T) {
	e := newTestEngine(t)
	author := mustCreate(t, e, "Author", engine.Record{"name": "ada"})
	article, err := e.Model("Article").Create(context.Background(), engine.Data{
		Attributes: engine.Record{"title": "linked"},
		Relations: map[string]engine.RelationOp{
			"author": {Connect: []any{author["id"]}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, author["id"], article["author_id"])

	_, err = e.Model("Author").Delete(context.Background(),
		engine.Where{{Field: "id", Op: engine.OpEq, Value: author["id"]}})
	require.NoError(t, err)

	rec, err := e.Model("Article").FindUnique(context.Background(),
		engine.Where{{Field: "id", Op: engine.OpEq, Value: article["id"]}})
	require.NoError(t, err)
	assert.Nil(t, rec["author_id"])
}

func TestDeleteNullsToManyReferences(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	article, err := e.Model("Article").Create(ctx, engine.Data{
		Attributes: engine.Record{"title": "owner"},
		Relations: map[string]engine.RelationOp{
			"comments": {Create: []engine.Record{{"body": "stays"}}},
		},
	})
	require.NoError(t, err)

	_, err = e.Model("Article").Delete(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: article["id"]}})
	require.NoError(t, err)

	comment, err := e.Model("Comment").FindFirst(ctx, engine.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, comment["article_id"])
}

func TestRelationOps(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	article, err := e.Model("Article").Create(ctx, engine.Data{
		Attributes: engine.Record{"title": "rel"},
		Relations: map[string]engine.RelationOp{
			"author":   {Create: []engine.Record{{"name": "grace"}}},
			"comments": {Create: []engine.Record{{"body": "first"}, {"body": "second"}}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, article["author_id"])

	byID := engine.Where{{Field: "id", Op: engine.OpEq, Value: article["id"]}}

	rec, err := e.Model("Article").FindFirst(ctx, engine.FindOptions{
		Where:   byID,
		Include: engine.Include{"author": nil, "comments": nil},
	})
	require.NoError(t, err)
	author, ok := rec["author"].(engine.Record)
	require.True(t, ok)
	assert.Equal(t, "grace", author["name"])
	comments, ok := rec["comments"].([]engine.Record)
	require.True(t, ok)
	assert.Len(t, comments, 2)

	// connecting a missing target fails with a foreign-key error
	_, err = e.Model("Article").Update(ctx, byID, engine.Data{
		Relations: map[string]engine.RelationOp{
			"comments": {Connect: []any{int64(404)}},
		},
	})
	assert.ErrorIs(t, err, engine.ErrForeignKey)

	// replace the comment set with a single existing comment
	keep := comments[0]["id"]
	set := []any{keep}
	_, err = e.Model("Article").Update(ctx, byID, engine.Data{
		Relations: map[string]engine.RelationOp{
			"comments": {Set: &set},
		},
	})
	require.NoError(t, err)
	rec, err = e.Model("Article").FindFirst(ctx, engine.FindOptions{
		Where: byID, Include: engine.Include{"comments": nil},
	})
	require.NoError(t, err)
	comments, _ = rec["comments"].([]engine.Record)
	require.Len(t, comments, 1)
	assert.Equal(t, keep, comments[0]["id"])

	// clear the to-one side
	_, err = e.Model("Article").Update(ctx, byID, engine.Data{
		Relations: map[string]engine.RelationOp{
			"author": {Clear: true},
		},
	})
	require.NoError(t, err)
	rec, err = e.Model("Article").FindFirst(ctx, engine.FindOptions{
		Where: byID, Include: engine.Include{"author": nil},
	})
	require.NoError(t, err)
	assert.Nil(t, rec["author"])
}

func TestNestedIncludes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	reviewer := mustCreate(t, e, "Author", engine.Record{"name": "sam"})

	article, err := e.Model("Article").Create(ctx, engine.Data{
		Attributes: engine.Record{"title": "deep"},
		Relations: map[string]engine.RelationOp{
			"comments": {Create: []engine.Record{
				{"body": "reviewed", "author_id": reviewer["id"]},
				{"body": "anonymous"},
			}},
		},
	})
	require.NoError(t, err)

	rec, err := e.Model("Article").FindUnique(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: article["id"]}})
	require.NoError(t, err)
	_, hasComments := rec["comments"]
	assert.False(t, hasComments, "relations load only on request")

	recs, err := e.Model("Article").FindMany(ctx, engine.FindManyOptions{
		Include: engine.Include{"comments": engine.Include{"author": nil}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	comments, ok := recs[0]["comments"].([]engine.Record)
	require.True(t, ok)
	require.Len(t, comments, 2)
	reviewed, ok := comments[0]["author"].(engine.Record)
	require.True(t, ok)
	assert.Equal(t, "sam", reviewed["name"])
	assert.Nil(t, comments[1]["author"])
}

func TestFailedCreateLeavesNoPartialState(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Model("Article").Create(ctx, engine.Data{
		Attributes: engine.Record{"title": "broken"},
		Relations: map[string]engine.RelationOp{
			"author": {Connect: []any{int64(77)}},
		},
	})
	require.ErrorIs(t, err, engine.ErrForeignKey)

	n, err := e.Model("Article").Count(ctx, engine.CountOptions{})
	require.NoError(t, err)
	assert.Zero(t, n, "the half-created article must be gone")
}

func TestTxRollback(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, "Article", engine.Record{"title": "keep"})

	err := e.Tx(ctx, func(tx engine.Client) error {
		if _, err := tx.Model("Article").Create(ctx, engine.Data{
			Attributes: engine.Record{"title": "gone"},
		}); err != nil {
			return err
		}
		_, err := tx.Model("Article").Update(ctx,
			engine.Where{{Field: "id", Op: engine.OpEq, Value: int64(1)}},
			engine.Data{Attributes: engine.Record{"title": "changed"}})
		if err != nil {
			return err
		}
		return engine.ErrConstraint // force the rollback
	})
	require.Error(t, err)

	n, err := e.Model("Article").Count(ctx, engine.CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := e.Model("Article").FindFirst(ctx, engine.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, "keep", rec["title"])
}

func TestTxCommit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	err := e.Tx(ctx, func(tx engine.Client) error {
		for _, title := range []string{"a", "b"} {
			if _, err := tx.Model("Article").Create(ctx, engine.Data{
				Attributes: engine.Record{"title": title},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	n, err := e.Model("Article").Count(ctx, engine.CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClosedEngine(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Ping(context.Background()), engine.ErrNotConnected)
	_, err := e.Model("Article").Count(context.Background(), engine.CountOptions{})
	assert.ErrorIs(t, err, engine.ErrNotConnected)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.EnsureSchema(context.Background()))
	mustCreate(t, e, "Article", engine.Record{"title": "still here"})
	n, err := e.Model("Article").Count(context.Background(), engine.CountOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTimeAndJSONRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	at := time.Date(2024, 3, 7, 9, 30, 15, 123456789, time.UTC)
	created := mustCreate(t, e, "Article", engine.Record{
		"title":      "typed",
		"created_at": at,
		"meta":       map[string]any{"tags": []any{"a", "b"}, "depth": 2},
	})

	got, ok := created["created_at"].(time.Time)
	require.True(t, ok)
	assert.True(t, got.Equal(at), "timestamps keep nanosecond precision")

	meta, ok := created["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), meta["depth"])
	tags, ok := meta["tags"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, tags)

	// RFC 3339 strings are accepted on the way in
	rec, err := e.Model("Article").Update(context.Background(),
		engine.Where{{Field: "id", Op: engine.OpEq, Value: created["id"]}},
		engine.Data{Attributes: engine.Record{"created_at": "2025-01-02T03:04:05Z"}})
	require.NoError(t, err)
	got, ok = rec["created_at"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2025, got.Year())
}

func TestSoftDeleteMarkerColumn(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, reg.Register(&model.Descriptor{
		Name:       "Task",
		SoftDelete: "deleted_at",
		Fields:     []model.Field{{Name: "title", Type: "string"}},
	}))
	require.NoError(t, reg.Validate())
	e, err := NewSQLite(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()
	require.NoError(t, e.EnsureSchema(ctx))

	keep := mustCreate(t, e, "Task", engine.Record{"title": "keep"})
	gone := mustCreate(t, e, "Task", engine.Record{"title": "gone"})
	_, err = e.Model("Task").Update(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: gone["id"]}},
		engine.Data{Attributes: engine.Record{"deleted_at": time.Now().UTC()}})
	require.NoError(t, err)

	live, err := e.Model("Task").FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "deleted_at", Op: engine.OpNull}},
	})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, keep["id"], live[0]["id"])

	dead, err := e.Model("Task").FindMany(ctx, engine.FindManyOptions{
		Where: engine.Where{{Field: "deleted_at", Op: engine.OpNotNull}},
	})
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, gone["id"], dead[0]["id"])
}

func TestReferenceCycle(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, reg.Register(&model.Descriptor{
		Name:      "User",
		Fields:    []model.Field{{Name: "name", Type: "string"}},
		Relations: []model.Relation{{Name: "favorite", Model: "Post"}},
	}))
	require.NoError(t, reg.Register(&model.Descriptor{
		Name:      "Post",
		Fields:    []model.Field{{Name: "title", Type: "string"}},
		Relations: []model.Relation{{Name: "author", Model: "User"}},
	}))
	require.NoError(t, reg.Validate())
	e, err := NewSQLite(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()
	require.NoError(t, e.EnsureSchema(ctx))

	user := mustCreate(t, e, "User", engine.Record{"name": "pat"})
	post := mustCreate(t, e, "Post", engine.Record{"title": "hello", "author_id": user["id"]})
	_, err = e.Model("User").Update(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: user["id"]}},
		engine.Data{Relations: map[string]engine.RelationOp{
			"favorite": {Connect: []any{post["id"]}},
		}})
	require.NoError(t, err)

	// deleting either side of the cycle nulls the reference to it
	_, err = e.Model("Post").Delete(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: post["id"]}})
	require.NoError(t, err)
	rec, err := e.Model("User").FindUnique(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: user["id"]}})
	require.NoError(t, err)
	assert.Nil(t, rec["favorite_id"])

	post2 := mustCreate(t, e, "Post", engine.Record{"title": "again", "author_id": user["id"]})
	_, err = e.Model("User").Delete(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: user["id"]}})
	require.NoError(t, err)
	rec, err = e.Model("Post").FindUnique(ctx,
		engine.Where{{Field: "id", Op: engine.OpEq, Value: post2["id"]}})
	require.NoError(t, err)
	assert.Nil(t, rec["author_id"])
}

func TestUUIDKeyGeneration(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, reg.Register(&model.Descriptor{
		Name:       "Device",
		PrimaryKey: "device_uuid",
		Fields:     []model.Field{{Name: "label", Type: "string"}},
	}))
	require.NoError(t, reg.Validate())
	e, err := NewSQLite(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.EnsureSchema(context.Background()))

	rec := mustCreate(t, e, "Device", engine.Record{"label": "sensor"})
	key, ok := rec["device_uuid"].(string)
	require.True(t, ok)
	assert.Len(t, key, 36)
}

func TestPostgresDialect(t *testing.T) {
	d := postgresDialect{}

	assert.Equal(t, "BIGINT PRIMARY KEY", d.keyDDL(model.KeyKindInteger))
	assert.Equal(t, "TEXT PRIMARY KEY", d.keyDDL(model.KeyKindUUID))
	assert.Equal(t, "TIMESTAMPTZ", d.columnDDL("time"))
	assert.Equal(t, "JSONB", d.columnDDL("json"))

	sqlStr, args, err := d.contains(`"title"`, "50%").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "ILIKE")
	assert.Equal(t, []any{`%50\%%`}, args)

	err = d.translate(&pq.Error{Code: "23505", Message: "duplicate key"})
	assert.ErrorIs(t, err, engine.ErrConflict)
	err = d.translate(&pq.Error{Code: "23503", Message: "fk violation"})
	assert.ErrorIs(t, err, engine.ErrForeignKey)
	err = d.translate(&pq.Error{Code: "23502", Message: "not null"})
	assert.ErrorIs(t, err, engine.ErrConstraint)
	assert.ErrorIs(t, d.translate(engine.ErrNotFound), engine.ErrNotFound)
}
