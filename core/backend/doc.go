// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

/*
Package backend implements the configurable JSON:API backend

A backend manages a set of data models stored in a relational data engine and
provides an auto-generated RESTful JSON:API for them.

Configuration

The configuration is done entirely via JSON. It consists of a list of models,
each with fields, relations and options.

Example:
  {
	"models": [
	  {
		"model": "Author",
		"fields": [
		  {"name": "name"},
		  {"name": "email", "unique": true}
		],
		"relations": [
		  {"name": "articles", "model": "Article", "many": true}
		]
	  },
	  {
		"model": "Article",
		"soft_delete": "deleted_at",
		"fields": [
		  {"name": "title"},
		  {"name": "body"},
		  {"name": "published", "type": "boolean"}
		],
		"relations": [
		  {"name": "author", "model": "Author"}
		]
	  }
	]
  }

The example creates two models. Model names are PascalCase and map to
pluralized snake_case resource types, "Author" becomes "authors" and
"Article" becomes "articles". An article carries a to-one relation to its
author, stored in the foreign-key column "author_id"; the author's "articles"
relation is the inverse to-many view of the same column. Articles are
soft-deleted: a DELETE request marks the record with a "deleted_at" timestamp
instead of purging it, and the record can later be recovered.

This configuration creates the following REST routes:
	GET /authors
	POST /authors
	POST /authors/atomic
	GET /authors/{id}
	PUT /authors/{id}
	PATCH /authors/{id}
	DELETE /authors/{id}
	GET /authors/{id}/relationships/{relationship}
	POST /authors/{id}/relationships/{relationship}
	PATCH /authors/{id}/relationships/{relationship}
	DELETE /authors/{id}/relationships/{relationship}
	GET /authors/{id}/{related}
	GET /articles
	POST /articles
	POST /articles/atomic
	GET /articles/{id}
	PUT /articles/{id}
	PATCH /articles/{id}
	DELETE /articles/{id}
	POST /articles/{id}/recover
	GET /articles/{id}/relationships/{relationship}
	POST /articles/{id}/relationships/{relationship}
	PATCH /articles/{id}/relationships/{relationship}
	DELETE /articles/{id}/relationships/{relationship}
	GET /articles/{id}/{related}

All documents on the wire follow the JSON:API shape. We can create an author
with a simple POST:
  curl http://localhost:3000/authors -d'{"data":{"type":"authors","attributes":{"name":"Jonathan Test","email":"test@test.com"}}}'
  {
	"data": {
	  "type": "authors",
	  "id": "1",
	  "attributes": {
		"name": "Jonathan Test",
		"email": "test@test.com"
	  },
	  "relationships": {
		"articles": {
		  "links": {
			"self": "/authors/1/relationships/articles",
			"related": "/authors/1/articles"
		  }
		}
	  },
	  "links": {"self": "/authors/1"}
	},
	"meta": {},
	"jsonapi": {"version": "1.1"}
  }

And an article connected to that author in the same request:
  curl http://localhost:3000/articles -d'{"data":{"type":"articles","attributes":{"title":"On Backends"},"relationships":{"author":{"data":{"type":"authors","id":"1"}}}}}'

Operations

Every model gets the full set of operations by default: index, show, create,
update, delete, recover and atomic. The set can be restricted per model with
the "operations" array in the configuration. The recover operation only
exists for models with soft delete; requesting it for a model without a
delete marker is a configuration error.

Update is registered for both PUT and PATCH with identical semantics: a
partial update of the attributes and relationships present in the document.

Query Parameters and Pagination

List requests must be paginated. The system supports page-number and cursor
pagination:
	  ?page[size]=n     sets a page limit of n items, mandatory
	  ?page[number]=n   selects page number n
	  ?page[cursor]=c   selects the page after the cursor c

The two positional selectors are mutually exclusive. Cursor values are taken
verbatim from the "next" link of the previous page. The maximum allowed page
size is configurable and defaults to 100.

Collections can be filtered, sorted and shaped:
	  ?filter[field]=v          equality filter on a field
	  ?filter[field_gte]=v      comparison filters: _ne, _gt, _gte, _lt, _lte, _like, _in
	  ?sort=-created_at,title   sort keys, "-" selects descending order
	  ?fields[articles]=title   sparse fieldsets per resource type
	  ?include=author.articles  compound-document inclusion, dot paths supported

Unknown filter fields, sort keys and include paths are dropped rather than
rejected, so unrelated query parameters never break a read. Malformed page
parameters and filter values of the wrong type are rejected with 400.

Collection responses carry pagination links that re-serialize the original
query with only the page selectors replaced, and a meta object with the total
count, the page length and page bookkeeping.

Soft Delete and Recovery

Models with a "soft_delete" marker field never lose data on DELETE: the
record is stamped with the deletion time and disappears from all reads. A GET
on a tombstoned record answers 410 Gone rather than 404, so clients can tell
"deleted" from "never existed". Reads accept ?include_deleted=true to see
tombstones, and POST {id}/recover clears the marker again. Recovering an
active record answers 409 Conflict.

Atomic Operations

The route POST {type}/atomic executes an ordered batch of operations inside
one data-engine transaction:
  {
	"atomic:operations": [
	  {"op": "add", "data": {"type": "authors", "lid": "a1", "attributes": {"name": "New Author"}}},
	  {"op": "update", "ref": {"type": "articles", "id": "7"}, "data": {"attributes": {"published": true}}},
	  {"op": "remove", "ref": {"type": "articles", "id": "8"}}
	]
  }

Either all operations succeed or none are applied. The response carries one
result per operation under "atomic:results", null for removes. A "lid"
assigned by an add can be used as ref of later operations in the same batch.

Hooks

Request processing can be customized per model with hooks. BeforeIndex and
BeforeShow can rewrite the engine options of reads, for example to add a
mandatory predicate. The mutation hooks BeforeCreate, AfterCreate,
BeforeUpdate, AfterUpdate, BeforeDestroy, AfterDestroy, BeforeRecover and
AfterRecover bracket writes; before hooks may rewrite the outgoing data, and
any hook error aborts the request.

JSON Schema Validation

A model can name a JSON schema with "schema_id". The attributes of create and
update requests are then validated against that schema before any hook or
engine call, and violations answer 422 with the validation details.

If-None-Match and Etag

All GET requests are served with Etag and obey the If-None-Match request.
This allows clients to check whether new data is available without
downloading and comparing the entire response. If a client puts the received
Etag of a request into the If-None-Match header of a subsequent request, then
the system will simply respond with a 304 Not Modified in case the resource
was not changed. In case the resource was changed, the request will be
answered as usual.
*/
package backend
