// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/crudite-tech/crudite/core/client"
	"github.com/crudite-tech/crudite/core/engine/memory"
	"github.com/crudite-tech/crudite/core/jsonapi"
)

var configurationJSON string = `{
	"models": [
	  {
		"model": "Author",
		"fields": [
		  {"name": "name"},
		  {"name": "email", "unique": true}
		],
		"relations": [
		  {"name": "articles", "model": "Article", "many": true, "foreign_key": "author_id"}
		]
	  },
	  {
		"model": "Article",
		"soft_delete": "deleted_at",
		"fields": [
		  {"name": "title"},
		  {"name": "body", "optional": true},
		  {"name": "published", "type": "boolean", "optional": true},
		  {"name": "views", "type": "integer", "optional": true}
		],
		"relations": [
		  {"name": "author", "model": "Author", "foreign_key": "author_id"},
		  {"name": "tags", "model": "Tag", "many": true, "foreign_key": "article_id"}
		]
	  },
	  {
		"model": "Tag",
		"fields": [
		  {"name": "label"}
		],
		"relations": [
		  {"name": "article", "model": "Article", "foreign_key": "article_id"}
		]
	  },
	  {
		"model": "Device",
		"primary_key": "device_uuid",
		"fields": [
		  {"name": "label", "optional": true}
		]
	  },
	  {
		"model": "Workout",
		"schema_id": "http://some_host.com/workout.json",
		"fields": [
		  {"name": "workouts"}
		]
	  },
	  {
		"model": "Note",
		"empty_values": "apply",
		"fields": [
		  {"name": "label"},
		  {"name": "extras", "type": "json", "optional": true}
		]
	  },
	  {
		"model": "Bundle",
		"include_merge": true,
		"fields": [
		  {"name": "name"}
		],
		"relations": [
		  {"name": "gadgets", "model": "Gadget", "many": true, "foreign_key": "bundle_id"}
		]
	  },
	  {
		"model": "Gadget",
		"fields": [
		  {"name": "label"}
		],
		"relations": [
		  {"name": "bundle", "model": "Bundle", "foreign_key": "bundle_id"}
		]
	  }
	]
  }
`

var schemaRefString = `{ "type" : "string" ,
                         "$id" : "http://some_host.com/string.json"}`

var schemaWorkoutString = `{ "$id": "http://some_host.com/workout.json",
                             "type": "object",
                             "required": [
								"workouts"
								],
								"properties": {
									"workouts": {
										"$ref": "http://some_host.com/string.json"
									}
								}
							}`

// TestService holds the backend under test and an in-process client
// talking to it through the router.
type TestService struct {
	backend *Backend
	client  client.Client
}

var testService TestService

func asJSON(object interface{}) string {
	j, _ := json.Marshal(object)
	return string(j)
}

func TestMain(m *testing.M) {
	registry, err := NewRegistry(configurationJSON)
	if err != nil {
		panic(err)
	}

	router := mux.NewRouter()
	testService.backend = New(&Builder{
		Config:          configurationJSON,
		Engine:          memory.New(registry),
		Router:          router,
		JSONSchemas:     []string{schemaWorkoutString},
		JSONSchemasRefs: []string{schemaRefString},
	})
	testService.client = client.NewWithRouter(router).WithHeader("Content-Type", jsonapi.MediaType)

	code := m.Run()
	os.Exit(code)
}

// ------------------------------------------------------------------
// response envelopes and request builders
// ------------------------------------------------------------------

type identifierObject struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type relationshipObject struct {
	Data  json.RawMessage   `json:"data"`
	Links map[string]string `json:"links"`
}

type resourceObject struct {
	Type          string                        `json:"type"`
	ID            string                        `json:"id"`
	Attributes    map[string]any                `json:"attributes"`
	Relationships map[string]relationshipObject `json:"relationships"`
	Links         map[string]string             `json:"links"`
}

type itemDocument struct {
	Data     *resourceObject   `json:"data"`
	Included []resourceObject  `json:"included"`
	Links    map[string]string `json:"links"`
	Meta     map[string]any    `json:"meta"`
}

type collectionDocument struct {
	Data     []resourceObject  `json:"data"`
	Included []resourceObject  `json:"included"`
	Links    map[string]string `json:"links"`
	Meta     map[string]any    `json:"meta"`
}

type linkageEnvelope struct {
	Data  json.RawMessage   `json:"data"`
	Meta  map[string]any    `json:"meta"`
	Links map[string]string `json:"links"`
}

func decodeToOne(t *testing.T, raw json.RawMessage) *identifierObject {
	t.Helper()
	if len(raw) == 0 {
		t.Fatal("relationship carries no data")
	}
	if strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	identifier := identifierObject{}
	if err := json.Unmarshal(raw, &identifier); err != nil {
		t.Fatal(err)
	}
	return &identifier
}

func decodeToMany(t *testing.T, raw json.RawMessage) []identifierObject {
	t.Helper()
	var identifiers []identifierObject
	if err := json.Unmarshal(raw, &identifiers); err != nil {
		t.Fatal(err)
	}
	return identifiers
}

func document(typeName string, attributes map[string]any) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"type":       typeName,
			"attributes": attributes,
		},
	}
}

func documentWithID(typeName, id string, attributes map[string]any) map[string]any {
	doc := document(typeName, attributes)
	doc["data"].(map[string]any)["id"] = id
	return doc
}

func documentWithRelationships(typeName string, attributes, relationships map[string]any) map[string]any {
	doc := document(typeName, attributes)
	doc["data"].(map[string]any)["relationships"] = relationships
	return doc
}

func toOne(typeName, id string) map[string]any {
	return map[string]any{"data": map[string]any{"type": typeName, "id": id}}
}

func toMany(typeName string, ids ...string) map[string]any {
	identifiers := make([]any, 0, len(ids))
	for _, id := range ids {
		identifiers = append(identifiers, map[string]any{"type": typeName, "id": id})
	}
	return map[string]any{"data": identifiers}
}

func uniqueEmail(t *testing.T, name string) string {
	return strings.ToLower(name + "." + strings.ReplaceAll(t.Name(), "/", ".") + "@example.com")
}

func createAuthor(t *testing.T, name string) resourceObject {
	t.Helper()
	doc := itemDocument{}
	_, err := testService.client.RawPost("/authors",
		document("authors", map[string]any{"name": name, "email": uniqueEmail(t, name)}), &doc)
	if err != nil {
		t.Fatal(err)
	}
	return *doc.Data
}

func createArticle(t *testing.T, title string, relationships map[string]any) resourceObject {
	t.Helper()
	body := document("articles", map[string]any{"title": title})
	if relationships != nil {
		body = documentWithRelationships("articles", map[string]any{"title": title}, relationships)
	}
	doc := itemDocument{}
	_, err := testService.client.RawPost("/articles", body, &doc)
	if err != nil {
		t.Fatal(err)
	}
	return *doc.Data
}

// ------------------------------------------------------------------
// resource lifecycle
// ------------------------------------------------------------------

func TestCreateAndGet(t *testing.T) {
	doc := itemDocument{}
	status, err := testService.client.RawPost("/authors",
		document("authors", map[string]any{"name": "Marie", "email": uniqueEmail(t, "marie")}), &doc)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status)
	}
	if doc.Data == nil || doc.Data.ID == "" {
		t.Fatal("no id in response:", asJSON(doc))
	}
	if doc.Data.Type != "authors" {
		t.Fatal("unexpected type:", doc.Data.Type)
	}
	if doc.Data.Attributes["name"] != "Marie" {
		t.Fatal("unexpected attributes:", asJSON(doc.Data.Attributes))
	}
	if doc.Data.Links["self"] != "/authors/"+doc.Data.ID {
		t.Fatal("unexpected self link:", asJSON(doc.Data.Links))
	}

	// the to-many relationship was not loaded, so it must carry links
	// but no data member
	rel, ok := doc.Data.Relationships["articles"]
	if !ok {
		t.Fatal("missing articles relationship:", asJSON(doc.Data))
	}
	if rel.Links["related"] != "/authors/"+doc.Data.ID+"/articles" {
		t.Fatal("unexpected related link:", asJSON(rel.Links))
	}
	if rel.Data != nil {
		t.Fatal("unloaded relationship must not carry data:", asJSON(rel))
	}

	get := itemDocument{}
	if _, err := testService.client.RawGet("/authors/"+doc.Data.ID, &get); err != nil {
		t.Fatal(err)
	}
	if get.Data.Attributes["name"] != "Marie" || get.Data.Attributes["email"] != doc.Data.Attributes["email"] {
		t.Fatal("unexpected result:", asJSON(get.Data.Attributes))
	}

	// every document advertises the JSON:API version
	var raw []byte
	if _, err := testService.client.RawGet("/authors/"+doc.Data.ID, &raw); err != nil {
		t.Fatal(err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatal(err)
	}
	version, _ := envelope["jsonapi"].(map[string]any)
	if version["version"] != "1.1" {
		t.Fatal("missing jsonapi version member:", string(raw))
	}
}

func TestCreateLocationHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	body := asJSON(document("authors", map[string]any{"name": "Olga", "email": uniqueEmail(t, "olga")}))
	r, _ := http.NewRequest(http.MethodPost, "/authors", strings.NewReader(body))
	testService.backend.router.ServeHTTP(rec, r)

	if rec.Code != http.StatusCreated {
		t.Fatal("unexpected status:", rec.Code, rec.Body.String())
	}
	doc := itemDocument{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if location := rec.Header().Get("Location"); location != "/authors/"+doc.Data.ID {
		t.Fatal("unexpected location header:", location)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != jsonapi.MediaType {
		t.Fatal("unexpected content type:", contentType)
	}
}

func TestCreateWithClientKey(t *testing.T) {
	id := uuid.NewString()
	doc := itemDocument{}
	status, err := testService.client.RawPost("/devices",
		documentWithID("devices", id, map[string]any{"label": "sensor"}), &doc)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusCreated || doc.Data.ID != id {
		t.Fatal("client key not honored:", status, asJSON(doc))
	}

	// the same key again is a conflict
	status, _ = testService.client.RawPost("/devices",
		documentWithID("devices", id, map[string]any{"label": "clone"}), nil)
	if status != http.StatusConflict {
		t.Fatal("expected conflict, got:", status)
	}

	// without a client key the backend generates a UUID
	doc = itemDocument{}
	if _, err := testService.client.RawPost("/devices",
		document("devices", map[string]any{}), &doc); err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(doc.Data.ID); err != nil {
		t.Fatal("generated key is not a UUID:", doc.Data.ID)
	}
}

func TestCreateTypeChecks(t *testing.T) {
	status, err := testService.client.RawPost("/authors",
		document("articles", map[string]any{"name": "X"}), nil)
	if status != http.StatusBadRequest {
		t.Fatal("expected bad request, got:", status)
	}
	if !strings.Contains(err.Error(), "does not belong here") {
		t.Fatal("unexpected error:", err)
	}

	status, _ = testService.client.RawPost("/authors",
		document("no_such_things", map[string]any{"name": "X"}), nil)
	if status != http.StatusBadRequest {
		t.Fatal("expected bad request, got:", status)
	}

	// the singular model type name resolves to the same model and is
	// accepted
	status, err = testService.client.RawPost("/authors",
		document("author", map[string]any{"name": "Singular", "email": uniqueEmail(t, "singular")}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status)
	}
}

func TestRequestBodyChecks(t *testing.T) {
	status, err := testService.client.RawPost("/authors", []byte(`{"meta":{}}`), nil)
	if status != http.StatusBadRequest || !strings.Contains(err.Error(), "missing data member") {
		t.Fatal("expected missing data member, got:", status, err)
	}

	status, err = testService.client.RawPost("/authors", []byte(`{"data":null}`), nil)
	if status != http.StatusBadRequest || !strings.Contains(err.Error(), "expected a resource object") {
		t.Fatal("expected resource object error, got:", status, err)
	}

	status, err = testService.client.RawPost("/authors", []byte(`no json at all`), nil)
	if status != http.StatusBadRequest || !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatal("expected invalid JSON error, got:", status, err)
	}

	status, _ = testService.client.RawPost("/authors", []byte(`{"data":{"attributes":{"name":"x"}}}`), nil)
	if status != http.StatusBadRequest {
		t.Fatal("expected missing type error, got:", status)
	}
}

func TestUpdatePutPatchEquivalence(t *testing.T) {
	article := createArticle(t, t.Name(), nil)

	// PUT is a partial update, exactly like PATCH
	doc := itemDocument{}
	status, err := testService.client.RawPut("/articles/"+article.ID,
		document("articles", map[string]any{"body": "first version"}), &doc)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatal("unexpected status:", status)
	}
	if doc.Data.Attributes["title"] != t.Name() || doc.Data.Attributes["body"] != "first version" {
		t.Fatal("unexpected result:", asJSON(doc.Data.Attributes))
	}

	doc = itemDocument{}
	if _, err := testService.client.RawPatch("/articles/"+article.ID,
		document("articles", map[string]any{"body": "second version"}), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Data.Attributes["title"] != t.Name() || doc.Data.Attributes["body"] != "second version" {
		t.Fatal("unexpected result:", asJSON(doc.Data.Attributes))
	}

	// explicit null clears a field
	doc = itemDocument{}
	if _, err := testService.client.RawPatch("/articles/"+article.ID,
		document("articles", map[string]any{"body": nil}), &doc); err != nil {
		t.Fatal(err)
	}
	if body, ok := doc.Data.Attributes["body"]; !ok || body != nil {
		t.Fatal("null did not clear the field:", asJSON(doc.Data.Attributes))
	}
}

func TestUpdateChecks(t *testing.T) {
	article := createArticle(t, t.Name(), nil)

	// a body id must match the path
	status, err := testService.client.RawPatch("/articles/"+article.ID,
		documentWithID("articles", "999999", map[string]any{"title": "nope"}), nil)
	if status != http.StatusBadRequest || !strings.Contains(err.Error(), "does not match") {
		t.Fatal("expected id mismatch error, got:", status, err)
	}

	// a matching body id is fine
	doc := itemDocument{}
	if _, err := testService.client.RawPatch("/articles/"+article.ID,
		documentWithID("articles", article.ID, map[string]any{"title": t.Name() + " v2"}), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Data.Attributes["title"] != t.Name()+" v2" {
		t.Fatal("unexpected result:", asJSON(doc.Data.Attributes))
	}

	status, _ = testService.client.RawPatch("/articles/987654321",
		document("articles", map[string]any{"title": "ghost"}), nil)
	if status != http.StatusNotFound {
		t.Fatal("expected not found, got:", status)
	}
}

func TestDeleteHard(t *testing.T) {
	author := createAuthor(t, "victim")

	status, err := testService.client.RawDelete("/authors/" + author.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusNoContent {
		t.Fatal("unexpected status:", status)
	}

	status, _ = testService.client.RawGet("/authors/"+author.ID, nil)
	if status != http.StatusNotFound {
		t.Fatal("not deleted:", status)
	}

	status, _ = testService.client.RawDelete("/authors/" + author.ID)
	if status != http.StatusNotFound {
		t.Fatal("expected not found, got:", status)
	}
}

func TestSchemaValidation(t *testing.T) {
	doc := itemDocument{}
	status, err := testService.client.RawPost("/workouts",
		document("workouts", map[string]any{"workouts": "pushups"}), &doc)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusCreated {
		t.Fatal("unexpected status:", status)
	}

	status, _ = testService.client.RawPost("/workouts",
		document("workouts", map[string]any{"workouts": 42}), nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatal("expected 422 for type violation, got:", status)
	}

	status, _ = testService.client.RawPost("/workouts",
		document("workouts", map[string]any{"something": "else"}), nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatal("expected 422 for missing required member, got:", status)
	}

	// updates are validated as well
	status, _ = testService.client.RawPatch("/workouts/"+doc.Data.ID,
		document("workouts", map[string]any{"workouts": 17}), nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatal("expected 422 on update, got:", status)
	}
	if _, err := testService.client.RawPatch("/workouts/"+doc.Data.ID,
		document("workouts", map[string]any{"workouts": "situps"}), nil); err != nil {
		t.Fatal(err)
	}
}

func TestEmptyValuesPolicy(t *testing.T) {
	// the default policy drops empty arrays and objects from updates
	article := createArticle(t, t.Name(), nil)
	doc := itemDocument{}
	if _, err := testService.client.RawPatch("/articles/"+article.ID,
		document("articles", map[string]any{"extras": []any{}}), &doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Data.Attributes["extras"]; ok {
		t.Fatal("empty array was not dropped:", asJSON(doc.Data.Attributes))
	}

	// the apply policy persists them verbatim
	noteDoc := itemDocument{}
	if _, err := testService.client.RawPost("/notes",
		document("notes", map[string]any{"label": t.Name()}), &noteDoc); err != nil {
		t.Fatal(err)
	}
	doc = itemDocument{}
	if _, err := testService.client.RawPatch("/notes/"+noteDoc.Data.ID,
		document("notes", map[string]any{"extras": []any{}}), &doc); err != nil {
		t.Fatal(err)
	}
	extras, ok := doc.Data.Attributes["extras"].([]any)
	if !ok || len(extras) != 0 {
		t.Fatal("empty array was not applied:", asJSON(doc.Data.Attributes))
	}
}
