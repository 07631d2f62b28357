// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

package backend

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"

	"github.com/crudite-tech/crudite/core"
	"github.com/crudite-tech/crudite/core/client"
	"github.com/crudite-tech/crudite/core/engine"
	"github.com/crudite-tech/crudite/core/engine/memory"
	"github.com/crudite-tech/crudite/core/jsonapi"
)

const taskConfigurationJSON = `{
	"models": [
	  {
		"model": "Task",
		"soft_delete": "deleted_at",
		"fields": [
		  {"name": "title"},
		  {"name": "state", "optional": true}
		]
	  }
	]
  }
`

// newTaskBackend builds a private backend so the installed hooks never
// leak into other tests.
func newTaskBackend(t *testing.T) (*Backend, client.Client) {
	t.Helper()
	registry, err := NewRegistry(taskConfigurationJSON)
	if err != nil {
		t.Fatal(err)
	}
	router := mux.NewRouter()
	b := New(&Builder{
		Config:      taskConfigurationJSON,
		Engine:      memory.New(registry),
		Router:      router,
		HealthRoute: true,
	})
	return b, client.NewWithRouter(router).WithHeader("Content-Type", jsonapi.MediaType)
}

func createTask(t *testing.T, c client.Client, title string) resourceObject {
	t.Helper()
	doc := itemDocument{}
	if _, err := c.RawPost("/tasks", document("tasks", map[string]any{"title": title}), &doc); err != nil {
		t.Fatal(err)
	}
	return *doc.Data
}

func TestCreateHooks(t *testing.T) {
	b, c := newTaskBackend(t)

	calls := []string{}
	b.BeforeCreate("Task", func(ctx context.Context, event *HookEvent) error {
		calls = append(calls, "before")
		if event.Data.Attributes["title"] == "reserved" {
			return jsonapi.Unprocessable("this title is reserved")
		}
		event.Data.Attributes["state"] = "pending"
		return nil
	})
	b.AfterCreate("Task", func(ctx context.Context, event *HookEvent) error {
		calls = append(calls, "after")
		if event.Key == nil || event.Record == nil {
			t.Error("after hook without result:", asJSON(event))
		}
		return nil
	})

	doc := itemDocument{}
	if _, err := c.RawPost("/tasks", document("tasks", map[string]any{"title": "hello"}), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Data.Attributes["state"] != "pending" {
		t.Fatal("before hook rewrite was lost:", asJSON(doc.Data.Attributes))
	}
	if len(calls) != 2 || calls[0] != "before" || calls[1] != "after" {
		t.Fatal("unexpected hook order:", calls)
	}

	// an error from the before hook aborts the create with its status
	status, _ := c.RawPost("/tasks", document("tasks", map[string]any{"title": "reserved"}), nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatal("expected unprocessable, got:", status)
	}
	list := collectionDocument{}
	if _, err := c.RawGet("/tasks?page[size]=10&page[number]=1&filter[title]=reserved", &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 0 {
		t.Fatal("aborted create left a record:", asJSON(list.Data))
	}
}

func TestUpdateHookErrors(t *testing.T) {
	b, c := newTaskBackend(t)
	task := createTask(t, c, "original")

	// a plain error from a before hook is a server fault
	b.BeforeUpdate("Task", func(ctx context.Context, event *HookEvent) error {
		if event.Data.Attributes["title"] == "explode" {
			return errors.New("boom")
		}
		return nil
	})
	status, _ := c.RawPatch("/tasks/"+task.ID, document("tasks", map[string]any{"title": "explode"}), nil)
	if status != http.StatusInternalServerError {
		t.Fatal("expected internal error, got:", status)
	}

	// an error from an after hook fails the request, but the mutation
	// stays applied
	b.AfterUpdate("Task", func(ctx context.Context, event *HookEvent) error {
		return jsonapi.Conflict("downstream sync failed")
	})
	status, _ = c.RawPatch("/tasks/"+task.ID, document("tasks", map[string]any{"title": "renamed"}), nil)
	if status != http.StatusConflict {
		t.Fatal("expected conflict, got:", status)
	}
	doc := itemDocument{}
	if _, err := c.RawGet("/tasks/"+task.ID, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Data.Attributes["title"] != "renamed" {
		t.Fatal("after hook error must not revert the update:", asJSON(doc.Data.Attributes))
	}
}

func TestIndexAndShowHooks(t *testing.T) {
	b, c := newTaskBackend(t)

	visible := createTask(t, c, "visible task")
	hidden := createTask(t, c, "hidden task")
	if _, err := c.RawPatch("/tasks/"+visible.ID, document("tasks", map[string]any{"state": "visible"}), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RawPatch("/tasks/"+hidden.ID, document("tasks", map[string]any{"state": "secret"}), nil); err != nil {
		t.Fatal(err)
	}

	b.BeforeIndex("Task", func(ctx context.Context, opts *engine.FindManyOptions) error {
		opts.Where = opts.Where.And("state", engine.OpNe, "secret")
		return nil
	})
	b.BeforeShow("Task", func(ctx context.Context, opts *engine.FindOptions) error {
		opts.Where = opts.Where.And("state", engine.OpNe, "secret")
		return nil
	})

	list := collectionDocument{}
	if _, err := c.RawGet("/tasks?page[size]=10&page[number]=1", &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != visible.ID {
		t.Fatal("index hook predicate not applied:", asJSON(list.Data))
	}
	if list.Meta["total"] != float64(1) {
		t.Fatal("count must see the hook predicate:", asJSON(list.Meta))
	}

	if _, err := c.RawGet("/tasks/"+visible.ID, nil); err != nil {
		t.Fatal(err)
	}
	status, _ := c.RawGet("/tasks/"+hidden.ID, nil)
	if status != http.StatusNotFound {
		t.Fatal("show hook predicate not applied:", status)
	}
}

func TestDestroyAndRecoverHooks(t *testing.T) {
	b, c := newTaskBackend(t)
	task := createTask(t, c, "short lived")

	calls := []string{}
	b.BeforeDestroy("Task", func(ctx context.Context, event *HookEvent) error {
		calls = append(calls, "before-destroy")
		if event.Operation != core.OperationDelete {
			t.Error("unexpected operation:", event.Operation)
		}
		if event.Data == nil || event.Data.Attributes["deleted_at"] == nil {
			t.Error("soft destroy must carry the marker:", asJSON(event.Data))
		}
		return nil
	})
	b.AfterDestroy("Task", func(ctx context.Context, event *HookEvent) error {
		calls = append(calls, "after-destroy")
		return nil
	})
	b.BeforeRecover("Task", func(ctx context.Context, event *HookEvent) error {
		calls = append(calls, "before-recover")
		if event.Operation != core.OperationRecover {
			t.Error("unexpected operation:", event.Operation)
		}
		return nil
	})
	b.AfterRecover("Task", func(ctx context.Context, event *HookEvent) error {
		calls = append(calls, "after-recover")
		return nil
	})

	if _, err := c.RawDeleteWithBody("/tasks/"+task.ID, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RawPost("/tasks/"+task.ID+"/recover", map[string]any{}, nil); err != nil {
		t.Fatal(err)
	}

	want := []string{"before-destroy", "after-destroy", "before-recover", "after-recover"}
	if len(calls) != len(want) {
		t.Fatal("unexpected hook calls:", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatal("unexpected hook order:", calls)
		}
	}
}

func TestDestroyHookAbort(t *testing.T) {
	b, c := newTaskBackend(t)
	task := createTask(t, c, "protected")

	b.BeforeDestroy("Task", func(ctx context.Context, event *HookEvent) error {
		return jsonapi.Conflict("this record is protected")
	})

	status, _ := c.RawDeleteWithBody("/tasks/"+task.ID, nil, nil)
	if status != http.StatusConflict {
		t.Fatal("expected conflict, got:", status)
	}
	if _, err := c.RawGet("/tasks/"+task.ID, nil); err != nil {
		t.Fatal("aborted destroy must keep the record:", err)
	}
}

func TestHealthRoute(t *testing.T) {
	_, c := newTaskBackend(t)

	health := map[string]string{}
	status, err := c.RawGet("/healthz", &health)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK || health["status"] != "ok" {
		t.Fatal("unexpected health response:", status, asJSON(health))
	}
}
