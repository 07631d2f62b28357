// Copyright 2024 Crudite Tech - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@crudite-tech.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is the tool of choice if one request handler needs to call other handlers to fulfill
its task. It is also perfectly suited for unit tests.
*/
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	prefix     string
	token      string
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	c.defaultHeaders[key] = value
	return c
}

// WithToken returns a new client with a bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithPrefix returns a new client whose resource helpers generate paths
// below the given route prefix, for example "/api"
func (c Client) WithPrefix(prefix string) Client {
	c.prefix = strings.TrimSuffix(prefix, "/")
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

func (c Client) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Resource is a typed helper for one resource collection. It knows the
// generated JSON:API routes of the type and keeps optional query
// parameters, so tests and handlers do not assemble paths by hand.
type Resource struct {
	client     *Client
	typeName   string
	parameters []string
}

// Resource returns a new resource helper for the given type, for
// example "articles"
func (c Client) Resource(typeName string) Resource {
	return Resource{
		client:   &c,
		typeName: typeName,
	}
}

// WithParameter returns a new resource helper with a URL parameter added.
func (r Resource) WithParameter(key string, value string) Resource {
	parameter := key + "=" + value

	return Resource{
		client:   r.client,
		typeName: r.typeName,
		// we want a true copy to avoid side effects
		parameters: append(append([]string{}, r.parameters...), parameter),
	}
}

// WithFilter returns a new resource helper with a filter parameter added.
// This is a shortcut for WithParameter("filter["+field+"]", value)
func (r Resource) WithFilter(field string, value string) Resource {
	return r.WithParameter("filter["+field+"]", value)
}

// WithPage returns a new resource helper selecting one page
func (r Resource) WithPage(number int, size int) Resource {
	return r.WithParameter("page[number]", strconv.Itoa(number)).
		WithParameter("page[size]", strconv.Itoa(size))
}

// CollectionPath returns the generated path for the collection plus
// optional query strings
func (r Resource) CollectionPath() string {
	path := r.client.prefix + "/" + r.typeName
	if len(r.parameters) > 0 {
		path += "?" + strings.Join(r.parameters, "&")
	}
	return path
}

// ItemPath returns the generated path for one item plus optional query
// strings
func (r Resource) ItemPath(id string) string {
	path := r.client.prefix + "/" + r.typeName + "/" + id
	if len(r.parameters) > 0 {
		path += "?" + strings.Join(r.parameters, "&")
	}
	return path
}

// RelationshipPath returns the generated path for the resource-linkage
// form of one relationship
func (r Resource) RelationshipPath(id string, relationship string) string {
	return r.client.prefix + "/" + r.typeName + "/" + id + "/relationships/" + relationship
}

// RelatedPath returns the generated path for the related documents of
// one relationship
func (r Resource) RelatedPath(id string, relationship string) string {
	return r.client.prefix + "/" + r.typeName + "/" + id + "/" + relationship
}

// List retrieves the collection.
//
// The operation corresponds to a GET request.
func (r Resource) List(result interface{}) (int, error) {
	return r.client.RawGet(r.CollectionPath(), result)
}

// Retrieve retrieves a single item.
//
// The operation corresponds to a GET request.
func (r Resource) Retrieve(id string, result interface{}) (int, error) {
	return r.client.RawGet(r.ItemPath(id), result)
}

// Create creates a new item from a JSON:API document.
//
// The operation corresponds to a POST request.
func (r Resource) Create(body interface{}, result interface{}) (int, error) {
	return r.client.RawPost(r.CollectionPath(), body, result)
}

// Update patches an item with a JSON:API document.
//
// The operation corresponds to a PATCH request.
func (r Resource) Update(id string, body interface{}, result interface{}) (int, error) {
	return r.client.RawPatch(r.ItemPath(id), body, result)
}

// Delete deletes an item. Models with soft delete answer 200 with
// deletion meta, everything else answers 204.
func (r Resource) Delete(id string) (int, error) {
	return r.client.RawDelete(r.ItemPath(id))
}

// Recover recovers a soft-deleted item.
//
// The operation corresponds to a POST request to {id}/recover.
func (r Resource) Recover(id string, result interface{}) (int, error) {
	return r.client.RawPost(r.ItemPath(id)+"/recover", []byte("{}"), result)
}

// Atomic posts a batch of operations to the atomic route.
func (r Resource) Atomic(body interface{}, result interface{}) (int, error) {
	return r.client.RawPost(r.CollectionPath()+"/atomic", body, result)
}

// RawGet gets the resource from path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can also be raw *[]byte. result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.RawGetWithHeader(path, map[string]string{}, result)
	return status, err
}

// RawGetWithHeader gets the resource from path with extra request
// headers. Expects http.StatusOK, http.StatusNoContent or
// http.StatusNotModified as response, otherwise it will flag an error.
//
// Returns the actual http status code and the response header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	r, _ := http.NewRequestWithContext(c.Context(), http.MethodGet, c.url+path, nil)
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range header {
		r.Header.Add(key, value)
	}

	var err error
	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, nil, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}

	status := res.StatusCode
	if status == http.StatusNoContent || status == http.StatusNotModified {
		return status, res.Header, nil
	}
	if status != http.StatusOK {
		return status, res.Header, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}

	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, res.Header, err
}

// RawPost posts a resource to path. Expects http.StatusCreated or
// http.StatusOK as response, otherwise it will flag an error. Returns
// the actual http status code.
//
// The path can be extend with query strings.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.RawPostWithHeader(path, nil, body, result)
}

// RawPostWithHeader posts a resource to path with extra request headers.
// Expects http.StatusCreated or http.StatusOK as response, otherwise it
// will flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPostWithHeader(path string, headers map[string]string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
		}
	}

	r, _ := http.NewRequestWithContext(c.Context(), http.MethodPost, c.url+path, bytes.NewBuffer(j))
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}

	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status != http.StatusCreated && status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusCreated, strings.TrimSpace(string(resBody)))
	}

	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}

// RawPut puts a resource to path. Expects http.StatusOK, http.StatusCreated
// or http.StatusNoContent as valid responses, otherwise it will flag an
// error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("PUT to %s: %w", path, err)
		}
	}

	r, _ := http.NewRequestWithContext(c.Context(), http.MethodPut, c.url+path, bytes.NewBuffer(j))
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return status, fmt.Errorf("put got status=%d body=%s", status, strings.TrimSpace(string(resBody)))
	}
	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}

// RawPatch puts a patch to path. Expects http.StatusOK, http.StatusCreated
// or http.StatusNoContent as valid responses, otherwise it will flag an
// error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, err
		}
	}

	r, _ := http.NewRequestWithContext(c.Context(), http.MethodPatch, c.url+path, bytes.NewBuffer(j))
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent or
// http.StatusOK as response, otherwise it will flag an error. Models with
// soft delete answer 200 with deletion meta instead of 204.
//
// The path can be extend with query strings.
//
// Returns the actual http status code.
func (c Client) RawDelete(path string) (int, error) {
	return c.RawDeleteWithBody(path, nil, nil)
}

// RawDeleteWithBody deletes the resource at path with a request body,
// which the relationship routes require. Expects http.StatusNoContent or
// http.StatusOK as response, otherwise it will flag an error.
//
// Returns the actual http status code.
func (c Client) RawDeleteWithBody(path string, body interface{}, result interface{}) (int, error) {
	var err error
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, err
			}
		}
		reader = bytes.NewBuffer(j)
	}

	r, _ := http.NewRequestWithContext(c.Context(), http.MethodDelete, c.url+path, reader)
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		resBody, _ = io.ReadAll(res.Body)
	}
	status := res.StatusCode
	if status != http.StatusNoContent && status != http.StatusOK {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	if resBody != nil && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}
