package testutil

import (
	"context"
	"net/http"
	"sync"

	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
)

// Request is one call received by FakeClient.
type Request struct {
	Method string
	URL    string
	Body   hal.Representation
}

// FakeClient is an in-memory hal.Client.
//
// GET returns the representation registered for a URL, or a 404 transport
// fault. PUT and POST store the body and echo it back unless a response was
// registered with SetPutResponse. A gate registered with SetGate holds GETs
// of that URL until the gate is closed or the context ends, which lets tests
// stage a slow network.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClient struct {
	mu           sync.Mutex
	resources    map[string]hal.Representation
	errs         map[string]error
	putResponses map[string]hal.Representation
	gates        map[string]chan struct{}
	requests     []Request
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		resources:    make(map[string]hal.Representation),
		errs:         make(map[string]error),
		putResponses: make(map[string]hal.Representation),
		gates:        make(map[string]chan struct{}),
	}
}

// Set registers the representation served at url.
func (c *FakeClient) Set(url string, rep hal.Representation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[url] = rep
}

// SetError makes every request to url fail with err. A nil err clears it.
func (c *FakeClient) SetError(url string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, url)
		return
	}
	c.errs[url] = err
}

// SetPutResponse fixes the representation returned by PUT or POST to url.
func (c *FakeClient) SetPutResponse(url string, rep hal.Representation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putResponses[url] = rep
}

// SetGate holds GETs of url until the returned function is called.
func (c *FakeClient) SetGate(url string) (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.gates[url] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.gates, url)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns every request received, in order.
func (c *FakeClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

// Count returns how many requests with method were made to url.
func (c *FakeClient) Count(method, url string) int {
	n := 0
	for _, r := range c.Requests() {
		if r.Method == method && r.URL == url {
			n++
		}
	}
	return n
}

// Get implements hal.Client.
func (c *FakeClient) Get(ctx context.Context, url string) (hal.Representation, error) {
	c.mu.Lock()
	c.requests = append(c.requests, Request{Method: http.MethodGet, URL: url})
	gate := c.gates[url]
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, faults.NewTransport(http.MethodGet, url, 0, ctx.Err())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[url]; err != nil {
		return nil, err
	}
	rep, ok := c.resources[url]
	if !ok {
		return nil, faults.NewTransport(http.MethodGet, url, http.StatusNotFound, nil)
	}
	return rep, nil
}

// Put implements hal.Client.
func (c *FakeClient) Put(ctx context.Context, url string, body hal.Representation) (hal.Representation, error) {
	return c.write(http.MethodPut, url, body)
}

// Post implements hal.Client.
func (c *FakeClient) Post(ctx context.Context, url string, body hal.Representation) (hal.Representation, error) {
	return c.write(http.MethodPost, url, body)
}

func (c *FakeClient) write(method, url string, body hal.Representation) (hal.Representation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, Request{Method: method, URL: url, Body: body})
	if err := c.errs[url]; err != nil {
		return nil, err
	}
	if rep, ok := c.putResponses[url]; ok {
		return rep, nil
	}
	c.resources[url] = body
	return body, nil
}

// Link builds a _links member from rel/href pairs.
func Link(pairs ...string) map[string]any {
	links := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		links[pairs[i]] = map[string]any{"href": pairs[i+1]}
	}
	return links
}

// Feed builds a feed representation holding items under key.
func Feed(key string, items ...map[string]any) hal.Representation {
	list := make([]any, len(items))
	for i, item := range items {
		list[i] = item
	}
	return hal.Representation{
		hal.EmbeddedKey: map[string]any{key: list},
	}
}
