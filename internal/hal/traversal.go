package hal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/roach88/hyperdash/internal/faults"
)

// Traversal is a cursor over a chain of link relations.
//
// A traversal starts at a URL, follows zero or more relations, and remembers
// where it ended so a mutation can be issued against the last resource
// reached. A Traversal is not safe for concurrent use; each workflow run owns
// its own.
type Traversal struct {
	client  Client
	url     string
	current Representation
}

// From starts a traversal at url. Nothing is fetched until Follow.
func From(client Client, url string) *Traversal {
	return &Traversal{client: client, url: url}
}

// URL returns the URL of the last resource reached.
func (t *Traversal) URL() string {
	return t.url
}

// Current returns the last fetched representation, or nil before the first
// fetch.
func (t *Traversal) Current() Representation {
	return t.current
}

// Follow fetches the current resource if needed, then resolves and fetches
// each relation in order. It returns the final representation.
func (t *Traversal) Follow(ctx context.Context, rels ...string) (Representation, error) {
	if t.current == nil {
		rep, err := t.client.Get(ctx, t.url)
		if err != nil {
			return nil, err
		}
		t.current = rep
	}

	for _, rel := range rels {
		href, ok := t.current.Href(rel)
		if !ok {
			return nil, faults.NewTransport(http.MethodGet, t.url, 0,
				fmt.Errorf("link relation %q not found", rel))
		}
		rep, err := t.client.Get(ctx, href)
		if err != nil {
			return nil, err
		}
		t.url = href
		t.current = rep
	}
	return t.current, nil
}

// Put continues the traversal by replacing the last reached resource with
// body. The server's response becomes the current representation.
func (t *Traversal) Put(ctx context.Context, body Representation) (Representation, error) {
	rep, err := t.client.Put(ctx, t.url, body)
	if err != nil {
		return nil, err
	}
	t.current = rep
	return rep, nil
}
