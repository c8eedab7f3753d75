// Package hal implements the small slice of HAL (Hypertext Application
// Language) the synchronizer needs: decoding representations, resolving
// link relations, and walking a chain of links before issuing a mutation.
package hal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// MediaType is sent in Accept and Content-Type headers.
const MediaType = "application/hal+json"

// Reserved member names.
const (
	LinksKey    = "_links"
	EmbeddedKey = "_embedded"
	StatusKey   = "status"
	SelfRel     = "self"
)

// Representation is a decoded HAL document.
// Numbers are kept as json.Number so identifiers and timestamps survive
// round trips without float conversion.
type Representation map[string]any

// Decode reads one representation from r. An empty body yields an empty
// representation.
func Decode(r io.Reader) (Representation, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rep Representation
	if err := dec.Decode(&rep); err != nil {
		if errors.Is(err, io.EOF) {
			return Representation{}, nil
		}
		return nil, fmt.Errorf("decode representation: %w", err)
	}
	if rep == nil {
		rep = Representation{}
	}
	return rep, nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte) (Representation, error) {
	return Decode(bytes.NewReader(data))
}

// Href resolves a link relation to its URL.
func (r Representation) Href(rel string) (string, bool) {
	links, ok := r[LinksKey].(map[string]any)
	if !ok {
		return "", false
	}
	link, ok := links[rel].(map[string]any)
	if !ok {
		return "", false
	}
	href, ok := link["href"].(string)
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

// Rels returns the link relation names in sorted order.
func (r Representation) Rels() []string {
	links, ok := r[LinksKey].(map[string]any)
	if !ok {
		return nil
	}
	rels := make([]string, 0, len(links))
	for rel := range links {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return rels
}

// Status returns the status field, or "" when absent or not a string.
func (r Representation) Status() string {
	s, _ := r[StatusKey].(string)
	return s
}

// WithStatus returns a shallow copy with the status field replaced.
// The receiver is not modified.
func (r Representation) WithStatus(status string) Representation {
	out := make(Representation, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[StatusKey] = status
	return out
}

// Embedded returns the embedded list stored under key.
// Entries that are not objects are skipped.
func (r Representation) Embedded(key string) ([]map[string]any, bool) {
	embedded, ok := r[EmbeddedKey].(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := embedded[key].([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, true
}

// Fields returns the plain data members: everything except links, embedded
// resources and the lastModified bookkeeping field.
func (r Representation) Fields() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		switch k {
		case LinksKey, EmbeddedKey, "lastModified":
			continue
		}
		out[k] = v
	}
	return out
}
