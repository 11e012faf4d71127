// Package source turns fetched payloads into raw items, one adapter per source kind.
package source

import (
	"fmt"
	"sort"
	"sync"

	"reddot-watch/collector/internal/models"
)

// Parsed is the result of parsing one payload.
type Parsed struct {
	Items []models.RawItem
	// Warnings describe content-level problems that were worked around,
	// such as a payload that needed salvaging.
	Warnings []string
	// Skipped counts entries dropped for lacking a title or link.
	Skipped int
}

// Adapter parses payloads of a single source kind.
type Adapter interface {
	Kind() models.SourceKind
	// Parse returns a *ParseError when the payload has no usable structure.
	Parse(src *models.Source, payload []byte) (Parsed, error)
}

// UnsupportedKindError is returned when no adapter is registered for a kind.
type UnsupportedKindError struct {
	Kind models.SourceKind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported source kind %q", e.Kind)
}

// ParseError marks a payload that could not be parsed at all.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Registry maps source kinds to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.SourceKind]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.SourceKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry returns a registry with the feed and site adapters.
func DefaultRegistry() *Registry {
	return NewRegistry(NewFeedAdapter(), NewSiteAdapter())
}

// Register adds a, replacing any adapter of the same kind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Lookup returns the adapter for kind or an *UnsupportedKindError.
func (r *Registry) Lookup(kind models.SourceKind) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	if !ok {
		return nil, &UnsupportedKindError{Kind: kind}
	}
	return a, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []models.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.SourceKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func capItems(p Parsed, max int) Parsed {
	if max > 0 && len(p.Items) > max {
		p.Items = p.Items[:max]
	}
	return p
}
