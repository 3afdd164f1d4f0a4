// Package store holds the step graph drawn for a pipeline run.
package store

import (
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// CustomStore is a graph store whose vertex attributes can be changed after insertion.
type CustomStore[K comparable, T any] interface {
	graph.Store[K, T]
	UpdateVertex(k K, options ...func(*graph.VertexProperties))
	CreatesCycle(parent, child K) (bool, error)
}

type vertex[T any] struct {
	value T
	props graph.VertexProperties
	// order is the insertion rank, steps are listed in the order they were added.
	order int
}

// MemoryStore keeps the steps of a pipeline and the links between them.
type MemoryStore[K comparable, T any] struct {
	mu       sync.RWMutex
	vertices map[K]*vertex[T]
	// children and parents index the same links from both ends.
	children map[K]map[K]graph.Edge[K]
	parents  map[K]map[K]graph.Edge[K]
}

// NewMemoryStore creates an empty store.
func NewMemoryStore[K comparable, T any]() CustomStore[K, T] {
	return &MemoryStore[K, T]{
		vertices: make(map[K]*vertex[T]),
		children: make(map[K]map[K]graph.Edge[K]),
		parents:  make(map[K]map[K]graph.Edge[K]),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vertices[k]; ok {
		return graph.ErrVertexAlreadyExists
	}
	s.vertices[k] = &vertex[T]{value: t, props: p, order: len(s.vertices)}

	return nil
}

// ListVertices returns the steps in insertion order.
func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]K, 0, len(s.vertices))
	for k := range s.vertices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.vertices[keys[i]].order < s.vertices[keys[j]].order
	})

	return keys, nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.vertices), nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vertices[k]
	if !ok {
		var zero T

		return zero, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return v.value, v.props, nil
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vertices[k]; !ok {
		return graph.ErrVertexNotFound
	}
	if len(s.parents[k]) > 0 || len(s.children[k]) > 0 {
		return graph.ErrVertexHasEdges
	}
	delete(s.parents, k)
	delete(s.children, k)
	delete(s.vertices, k)

	return nil
}

// UpdateVertex applies options to the properties of k. Unknown vertices are ignored.
func (s *MemoryStore[K, T]) UpdateVertex(k K, options ...func(*graph.VertexProperties)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vertices[k]
	if !ok {
		return
	}
	if v.props.Attributes == nil {
		v.props.Attributes = make(map[string]string)
	}
	for _, opt := range options {
		opt(&v.props)
	}
}

func (s *MemoryStore[K, T]) AddEdge(parent, child K, edge graph.Edge[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link(s.children, parent, child, edge)
	link(s.parents, child, parent, edge)

	return nil
}

func link[K comparable](index map[K]map[K]graph.Edge[K], from, to K, edge graph.Edge[K]) {
	if index[from] == nil {
		index[from] = make(map[K]graph.Edge[K])
	}
	index[from][to] = edge
}

func (s *MemoryStore[K, T]) UpdateEdge(parent, child K, edge graph.Edge[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.children[parent][child]; !ok {
		return graph.ErrEdgeNotFound
	}
	s.children[parent][child] = edge
	s.parents[child][parent] = edge

	return nil
}

func (s *MemoryStore[K, T]) RemoveEdge(parent, child K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.children[parent], child)
	delete(s.parents[child], parent)

	return nil
}

func (s *MemoryStore[K, T]) Edge(parent, child K) (graph.Edge[K], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.children[parent][child]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []graph.Edge[K]
	for _, edges := range s.children {
		for _, edge := range edges {
			res = append(res, edge)
		}
	}

	return res, nil
}

// CreatesCycle reports whether a link from parent to child would close a loop,
// walking the parents of parent up to the roots.
func (s *MemoryStore[K, T]) CreatesCycle(parent, child K) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range []K{parent, child} {
		if _, ok := s.vertices[k]; !ok {
			return false, errors.Wrapf(graph.ErrVertexNotFound, "%v", k)
		}
	}

	visited := make(map[K]struct{})
	pending := []K{parent}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if current == child {
			return true, nil
		}
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		for p := range s.parents[current] {
			pending = append(pending, p)
		}
	}

	return false, nil
}
