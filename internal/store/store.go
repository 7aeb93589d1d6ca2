// Package store backs the stage wiring graph with a vertex store that can
// mutate vertex properties in place, which the stock memory store of
// dominikbraun/graph cannot do. The supervisor uses the mutation hook to
// record stage liveness on the wiring graph as processes start and exit.
package store

import (
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// WiringStore is a graph.Store for the stage wiring graph, extended with
// in-place vertex property updates.
type WiringStore interface {
	graph.Store[string, string]
	UpdateVertex(name string, options ...func(*graph.VertexProperties))
	CreatesCycle(source, target string) (bool, error)
}

type memoryStore struct {
	lock             sync.RWMutex
	vertices         map[string]string
	vertexProperties map[string]*graph.VertexProperties

	// outEdges and inEdges index every edge by both endpoints so lookups
	// and the cycle check stay O(1) per hop.
	outEdges map[string]map[string]graph.Edge[string]
	inEdges  map[string]map[string]graph.Edge[string]
}

// New returns an empty in-memory wiring store.
func New() WiringStore {
	return &memoryStore{
		vertices:         make(map[string]string),
		vertexProperties: make(map[string]*graph.VertexProperties),
		outEdges:         make(map[string]map[string]graph.Edge[string]),
		inEdges:          make(map[string]map[string]graph.Edge[string]),
	}
}

func (s *memoryStore) AddVertex(name, value string, props graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[name]; ok {
		return graph.ErrVertexAlreadyExists
	}

	s.vertices[name] = value
	s.vertexProperties[name] = &props

	return nil
}

func (s *memoryStore) Vertex(name string) (string, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	value, ok := s.vertices[name]
	if !ok {
		return "", graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return value, *s.vertexProperties[name], nil
}

func (s *memoryStore) RemoveVertex(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[name]; !ok {
		return graph.ErrVertexNotFound
	}

	if len(s.inEdges[name]) > 0 || len(s.outEdges[name]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.inEdges, name)
	delete(s.outEdges, name)
	delete(s.vertices, name)
	delete(s.vertexProperties, name)

	return nil
}

func (s *memoryStore) ListVertices() ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	names := make([]string, 0, len(s.vertices))
	for name := range s.vertices {
		names = append(names, name)
	}

	return names, nil
}

func (s *memoryStore) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

// UpdateVertex applies options to the stored properties of name. Unknown
// vertices are a no-op.
func (s *memoryStore) UpdateVertex(name string, options ...func(*graph.VertexProperties)) {
	s.lock.Lock()
	defer s.lock.Unlock()

	props, ok := s.vertexProperties[name]
	if !ok {
		return
	}
	if props.Attributes == nil {
		props.Attributes = make(map[string]string)
	}

	for _, opt := range options {
		opt(props)
	}
}

func (s *memoryStore) AddEdge(source, target string, edge graph.Edge[string]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[source]; !ok {
		s.outEdges[source] = make(map[string]graph.Edge[string])
	}
	s.outEdges[source][target] = edge

	if _, ok := s.inEdges[target]; !ok {
		s.inEdges[target] = make(map[string]graph.Edge[string])
	}
	s.inEdges[target][source] = edge

	return nil
}

func (s *memoryStore) UpdateEdge(source, target string, edge graph.Edge[string]) error {
	if _, err := s.Edge(source, target); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.outEdges[source][target] = edge
	s.inEdges[target][source] = edge

	return nil
}

func (s *memoryStore) RemoveEdge(source, target string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[target], source)
	delete(s.outEdges[source], target)

	return nil
}

func (s *memoryStore) Edge(source, target string) (graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edges, ok := s.outEdges[source]
	if !ok {
		return graph.Edge[string]{}, graph.ErrEdgeNotFound
	}

	edge, ok := edges[target]
	if !ok {
		return graph.Edge[string]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *memoryStore) ListEdges() ([]graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[string], 0)
	for _, edges := range s.outEdges {
		for _, edge := range edges {
			res = append(res, edge)
		}
	}

	return res, nil
}

// CreatesCycle reports whether adding source->target would close a cycle.
// It walks inEdges directly instead of materializing a predecessor map,
// which graph's default check does on every AddEdge.
func (s *memoryStore) CreatesCycle(source, target string) (bool, error) {
	if _, _, err := s.Vertex(source); err != nil {
		return false, errors.Wrapf(err, "unable to get vertex %s", source)
	}
	if _, _, err := s.Vertex(target); err != nil {
		return false, errors.Wrapf(err, "unable to get vertex %s", target)
	}

	if source == target {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	stack := []string{source}
	visited := make(map[string]struct{})

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[current]; ok {
			continue
		}
		if current == target {
			return true, nil
		}
		visited[current] = struct{}{}

		for adjacency := range s.inEdges[current] {
			stack = append(stack, adjacency)
		}
	}

	return false, nil
}
