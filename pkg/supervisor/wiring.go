package supervisor

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/signstream/signstream/internal/store"
	"github.com/signstream/signstream/pkg/stage"
)

const (
	vertexSource    = "source"
	vertexFinalizer = "finalizer"
)

// link is one channel edge in the wiring graph.
type link struct {
	parent, child string
	channel       string
}

// wiring is the static stage graph of one pipeline run. It derives the
// edges from each stage's source and destination channels, rejects
// cycles, and fixes a deterministic launch order. Vertex attributes track
// stage liveness as the run progresses.
type wiring struct {
	graph graph.Graph[string, string]
	store store.WiringStore
	links []link
	// order is the stable topological order of the stage vertices; launch
	// uses it as-is, termination walks it in reverse.
	order []string
}

func newWiring(stages []*stage.Stage, terminalPath string) (*wiring, error) {
	st := store.New()
	g := graph.NewWithStore(graph.StringHash, st, graph.Directed(), graph.PreventCycles())

	w := &wiring{graph: g, store: st}

	if err := g.AddVertex(vertexSource, graph.VertexAttribute("shape", "plaintext")); err != nil {
		return nil, errors.Wrap(err, "unable to add source vertex")
	}
	if err := g.AddVertex(vertexFinalizer, graph.VertexAttribute("shape", "plaintext")); err != nil {
		return nil, errors.Wrap(err, "unable to add finalizer vertex")
	}

	producers := make(map[string]string)
	for _, s := range stages {
		err := g.AddVertex(s.Name, graph.VertexAttribute("state", stage.Starting.String()))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add stage vertex %s", s.Name)
		}
		if s.Dest != nil {
			producers[s.Dest.Path()] = s.Name
		}
	}

	addLink := func(parent, child, channelPath string) error {
		err := g.AddEdge(parent, child, graph.EdgeAttribute("label", channelPath))
		if err != nil {
			return errors.Wrapf(err, "unable to wire %s to %s", parent, child)
		}
		w.links = append(w.links, link{parent: parent, child: child, channel: channelPath})

		return nil
	}

	for _, s := range stages {
		parent := vertexSource
		channelPath := ""
		if s.Source != nil {
			channelPath = s.Source.Path()
			if producer, ok := producers[channelPath]; ok {
				parent = producer
			}
		}
		if err := addLink(parent, s.Name, channelPath); err != nil {
			return nil, err
		}
	}

	terminalParent := vertexSource
	if producer, ok := producers[terminalPath]; ok {
		terminalParent = producer
	}
	if err := addLink(terminalParent, vertexFinalizer, terminalPath); err != nil {
		return nil, err
	}

	sorted, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort wiring graph")
	}

	stageNames := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		stageNames[s.Name] = struct{}{}
	}
	for _, name := range sorted {
		if _, ok := stageNames[name]; ok {
			w.order = append(w.order, name)
		}
	}

	return w, nil
}

// setState records a stage's liveness on its wiring vertex.
func (w *wiring) setState(name, state string) {
	w.store.UpdateVertex(name, func(p *graph.VertexProperties) {
		p.Attributes["state"] = state
	})
}

// state reads a stage's recorded liveness.
func (w *wiring) state(name string) string {
	_, props, err := w.graph.VertexWithProperties(name)
	if err != nil {
		return ""
	}

	return props.Attributes["state"]
}
