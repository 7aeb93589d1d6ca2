package drawer

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint
)

// DOTDrawer writes the wiring graph as a DOT file suitable for graphviz.
type DOTDrawer struct {
	graph    graph.Graph[string, string]
	stages   map[string]struct{}
	fileName string
}

// NewDOT creates a drawer rendering into fileName.
func NewDOT(fileName string) *DOTDrawer {
	return &DOTDrawer{
		fileName: fileName,
		graph:    graph.New(graph.StringHash, graph.Directed()),
		stages:   make(map[string]struct{}),
	}
}

// AddStage adds a stage vertex.
func (d *DOTDrawer) AddStage(name string) error {
	err := d.graph.AddVertex(name, graph.VertexAttribute("style", "filled"))
	if err != nil {
		return errors.Wrapf(err, "unable to add vertex %s", name)
	}

	d.stages[name] = struct{}{}

	return nil
}

// AddLink adds an edge between parent and child, labeled with the channel
// they share.
func (d *DOTDrawer) AddLink(parentName, childName, channelPath string) error {
	if _, ok := d.stages[parentName]; !ok {
		if err := d.graph.AddVertex(parentName, graph.VertexAttribute("shape", "plaintext")); err != nil && err != graph.ErrVertexAlreadyExists {
			return errors.Wrapf(err, "unable to add vertex %s", parentName)
		}
	}
	if _, ok := d.stages[childName]; !ok {
		if err := d.graph.AddVertex(childName, graph.VertexAttribute("shape", "plaintext")); err != nil && err != graph.ErrVertexAlreadyExists {
			return errors.Wrapf(err, "unable to add vertex %s", childName)
		}
	}

	err := d.graph.AddEdge(parentName, childName, graph.EdgeAttribute("label", channelPath))
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childName)
	}

	return nil
}

// SetState colors a stage vertex by its liveness.
func (d *DOTDrawer) SetState(name, state string) error {
	_, properties, err := d.graph.VertexWithProperties(name)
	if err != nil {
		return errors.Wrapf(err, "unable to get vertex properties for %s", name)
	}

	hex, err := stateColor(state)
	if err != nil {
		return err
	}
	properties.Attributes["fillcolor"] = hex
	properties.Attributes["xlabel"] = state

	return nil
}

// stateColor maps a liveness state to a fill color.
func stateColor(state string) (string, error) {
	var r, g, b uint8
	switch state {
	case "running":
		r, g, b = 144, 238, 144
	case "exited":
		r, g, b = 240, 128, 128
	default:
		r, g, b = 211, 211, 211
	}

	color, err := colors.RGB(r, g, b) //nolint
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}

	return color.ToHEX().String(), nil
}

// Draw writes the DOT rendering, replacing any prior file.
func (d *DOTDrawer) Draw() error {
	file, err := os.Create(d.fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.fileName)
	}
	defer file.Close()

	if err := dot(d.graph, file); err != nil {
		return errors.Wrapf(err, "unable to render dot file %s", d.fileName)
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           string
	Target           string
	SourceWeight     int
	SourceAttributes map[string]string
	EdgeWeight       int
	EdgeAttributes   map[string]string
}

func dot(g graph.Graph[string, string], w io.Writer) error {
	desc, err := generateDOT(g)
	if err != nil {
		return fmt.Errorf("failed to generate DOT description: %w", err)
	}

	return renderDOT(w, desc)
}

func generateDOT(g graph.Graph[string, string]) (description, error) {
	desc := description{
		GraphType:    "digraph",
		Attributes:   map[string]string{"rankdir": "LR"},
		EdgeOperator: "->",
		Statements:   make([]statement, 0),
	}

	adjacencyMap, err := g.AdjacencyMap()
	if err != nil {
		return desc, err
	}

	for vertex, adjacencies := range adjacencyMap {
		_, sourceProperties, err := g.VertexWithProperties(vertex)
		if err != nil {
			return desc, err
		}

		desc.Statements = append(desc.Statements, statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: sourceProperties.Attributes,
		})

		for adjacency, edge := range adjacencies {
			desc.Statements = append(desc.Statements, statement{
				Source:         vertex,
				Target:         adjacency,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			})
		}
	}

	return desc, nil
}

func renderDOT(w io.Writer, d description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return tpl.Execute(w, d)
}
