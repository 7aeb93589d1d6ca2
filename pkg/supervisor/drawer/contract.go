// Package drawer renders the stage wiring graph for operators, coloring
// each stage by its current liveness.
package drawer

// Drawer receives the wiring of a pipeline run and renders it on demand.
type Drawer interface {
	// AddStage adds a stage vertex.
	AddStage(name string) error
	// AddLink wires parent to child through the named channel.
	AddLink(parentName, childName, channelPath string) error
	// SetState records a stage's liveness for the next Draw.
	SetState(name, state string) error
	// Draw renders the graph to its destination, replacing any prior
	// rendering.
	Draw() error
}
