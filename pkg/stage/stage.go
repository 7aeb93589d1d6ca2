// Package stage wraps the external transform workers of the pipeline.
//
// A stage is an independently scheduled OS process bound to one source
// channel and one destination channel. The supervisor owns every stage
// process exclusively: it is the only entity permitted to signal one.
package stage

import (
	"os/exec"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/signstream/signstream/pkg/channel"
)

// Stage describes one external transform worker before it is started.
type Stage struct {
	// Name labels every output line the worker produces and names the
	// vertex in the wiring graph.
	Name string
	// Path is the worker executable, resolved against PATH when bare.
	Path string

	// Source and Dest are the channels the worker reads and appends to.
	// A stage with neither set (a raw capture worker) receives only Args.
	Source *channel.Channel
	Dest   *channel.Channel

	// Poll is passed to the worker as its tail polling interval.
	Poll time.Duration

	// FromStart makes the worker reprocess its source from the beginning
	// instead of resuming from its last-seen position.
	FromStart bool

	// Args carries stage-specific extra flags, appended verbatim.
	Args []string
}

// Validate checks the worker executable can be found. It runs at
// supervisor Init, before any process starts.
func (s *Stage) Validate() error {
	if s.Name == "" {
		return errors.New("stage name must be set")
	}
	if _, err := exec.LookPath(s.Path); err != nil {
		return errors.Wrapf(err, "stage %s: worker executable %s not found", s.Name, s.Path)
	}

	return nil
}

// command builds the worker invocation. The flag surface is the shared
// worker contract: named source, named destination, poll interval in
// seconds, then stage-specific extras.
func (s *Stage) command() *exec.Cmd {
	var args []string
	if s.Source != nil {
		args = append(args, "--source", s.Source.Path())
	}
	if s.Dest != nil {
		args = append(args, "--out", s.Dest.Path())
	}
	if s.Poll > 0 {
		args = append(args, "--poll", strconv.FormatFloat(s.Poll.Seconds(), 'f', -1, 64))
	}
	args = append(args, s.Args...)
	if s.FromStart {
		args = append(args, "--from-start")
	}

	return exec.Command(s.Path, args...)
}

// Start launches the stage in its own process group and begins labeling
// its output through log.
func (s *Stage) Start(log *zap.Logger) (*Process, error) {
	return startProcess(s, log)
}
