package supervisor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/signstream/signstream/pkg/channel"
	"github.com/signstream/signstream/pkg/finalizer"
	"github.com/signstream/signstream/pkg/lexicon"
	"github.com/signstream/signstream/pkg/stage"
	"github.com/signstream/signstream/pkg/supervisor/drawer"
)

var (
	// ErrNoStages is returned when a supervisor is created without any
	// stage.
	ErrNoStages = errors.New("at least one stage must be set")
	// ErrTerminalMustBeSet is returned when the terminal channel is nil.
	ErrTerminalMustBeSet = errors.New("terminal channel must be set")
	// ErrFinalizerMustBeSet is returned when the finalizer is nil.
	ErrFinalizerMustBeSet = errors.New("finalizer must be set")
)

// Finalizer is the once-per-run aggregation step driven at shutdown.
type Finalizer interface {
	Finalize(ctx context.Context) (finalizer.Result, error)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Supervisor) {
		s.log = log
	}
}

// WithDrawer mirrors the wiring into a drawer and renders it as the run
// progresses.
func WithDrawer(d drawer.Drawer) Option {
	return func(s *Supervisor) {
		s.drawer = d
	}
}

// WithGrace sets how long a stage gets between SIGTERM and SIGKILL.
func WithGrace(grace time.Duration) Option {
	return func(s *Supervisor) {
		s.grace = grace
	}
}

// WithFresh truncates every registered channel and removes registered
// artifacts at Init, before any stage starts. Without it prior channel
// contents are preserved, supporting resumption from a previous run.
func WithFresh(fresh bool) Option {
	return func(s *Supervisor) {
		s.fresh = fresh
	}
}

// WithChannels registers the channels the run owns, for fresh-run reset
// and existence guarantees at Init.
func WithChannels(channels ...*channel.Channel) Option {
	return func(s *Supervisor) {
		s.channels = append(s.channels, channels...)
	}
}

// WithLexicon requires the lexicon at path to exist and parse at Init.
func WithLexicon(path string) Option {
	return func(s *Supervisor) {
		s.lexiconPath = path
	}
}

// WithArtifacts registers output artifacts removed on a fresh run.
func WithArtifacts(paths ...string) Option {
	return func(s *Supervisor) {
		s.artifacts = append(s.artifacts, paths...)
	}
}

// Supervisor owns one pipeline run: it launches the stage set, tracks the
// process handles, and on interrupt or natural completion performs
// ordered termination followed by exactly-once finalization.
type Supervisor struct {
	stages       []*stage.Stage
	stagesByName map[string]*stage.Stage
	terminal     *channel.Channel
	channels     []*channel.Channel
	fin          Finalizer
	log          *zap.Logger
	drawer       drawer.Drawer
	grace        time.Duration
	fresh        bool
	lexiconPath  string
	artifacts    []string

	wiring *wiring
	procs  []*stage.Process
	exits  *exitChans

	finalizeOnce sync.Once
}

// New creates a supervisor for one run of the given stage set.
func New(stages []*stage.Stage, terminal *channel.Channel, fin Finalizer, opts ...Option) (*Supervisor, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if terminal == nil {
		return nil, ErrTerminalMustBeSet
	}
	if fin == nil {
		return nil, ErrFinalizerMustBeSet
	}

	s := &Supervisor{
		stages:       stages,
		stagesByName: make(map[string]*stage.Stage, len(stages)),
		terminal:     terminal,
		fin:          fin,
		log:          zap.NewNop(),
		grace:        3 * time.Second,
		exits:        &exitChans{},
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, st := range stages {
		if _, ok := s.stagesByName[st.Name]; ok {
			return nil, errors.Errorf("duplicate stage name %s", st.Name)
		}
		s.stagesByName[st.Name] = st
	}

	w, err := newWiring(stages, terminal.Path())
	if err != nil {
		return nil, err
	}
	s.wiring = w

	if s.drawer != nil {
		if err := s.mirrorWiring(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// mirrorWiring replays the wiring into the drawer.
func (s *Supervisor) mirrorWiring() error {
	for _, st := range s.stages {
		if err := s.drawer.AddStage(st.Name); err != nil {
			return err
		}
	}
	for _, l := range s.wiring.links {
		if err := s.drawer.AddLink(l.parent, l.child, l.channel); err != nil {
			return err
		}
	}

	return nil
}

// init validates every external collaborator and prepares the channels.
// It runs before any process starts; a failure here means the pipeline
// never launches.
func (s *Supervisor) init() error {
	for _, st := range s.stages {
		if err := st.Validate(); err != nil {
			return err
		}
	}

	if s.lexiconPath != "" {
		lex, err := lexicon.Load(s.lexiconPath)
		if err != nil {
			return err
		}
		s.log.Info("lexicon loaded",
			zap.String("path", s.lexiconPath),
			zap.Int("entries", lex.Size()))
	}

	for _, ch := range s.channels {
		if s.fresh {
			if err := ch.Truncate(); err != nil {
				return err
			}
		} else if err := ch.Touch(); err != nil {
			return err
		}
	}

	if s.fresh {
		for _, artifact := range s.artifacts {
			if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "unable to remove artifact %s", artifact)
			}
		}
	}

	return nil
}

// Run drives the whole pipeline run: Init, concurrent launch, blocking
// wait, ordered shutdown, finalization. It blocks until the run is over
// and returns the finalization outcome. Waiting ends when ctx is
// cancelled (the operator interrupt) or every stage has exited naturally.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}

	for _, name := range s.wiring.order {
		proc, err := s.stagesByName[name].Start(s.log)
		if err != nil {
			s.terminateAll()

			return err
		}
		s.procs = append(s.procs, proc)
		s.exits.add(newExitChan(name, proc.Exited()))
		s.setState(name, stage.Running.String())
		s.log.Info("stage started",
			zap.String("stage", name),
			zap.Int("pid", proc.Pid()))
	}
	s.draw()

	merged := mergeExits(s.exits.list...)
	remaining := len(s.procs)

wait:
	for remaining > 0 {
		select {
		case <-ctx.Done():
			s.log.Info("interrupt received, shutting down")

			break wait
		case ev, ok := <-merged:
			if !ok {
				break wait
			}
			remaining--
			s.setState(ev.Stage, stage.Exited.String())
			// A dead stage is not fatal: its downstream channel simply
			// stops growing, which consumers observe as an idle timeout.
			s.log.Warn("stage exited unsolicited",
				zap.String("stage", ev.Stage),
				zap.Int("code", ev.Code))
		}
	}

	return s.shutdown()
}

// shutdown terminates the stage set in reverse launch order and drives
// finalization. The latch makes finalization happen at most once per run
// no matter how many termination paths fire or how often shutdown is
// reached.
func (s *Supervisor) shutdown() error {
	var err error
	s.finalizeOnce.Do(func() {
		s.terminateAll()
		s.draw()
		err = s.finalize()
	})

	return err
}

func (s *Supervisor) terminateAll() {
	for i := len(s.procs) - 1; i >= 0; i-- {
		proc := s.procs[i]
		if err := proc.Terminate(s.grace); err != nil {
			s.log.Warn("unable to terminate stage",
				zap.String("stage", proc.Name()),
				zap.Error(err))
		}
		s.setState(proc.Name(), stage.Exited.String())
	}
}

// finalize checks the terminal channel and runs the finalizer on its
// snapshot. An empty terminal channel skips finalization and still counts
// as success. The shutdown path must complete even though the run context
// is already cancelled, so finalization gets a fresh context.
func (s *Supervisor) finalize() error {
	size, err := s.terminal.Size()
	if err != nil {
		return err
	}
	if size == 0 {
		s.log.Info("terminal channel empty, skipping finalization",
			zap.String("channel", s.terminal.Path()))

		return nil
	}

	res, err := s.fin.Finalize(context.Background())
	if err != nil {
		return errors.Wrap(err, "finalization failed")
	}
	if res.Skipped {
		s.log.Info("finalization skipped, no usable records",
			zap.String("channel", s.terminal.Path()))

		return nil
	}
	s.log.Info("finalization complete",
		zap.Int("assets", res.Assets),
		zap.String("artifact", res.Artifact))

	return nil
}

// setState records liveness on the wiring graph and the drawer.
func (s *Supervisor) setState(name, state string) {
	s.wiring.setState(name, state)
	if s.drawer != nil {
		if err := s.drawer.SetState(name, state); err != nil {
			s.log.Debug("unable to update drawer state", zap.Error(err))
		}
	}
}

func (s *Supervisor) draw() {
	if s.drawer == nil {
		return
	}
	if err := s.drawer.Draw(); err != nil {
		s.log.Warn("unable to draw wiring graph", zap.Error(err))
	}
}

// Order returns the deterministic launch order of the stage set.
// Termination happens in the reverse of this order.
func (s *Supervisor) Order() []string {
	order := make([]string, len(s.wiring.order))
	copy(order, s.wiring.order)

	return order
}
