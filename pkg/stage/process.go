package stage

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the liveness of a stage process.
type State int

const (
	// Starting means the process has been created but not observed
	// running yet.
	Starting State = iota
	// Running means the process is alive.
	Running
	// Exited means the process has terminated, solicited or not.
	Exited
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	}

	return "unknown"
}

// ExitEvent is delivered when a stage process terminates. An event that
// arrives before the supervisor asked for termination is an unsolicited
// exit; the supervisor does not restart stages, it only records the death.
type ExitEvent struct {
	Stage string
	Code  int
	Err   error
}

// Process is one running stage, owned exclusively by the supervisor.
type Process struct {
	stage *Stage
	cmd   *exec.Cmd
	log   *zap.Logger

	mu       sync.Mutex
	state    State
	exitCode int

	exited chan ExitEvent
	done   chan struct{}
}

func startProcess(s *Stage, log *zap.Logger) (*Process, error) {
	cmd := s.command()
	// A fresh process group lets termination cover descendants the worker
	// may have spawned, without enumerating them.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s: unable to open stdout pipe", s.Name)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s: unable to open stderr pipe", s.Name)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "stage %s: unable to start worker %s", s.Name, s.Path)
	}

	proc := &Process{
		stage:  s,
		cmd:    cmd,
		log:    log.Named(s.Name),
		state:  Running,
		exited: make(chan ExitEvent, 1),
		done:   make(chan struct{}),
	}

	go proc.watch(stdout, stderr)

	return proc, nil
}

// watch pumps labeled output until the pipes close, then reaps the
// process and publishes its exit event.
func (p *Process) watch(stdout, stderr io.Reader) {
	var pumps errgroup.Group
	pumps.Go(func() error {
		p.pump(stdout, p.log.Info)

		return nil
	})
	pumps.Go(func() error {
		p.pump(stderr, p.log.Warn)

		return nil
	})
	_ = pumps.Wait()

	err := p.cmd.Wait()
	code := p.cmd.ProcessState.ExitCode()

	p.mu.Lock()
	p.state = Exited
	p.exitCode = code
	p.mu.Unlock()

	if err != nil {
		err = errors.Wrapf(err, "stage %s exited", p.stage.Name)
	}
	p.exited <- ExitEvent{Stage: p.stage.Name, Code: code, Err: err}
	close(p.exited)
	close(p.done)
}

// pump labels every line the worker writes with the stage's name, by way
// of the named logger, before surfacing it to the operator.
func (p *Process) pump(r io.Reader, emit func(msg string, fields ...zap.Field)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

// Exited delivers the process's single exit event and is closed after it.
func (p *Process) Exited() <-chan ExitEvent {
	return p.exited
}

// State returns the current liveness and, once exited, the exit code.
func (p *Process) State() (State, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state, p.exitCode
}

// Pid returns the worker's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Name returns the stage name.
func (p *Process) Name() string {
	return p.stage.Name
}

// Terminate asks the stage's whole process group to stop and waits for
// the process to be reaped. After grace with no exit the group is killed,
// so shutdown always reaches finalization. Termination of an
// already-exited process is a no-op.
func (p *Process) Terminate(grace time.Duration) error {
	if state, _ := p.State(); state == Exited {
		return nil
	}

	if err := p.signalGroup(syscall.SIGTERM); err != nil {
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	p.log.Warn("stage unresponsive after grace period, killing process group")
	if err := p.signalGroup(syscall.SIGKILL); err != nil {
		return err
	}
	<-p.done

	return nil
}

// signalGroup signals the stage's process group, covering any descendant
// workers still attached to shared channels.
func (p *Process) signalGroup(sig syscall.Signal) error {
	err := syscall.Kill(-p.cmd.Process.Pid, sig)
	if err == syscall.ESRCH {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stage %s: unable to signal process group", p.stage.Name)
	}

	return nil
}
