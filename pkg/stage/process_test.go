package stage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/signstream/signstream/pkg/stage"
)

func shellStage(name, script string) *stage.Stage {
	return &stage.Stage{
		Name: name,
		Path: "/bin/sh",
		Args: []string{"-c", script},
	}
}

func waitExit(t *testing.T, proc *stage.Process) stage.ExitEvent {
	t.Helper()

	select {
	case ev := <-proc.Exited():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stage exit")
	}

	return stage.ExitEvent{}
}

func TestProcessLabelsOutput(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	proc, err := shellStage("labeler", `echo "stdout line"; echo "stderr line" >&2`).Start(log)
	require.NoError(t, err)
	waitExit(t, proc)

	var sawOut, sawErr bool
	for _, entry := range logs.All() {
		assert.Equal(t, "labeler", entry.LoggerName)
		switch entry.Message {
		case "stdout line":
			sawOut = true
			assert.Equal(t, zap.InfoLevel, entry.Level)
		case "stderr line":
			sawErr = true
			assert.Equal(t, zap.WarnLevel, entry.Level)
		}
	}
	assert.True(t, sawOut, "stdout line not captured")
	assert.True(t, sawErr, "stderr line not captured")
}

func TestProcessUnsolicitedExitDeliversCode(t *testing.T) {
	t.Parallel()

	proc, err := shellStage("failing", "exit 3").Start(zap.NewNop())
	require.NoError(t, err)

	ev := waitExit(t, proc)
	assert.Equal(t, "failing", ev.Stage)
	assert.Equal(t, 3, ev.Code)
	assert.Error(t, ev.Err)

	state, code := proc.State()
	assert.Equal(t, stage.Exited, state)
	assert.Equal(t, 3, code)
}

func TestProcessExitedChannelCloses(t *testing.T) {
	t.Parallel()

	proc, err := shellStage("oneshot", "exit 0").Start(zap.NewNop())
	require.NoError(t, err)

	ev := waitExit(t, proc)
	assert.Zero(t, ev.Code)
	assert.NoError(t, ev.Err)

	_, open := <-proc.Exited()
	assert.False(t, open)
}

func TestTerminateGraceful(t *testing.T) {
	t.Parallel()

	proc, err := shellStage("graceful",
		`trap "exit 0" TERM; while :; do sleep 0.05; done`).Start(zap.NewNop())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, proc.Terminate(5*time.Second))
	assert.Less(t, time.Since(start), 5*time.Second, "graceful stop should not exhaust the grace period")

	state, _ := proc.State()
	assert.Equal(t, stage.Exited, state)
}

func TestTerminateEscalatesToKill(t *testing.T) {
	t.Parallel()

	proc, err := shellStage("stubborn",
		`trap "" TERM; while :; do sleep 0.05; done`).Start(zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, proc.Terminate(200*time.Millisecond))

	state, code := proc.State()
	assert.Equal(t, stage.Exited, state)
	assert.Equal(t, -1, code)
}

func TestTerminateExitedProcessIsNoOp(t *testing.T) {
	t.Parallel()

	proc, err := shellStage("done", "exit 0").Start(zap.NewNop())
	require.NoError(t, err)
	waitExit(t, proc)

	require.NoError(t, proc.Terminate(time.Second))
	require.NoError(t, proc.Terminate(time.Second))
}
