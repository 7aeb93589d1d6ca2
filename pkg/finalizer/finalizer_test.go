package finalizer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signstream/signstream/pkg/channel"
	"github.com/signstream/signstream/pkg/finalizer"
)

func newTerminal(t *testing.T, content string) (*channel.Channel, string) {
	t.Helper()

	dir := t.TempDir()
	ch := channel.New(filepath.Join(dir, "final_queue.txt"))
	if content != "" {
		require.NoError(t, ch.Append([]byte(content)))
	}

	return ch, filepath.Join(dir, "sign_output.ffconcat")
}

func TestFinalizePlainAssetsPreserveOrder(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t, "clips/r1.mp4\nclips/r2.mp4\nclips/r3.mp4\n")

	res, err := finalizer.New(terminal, artifact, 1.0).Finalize(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.Assets)
	assert.Equal(t, artifact, res.Artifact)

	got, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t,
		"ffconcat version 1.0\n"+
			"file 'clips/r1.mp4'\n"+
			"file 'clips/r2.mp4'\n"+
			"file 'clips/r3.mp4'\n",
		string(got))
}

func TestFinalizeIsIdempotentOnStableInput(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t, "clips/a.mp4\nclips/b.mp4\n")
	fin := finalizer.New(terminal, artifact, 1.0)

	_, err := fin.Finalize(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(artifact)
	require.NoError(t, err)

	_, err = fin.Finalize(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(artifact)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestFinalizeEmptyTerminalSkips(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t, "")

	res, err := finalizer.New(terminal, artifact, 1.0).Finalize(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err), "no artifact should be produced for an empty channel")
}

func TestFinalizeSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t,
		"{not json at all\n"+
			"clips/good.mp4\n"+
			"{\"input\":\"x\",\"queue\":[{\"label\":\"hi\",\"type\":\"clip\",\"asset\":\"clips/hi.mp4\",\"dur_ms\":800}]}\n")

	res, err := finalizer.New(terminal, artifact, 1.0).Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assets)

	got, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Contains(t, string(got), "file 'clips/good.mp4'\n")
	assert.Contains(t, string(got), "file 'clips/hi.mp4'\nduration 0.800\n")
}

func TestFinalizeScalesClipDurations(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t,
		"{\"input\":\"hello world\",\"queue\":["+
			"{\"label\":\"hello\",\"type\":\"clip\",\"asset\":\"clips/hello.mp4\",\"dur_ms\":1000},"+
			"{\"label\":\"pause\",\"type\":\"pause\",\"dur_ms\":250},"+
			"{\"label\":\"world\",\"type\":\"clip\",\"asset\":\"clips/world.mp4\",\"dur_ms\":500}]}\n")

	res, err := finalizer.New(terminal, artifact, 2.0).Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Assets, "non-clip items do not become playlist entries")

	got, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t,
		"ffconcat version 1.0\n"+
			"file 'clips/hello.mp4'\n"+
			"duration 0.500\n"+
			"file 'clips/world.mp4'\n"+
			"duration 0.250\n",
		string(got))
}

func TestFinalizeLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t, "clips/only.mp4\n")

	_, err := finalizer.New(terminal, artifact, 1.0).Finalize(context.Background())
	require.NoError(t, err)

	names, err := os.ReadDir(filepath.Dir(artifact))
	require.NoError(t, err)
	for _, e := range names {
		assert.NotContains(t, e.Name(), ".playlist-")
	}
}

func TestFinalizeWithEncoderPublishesBoth(t *testing.T) {
	t.Parallel()

	terminal, artifact := newTerminal(t, "clips/one.mp4\n")

	// The stand-in encoder copies its playlist to the artifact location.
	encoder := filepath.Join(t.TempDir(), "encoder.sh")
	require.NoError(t, os.WriteFile(encoder, []byte("#!/bin/sh\ncp \"$1\" \"$2\"\n"), 0o755))

	fin := finalizer.New(terminal, artifact, 1.0, finalizer.WithEncoder(encoder))

	res, err := fin.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, artifact, res.Artifact)

	playlist, err := os.ReadFile(artifact + ".ffconcat")
	require.NoError(t, err)
	encoded, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, string(playlist), string(encoded))
}
