package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signstream/signstream/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Workdir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "live_transcript.txt", cfg.Channels.Live)
	assert.Equal(t, "clean_transcript.txt", cfg.Channels.Clean)
	assert.Equal(t, "sign_queue.jsonl", cfg.Channels.Queue)
	assert.Equal(t, "final_queue.txt", cfg.Channels.Final)
	assert.Equal(t, 150*time.Millisecond, cfg.Stages.Poll)
	assert.Equal(t, 350*time.Millisecond, cfg.Stages.IdleFlush)
	assert.Equal(t, 3*time.Second, cfg.Stages.Grace)
	assert.Equal(t, "sign_output.ffconcat", cfg.Finalize.Artifact)
	assert.Equal(t, 1.0, cfg.Finalize.Rate)
	assert.Empty(t, cfg.Finalize.Encoder)
	assert.Empty(t, cfg.GraphFile)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SIGNSTREAM_WORKDIR", "/var/run/signstream")
	t.Setenv("SIGNSTREAM_LOG_LEVEL", "debug")
	t.Setenv("SIGNSTREAM_POLL", "50ms")
	t.Setenv("SIGNSTREAM_GRACE", "10s")
	t.Setenv("SIGNSTREAM_RATE", "2.5")
	t.Setenv("SIGNSTREAM_GRAPH_FILE", "pipeline.gv")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/run/signstream", cfg.Workdir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.Stages.Poll)
	assert.Equal(t, 10*time.Second, cfg.Stages.Grace)
	assert.Equal(t, 2.5, cfg.Finalize.Rate)
	assert.Equal(t, "pipeline.gv", cfg.GraphFile)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("SIGNSTREAM_POLL", "not-a-duration")

	_, err := config.Load()
	require.Error(t, err)
}

func TestInWorkdir(t *testing.T) {
	cfg := &config.Config{Workdir: "/data"}

	assert.Equal(t, "/data/final_queue.txt", cfg.InWorkdir("final_queue.txt"))
	assert.Equal(t, "/abs/elsewhere.txt", cfg.InWorkdir("/abs/elsewhere.txt"))
}
