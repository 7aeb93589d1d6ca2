// Package config loads supervisor configuration from the environment.
package config

import (
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds the full supervisor configuration.
type Config struct {
	// Workdir is the directory holding every channel file and the output
	// artifact. Channel paths below are relative to it.
	Workdir string `envconfig:"WORKDIR" default:"."`

	Logging  LogConfig
	Channels ChannelConfig
	Stages   StageConfig
	Finalize FinalizeConfig

	// GraphFile, when set, receives a DOT rendering of the stage wiring.
	GraphFile string `envconfig:"GRAPH_FILE" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// ChannelConfig names the append-only hand-off files between stages.
type ChannelConfig struct {
	Live  string `envconfig:"LIVE_TRANSCRIPT" default:"live_transcript.txt"`
	Clean string `envconfig:"CLEAN_TRANSCRIPT" default:"clean_transcript.txt"`
	Queue string `envconfig:"SIGN_QUEUE" default:"sign_queue.jsonl"`
	Final string `envconfig:"FINAL_QUEUE" default:"final_queue.txt"`
}

// StageConfig holds the worker executables and their shared knobs.
type StageConfig struct {
	CleanBin    string `envconfig:"CLEAN_BIN" default:"clean_transcript"`
	GlossifyBin string `envconfig:"GLOSSIFY_BIN" default:"glossify_transcript"`
	QueueBin    string `envconfig:"QUEUE_BIN" default:"stream_queue_assets"`

	Lexicon string `envconfig:"LEXICON" default:"lexicons.json"`

	Poll            time.Duration `envconfig:"POLL" default:"150ms"`
	IdleFlush       time.Duration `envconfig:"IDLE_FLUSH" default:"350ms"`
	TweenMs         int           `envconfig:"TWEEN_MS" default:"100"`
	SentencePauseMs int           `envconfig:"SENTENCE_PAUSE_MS" default:"250"`

	// Grace is how long a stage gets to exit after SIGTERM before its
	// process group is killed.
	Grace time.Duration `envconfig:"GRACE" default:"3s"`
}

// FinalizeConfig holds the finalization step configuration.
type FinalizeConfig struct {
	Artifact string  `envconfig:"ARTIFACT" default:"sign_output.ffconcat"`
	Rate     float64 `envconfig:"RATE" default:"1.0"`

	// Encoder is an optional executable invoked as
	// `encoder <playlist> <artifact> <rate>` once the playlist is
	// published. Empty means the playlist itself is the artifact.
	Encoder string `envconfig:"ENCODER" default:""`
}

// Load reads configuration from SIGNSTREAM_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("signstream", &cfg); err != nil {
		return nil, errors.Wrap(err, "unable to load config")
	}

	return &cfg, nil
}

// InWorkdir resolves a channel or artifact name against the workdir.
func (c *Config) InWorkdir(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(c.Workdir, name)
}
