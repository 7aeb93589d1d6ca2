// Package finalizer implements the once-per-run aggregation step executed
// at shutdown. It consumes the terminal channel's final snapshot and
// publishes a single playlist artifact, atomically, replacing any prior
// artifact wholesale.
package finalizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/signstream/signstream/pkg/channel"
)

// Result reports the outcome of one finalization pass.
type Result struct {
	// Skipped is true when the terminal channel held no usable records
	// and no artifact was produced. Skipping is a success, not an error.
	Skipped bool
	// Assets is the number of playlist entries written.
	Assets int
	// Artifact is the published artifact location.
	Artifact string
}

// Finalizer turns the terminal channel's content into one output artifact.
// Safe to invoke on an empty or malformed channel; idempotent on stable
// input.
type Finalizer struct {
	terminal *channel.Channel
	artifact string
	rate     float64
	encoder  string
	log      *zap.Logger
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithEncoder sets an external encoder executable, invoked as
// `encoder <playlist> <artifact> <rate>` after the playlist is published.
// Without one the playlist itself is the artifact.
func WithEncoder(path string) Option {
	return func(f *Finalizer) {
		f.encoder = path
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(f *Finalizer) {
		f.log = log
	}
}

// New creates a finalizer for the terminal channel. Rate scales clip
// durations like playback speed: 2.0 halves them. Non-positive rates fall
// back to 1.0.
func New(terminal *channel.Channel, artifact string, rate float64, opts ...Option) *Finalizer {
	if rate <= 0 {
		rate = 1.0
	}
	fin := &Finalizer{
		terminal: terminal,
		artifact: artifact,
		rate:     rate,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(fin)
	}

	return fin
}

// entry is one resolved playlist item.
type entry struct {
	asset string
	durMS int
}

// queueRecord mirrors one sign-queue JSONL line.
type queueRecord struct {
	Input string      `json:"input"`
	Queue []queueItem `json:"queue"`
}

type queueItem struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	Asset string `json:"asset"`
	DurMS int    `json:"dur_ms"`
}

// Finalize reads the terminal channel snapshot and publishes the
// artifact. It runs to completion synchronously; the caller does not get
// control back until it succeeds, fails, or reports nothing to do.
func (f *Finalizer) Finalize(ctx context.Context) (Result, error) {
	raw, err := f.terminal.ReadAll()
	if err != nil {
		return Result{}, err
	}

	entries := f.parse(raw)
	if len(entries) == 0 {
		f.log.Info("terminal channel empty, nothing to finalize",
			zap.String("channel", f.terminal.Path()))

		return Result{Skipped: true}, nil
	}

	playlist := f.playlistPath()
	if err := f.writePlaylist(playlist, entries); err != nil {
		return Result{}, err
	}

	if f.encoder != "" {
		if err := f.encode(ctx, playlist); err != nil {
			return Result{}, err
		}
	}

	f.log.Info("finalized",
		zap.Int("assets", len(entries)),
		zap.String("artifact", f.artifact))

	return Result{Assets: len(entries), Artifact: f.artifact}, nil
}

// parse accepts both terminal formats: plain asset paths one per line, and
// sign-queue JSONL records whose clip items carry assets and durations.
// Malformed lines are skipped, never fatal.
func (f *Finalizer) parse(raw []byte) []entry {
	var entries []entry
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "{") {
			entries = append(entries, entry{asset: line})

			continue
		}

		var rec queueRecord
		if err := sonic.UnmarshalString(line, &rec); err != nil {
			f.log.Debug("skipping malformed terminal record", zap.Error(err))

			continue
		}
		for _, item := range rec.Queue {
			if item.Type != "clip" || item.Asset == "" {
				continue
			}
			entries = append(entries, entry{
				asset: item.Asset,
				durMS: scaleMS(item.DurMS, f.rate),
			})
		}
	}

	return entries
}

// scaleMS shortens durations for faster playback, never below 1ms.
func scaleMS(ms int, rate float64) int {
	if ms <= 0 {
		return 0
	}
	scaled := int(float64(ms)/rate + 0.5)
	if scaled < 1 {
		scaled = 1
	}

	return scaled
}

func (f *Finalizer) playlistPath() string {
	if f.encoder != "" {
		return f.artifact + ".ffconcat"
	}

	return f.artifact
}

// writePlaylist publishes an ffconcat playlist via temp file and rename,
// so an external reader never observes a partial artifact.
func (f *Finalizer) writePlaylist(path string, entries []entry) error {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "file '%s'\n", e.asset)
		if e.durMS > 0 {
			fmt.Fprintf(&b, "duration %.3f\n", float64(e.durMS)/1000.0)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create artifact directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".playlist-*")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary playlist")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()

		return errors.Wrap(err, "unable to write playlist")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return errors.Wrap(err, "unable to sync playlist")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close playlist")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "unable to chmod playlist")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "unable to publish playlist %s", path)
	}

	return nil
}

// encode drives the configured external encoder to completion.
func (f *Finalizer) encode(ctx context.Context, playlist string) error {
	rate := strconv.FormatFloat(f.rate, 'f', -1, 64)
	cmd := exec.CommandContext(ctx, f.encoder, playlist, f.artifact, rate)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "encoder %s failed: %s", f.encoder, strings.TrimSpace(string(out)))
	}

	return nil
}
