// Command signstream supervises the speech-to-sign pipeline: it launches
// the transform workers, wires them through shared append-only files, and
// on interrupt performs ordered termination followed by exactly-once
// finalization of the sign queue into a playback artifact.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/signstream/signstream/internal/config"
	"github.com/signstream/signstream/internal/logging"
	"github.com/signstream/signstream/pkg/channel"
	"github.com/signstream/signstream/pkg/finalizer"
	"github.com/signstream/signstream/pkg/stage"
	"github.com/signstream/signstream/pkg/supervisor"
	"github.com/signstream/signstream/pkg/supervisor/drawer"
)

func main() {
	fresh := flag.Bool("fresh", false, "clear all intermediate channels and the output artifact before starting")
	fromStart := flag.Bool("from-start", false, "tell the first stage to reprocess its source from the beginning")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	sup, err := build(cfg, *fresh, *fromStart, log)
	if err != nil {
		log.Error("unable to build pipeline", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigC
		cancel()
		// Shutdown is already in flight; further interrupts are no-ops.
		for range sigC {
			log.Debug("shutdown already in progress")
		}
	}()

	if err := sup.Run(ctx); err != nil {
		log.Error("pipeline run failed", zap.Error(err))
		os.Exit(1)
	}
}

// build assembles the channels, the three-stage chain and the finalizer
// into a supervisor for one run.
func build(cfg *config.Config, fresh, fromStart bool, log *zap.Logger) (*supervisor.Supervisor, error) {
	live := channel.New(cfg.InWorkdir(cfg.Channels.Live))
	clean := channel.New(cfg.InWorkdir(cfg.Channels.Clean))
	queue := channel.New(cfg.InWorkdir(cfg.Channels.Queue))
	final := channel.New(cfg.InWorkdir(cfg.Channels.Final))

	lexiconPath := cfg.InWorkdir(cfg.Stages.Lexicon)
	artifact := cfg.InWorkdir(cfg.Finalize.Artifact)

	stages := []*stage.Stage{
		{
			Name:      "clean",
			Path:      cfg.Stages.CleanBin,
			Source:    live,
			Dest:      clean,
			Poll:      cfg.Stages.Poll,
			FromStart: fromStart,
			Args: []string{
				"--idle-ms", strconv.Itoa(int(cfg.Stages.IdleFlush.Milliseconds())),
			},
		},
		{
			Name:   "glossify",
			Path:   cfg.Stages.GlossifyBin,
			Source: clean,
			Dest:   queue,
			Poll:   cfg.Stages.Poll,
			Args: []string{
				"--lex", lexiconPath,
				"--tween-ms", strconv.Itoa(cfg.Stages.TweenMs),
				"--sentence-pause-ms", strconv.Itoa(cfg.Stages.SentencePauseMs),
				"--rate", strconv.FormatFloat(cfg.Finalize.Rate, 'f', -1, 64),
			},
		},
		{
			Name:   "queue",
			Path:   cfg.Stages.QueueBin,
			Source: queue,
			Dest:   final,
			Poll:   cfg.Stages.Poll,
		},
	}

	finOpts := []finalizer.Option{finalizer.WithLogger(log)}
	if cfg.Finalize.Encoder != "" {
		finOpts = append(finOpts, finalizer.WithEncoder(cfg.Finalize.Encoder))
	}
	fin := finalizer.New(final, artifact, cfg.Finalize.Rate, finOpts...)

	opts := []supervisor.Option{
		supervisor.WithLogger(log),
		supervisor.WithGrace(cfg.Stages.Grace),
		supervisor.WithFresh(fresh),
		supervisor.WithChannels(live, clean, queue, final),
		supervisor.WithLexicon(lexiconPath),
		supervisor.WithArtifacts(artifact),
	}
	if cfg.GraphFile != "" {
		opts = append(opts, supervisor.WithDrawer(drawer.NewDOT(cfg.InWorkdir(cfg.GraphFile))))
	}

	return supervisor.New(stages, final, fin, opts...)
}
