package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"daybook/internal/domain"
	"daybook/internal/usecase"
)

func newRecordCommand(cctx *commandContext) *cobra.Command {
	var continuous bool
	var optimized bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the microphone and transcribe it live",
		Long: "Streams microphone audio to the backend and prints the live transcript.\n" +
			"Stop with Ctrl-C; the command then waits for the backend to persist the\n" +
			"recording and prints the reconciled day view.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRecord(cctx, continuous, optimized)
		},
	}
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Keep recording across transient connection loss (24/7 mode)")
	cmd.Flags().BoolVar(&optimized, "optimized", false, "Show the rewritten transcript after stopping")
	return cmd
}

func runRecord(cctx *commandContext, continuous, optimized bool) error {
	cfg, err := cctx.config()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.LockPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	lock := flock.New(cfg.Storage.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire recording lock: %w", err)
	}
	if !locked {
		return errors.New("another daybook instance is already recording")
	}
	defer func() { _ = lock.Unlock() }()

	sink := newCLISink()
	services, err := cctx.services(sink)
	if err != nil {
		return err
	}

	// The recorder outlives the signal context: a Ctrl-C must run the stop
	// protocol, not tear the pipeline down mid-frame.
	if err := services.Recorder.Start(context.Background(), continuous); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Press Ctrl-C to stop.")

	sigCtx, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCtx.Done():
		cancelSignals()
	case <-sink.Terminal():
		cancelSignals()
		return errors.New("recording ended with an unrecoverable error")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := services.Recorder.Stop(stopCtx); err != nil {
		if errors.Is(err, usecase.ErrNotRecording) {
			return nil
		}
		return err
	}

	mode := domain.ModeOriginal
	if optimized {
		mode = domain.ModeOptimized
	}
	today := domain.DateOf(time.Now())

	finalizeCtx, cancelFinalize := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFinalize()
	view, err := services.Coordinator.FinalizeStop(finalizeCtx, today, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "* Day view may be incomplete: %v\n", err)
	}

	archiveDayView(cctx, view)
	printDayView(os.Stdout, view)
	return nil
}
