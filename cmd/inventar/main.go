package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/erazemk/inventar/internal/lifecycle"
	"github.com/erazemk/inventar/internal/locks"
)

// levelRouter is a slog.Handler that routes records below ERROR to one writer
// and ERROR+ to another, dropping records below the configured level.
type levelRouter struct {
	min    slog.Level
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.min
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		min:    lr.min,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		min:    lr.min,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. Records below ERROR go to infoW,
// ERROR goes to errW. Command output owns stdout, so the CLI passes stderr
// for both. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(infoW, errW io.Writer, logPath string, level slog.Level) (func(), error) {
	opts := &slog.HandlerOptions{Level: level}

	cleanup := func() {}

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		infoW = io.MultiWriter(infoW, f)
		errW = io.MultiWriter(errW, f)
	}

	handler := &levelRouter{
		min:    level,
		stdout: slog.NewTextHandler(infoW, opts),
		stderr: slog.NewTextHandler(errW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
	exitInvalid  = 3
)

func exitCode(err error) int {
	var conflict *locks.ConflictError
	var invalid *lifecycle.ValidationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &conflict):
		return exitConflict
	case errors.As(err, &invalid):
		return exitInvalid
	default:
		return exitError
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	cancel()
	os.Exit(exitCode(err))
}
