// Package runner executes cached script bodies through the uv runtime
// launcher, which reads the inline metadata block and provisions the
// declared dependencies in an isolated environment per run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"

	"github.com/scriptstash/scriptstash/internal/metadata"
)

const defaultLauncher = "uv"

// Runner executes scripts. Zero-value fields fall back to the uv binary
// on PATH and the process's standard streams.
type Runner struct {
	// Launcher is the runtime launcher binary.
	Launcher string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logger *log.Logger
}

// Run executes the script at path, passing args through untouched, and
// returns the script's exit code. A missing metadata header is a warning,
// not an error: the launcher still runs header-less scripts, just without
// dependency provisioning.
func (r *Runner) Run(ctx context.Context, path string, args []string) (int, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("reading script %s: %w", path, err)
	}
	if h, _ := metadata.Decode(string(body)); h == nil {
		r.logf("Script %s has no metadata header; dependencies will not be provisioned", path)
	}

	launcher := r.Launcher
	if launcher == "" {
		launcher = defaultLauncher
	}

	cmd := exec.CommandContext(ctx, launcher, append([]string{"run", path}, args...)...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The script ran and failed; its exit code is the caller's to relay.
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("launching %s: %w", launcher, err)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger == nil {
		r.Logger = log.New(os.Stderr, "[runner] ", log.LstdFlags)
	}
	r.Logger.Printf(format, args...)
}
