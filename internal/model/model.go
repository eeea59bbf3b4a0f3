// Package model launches the external Random Forest scoring process.
//
// The process is a black box: it receives the trained model artifact, an
// output directory and the parameter table, and is expected to leave
// OutputFile in the output directory. Its exit status is not a success
// signal; callers look for the output file instead.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// OutputFile is the table the scoring process writes into the output directory.
const OutputFile = "predicted_cond.csv"

// Defaults for the R scoring process.
const (
	DefaultRuntime  = "Rscript"
	DefaultScript   = "condRF.R"
	DefaultArtifact = "rf17bCnd9.rdata"
	DefaultName     = "rf17bCnd9"
)

// Request is one scoring invocation.
type Request struct {
	// OutputDir receives OutputFile.
	OutputDir string
	// ParamTable is the summarized environmental parameter table.
	ParamTable string
}

// OutputPath returns where the scoring process is expected to write.
func (r Request) OutputPath() string {
	return filepath.Join(r.OutputDir, OutputFile)
}

// Runner runs the scoring process to completion.
type Runner interface {
	Predict(ctx context.Context, req Request) error
}

// RScript runs an R script against a trained model artifact.
type RScript struct {
	// Runtime is the interpreter binary, Rscript by default.
	Runtime string
	// Script is the scoring script path.
	Script string
	// Artifact is the trained model file.
	Artifact string
	// Stdout and Stderr receive the process output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// Command builds the scoring command line:
// <runtime> <script> <artifact> <output dir> <param table>.
func (r *RScript) Command(ctx context.Context, req Request) *exec.Cmd {
	runtime := strings.TrimSpace(r.Runtime)
	if runtime == "" {
		runtime = DefaultRuntime
	}

	cmd := exec.CommandContext(ctx, runtime, r.Script, r.Artifact, req.OutputDir, req.ParamTable) //nolint:gosec // operator-configured interpreter
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd
}

// Predict starts the scoring process and blocks until it exits. A process
// that cannot be started is an error; a non-zero exit is only logged.
func (r *RScript) Predict(ctx context.Context, req Request) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if req.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if err := os.MkdirAll(req.OutputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := r.Command(ctx, req)
	logger.Info("running conductivity model", slog.String("command", strings.Join(cmd.Args, " ")))

	start := time.Now()
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Debug("model process finished", slog.Duration("elapsed", time.Since(start)))
	case errors.As(err, &exitErr):
		logger.Warn("model process exited with non-zero status",
			slog.Int("exit_code", exitErr.ExitCode()),
			slog.Duration("elapsed", time.Since(start)))
	default:
		return fmt.Errorf("failed to run model process: %w", err)
	}
	return nil
}

// ResolveNextToExecutable returns name joined to the directory of the running
// binary, falling back to name itself.
func ResolveNextToExecutable(name string) string {
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(exe), name)
}

var _ Runner = (*RScript)(nil)
