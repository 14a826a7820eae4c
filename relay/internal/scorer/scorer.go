// Package scorer runs the external crop-health scoring program and captures
// what it writes.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bloomwatch/bloomwatch-stack/common/logging"
)

// waitDelay bounds how long Wait keeps reading pipes held open by
// grandchildren after the scorer itself has exited or been killed.
const waitDelay = 2 * time.Second

var (
	ErrTimeout      = errors.New("scorer timed out")
	ErrCanceled     = errors.New("scorer run canceled")
	ErrInvalidInput = errors.New("invalid scorer configuration")
)

// LaunchError means the scorer process never started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Config describes how to invoke the scorer.
type Config struct {
	Executable     string
	Script         string
	WorkDir        string
	Timeout        time.Duration
	MaxOutputBytes int
	// MaxConcurrent caps simultaneous runs. Zero means no cap.
	MaxConcurrent int
}

// Outcome is everything observed from one finished run.
type Outcome struct {
	ExitCode        int
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
}

// Runner launches one scorer process per call.
type Runner struct {
	cfg    Config
	sem    chan struct{}
	logger *logging.Logger
}

// New validates cfg and returns a Runner.
func New(cfg Config, logger *logging.Logger) (*Runner, error) {
	if strings.TrimSpace(cfg.Executable) == "" {
		return nil, fmt.Errorf("%w: executable is required", ErrInvalidInput)
	}
	if strings.TrimSpace(cfg.Script) == "" {
		return nil, fmt.Errorf("%w: script path is required", ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidInput)
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("%w: max concurrent must not be negative", ErrInvalidInput)
	}
	if logger == nil {
		logger = logging.Default()
	}

	r := &Runner{cfg: cfg, logger: logger}
	if cfg.MaxConcurrent > 0 {
		r.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return r, nil
}

// CommandLine is the invocation without the payload argument.
func (r *Runner) CommandLine() string {
	return r.cfg.Executable + " " + r.cfg.Script
}

// Timeout returns the per-run limit.
func (r *Runner) Timeout() time.Duration {
	return r.cfg.Timeout
}

// Check verifies the executable resolves and the script exists.
func (r *Runner) Check() error {
	if _, err := exec.LookPath(r.cfg.Executable); err != nil {
		return fmt.Errorf("executable %q not found: %w", r.cfg.Executable, err)
	}

	script := r.cfg.Script
	if r.cfg.WorkDir != "" && !filepath.IsAbs(script) {
		script = filepath.Join(r.cfg.WorkDir, script)
	}
	info, err := os.Stat(script)
	if err != nil {
		return fmt.Errorf("script %q: %w", r.cfg.Script, err)
	}
	if info.IsDir() {
		return fmt.Errorf("script %q is a directory", r.cfg.Script)
	}
	return nil
}

// Run invokes `<executable> <script> <payload>` and waits for it to exit.
//
// A non-zero exit is not an error: the exit code and both streams are
// returned for the caller to judge. Errors are a *LaunchError, ErrTimeout
// or ErrCanceled. The latter two still return whatever output was captured.
func (r *Runner) Run(ctx context.Context, payload []byte) (*Outcome, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Executable, r.cfg.Script, string(payload))
	cmd.Dir = r.cfg.WorkDir
	cmd.WaitDelay = waitDelay

	stdout := &limitedBuffer{limit: r.cfg.MaxOutputBytes}
	stderr := &limitedBuffer{limit: r.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log := r.logger.WithContext(ctx)
	log.Debug("starting scorer", logging.Command(r.CommandLine()), logging.Bytes(len(payload)))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: r.CommandLine(), Err: err}
	}

	waitErr := cmd.Wait()

	outcome := &Outcome{
		ExitCode:        -1,
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		Duration:        time.Since(start),
	}
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	log.Debug("scorer exited",
		logging.ExitCode(outcome.ExitCode),
		logging.Duration(outcome.Duration),
		"stdout_bytes", len(outcome.Stdout),
		"stderr_bytes", len(outcome.Stderr),
	)

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return outcome, ErrCanceled
		}
		return outcome, ErrTimeout
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// Output is still usable; typically exec.ErrWaitDelay from a lingering grandchild.
		log.Warn("scorer wait returned error", logging.Error(waitErr))
	}
	if outcome.StdoutTruncated || outcome.StderrTruncated {
		log.Warn("scorer output truncated",
			"limit_bytes", r.cfg.MaxOutputBytes,
			"stdout_truncated", outcome.StdoutTruncated,
			"stderr_truncated", outcome.StderrTruncated,
		)
	}

	return outcome, nil
}

func (r *Runner) acquire(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	if r.sem == nil {
		return nil
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrCanceled
	}
}

func (r *Runner) release() {
	if r.sem != nil {
		<-r.sem
	}
}
