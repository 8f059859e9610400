// Package runner launches external archive tools and streams their output.
//
// A Runner starts one child process per Command. Standard output and standard
// error are split into lines on independent goroutines, so a tool that fills
// one pipe never blocks the reader of the other. Each line is handed to the
// matching callback in the order it was written, with the newline removed.
//
// The returned Job is a future for the exit status. A non-zero exit code is
// not an error at this layer; callers interpret codes for their own tool.
//
//	r := runner.New(runner.WithLogger(logger))
//	status, err := r.Run(ctx, runner.Command{
//	    Args:     []string{"/usr/local/rar/rar", "lb", "book.cbr"},
//	    Timeout:  runner.Infinite,
//	    OnStdout: func(line string) { names = append(names, line) },
//	})
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Infinite disables the timeout of a Command.
const Infinite time.Duration = 0

// DefaultWaitDelay is how long a killed process may keep its pipes open,
// for example through a grandchild, before they are forcibly closed.
const DefaultWaitDelay = 5 * time.Second

var (
	ErrArgs     = errors.New("command line is empty")
	ErrLaunch   = errors.New("program could not be launched")
	ErrTimeout  = errors.New("program exceeded its time limit")
	ErrCanceled = errors.New("program was canceled")
	ErrRead     = errors.New("program output could not be read")
)

// LineFunc receives one line of program output without the trailing newline.
type LineFunc func(line string)

// Command describes one program invocation.
type Command struct {
	// Args is the program followed by its arguments, each passed as a discrete
	// token and never through a shell.
	Args []string
	// Dir is the working directory, empty for the current directory.
	Dir string
	// Timeout forcibly stops the program once elapsed, Infinite to disable.
	Timeout time.Duration
	// OnStdout and OnStderr receive output lines and may be nil.
	OnStdout LineFunc
	OnStderr LineFunc
	// Encoding decodes output lines from a legacy code page when set.
	Encoding encoding.Encoding
}

// Status is the outcome of a finished program.
type Status struct {
	Code    int           // Code is the exit code, -1 if the program was killed.
	Elapsed time.Duration // Elapsed is the wall time since launch.
}

// Runner starts external programs.
type Runner struct {
	logger    *zap.Logger
	env       map[string]string
	waitDelay time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for launch and exit diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEnv adds environment variables to the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(r *Runner) {
		for k, v := range env {
			r.env[k] = v
		}
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// New returns a Runner configured by opts.
func New(opts ...Option) *Runner {
	r := &Runner{
		logger:    zap.NewNop(),
		env:       map[string]string{},
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the command and waits for it to finish.
func (r *Runner) Run(ctx context.Context, c Command) (Status, error) {
	job, err := r.Start(ctx, c)
	if err != nil {
		return Status{Code: -1}, err
	}
	return job.Wait()
}

// Start launches the command and returns a Job to wait on.
// An executable that cannot be found or started returns ErrLaunch immediately.
func (r *Runner) Start(ctx context.Context, c Command) (*Job, error) {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return nil, ErrArgs
	}
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(runCtx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = r.waitDelay
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.environ()...)
	}
	stdout := newLineWriter(c.OnStdout, c.Encoding)
	stderr := newLineWriter(c.OnStderr, c.Encoding)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("runner %w: %s: %w", ErrLaunch, c.Args[0], err)
	}
	job := &Job{
		args:   c.Args,
		pid:    cmd.Process.Pid,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.logger.Debug("program started",
		zap.Strings("args", c.Args), zap.Int("pid", job.pid), zap.Duration("timeout", c.Timeout))

	go func() {
		defer close(job.done)
		defer cancel()
		werr := cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		job.status = Status{Code: -1, Elapsed: time.Since(start)}
		if cmd.ProcessState != nil {
			job.status.Code = cmd.ProcessState.ExitCode()
		}
		job.err = classify(werr, runCtx.Err(), c.Args[0])
		r.logger.Debug("program finished",
			zap.Int("pid", job.pid), zap.Int("code", job.status.Code),
			zap.Duration("elapsed", job.status.Elapsed), zap.Error(job.err))
	}()
	return job, nil
}

func (r *Runner) environ() []string {
	env := make([]string, 0, len(r.env))
	for k, v := range r.env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// classify maps the result of exec.Cmd.Wait to the package errors.
func classify(werr, ctxErr error, prog string) error {
	if werr == nil {
		return nil
	}
	var exit *exec.ExitError
	switch {
	case ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded):
		return fmt.Errorf("runner %w: %s", ErrTimeout, prog)
	case ctxErr != nil:
		return fmt.Errorf("runner %w: %s", ErrCanceled, prog)
	case errors.As(werr, &exit):
		return nil
	}
	return fmt.Errorf("runner %w: %s: %w", ErrRead, prog, werr)
}

// Job is a started program. It is a future for the program's Status.
type Job struct {
	args   []string
	pid    int
	cancel context.CancelFunc
	done   chan struct{}

	status Status
	err    error
}

// Wait blocks until the program has exited and every output line has been
// delivered to the callbacks.
func (j *Job) Wait() (Status, error) {
	<-j.done
	return j.status, j.err
}

// Done is closed once Wait would not block.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel forcibly stops the program. Wait then returns ErrCanceled.
func (j *Job) Cancel() {
	j.cancel()
}

// Pid returns the process id of the program.
func (j *Job) Pid() int {
	return j.pid
}

// Args returns the command line of the program.
func (j *Job) Args() []string {
	return append([]string(nil), j.args...)
}
