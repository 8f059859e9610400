//go:build unix

package runner_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/Defacto2/archivist/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

// collect is a LineFunc that records lines.
type collect struct {
	mu    sync.Mutex
	lines []string
}

func (c *collect) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collect) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestRunLines(t *testing.T) {
	t.Parallel()
	var out, errs collect
	r := runner.New()
	status, err := r.Run(context.Background(), runner.Command{
		Args:     []string{"sh", "-c", `printf 'one\ntwo\r\nthree'; echo oops >&2`},
		OnStdout: out.add,
		OnStderr: errs.add,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, status.Code)
	assert.Equal(t, []string{"one", "two", "three"}, out.get())
	assert.Equal(t, []string{"oops"}, errs.get())
}

func TestRunNonZeroExit(t *testing.T) {
	t.Parallel()
	status, err := runner.New().Run(context.Background(), runner.Command{
		Args: []string{"sh", "-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, status.Code)
}

func TestRunArgsAreTokens(t *testing.T) {
	t.Parallel()
	var out collect
	_, err := runner.New().Run(context.Background(), runner.Command{
		Args:     []string{"sh", "-c", `printf '%s\n' "$1"`, "sh", "a b; echo injected"},
		OnStdout: out.add,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a b; echo injected"}, out.get())
}

func TestRunEnvAndDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var out collect
	r := runner.New(runner.WithEnv(map[string]string{"ARCHIVIST_TEST": "yes"}))
	_, err := r.Run(context.Background(), runner.Command{
		Args:     []string{"sh", "-c", `echo "$ARCHIVIST_TEST"; pwd`},
		Dir:      dir,
		OnStdout: out.add,
	})
	require.NoError(t, err)
	lines := out.get()
	require.Len(t, lines, 2)
	assert.Equal(t, "yes", lines[0])
	assert.Contains(t, lines[1], filepath.Base(dir))
}

func TestRunEncoding(t *testing.T) {
	t.Parallel()
	var out collect
	_, err := runner.New().Run(context.Background(), runner.Command{
		Args:     []string{"sh", "-c", `printf '\202\n'`},
		Encoding: charmap.CodePage437,
		OnStdout: out.add,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"é"}, out.get())
}

func TestLaunchFailure(t *testing.T) {
	t.Parallel()
	_, err := runner.New().Run(context.Background(), runner.Command{
		Args: []string{"/nonexistent/archivist-test-tool"},
	})
	require.ErrorIs(t, err, runner.ErrLaunch)

	_, err = runner.New().Start(context.Background(), runner.Command{})
	require.ErrorIs(t, err, runner.ErrArgs)
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	r := runner.New(runner.WithWaitDelay(time.Second))
	job, err := r.Start(context.Background(), runner.Command{
		Args:    []string{"sleep", "10"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	status, err := job.Wait()
	require.ErrorIs(t, err, runner.ErrTimeout)
	assert.Less(t, status.Elapsed, 5*time.Second)
	err = syscall.Kill(job.Pid(), 0)
	assert.True(t, errors.Is(err, syscall.ESRCH), "process %d is still running", job.Pid())
}

func TestCancel(t *testing.T) {
	t.Parallel()
	job, err := runner.New().Start(context.Background(), runner.Command{
		Args: []string{"sleep", "10"},
	})
	require.NoError(t, err)
	job.Cancel()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job was not canceled")
	}
	_, err = job.Wait()
	require.ErrorIs(t, err, runner.ErrCanceled)
}

func TestParentContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.New().Run(ctx, runner.Command{
		Args: []string{"sleep", "10"},
	})
	require.Error(t, err)
}

func TestLinesArriveBeforeWait(t *testing.T) {
	t.Parallel()
	var out collect
	job, err := runner.New().Start(context.Background(), runner.Command{
		Args:     []string{"sh", "-c", "for i in 1 2 3 4 5; do echo $i; done"},
		OnStdout: out.add,
	})
	require.NoError(t, err)
	_, err = job.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, out.get())
	assert.Equal(t, []string{"sh", "-c", "for i in 1 2 3 4 5; do echo $i; done"}, job.Args())
}
