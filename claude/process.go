package claude

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loopwork/agentkit/internal/ndjson"
	"github.com/loopwork/agentkit/internal/procgroup"
)

// defaultCLIName is resolved on PATH when no explicit binary is given.
const defaultCLIName = "claude"

// termGracePeriod is how long the agent gets to exit after SIGTERM and a
// closed stdin before it is killed.
const termGracePeriod = 500 * time.Millisecond

// processManager supervises exactly one agent process: spawn with the
// computed argument vector, framed IO over its pipes, teardown and reap.
type processManager struct {
	opts     Options
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	reader   *ndjson.Reader
	writer   *ndjson.Writer
	waitDone chan struct{}
	waitErr  error
	mu       sync.Mutex
	started  bool
	stopping bool
}

func newProcessManager(opts Options) *processManager {
	return &processManager{
		opts:     opts,
		waitDone: make(chan struct{}),
	}
}

// Start spawns the agent process.
func (pm *processManager) Start(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.started {
		return ErrAlreadyConnected
	}

	args, err := BuildCLIArgs(pm.opts)
	if err != nil {
		return err
	}

	// Binary resolution: explicit option, then environment override, then
	// PATH lookup.
	cliPath := pm.opts.CLIPath
	if cliPath == "" {
		cliPath = os.Getenv(envCLIPath)
	}
	if cliPath == "" {
		resolved, lookErr := exec.LookPath(defaultCLIName)
		if lookErr != nil {
			return &CLINotFoundError{Path: defaultCLIName, Cause: lookErr}
		}
		cliPath = resolved
	}

	pm.cmd = exec.Command(cliPath, args...)

	pm.cmd.Env = append(os.Environ(), "CLAUDE_CODE_ENTRYPOINT=sdk-go")
	for k, v := range pm.opts.Env {
		pm.cmd.Env = append(pm.cmd.Env, k+"="+v)
	}

	if pm.opts.WorkDir != "" {
		pm.cmd.Dir = pm.opts.WorkDir
	}

	// Process group so teardown reaches helpers the agent spawned.
	procgroup.Configure(pm.cmd)

	pm.stdin, err = pm.cmd.StdinPipe()
	if err != nil {
		return &ProcessError{Message: "failed to create stdin pipe", Cause: err}
	}
	pm.stdout, err = pm.cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Message: "failed to create stdout pipe", Cause: err}
	}
	pm.stderr, err = pm.cmd.StderrPipe()
	if err != nil {
		return &ProcessError{Message: "failed to create stderr pipe", Cause: err}
	}

	pm.reader = ndjson.NewReader(pm.stdout)
	pm.writer = ndjson.NewWriter(pm.stdin)

	if err := pm.cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return &CLINotFoundError{Path: cliPath, Cause: err}
		}
		return &ProcessError{Message: "failed to start agent process", Cause: err}
	}

	go pm.reap()

	pm.started = true
	return nil
}

// reap waits for process exit and records the outcome.
func (pm *processManager) reap() {
	err := pm.cmd.Wait()

	pm.mu.Lock()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		pm.waitErr = &ProcessError{
			Message:  "agent process exited unexpectedly",
			ExitCode: exitCode,
			Cause:    err,
		}
	}
	pm.mu.Unlock()

	close(pm.waitDone)
}

// WriteMessage serializes v as one line on the agent's stdin.
func (pm *processManager) WriteMessage(v interface{}) error {
	pm.mu.Lock()
	writer := pm.writer
	started := pm.started
	pm.mu.Unlock()

	if !started || writer == nil {
		return ErrNotConnected
	}
	if err := writer.WriteJSON(v); err != nil {
		return &ProcessError{Message: "failed to write to agent stdin", Cause: err}
	}
	return nil
}

// ReadLine returns the next stdout line.
func (pm *processManager) ReadLine() ([]byte, error) {
	pm.mu.Lock()
	reader := pm.reader
	pm.mu.Unlock()

	if reader == nil {
		return nil, ErrNotConnected
	}
	return reader.ReadLine()
}

// Stderr exposes the agent's stderr stream.
func (pm *processManager) Stderr() io.Reader {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.stderr
}

// Wait blocks until the process has been reaped. A non-zero exit returns
// a *ProcessError.
func (pm *processManager) Wait() error {
	<-pm.waitDone
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.waitErr
}

// Stop tears the process down. Teardown order matters: terminate signal
// first, then close stdin so the agent can drain, then a grace period,
// then a group kill, then reap. Idempotent.
func (pm *processManager) Stop() error {
	pm.mu.Lock()
	if !pm.started || pm.stopping {
		pm.mu.Unlock()
		return nil
	}
	pm.stopping = true
	stdin := pm.stdin
	proc := pm.cmd.Process
	pm.mu.Unlock()

	if proc != nil {
		_ = procgroup.Terminate(proc)
	}
	if stdin != nil {
		_ = stdin.Close()
	}

	select {
	case <-pm.waitDone:
		return nil
	case <-time.After(termGracePeriod):
	}

	if proc != nil {
		_ = procgroup.Kill(proc)
	}

	select {
	case <-pm.waitDone:
	case <-time.After(termGracePeriod):
	}

	return nil
}
