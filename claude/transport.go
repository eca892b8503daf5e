package claude

import (
	"context"
	"io"
)

// transport is the seam between the session engine and the spawned agent
// process: framed JSON both ways plus lifecycle. processManager is the
// production implementation; tests substitute an in-memory script.
type transport interface {
	// Start launches the agent.
	Start(ctx context.Context) error
	// WriteMessage serializes v as one JSON line on the agent's stdin.
	// Safe for concurrent use.
	WriteMessage(v interface{}) error
	// ReadLine returns the next stdout line. io.EOF after the process
	// closes its stdout.
	ReadLine() ([]byte, error)
	// Stderr exposes the agent's stderr stream for background drainage.
	Stderr() io.Reader
	// Wait blocks until the process has been reaped. A non-zero exit
	// returns a *ProcessError.
	Wait() error
	// Stop tears the process down: terminate signal, stdin close, grace
	// period, kill, reap. Idempotent.
	Stop() error
}
