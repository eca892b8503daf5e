package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockTransport is an in-memory transport: tests script inbound lines and
// inspect captured outbound writes. It stands in for the spawned process
// in every session-level test.
type mockTransport struct {
	mu       sync.Mutex
	lines    chan []byte
	sent     []json.RawMessage
	waitErr  error
	started  bool
	stopped  bool
	eofOnce  sync.Once
	onWrite  func(raw json.RawMessage)
	startErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{lines: make(chan []byte, 256)}
}

func (m *mockTransport) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockTransport) WriteMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sent = append(m.sent, data)
	onWrite := m.onWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(data)
	}
	return nil
}

func (m *mockTransport) ReadLine() ([]byte, error) {
	line, ok := <-m.lines
	if !ok {
		return nil, io.EOF
	}
	return line, nil
}

func (m *mockTransport) Stderr() io.Reader { return strings.NewReader("") }

func (m *mockTransport) Wait() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitErr
}

func (m *mockTransport) Stop() error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.closeStream()
	return nil
}

// push feeds one scripted inbound line.
func (m *mockTransport) push(line string) {
	m.lines <- []byte(line)
}

// closeStream ends the inbound stream, simulating process exit.
func (m *mockTransport) closeStream() {
	m.eofOnce.Do(func() { close(m.lines) })
}

// die simulates an unexpected process death with the given exit code.
func (m *mockTransport) die(exitCode int) {
	m.mu.Lock()
	m.waitErr = &ProcessError{Message: "agent process exited unexpectedly", ExitCode: exitCode}
	m.mu.Unlock()
	m.closeStream()
}

// sentMessages returns a snapshot of captured outbound messages.
func (m *mockTransport) sentMessages() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]json.RawMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// waitForSent blocks until at least n outbound messages were captured.
func (m *mockTransport) waitForSent(t *testing.T, n int) []json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := m.sentMessages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages (have %d)", n, len(m.sentMessages()))
	return nil
}

// autoRespondControl wires a minimal agent: every outbound control_request
// is answered with a success control_response.
func (m *mockTransport) autoRespondControl() {
	m.onWrite = func(raw json.RawMessage) {
		var envelope struct {
			Type      string `json:"type"`
			RequestID string `json:"request_id"`
		}
		if json.Unmarshal(raw, &envelope) != nil || envelope.Type != "control_request" {
			return
		}
		m.push(fmt.Sprintf(
			`{"type":"control_response","response":{"subtype":"success","request_id":"%s","response":{}}}`,
			envelope.RequestID))
	}
}

// newTestClient builds a connected client over a fresh mock transport.
func newTestClient(t *testing.T, opts ...Option) (*Client, *mockTransport) {
	t.Helper()
	mock := newMockTransport()
	opts = append(opts, func(o *Options) {
		o.transportFactory = func(Options) transport { return mock }
	})
	c := NewClient(opts...)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mock
}

// wireResult builds a minimal result line for session sess.
func wireResult(sess string) string {
	return fmt.Sprintf(`{"type":"result","subtype":"success","is_error":false,"duration_ms":12,"duration_api_ms":8,"num_turns":1,"session_id":"%s","total_cost_usd":0.001,"usage":{"input_tokens":5,"cache_creation_input_tokens":0,"cache_read_input_tokens":0,"output_tokens":2}}`, sess)
}

// wireAssistant builds a single-text-block assistant line.
func wireAssistant(sess, text string) string {
	return fmt.Sprintf(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":%q}]},"parent_tool_use_id":null,"session_id":"%s"}`, text, sess)
}
