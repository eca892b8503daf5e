package claude

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/loopwork/agentkit/protocol"
)

// defaultSessionID stamps outbound messages until the agent assigns the
// real session identifier in its first system init message.
const defaultSessionID = "default"

// Client is a blocking multi-turn session with one agent process.
//
// A Client moves through NEW → CONNECTING → CONNECTED → CLOSED. Context
// is preserved across turns because the process retains state; the client
// multiplexes turns on the same process. The usual shape:
//
//	c := claude.NewClient(claude.WithModel("sonnet"))
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Close()
//
//	stream := c.ReceiveResponse()
//	if err := c.Query(ctx, "hello"); err != nil { ... }
//	msgs, err := stream.Drain(ctx)
type Client struct {
	opts      Options
	state     *sessionState
	corr      *correlator
	router    *turnRouter
	gate      *permissionGate
	hookReg   *HookRegistry
	transport transport

	// newTransport is the factory used at Connect; tests swap it for an
	// in-memory transport.
	newTransport func(Options) transport

	sdkServers map[string]SDKToolHandler

	dispatchCh chan protocol.ControlRequest
	done       chan struct{}
	closeOnce  sync.Once

	// handlerCtx is handed to caller callbacks; cancelled at close.
	handlerCtx    context.Context
	handlerCancel context.CancelFunc

	mu             sync.RWMutex
	sessionID      string
	model          string
	permissionMode string
	serverInfo     map[string]interface{}
	msgHandlers    []func(protocol.DataMessage)
	resultHandlers []func(protocol.ResultMessage)
}

// NewClient creates an unconnected client.
func NewClient(opts ...Option) *Client {
	o := buildOptions(opts)

	hooks := o.Hooks
	if hooks == nil {
		hooks = NewHookRegistry()
	}

	c := &Client{
		opts:       o,
		state:      newSessionState(),
		corr:       newCorrelator(),
		router:     newTurnRouter(),
		gate:       newPermissionGate(o.PermissionCallback),
		hookReg:    hooks,
		sdkServers: o.sdkHandlers(),
		dispatchCh: make(chan protocol.ControlRequest, 16),
		done:       make(chan struct{}),
		sessionID:  defaultSessionID,
		model:      o.Model,
	}
	c.permissionMode = string(o.PermissionMode)
	c.newTransport = o.transportFactory
	if c.newTransport == nil {
		c.newTransport = func(o Options) transport { return newProcessManager(o) }
	}
	c.handlerCtx, c.handlerCancel = context.WithCancel(context.Background())
	return c
}

// Hooks returns the client's hook registry for registrations before
// Connect.
func (c *Client) Hooks() *HookRegistry { return c.hookReg }

// Connect spawns the agent process and starts the session.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, "")
}

// ConnectWithPrompt connects and immediately sends an initial prompt.
func (c *Client) ConnectWithPrompt(ctx context.Context, initialPrompt string) error {
	return c.connect(ctx, initialPrompt)
}

func (c *Client) connect(ctx context.Context, initialPrompt string) error {
	if err := c.state.begin(); err != nil {
		return err
	}

	c.transport = c.newTransport(c.opts)
	if err := c.transport.Start(ctx); err != nil {
		c.state.close()
		return err
	}

	go c.readLoop()
	go c.stderrLoop()
	for i := 0; i < c.workerCount(); i++ {
		go c.handlerWorker()
	}

	// Advertise hooks before the first prompt, and only when there is
	// something to advertise.
	if c.hookReg.HasHooks() {
		init := protocol.InitializeRequestToSend{
			Subtype: string(protocol.ControlRequestSubtypeInitialize),
			Hooks:   c.hookReg.buildConfig(),
		}
		if _, err := c.sendControlRequest(ctx, init); err != nil {
			c.teardown(nil)
			return err
		}
	}

	if err := c.state.connected(); err != nil {
		return err
	}

	if initialPrompt != "" {
		return c.Query(ctx, initialPrompt)
	}
	return nil
}

func (c *Client) workerCount() int {
	if c.opts.HandlerWorkers > 0 {
		return c.opts.HandlerWorkers
	}
	return defaultHandlerWorkers
}

// Query sends a user message, starting a new turn. Responses are drawn
// from ReceiveResponse (subscribe before querying to be sure nothing is
// missed).
func (c *Client) Query(_ context.Context, prompt string) error {
	switch c.state.Current() {
	case StateClosed:
		return ErrClosed
	case StateConnected, StateConnecting:
	default:
		return ErrNotConnected
	}

	tr := c.transport
	if tr == nil {
		return ErrNotConnected
	}
	msg := protocol.NewUserTextMessage(prompt, c.SessionID())
	return tr.WriteMessage(msg)
}

// ReceiveResponse subscribes to the current turn: the stream yields every
// data-plane message up to and including the turn's result, then
// completes. Installing a new subscription completes the previous one.
func (c *Client) ReceiveResponse() *MessageStream {
	return c.router.subscribe()
}

// ReceiveMessages subscribes to every parsed inbound message, including
// control traffic, for low-level observability. The stream is unbounded
// and completes at session end, or earlier when a later ReceiveMessages
// call installs a new subscription in its place.
func (c *Client) ReceiveMessages() *MessageStream {
	return c.router.subscribeRaw()
}

// QueryAndReceive subscribes then queries, returning the turn stream.
func (c *Client) QueryAndReceive(ctx context.Context, prompt string) (*MessageStream, error) {
	stream := c.ReceiveResponse()
	if err := c.Query(ctx, prompt); err != nil {
		stream.complete(err)
		return nil, err
	}
	return stream, nil
}

// Interrupt asks the agent to abandon the current turn.
func (c *Client) Interrupt(ctx context.Context) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	_, err := c.sendControlRequest(ctx, protocol.InterruptRequestToSend{
		Subtype: string(protocol.ControlRequestSubtypeInterrupt),
	})
	return err
}

// SetPermissionMode switches the agent's permission mode mid-session.
func (c *Client) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	_, err := c.sendControlRequest(ctx, protocol.SetPermissionModeRequestToSend{
		Subtype: string(protocol.ControlRequestSubtypeSetPermissionMode),
		Mode:    string(mode),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.permissionMode = string(mode)
	c.mu.Unlock()
	return nil
}

// SetModel switches the active model mid-session.
func (c *Client) SetModel(ctx context.Context, model string) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	_, err := c.sendControlRequest(ctx, protocol.SetModelRequestToSend{
		Subtype: string(protocol.ControlRequestSubtypeSetModel),
		Model:   model,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	return nil
}

func (c *Client) requireConnected() error {
	switch c.state.Current() {
	case StateConnected:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotConnected
	}
}

// IsConnected reports whether the session is live.
func (c *Client) IsConnected() bool {
	return c.state.Current() == StateConnected
}

// State returns the session lifecycle state.
func (c *Client) State() SessionState { return c.state.Current() }

// SessionID returns the current session identifier, assigned by the agent
// on its first system init message.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Model returns the current model identifier.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// CurrentPermissionMode returns the current permission mode.
func (c *Client) CurrentPermissionMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permissionMode
}

// ServerInfo returns the payload of the agent's initialize control
// request, when one was received.
func (c *Client) ServerInfo() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// OnMessage registers a cross-turn handler invoked inline before each
// data-plane message is forwarded to the turn subscriber. Handlers must
// be fast; they run on the dispatch path.
func (c *Client) OnMessage(handler func(protocol.DataMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgHandlers = append(c.msgHandlers, handler)
}

// OnResult registers a cross-turn handler invoked for every result
// message.
func (c *Client) OnResult(handler func(protocol.ResultMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultHandlers = append(c.resultHandlers, handler)
}

// Close tears the session down: the process is terminated and reaped,
// every pending control request fails with ErrClosedWhilePending, and
// every subscriber completes. Idempotent.
func (c *Client) Close() error {
	c.teardown(nil)
	return nil
}

// teardown is the single exit path, used by Close and by transport death.
// termErr is nil for caller-initiated close.
func (c *Client) teardown(termErr error) {
	c.closeOnce.Do(func() {
		c.state.close()

		if c.transport != nil {
			_ = c.transport.Stop()
		}

		c.corr.failAll(ErrClosedWhilePending)
		c.router.shutdown(termErr)
		c.handlerCancel()
		close(c.done)
	})
}

// readLoop consumes the agent's stdout line stream and drives the
// classifier and demultiplexer. It blocks only on the framer read; all
// caller code runs elsewhere.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		line, err := c.transport.ReadLine()
		if err != nil {
			c.handleReadEnd(err)
			return
		}
		c.handleLine(line)
	}
}

// handleReadEnd maps end-of-stream onto session termination. A non-zero
// exit while the session is live is transport-terminated for everything
// still in flight.
func (c *Client) handleReadEnd(readErr error) {
	if c.state.Current() == StateClosed {
		return
	}

	termErr := c.transport.Wait()
	if termErr == nil {
		if errors.Is(readErr, io.EOF) {
			termErr = &ProcessError{Message: "agent closed its output stream"}
		} else {
			termErr = &ProcessError{Message: "agent stream read failed", Cause: readErr}
		}
	}
	c.logger().Warn("agent process terminated", "error", termErr)
	c.teardown(termErr)
}

// handleLine classifies one stdout line. Malformed lines are diagnostic
// noise: logged and skipped, never fatal, and they do not delay later
// lines.
func (c *Client) handleLine(line []byte) {
	msg, err := protocol.ParseMessage(line)
	if err != nil {
		c.logger().Warn("dropping malformed line from agent",
			"error", &ProtocolError{Message: "failed to parse message", Line: string(line), Cause: err})
		return
	}
	if msg == nil {
		c.logger().Debug("dropping line with unknown message type")
		return
	}

	switch m := msg.(type) {
	case protocol.ControlRequest:
		c.router.dispatch(m)
		c.dispatchControlRequest(m)
	case protocol.ControlResponse:
		c.router.dispatch(m)
		c.handleControlResponse(m)
	case protocol.DataMessage:
		c.handleDataMessage(m)
	}
}

// handleDataMessage updates session metadata, runs cross-turn handlers,
// and forwards to the demultiplexer.
func (c *Client) handleDataMessage(msg protocol.DataMessage) {
	switch m := msg.(type) {
	case protocol.SystemMessage:
		if m.Subtype == "init" {
			c.mu.Lock()
			if m.SessionID != "" {
				c.sessionID = m.SessionID
			}
			if m.Model != "" {
				c.model = m.Model
			}
			if m.PermissionMode != "" {
				c.permissionMode = m.PermissionMode
			}
			c.mu.Unlock()
		}
	case protocol.ResultMessage:
		c.mu.Lock()
		if m.SessionID != "" {
			c.sessionID = m.SessionID
		}
		c.mu.Unlock()
	}

	c.mu.RLock()
	msgHandlers := c.msgHandlers
	resultHandlers := c.resultHandlers
	c.mu.RUnlock()

	for _, h := range msgHandlers {
		h(msg)
	}
	if result, ok := msg.(protocol.ResultMessage); ok {
		for _, h := range resultHandlers {
			h(result)
		}
	}

	c.router.dispatch(msg)
}

// stderrLoop drains the agent's stderr in the background so the process
// can never block on a full pipe. Output goes to the configured handler,
// or to debug logging.
func (c *Client) stderrLoop() {
	stderr := c.transport.Stderr()
	if stderr == nil {
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			if c.opts.StderrHandler != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				c.opts.StderrHandler(chunk)
			} else {
				c.logger().Debug("agent stderr", "output", string(buf[:n]))
			}
		}
		if err != nil {
			return
		}
	}
}

// recordServerInfo captures the payload of the agent's inbound initialize
// request.
func (c *Client) recordServerInfo(req protocol.InitializeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := make(map[string]interface{}, 2)
	if req.Hooks != nil {
		info["hooks"] = req.Hooks
	}
	if req.Capabilities != nil {
		info["capabilities"] = req.Capabilities
	}
	c.serverInfo = info
}

func (c *Client) logger() *slog.Logger {
	return slog.Default().With("component", "claude")
}
