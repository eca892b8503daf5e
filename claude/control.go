package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopwork/agentkit/protocol"
)

// controlOutcome is the resolution of one pending control request.
type controlOutcome struct {
	payload json.RawMessage
	err     error
}

// correlator matches caller-initiated control requests to their inbound
// responses. Identifiers are "<session-prefix>-<counter>" and unique for
// the session's lifetime. Every pending entry resolves exactly once:
// whichever path removes the entry from the map (response, timeout,
// close) owns delivery, so a late response can never resolve a slot that
// already failed.
type correlator struct {
	prefix  string
	mu      sync.Mutex
	counter uint64
	pending map[string]chan controlOutcome
	closed  bool
}

func newCorrelator() *correlator {
	return &correlator{
		prefix:  strings.SplitN(uuid.NewString(), "-", 2)[0],
		pending: make(map[string]chan controlOutcome),
	}
}

// register allocates a request identifier and its single-shot reply slot.
func (c *correlator) register() (string, chan controlOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", nil, ErrClosed
	}
	c.counter++
	id := fmt.Sprintf("%s-%d", c.prefix, c.counter)
	ch := make(chan controlOutcome, 1)
	c.pending[id] = ch
	return id, ch, nil
}

// take removes a pending entry, transferring resolution ownership to the
// caller. Returns nil when the entry was already resolved or never
// existed.
func (c *correlator) take(id string) chan controlOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.pending[id]
	delete(c.pending, id)
	return ch
}

// resolve delivers an inbound control response to its originator.
// Responses for unknown identifiers (late after timeout, or foreign) are
// reported false.
func (c *correlator) resolve(id string, outcome controlOutcome) bool {
	ch := c.take(id)
	if ch == nil {
		return false
	}
	ch <- outcome
	return true
}

// failAll resolves every pending entry with err and refuses future
// registrations. Called once at session close.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan controlOutcome)
	c.closed = true
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- controlOutcome{err: err}
	}
}

// sendControlRequest issues a caller-initiated control request and blocks
// for its correlated response, the operation timeout, ctx, or session
// close — whichever comes first.
func (c *Client) sendControlRequest(ctx context.Context, body interface{}) (json.RawMessage, error) {
	id, ch, err := c.corr.register()
	if err != nil {
		return nil, err
	}

	req := protocol.ControlRequestToSend{
		Type:      string(protocol.MessageTypeControlRequest),
		RequestID: id,
		Request:   body,
	}
	if err := c.transport.WriteMessage(req); err != nil {
		// Undo the registration; nothing can resolve it now.
		c.corr.take(id)
		return nil, err
	}

	timer := time.NewTimer(c.opts.OperationTimeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		return outcome.payload, outcome.err
	case <-timer.C:
		// Removing the entry atomically with the failure prevents a late
		// response from resolving an already-timed-out slot. Losing the
		// race means the response arrived first: take its outcome.
		if c.corr.take(id) != nil {
			return nil, fmt.Errorf("%w after %s", ErrControlTimeout, c.opts.OperationTimeout)
		}
		outcome := <-ch
		return outcome.payload, outcome.err
	case <-ctx.Done():
		if c.corr.take(id) != nil {
			return nil, ctx.Err()
		}
		outcome := <-ch
		return outcome.payload, outcome.err
	}
}

// handleControlResponse routes an inbound control_response to whichever
// goroutine sent the matching request.
func (c *Client) handleControlResponse(msg protocol.ControlResponse) {
	payload := msg.Response
	outcome := controlOutcome{payload: payload.Response}
	if payload.IsError() {
		outcome = controlOutcome{err: &ControlError{RequestID: payload.RequestID, Message: payload.Error}}
	}
	if !c.corr.resolve(payload.RequestID, outcome) {
		c.logger().Warn("control response for unknown request", "request_id", payload.RequestID)
	}
}

// dispatchControlRequest hands a process-initiated control request to the
// worker pool. The reader must keep reading even when every worker is
// busy, so an enqueue that would block spawns a dedicated goroutine
// instead.
func (c *Client) dispatchControlRequest(msg protocol.ControlRequest) {
	select {
	case c.dispatchCh <- msg:
	default:
		go c.handleControlRequest(msg)
	}
}

// handlerWorker drains the dispatch queue until session close.
func (c *Client) handlerWorker() {
	for {
		select {
		case msg := <-c.dispatchCh:
			c.handleControlRequest(msg)
		case <-c.done:
			return
		}
	}
}

// handleControlRequest answers one process-initiated control request.
// Handler failures — including panics in caller-supplied callbacks —
// become error responses; they never tear down the session.
func (c *Client) handleControlRequest(msg protocol.ControlRequest) {
	resp := c.buildControlResponse(msg)
	if resp == nil {
		return // response deferred (async tools/call)
	}
	c.writeControlResponse(*resp)
}

func (c *Client) writeControlResponse(resp protocol.ControlResponseToSend) {
	if err := c.transport.WriteMessage(resp); err != nil {
		c.logger().Warn("failed to send control response",
			"request_id", resp.Response.RequestID, "error", err)
	}
}

func (c *Client) buildControlResponse(msg protocol.ControlRequest) (resp *protocol.ControlResponseToSend) {
	defer func() {
		if r := recover(); r != nil {
			e := protocol.NewErrorResponse(msg.RequestID, fmt.Sprintf("callback panic: %v", r))
			resp = &e
		}
	}()

	data, err := msg.ParsedRequest()
	if err != nil {
		e := protocol.NewErrorResponse(msg.RequestID, fmt.Sprintf("unparseable control request: %v", err))
		return &e
	}

	switch req := data.(type) {
	case protocol.InitializeRequest:
		c.recordServerInfo(req)
		r := protocol.NewSuccessResponse(msg.RequestID, map[string]string{"status": "ok"})
		return &r

	case protocol.HookCallbackRequest:
		output, err := c.hookReg.Dispatch(c.handlerCtx, req.CallbackID, req.Input)
		if err != nil {
			e := protocol.NewErrorResponse(msg.RequestID, fmt.Sprintf("hook execution failed: %v", err))
			return &e
		}
		r := protocol.NewHookResponse(msg.RequestID, output)
		return &r

	case protocol.CanUseToolRequest:
		r := c.gate.Handle(c.handlerCtx, msg.RequestID, req)
		return &r

	case protocol.MCPMessageRequest:
		return c.handleMCPMessage(msg.RequestID, req)

	default:
		// Unknown or unexpected subtype: acknowledge without payload so
		// the agent is never left waiting.
		r := protocol.NewSuccessResponse(msg.RequestID, map[string]interface{}{})
		return &r
	}
}
