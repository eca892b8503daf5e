package claude

import (
	"context"
	"io"
	"sync"

	"github.com/loopwork/agentkit/protocol"
)

// MessageStream is a single-consumer sink for inbound messages. The
// buffer is unbounded: inbound from the agent is authoritative and is
// never dropped, so a slow consumer grows the buffer instead of exerting
// backpressure on the reader.
//
// A turn stream completes normally when its turn's result message is
// observed, or when a new subscriber supersedes it; it completes with an
// error when the session dies underneath it.
type MessageStream struct {
	mu     sync.Mutex
	buf    []protocol.Message
	closed bool
	err    error
	// wake is closed-and-replaced on every state change so all waiters
	// observe it.
	wake chan struct{}
}

func newMessageStream() *MessageStream {
	return &MessageStream{wake: make(chan struct{})}
}

// push appends a message. Messages pushed after completion are dropped.
func (s *MessageStream) push(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, msg)
	s.broadcast()
}

// complete marks the stream finished. err is nil for normal completion.
// Only the first call has effect; buffered messages remain readable.
func (s *MessageStream) complete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	s.broadcast()
}

func (s *MessageStream) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// Next returns the next message in arrival order. It blocks until a
// message is available, the stream completes, or ctx is done. After the
// final message it returns io.EOF on normal completion or the stream's
// terminal error otherwise.
func (s *MessageStream) Next(ctx context.Context) (protocol.Message, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			msg := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return msg, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			if err == nil {
				return nil, io.EOF
			}
			return nil, err
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain collects every remaining message until normal completion. It
// returns the collected messages alongside any terminal error; messages
// received before the failure are still returned.
func (s *MessageStream) Drain(ctx context.Context) ([]protocol.Message, error) {
	var msgs []protocol.Message
	for {
		msg, err := s.Next(ctx)
		if err == io.EOF {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
}

// Err returns the terminal error once the stream has completed, nil for
// normal completion or while still live.
func (s *MessageStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// turnRouter demultiplexes the inbound message flow onto the active
// per-turn subscriber, plus an optional raw subscriber that observes
// every parsed message including control traffic.
//
// The turn slot is strictly single-occupancy: installing a new subscriber
// completes and replaces the prior one, so no two subscribers ever share
// a turn. The subscriber completes exactly when its turn's result message
// is dispatched.
type turnRouter struct {
	mu   sync.Mutex
	turn *MessageStream
	raw  *MessageStream
}

func newTurnRouter() *turnRouter {
	return &turnRouter{}
}

// subscribe installs a fresh turn subscriber, completing any prior one
// normally (a superseded subscriber is not an error).
func (r *turnRouter) subscribe() *MessageStream {
	s := newMessageStream()
	r.mu.Lock()
	prev := r.turn
	r.turn = s
	r.mu.Unlock()

	if prev != nil {
		prev.complete(nil)
	}
	return s
}

// subscribeRaw installs the raw subscriber, completing any prior one.
func (r *turnRouter) subscribeRaw() *MessageStream {
	s := newMessageStream()
	r.mu.Lock()
	prev := r.raw
	r.raw = s
	r.mu.Unlock()

	if prev != nil {
		prev.complete(nil)
	}
	return s
}

// dispatch routes one parsed message: every message goes to the raw
// subscriber; data-plane messages go to the active turn subscriber; a
// result completes that subscriber and clears the slot atomically, so the
// next turn's subscriber can never see messages from before this result.
func (r *turnRouter) dispatch(msg protocol.Message) {
	r.mu.Lock()
	raw := r.raw
	turn := r.turn
	_, isData := msg.(protocol.DataMessage)
	_, isResult := msg.(protocol.ResultMessage)
	if isResult {
		r.turn = nil
	}
	r.mu.Unlock()

	if raw != nil {
		raw.push(msg)
	}
	if !isData || turn == nil {
		return
	}
	turn.push(msg)
	if isResult {
		turn.complete(nil)
	}
}

// failTurn fails the active turn subscriber and clears the slot, leaving
// the raw subscriber in place. Session teardown on transport death goes
// through shutdown, not through this method.
func (r *turnRouter) failTurn(err error) {
	r.mu.Lock()
	turn := r.turn
	r.turn = nil
	r.mu.Unlock()

	if turn != nil {
		turn.complete(err)
	}
}

// shutdown finishes both subscribers at session end. The active turn
// subscriber fails with err when non-nil (process death) and with
// ErrClosed on a caller-initiated close; the raw subscriber always
// completes normally.
func (r *turnRouter) shutdown(err error) {
	r.mu.Lock()
	turn := r.turn
	raw := r.raw
	r.turn = nil
	r.raw = nil
	r.mu.Unlock()

	if turn != nil {
		if err == nil {
			err = ErrClosed
		}
		turn.complete(err)
	}
	if raw != nil {
		raw.complete(nil)
	}
}
