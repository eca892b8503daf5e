package claude

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/loopwork/agentkit/protocol"
)

func parseLine(t *testing.T, line string) protocol.Message {
	t.Helper()
	msg, err := protocol.ParseMessage([]byte(line))
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func TestMessageStream_DeliversInOrder(t *testing.T) {
	s := newMessageStream()
	first := parseLine(t, wireAssistant("s", "one"))
	second := parseLine(t, wireAssistant("s", "two"))

	s.push(first)
	s.push(second)
	s.complete(nil)

	ctx := context.Background()
	msg, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", msg.(protocol.AssistantMessage).TextContent())

	msg, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", msg.(protocol.AssistantMessage).TextContent())

	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestMessageStream_NextBlocksUntilPush(t *testing.T) {
	s := newMessageStream()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.push(parseLine(t, wireAssistant("s", "late")))
	}()

	msg, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", msg.(protocol.AssistantMessage).TextContent())
}

func TestMessageStream_NextHonorsContext(t *testing.T) {
	s := newMessageStream()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessageStream_TerminalError(t *testing.T) {
	s := newMessageStream()
	s.push(parseLine(t, wireAssistant("s", "partial")))
	s.complete(&ProcessError{Message: "died", ExitCode: 1})

	ctx := context.Background()

	// Buffered messages are still readable after a failure completion.
	msg, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", msg.(protocol.AssistantMessage).TextContent())

	_, err = s.Next(ctx)
	var procErr *ProcessError
	assert.ErrorAs(t, err, &procErr)
	assert.ErrorAs(t, s.Err(), &procErr)
}

func TestMessageStream_CompleteIsIdempotent(t *testing.T) {
	s := newMessageStream()
	s.complete(nil)
	s.complete(&ProcessError{Message: "late error"})

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err, "first completion wins")
}

// The buffer is unbounded: a consumer that never keeps up loses nothing.
func TestMessageStream_UnboundedBuffer(t *testing.T) {
	s := newMessageStream()
	for i := 0; i < 10000; i++ {
		s.push(parseLine(t, wireAssistant("s", "x")))
	}
	s.complete(nil)

	msgs, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 10000)
}

func TestTurnRouter_ResultCompletesSubscriber(t *testing.T) {
	r := newTurnRouter()
	sub := r.subscribe()

	r.dispatch(parseLine(t, wireAssistant("s", "hello")))
	r.dispatch(parseLine(t, wireResult("s")))

	msgs, err := sub.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// The result is the final element of its turn.
	_, isResult := msgs[len(msgs)-1].(protocol.ResultMessage)
	assert.True(t, isResult)
}

// Installing a new subscriber completes the prior one normally, without a
// result.
func TestTurnRouter_SubscribeSupersedes(t *testing.T) {
	r := newTurnRouter()
	first := r.subscribe()
	second := r.subscribe()

	_, err := first.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, first.Err())

	r.dispatch(parseLine(t, wireAssistant("s", "for second")))
	r.dispatch(parseLine(t, wireResult("s")))

	msgs, err := second.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

// A subscriber installed after turn N's result sees nothing from turn N.
func TestTurnRouter_SecondTurnSeesNothingBeforeFirstResult(t *testing.T) {
	r := newTurnRouter()

	first := r.subscribe()
	r.dispatch(parseLine(t, wireAssistant("s", "turn one")))
	r.dispatch(parseLine(t, wireResult("s")))
	firstMsgs, err := first.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, firstMsgs, 2)

	second := r.subscribe()
	r.dispatch(parseLine(t, wireAssistant("s", "turn two")))
	r.dispatch(parseLine(t, wireResult("s")))

	msgs, err := second.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "turn two", msgs[0].(protocol.AssistantMessage).TextContent())
}

// Messages arriving with no active subscriber are dropped from the turn
// path, not queued into the next turn.
func TestTurnRouter_NoSubscriberDropsTurnMessages(t *testing.T) {
	r := newTurnRouter()
	r.dispatch(parseLine(t, wireAssistant("s", "orphan")))

	sub := r.subscribe()
	r.dispatch(parseLine(t, wireResult("s")))

	msgs, err := sub.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	_, isResult := msgs[0].(protocol.ResultMessage)
	assert.True(t, isResult)
}

// The raw subscriber observes everything, control traffic included.
func TestTurnRouter_RawSubscriberSeesControlMessages(t *testing.T) {
	r := newTurnRouter()
	raw := r.subscribeRaw()
	turn := r.subscribe()

	control := parseLine(t, `{"type":"control_request","request_id":"cr-1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{}}}`)
	r.dispatch(control)
	r.dispatch(parseLine(t, wireAssistant("s", "hi")))
	r.dispatch(parseLine(t, wireResult("s")))

	turnMsgs, err := turn.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, turnMsgs, 2, "control traffic stays off the turn stream")

	r.shutdown(nil)
	rawMsgs, err := raw.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, rawMsgs, 3)
	_, isControl := rawMsgs[0].(protocol.ControlRequest)
	assert.True(t, isControl)
}

func TestTurnRouter_FailTurn(t *testing.T) {
	r := newTurnRouter()
	sub := r.subscribe()

	r.failTurn(&ProcessError{Message: "gone", ExitCode: 2})

	_, err := sub.Next(context.Background())
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 2, procErr.ExitCode)

	// The slot is clear; dispatching does not panic and a new subscriber
	// works.
	r.dispatch(parseLine(t, wireAssistant("s", "x")))
	next := r.subscribe()
	r.dispatch(parseLine(t, wireResult("s")))
	msgs, err := next.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestTurnRouter_ShutdownFailsTurnCompletesRaw(t *testing.T) {
	r := newTurnRouter()
	turn := r.subscribe()
	raw := r.subscribeRaw()

	r.shutdown(nil)

	_, err := turn.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = raw.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestTurnRouter_ShutdownWithTransportError(t *testing.T) {
	r := newTurnRouter()
	turn := r.subscribe()

	r.shutdown(&ProcessError{Message: "killed", ExitCode: 137})

	_, err := turn.Next(context.Background())
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 137, procErr.ExitCode)
}

// Stream events flow through the turn stream like any other data-plane
// message.
func TestTurnRouter_StreamEventsForwarded(t *testing.T) {
	r := newTurnRouter()
	sub := r.subscribe()

	line := `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"chunk"}},"parent_tool_use_id":null,"session_id":"s"}`
	r.dispatch(parseLine(t, line))
	r.dispatch(parseLine(t, wireResult("s")))

	msgs, err := sub.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	se, ok := msgs[0].(protocol.StreamEvent)
	require.True(t, ok)
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(se.Event, &event))
	assert.Equal(t, "content_block_delta", event["type"])
}
