package claude

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTurn wires a mock transport that answers the first user message
// with the given lines.
func scriptedTurn(lines ...string) *mockTransport {
	mock := newMockTransport()
	mock.onWrite = func(raw json.RawMessage) {
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &envelope) != nil || envelope.Type != "user" {
			return
		}
		for _, line := range lines {
			mock.push(line)
		}
	}
	return mock
}

// Scenario: one-shot text query. system → assistant("4") → result yields
// success, text "4", num_turns 1.
func TestExecute_Success(t *testing.T) {
	mock := scriptedTurn(
		`{"type":"system","subtype":"init","session_id":"s1","model":"claude-haiku-4-5","uuid":"u"}`,
		wireAssistant("s1", "4"),
		wireResult("s1"),
	)

	res, err := Execute(context.Background(), "What is 2+2?", withMock(mock))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "4", res.Text())
	assert.Len(t, res.Messages, 3)

	meta := res.Metadata()
	assert.Equal(t, 1, meta.NumTurns)
	assert.Equal(t, "s1", meta.SessionID)
	assert.Equal(t, int64(12), meta.DurationMs)
	assert.Equal(t, int64(8), meta.DurationAPIMs)
	assert.Equal(t, 0.001, meta.CostUSD)
	assert.Equal(t, "claude-haiku-4-5", meta.Model)

	// One-shot: the transport was torn down.
	mock.mu.Lock()
	stopped := mock.stopped
	mock.mu.Unlock()
	assert.True(t, stopped)
}

// A turn that completes without assistant content is partial.
func TestExecute_Partial(t *testing.T) {
	mock := scriptedTurn(
		`{"type":"system","subtype":"init","session_id":"s1","uuid":"u"}`,
		wireResult("s1"),
	)

	res, err := Execute(context.Background(), "say nothing", withMock(mock))
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Empty(t, res.Text())
}

// An error result is an error status even with assistant content.
func TestExecute_ErrorResult(t *testing.T) {
	errorResult := `{"type":"result","subtype":"error_during_execution","is_error":true,"duration_ms":5,"duration_api_ms":2,"num_turns":1,"session_id":"s1","total_cost_usd":0,"usage":{"input_tokens":0,"cache_creation_input_tokens":0,"cache_read_input_tokens":0,"output_tokens":0},"result":"budget exceeded"}`
	mock := scriptedTurn(
		wireAssistant("s1", "partial answer"),
		errorResult,
	)

	res, err := Execute(context.Background(), "expensive", withMock(mock))
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	require.NotNil(t, res.Result)
	assert.True(t, res.Result.IsError)
	assert.Equal(t, "budget exceeded", res.Result.Result)
}

// Transport death before the result is an error status carrying the
// failure and the messages received so far.
func TestExecute_TransportDeath(t *testing.T) {
	mock := newMockTransport()
	mock.onWrite = func(raw json.RawMessage) {
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &envelope) != nil || envelope.Type != "user" {
			return
		}
		mock.push(wireAssistant("s1", "started..."))
		mock.die(9)
	}

	res, err := Execute(context.Background(), "doomed", withMock(mock))
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	var procErr *ProcessError
	assert.ErrorAs(t, res.Err, &procErr)
	assert.Len(t, res.Messages, 1)
}

func TestExecute_SpawnFailure(t *testing.T) {
	mock := newMockTransport()
	mock.startErr = &CLINotFoundError{Path: "claude"}

	_, err := Execute(context.Background(), "hello", withMock(mock))
	var notFound *CLINotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestExecute_StructuredOutput(t *testing.T) {
	structured := `{"type":"result","subtype":"success","is_error":false,"duration_ms":1,"duration_api_ms":1,"num_turns":1,"session_id":"s1","total_cost_usd":0,"usage":{"input_tokens":0,"cache_creation_input_tokens":0,"cache_read_input_tokens":0,"output_tokens":0},"structured_output":{"answer":4}}`
	mock := scriptedTurn(wireAssistant("s1", "4"), structured)

	res, err := Execute(context.Background(), "2+2 as json", withMock(mock))
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(res.StructuredOutput(), &out))
	assert.Equal(t, float64(4), out["answer"])
}

func TestText_ReturnsJoinedAssistantText(t *testing.T) {
	mock := scriptedTurn(
		wireAssistant("s1", "Hello, "),
		wireAssistant("s1", "world."),
		wireResult("s1"),
	)

	text, err := Text(context.Background(), "greet me", withMock(mock))
	require.NoError(t, err)
	assert.Equal(t, "Hello, world.", text)
}
