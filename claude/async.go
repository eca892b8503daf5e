package claude

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/loopwork/agentkit/protocol"
)

// AsyncClient is the reactive session façade. Each turn returns a
// TurnSpec of lazy producers; nothing touches the wire until one of them
// is consumed, so a chain can be built before the connectivity check
// fires.
type AsyncClient struct {
	c *Client
}

// NewAsyncClient creates an unconnected reactive client.
func NewAsyncClient(opts ...Option) *AsyncClient {
	return &AsyncClient{c: NewClient(opts...)}
}

// Connect spawns the agent process and starts the session.
func (a *AsyncClient) Connect(ctx context.Context) error {
	return a.c.Connect(ctx)
}

// ConnectTurn connects and prepares the initial turn. The connection is
// established eagerly; the turn itself stays lazy.
func (a *AsyncClient) ConnectTurn(ctx context.Context, initialPrompt string) (*TurnSpec, error) {
	if err := a.c.Connect(ctx); err != nil {
		return nil, err
	}
	return a.Query(initialPrompt), nil
}

// Query prepares a turn for the given prompt. The returned TurnSpec is
// lazy: subscribing to Text, TextStream or Messages takes the turn slot,
// sends the prompt, and streams until the turn's result.
func (a *AsyncClient) Query(prompt string) *TurnSpec {
	return &TurnSpec{client: a.c, prompt: prompt}
}

// ReceiveMessages subscribes to every parsed inbound message including
// control traffic.
func (a *AsyncClient) ReceiveMessages() *MessageStream {
	return a.c.ReceiveMessages()
}

// ReceiveResponse subscribes to the current turn without sending a
// prompt.
func (a *AsyncClient) ReceiveResponse() *MessageStream {
	return a.c.ReceiveResponse()
}

// Interrupt asks the agent to abandon the current turn.
func (a *AsyncClient) Interrupt(ctx context.Context) error {
	return a.c.Interrupt(ctx)
}

// SetPermissionMode switches the agent's permission mode mid-session.
func (a *AsyncClient) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	return a.c.SetPermissionMode(ctx, mode)
}

// SetModel switches the active model mid-session.
func (a *AsyncClient) SetModel(ctx context.Context, model string) error {
	return a.c.SetModel(ctx, model)
}

// OnMessage registers a cross-turn handler run inline before each
// data-plane message reaches the turn subscriber.
func (a *AsyncClient) OnMessage(handler func(protocol.DataMessage)) {
	a.c.OnMessage(handler)
}

// OnResult registers a cross-turn handler run for every result message.
func (a *AsyncClient) OnResult(handler func(protocol.ResultMessage)) {
	a.c.OnResult(handler)
}

// IsConnected reports whether the session is live.
func (a *AsyncClient) IsConnected() bool { return a.c.IsConnected() }

// SessionID returns the current session identifier.
func (a *AsyncClient) SessionID() string { return a.c.SessionID() }

// Hooks returns the hook registry.
func (a *AsyncClient) Hooks() *HookRegistry { return a.c.Hooks() }

// Close tears the session down. Idempotent.
func (a *AsyncClient) Close() error { return a.c.Close() }

// TurnSpec is one turn's lazy producer triple. Constructing it does no
// IO; the first subscription takes the turn slot, sends the query, and
// binds the stream. All three views share that single subscription, so a
// TurnSpec is consumed through exactly one of them.
type TurnSpec struct {
	client *Client
	prompt string

	mu     sync.Mutex
	stream *MessageStream
	err    error
}

// subscribe performs the deferred work exactly once.
func (t *TurnSpec) subscribe(ctx context.Context) (*MessageStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream != nil || t.err != nil {
		return t.stream, t.err
	}

	if err := t.client.requireConnected(); err != nil {
		t.err = err
		return nil, err
	}

	stream := t.client.ReceiveResponse()
	if err := t.client.Query(ctx, t.prompt); err != nil {
		stream.complete(err)
		t.err = err
		return nil, err
	}
	t.stream = stream
	return stream, nil
}

// Text subscribes and returns all assistant text of the turn, joined.
func (t *TurnSpec) Text(ctx context.Context) (string, error) {
	stream, err := t.subscribe(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		msg, err := stream.Next(ctx)
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		if am, ok := msg.(protocol.AssistantMessage); ok {
			sb.WriteString(am.TextContent())
		}
	}
}

// TextStream subscribes and yields assistant text fragments as they
// arrive. The channel closes at end of turn; Err reports any terminal
// failure afterwards.
//
// With partial messages enabled the fragments are streaming text deltas;
// otherwise each complete assistant message contributes one fragment.
func (t *TurnSpec) TextStream(ctx context.Context) <-chan string {
	out := make(chan string)

	stream, err := t.subscribe(ctx)
	if err != nil {
		close(out)
		return out
	}

	partial := t.client.opts.IncludePartialMessages
	go func() {
		defer close(out)
		for {
			msg, err := stream.Next(ctx)
			if err != nil {
				return
			}
			for _, fragment := range textFragments(msg, partial) {
				select {
				case out <- fragment:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Messages subscribes and returns the turn's message stream: every
// regular message up to and including the result.
func (t *TurnSpec) Messages(ctx context.Context) (*MessageStream, error) {
	return t.subscribe(ctx)
}

// Err returns the turn's terminal error, once known.
func (t *TurnSpec) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.stream != nil {
		return t.stream.Err()
	}
	return nil
}

// textFragments extracts the text carried by one message. When the
// session streams partial messages, text deltas are authoritative and
// complete assistant messages are skipped to avoid double emission.
func textFragments(msg protocol.Message, partial bool) []string {
	switch m := msg.(type) {
	case protocol.AssistantMessage:
		if partial {
			return nil
		}
		if text := m.TextContent(); text != "" {
			return []string{text}
		}
	case protocol.StreamEvent:
		if !partial {
			return nil
		}
		event, err := protocol.ParseStreamEvent(m.Event)
		if err != nil {
			return nil
		}
		if delta, ok := event.(protocol.ContentBlockDeltaEvent); ok {
			d, err := delta.ParsedDelta()
			if err != nil {
				return nil
			}
			if td, ok := d.(protocol.TextDelta); ok && td.Text != "" {
				return []string{td.Text}
			}
		}
	}
	return nil
}
