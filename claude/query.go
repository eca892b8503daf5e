package claude

import (
	"context"
	"strings"

	"github.com/loopwork/agentkit/protocol"
)

// ResultStatus summarizes a one-shot query outcome.
type ResultStatus string

const (
	// StatusSuccess means at least one assistant message arrived followed
	// by a non-error result.
	StatusSuccess ResultStatus = "success"
	// StatusError means the turn failed before or at its result.
	StatusError ResultStatus = "error"
	// StatusPartial means the turn completed without assistant content.
	StatusPartial ResultStatus = "partial"
)

// Metadata is the per-query metadata extracted from the result message.
type Metadata struct {
	Model         string
	SessionID     string
	NumTurns      int
	DurationMs    int64
	DurationAPIMs int64
	CostUSD       float64
	Usage         protocol.UsageDetails
}

// QueryResult is the outcome of a one-shot query: the full ordered
// message list, the final result message when one arrived, and a status.
type QueryResult struct {
	Messages []protocol.Message
	Result   *protocol.ResultMessage
	Status   ResultStatus
	// Err holds the transport or stream failure when Status is
	// StatusError for a reason other than the agent reporting is_error.
	Err error

	model string
}

// Text concatenates the text of every assistant message, in order.
func (r *QueryResult) Text() string {
	var sb strings.Builder
	for _, msg := range r.Messages {
		if am, ok := msg.(protocol.AssistantMessage); ok {
			sb.WriteString(am.TextContent())
		}
	}
	return sb.String()
}

// StructuredOutput returns the result's structured output, when the query
// ran under a JSON schema contract.
func (r *QueryResult) StructuredOutput() []byte {
	if r.Result == nil {
		return nil
	}
	return r.Result.StructuredOutput
}

// Metadata returns the query metadata.
func (r *QueryResult) Metadata() Metadata {
	meta := Metadata{Model: r.model}
	if r.Result == nil {
		return meta
	}
	meta.SessionID = r.Result.SessionID
	meta.NumTurns = r.Result.NumTurns
	meta.DurationMs = r.Result.DurationMs
	meta.DurationAPIMs = r.Result.DurationAPIMs
	meta.CostUSD = r.Result.TotalCostUSD
	meta.Usage = r.Result.Usage
	return meta
}

// Execute runs a one-shot query: spawn, send exactly one prompt, collect
// messages until the result, close. The whole call is bounded by the
// operation timeout unless ctx is stricter. No inter-turn state is
// retained.
func Execute(ctx context.Context, prompt string, opts ...Option) (*QueryResult, error) {
	c := NewClient(opts...)
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	stream := c.ReceiveResponse()
	if err := c.Query(ctx, prompt); err != nil {
		return nil, err
	}

	res := &QueryResult{}
	msgs, err := stream.Drain(ctx)
	res.Messages = msgs
	for _, msg := range msgs {
		if rm, ok := msg.(protocol.ResultMessage); ok {
			rm := rm
			res.Result = &rm
		}
	}
	res.model = c.Model()

	res.Status = queryStatus(res, err)
	res.Err = err
	return res, nil
}

// Text runs a one-shot query and returns just the joined assistant text.
func Text(ctx context.Context, prompt string, opts ...Option) (string, error) {
	res, err := Execute(ctx, prompt, opts...)
	if err != nil {
		return "", err
	}
	if res.Err != nil {
		return res.Text(), res.Err
	}
	return res.Text(), nil
}

// queryStatus applies the status rules: error before the result is an
// error; an error result is an error; assistant content makes success;
// a completed turn without assistant content is partial.
func queryStatus(res *QueryResult, streamErr error) ResultStatus {
	if streamErr != nil || res.Result == nil {
		return StatusError
	}
	if res.Result.IsError {
		return StatusError
	}
	for _, msg := range res.Messages {
		if _, ok := msg.(protocol.AssistantMessage); ok {
			return StatusSuccess
		}
	}
	return StatusPartial
}
