// Package claude drives the agent CLI as a supervised child process over
// its line-delimited JSON protocol.
//
// Three façades share one session engine:
//
//   - Execute / Text: one-shot queries — spawn, prompt, collect until the
//     result, tear down.
//   - Client: a blocking multi-turn session with iterator-style streams.
//   - AsyncClient: a reactive multi-turn session whose turns are lazy
//     TurnSpec producers.
//
// Interleaved with the conversation, the agent issues control requests
// back to the caller: hook callbacks (HookRegistry), tool permission
// checks (PermissionCallback), and in-process MCP tool servers
// (SDKToolHandler / TypedToolRegistry). Those callbacks run on a worker
// pool, never on the stream reader, so they may block or call back into
// the session.
//
// A minimal multi-turn session:
//
//	c := claude.NewClient(claude.WithModel("sonnet"))
//	if err := c.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	stream, err := c.QueryAndReceive(ctx, "My favorite color is blue. Say OK.")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := stream.Drain(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	stream, _ = c.QueryAndReceive(ctx, "What is my favorite color?")
//	msgs, _ := stream.Drain(ctx)
package claude
