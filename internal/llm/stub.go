package llm

import "context"

// EchoClient is a deterministic stub used by tests and by the
// "stub-echo" model name referenced in S1 of the spec's scenarios. It
// never requests tool calls, just returns the last user message back.
type EchoClient struct{}

// Complete returns the last user message's content verbatim as Text.
func (EchoClient) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (Response, error) {
	var last string
	for _, m := range messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	return Response{Text: last}, nil
}

// AlwaysToolCallClient always asks for the same tool call, used to
// exercise the tool-call loop cap in S6.
type AlwaysToolCallClient struct {
	ToolID string
}

// Complete always returns a request to call ToolID, never terminating
// on its own — used to test the engine's loop cap.
func (c AlwaysToolCallClient) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (Response, error) {
	return Response{
		ToolCalls: []ToolCallRequest{{ID: "call-1", ToolID: c.ToolID, Arguments: map[string]interface{}{}}},
	}, nil
}
