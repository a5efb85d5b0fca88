package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against Anthropic's Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client authenticated with apiKey.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Complete sends messages and tool definitions to Claude and returns the
// resulting text or requested tool calls. System messages are extracted
// into the separate `system` parameter Anthropic's API expects.
func (c *AnthropicClient) Complete(ctx context.Context, model string, messages []Message, tools []ToolSpec) (Response, error) {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages:  toAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyError(err)
	}

	return fromAnthropicMessage(msg), nil
}

func splitSystem(messages []Message) (string, []Message) {
	var system string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.ID,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters},
			},
		})
	}
	return out
}

func fromAnthropicMessage(msg *anthropic.Message) Response {
	var resp Response
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			_ = json.Unmarshal(b.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, ToolCallRequest{
				ID:        b.ID,
				ToolID:    b.Name,
				Arguments: args,
			})
		}
	}
	return resp
}

// statusCoder is implemented by the SDK's generated API error type;
// matched structurally so this package doesn't depend on its exact name.
type statusCoder interface {
	error
	StatusCode() int
}

// classifyError wraps Anthropic API errors, marking rate limiting, 5xx
// responses, and network-level failures as transient per §7's error
// taxonomy.
func classifyError(err error) error {
	if sc, ok := err.(statusCoder); ok {
		if code := sc.StatusCode(); code == 429 || code >= 500 {
			return &TransientError{Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	return fmt.Errorf("anthropic API error: %w", err)
}
