package llmclient

import (
	"encoding/json"
	"fmt"

	"github.com/agentsociety/runtime/pkg/conversation"
)

// OpenAICodec translates Request/Response against an OpenAI-compatible chat
// completions endpoint (the wire shape most self-hosted and hosted LLM
// gateways converge on: messages/tools/tool_calls/reasoning_content).
type OpenAICodec struct {
	BaseURL string
	Model   string
	APIKey  string
}

type openAIMessage struct {
	Role             string               `json:"role"`
	Content          string               `json:"content,omitempty"`
	ToolCallID       string               `json:"tool_call_id,omitempty"`
	ToolCalls        []openAIToolCallWire `json:"tool_calls,omitempty"`
	ReasoningContent string               `json:"reasoning_content,omitempty"`
}

type openAIToolCallWire struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded args, per OpenAI wire format
}

type openAIToolDef struct {
	Type     string            `json:"type"`
	Function openAIFunctionDef `json:"function"`
}

type openAIFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAIToolDef `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// EncodeRequest implements Codec.
func (c *OpenAICodec) EncodeRequest(req Request) (method, url string, body []byte, headers map[string]string, err error) {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, turn := range req.Messages {
		msg := openAIMessage{
			Role:             string(turn.Role),
			Content:          turn.Content,
			ToolCallID:       turn.ToolCallID,
			ReasoningContent: turn.ReasoningContent,
		}
		for _, tc := range turn.ToolCalls {
			argsJSON, marshalErr := json.Marshal(tc.Arguments)
			if marshalErr != nil {
				return "", "", nil, nil, marshalErr
			}
			msg.ToolCalls = append(msg.ToolCalls, openAIToolCallWire{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: string(argsJSON),
				},
			})
		}
		messages = append(messages, msg)
	}

	tools := make([]openAIToolDef, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openAIToolDef{
			Type: "function",
			Function: openAIFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	chatReq := openAIChatRequest{
		Model:       c.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Temperature,
	}
	body, err = json.Marshal(chatReq)
	if err != nil {
		return "", "", nil, nil, err
	}

	return "POST", c.BaseURL + "/chat/completions", body, map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + c.APIKey,
	}, nil
}

// DecodeResponse implements Codec.
func (c *OpenAICodec) DecodeResponse(body []byte) (Response, error) {
	var wire openAIChatResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return Response{}, err
	}
	if len(wire.Choices) == 0 {
		return Response{}, fmt.Errorf("llmclient: empty choices in response")
	}
	msg := wire.Choices[0].Message

	toolCalls := make([]conversation.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return Response{}, fmt.Errorf("llmclient: decoding tool call arguments: %w", err)
			}
		}
		toolCalls = append(toolCalls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return Response{
		Content:          msg.Content,
		ToolCalls:        toolCalls,
		ReasoningContent: msg.ReasoningContent,
		Usage: Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
	}, nil
}
