package llmclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/conversation"
)

func TestOpenAICodec_EncodeRequest_RoundTripsToolCalls(t *testing.T) {
	codec := &OpenAICodec{BaseURL: "https://api.example.com", Model: "gpt-test", APIKey: "sk-test"}

	req := Request{
		Messages: []conversation.Turn{
			{Role: conversation.RoleSystem, Content: "sys"},
			{Role: conversation.RoleAssistant, ToolCalls: []conversation.ToolCall{
				{ID: "call1", Name: "send_message", Arguments: map[string]any{"to": "a2", "text": "hi"}},
			}},
		},
		Tools:       []ToolSpec{{Name: "send_message", Description: "send", Parameters: map[string]any{"type": "object"}}},
		Temperature: 0.5,
		AgentID:     "a1",
	}

	method, url, body, headers, err := codec.EncodeRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "POST", method)
	assert.Equal(t, "https://api.example.com/chat/completions", url)
	assert.Equal(t, "Bearer sk-test", headers["Authorization"])

	var decoded openAIChatRequest
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "gpt-test", decoded.Model)
	require.Len(t, decoded.Messages, 2)
	require.Len(t, decoded.Messages[1].ToolCalls, 1)
	assert.Equal(t, "send_message", decoded.Messages[1].ToolCalls[0].Function.Name)
}

func TestOpenAICodec_DecodeResponse_ParsesToolCallArguments(t *testing.T) {
	codec := &OpenAICodec{}
	wire := `{
		"choices": [{"message": {"role":"assistant","reasoning_content":"thinking","tool_calls":[
			{"id":"call1","type":"function","function":{"name":"send_message","arguments":"{\"to\":\"a2\",\"text\":\"hi\"}"}}
		]}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`

	resp, err := codec.DecodeResponse([]byte(wire))
	require.NoError(t, err)
	assert.Equal(t, "thinking", resp.ReasoningContent)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "send_message", resp.ToolCalls[0].Name)
	assert.Equal(t, "a2", resp.ToolCalls[0].Arguments["to"])
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestOpenAICodec_DecodeResponse_EmptyChoicesErrors(t *testing.T) {
	codec := &OpenAICodec{}
	_, err := codec.DecodeResponse([]byte(`{"choices": []}`))
	assert.Error(t, err)
}
