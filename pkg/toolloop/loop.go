// Package toolloop orchestrates the bounded model↔tool round trip for one
// inbound message: building the turn, calling the LLM through the
// concurrency controller, and dispatching any tool calls the model makes.
package toolloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentsociety/runtime/pkg/concurrency"
	"github.com/agentsociety/runtime/pkg/contentrouter"
	"github.com/agentsociety/runtime/pkg/conversation"
	"github.com/agentsociety/runtime/pkg/llmclient"
	"github.com/agentsociety/runtime/pkg/tool"
)

// Loop wires the conversation store, concurrency controller, LLM client,
// and tool executor together for one agent's turn.
type Loop struct {
	conversations *conversation.Store
	controller    *concurrency.Controller
	llm           llmclient.Client
	toolRegistry  *tool.Registry
	executor      *tool.Executor
	maxToolRounds int
}

// New creates a Loop. maxToolRounds <= 0 uses DefaultMaxToolRounds.
func New(conversations *conversation.Store, controller *concurrency.Controller, llm llmclient.Client, toolRegistry *tool.Registry, executor *tool.Executor, maxToolRounds int) *Loop {
	if maxToolRounds <= 0 {
		maxToolRounds = DefaultMaxToolRounds
	}
	return &Loop{
		conversations: conversations,
		controller:    controller,
		llm:           llm,
		toolRegistry:  toolRegistry,
		executor:      executor,
		maxToolRounds: maxToolRounds,
	}
}

// Run processes one inbound message for agentCtx to completion: appends the
// user turn, then alternates LLM calls with tool dispatch until the model
// stops issuing tool_calls or the round budget is exhausted. The agent's
// conversation must already exist (EnsureConversation) with its composed
// system prompt.
func (l *Loop) Run(ctx context.Context, agentCtx AgentContext, in Inbound) (Result, error) {
	userTurn := conversation.Turn{
		Role:    conversation.RoleUser,
		Content: composeUserContent(in, agentCtx.Capability),
	}
	if err := l.conversations.Append(agentCtx.AgentID, userTurn); err != nil {
		return Result{}, err
	}

	tools := l.availableTools(agentCtx.ToolGroups)

	for round := 1; round <= l.maxToolRounds; round++ {
		turns, ok := l.conversations.GetConversation(agentCtx.AgentID)
		if !ok {
			return Result{}, fmt.Errorf("toolloop: conversation missing for agent %s", agentCtx.AgentID)
		}

		resp, err := l.callLLM(ctx, agentCtx.AgentID, turns, tools)
		if err != nil {
			return Result{RoundsUsed: round}, err
		}

		assistantTurn := conversation.Turn{
			Role:             conversation.RoleAssistant,
			Content:          resp.Content,
			ToolCalls:        resp.ToolCalls,
			ReasoningContent: resp.ReasoningContent,
		}
		if err := l.conversations.Append(agentCtx.AgentID, assistantTurn); err != nil {
			return Result{}, err
		}

		if len(resp.ToolCalls) == 0 {
			return Result{RoundsUsed: round, FinalResponse: resp.Content}, nil
		}

		for _, tc := range resp.ToolCalls {
			args := tc.Arguments
			if tc.Name == "send_message" && resp.ReasoningContent != "" {
				args = withReasoningContent(args, resp.ReasoningContent)
			}
			result, toolErr := l.executor.Execute(ctx, tool.Call{
				ToolCallID: tc.ID,
				AgentID:    agentCtx.AgentID,
				TaskID:     in.TaskID,
				Name:       tc.Name,
				Args:       args,
			}, agentCtx.ToolGroups)

			toolTurn := conversation.Turn{
				Role:       conversation.RoleTool,
				ToolCallID: tc.ID,
			}
			if toolErr != nil {
				toolTurn.Content = fmt.Sprintf(`{"error":%q}`, toolErr.Error())
			} else {
				toolTurn.Content = fmt.Sprintf("%v", result)
			}
			if err := l.conversations.Append(agentCtx.AgentID, toolTurn); err != nil {
				return Result{}, err
			}
		}

		if round == l.maxToolRounds {
			slog.Warn("toolloop: max tool rounds reached", "agentId", agentCtx.AgentID, "maxToolRounds", l.maxToolRounds)
			failureTurn := conversation.Turn{
				Role:    conversation.RoleTool,
				Content: `{"ok":false,"error":"max_tool_rounds_exceeded"}`,
			}
			if err := l.conversations.Append(agentCtx.AgentID, failureTurn); err != nil {
				return Result{}, err
			}
			return Result{RoundsUsed: round, HitRoundLimit: true}, nil
		}
	}

	return Result{RoundsUsed: l.maxToolRounds, HitRoundLimit: true}, nil
}

func (l *Loop) callLLM(ctx context.Context, agentID string, turns []conversation.Turn, tools []llmclient.ToolSpec) (llmclient.Response, error) {
	out, err := l.controller.ExecuteRequest(ctx, agentID, func(reqCtx context.Context) (any, error) {
		return l.llm.Chat(reqCtx, llmclient.Request{Messages: turns, Tools: tools, AgentID: agentID})
	})
	if err != nil {
		return llmclient.Response{}, err
	}
	resp, ok := out.(llmclient.Response)
	if !ok {
		return llmclient.Response{}, fmt.Errorf("toolloop: unexpected llm client result type %T", out)
	}
	return resp, nil
}

func (l *Loop) availableTools(toolGroups []string) []llmclient.ToolSpec {
	var specs []llmclient.ToolSpec
	for _, def := range l.toolRegistry.List() {
		allowed, err := l.toolRegistry.Allowed(def.Name, toolGroups)
		if err != nil || !allowed {
			continue
		}
		specs = append(specs, llmclient.ToolSpec{Name: def.Name, Description: def.Description, Parameters: def.Parameters})
	}
	return specs
}

// withReasoningContent attaches the assistant's reasoning to a send_message
// call's arguments, so it reaches the outgoing message record, without
// mutating the caller's map.
func withReasoningContent(args map[string]any, reasoningContent string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["reasoning_content"] = reasoningContent
	return out
}

// composeUserContent routes attachments through the Content Router and
// folds any unsupported-attachment descriptions into the turn's text.
func composeUserContent(in Inbound, capability contentrouter.Capability) string {
	routed := contentrouter.Route(in.Text, in.Attachments, capability)
	content := routed.Text
	for _, a := range routed.Attachments {
		if !a.Supported {
			content += "\n" + a.Description
		}
	}
	return content
}

// ComposeSystemPrompt builds the system turn content for an agent per the
// compose template: root/user omit BasePrompt and ToolRules by design; only
// RolePrompt is used for them.
func ComposeSystemPrompt(agentCtx AgentContext) string {
	if agentCtx.IsSystem {
		return agentCtx.RolePrompt
	}
	prompt := agentCtx.BasePrompt
	if agentCtx.RolePrompt != "" {
		prompt += "\n\n" + agentCtx.RolePrompt
	}
	if agentCtx.ToolRules != "" {
		prompt += "\n\n" + agentCtx.ToolRules
	}
	return prompt
}
