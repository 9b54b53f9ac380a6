package tool

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/conversation"
)

// MessageSender is the collaborator send_message dispatches through.
type MessageSender interface {
	SendMessage(from, to, taskID, text, reasoningContent string) (messageID string, err error)
}

// AgentSpawner is the collaborator spawn_agent dispatches through.
type AgentSpawner interface {
	SpawnAgent(callerAgentID, taskID, roleID string, brief TaskBrief) (agentID string, reused bool, err error)
}

// AgentTerminator is the collaborator terminate_agent dispatches through.
type AgentTerminator interface {
	TerminateAgent(callerAgentID, targetAgentID, reason string) error
}

// ConversationCompressor is the collaborator compress_context dispatches
// through.
type ConversationCompressor interface {
	Compress(agentID, summary string, keepRecentCount int) (conversation.CompressResult, error)
}

// Groups used by the built-in tools for per-role gating.
const (
	GroupMessaging  = "messaging"
	GroupOrgControl = "org_control"
	GroupContext    = "context"
	GroupSandbox    = "sandbox"
	GroupNetwork    = "network"
)

// SendMessageArgs is send_message's parameter shape.
type SendMessageArgs struct {
	To               string `mapstructure:"to" json:"to" jsonschema:"required,description=Recipient agent ID"`
	Text             string `mapstructure:"text" json:"text" jsonschema:"required,description=Message text"`
	ReasoningContent string `mapstructure:"reasoning_content" json:"reasoning_content,omitempty" jsonschema:"description=Reasoning trace to attach to the message"`
}

// SpawnAgentArgs is spawn_agent's parameter shape.
type SpawnAgentArgs struct {
	RoleID    string    `mapstructure:"roleId" json:"roleId" jsonschema:"required,description=Role to spawn the child agent under"`
	TaskBrief TaskBrief `mapstructure:"taskBrief" json:"taskBrief" jsonschema:"required,description=Structured brief for the new agent"`
}

// TerminateAgentArgs is terminate_agent's parameter shape.
type TerminateAgentArgs struct {
	AgentID string `mapstructure:"agentId" json:"agentId" jsonschema:"required,description=Direct child agent to terminate"`
	Reason  string `mapstructure:"reason" json:"reason,omitempty" jsonschema:"description=Human-readable termination reason"`
}

// CompressContextArgs is compress_context's parameter shape.
type CompressContextArgs struct {
	Summary         string `mapstructure:"summary" json:"summary" jsonschema:"required,description=Summary replacing the compressed turns"`
	KeepRecentCount int    `mapstructure:"keepRecentCount" json:"keepRecentCount" jsonschema:"required,description=Number of most recent turns to keep uncompressed"`
}

// RunJavascriptArgs is run_javascript's parameter shape.
type RunJavascriptArgs struct {
	Code string `mapstructure:"code" json:"code" jsonschema:"required,description=Expression to evaluate in the restricted sandbox"`
}

// HTTPRequestArgs is http_request's parameter shape.
type HTTPRequestArgs struct {
	URL    string `mapstructure:"url" json:"url" jsonschema:"required,description=Target HTTPS URL"`
	Method string `mapstructure:"method" json:"method" jsonschema:"required,description=HTTP method"`
	Body   string `mapstructure:"body" json:"body,omitempty" jsonschema:"description=Request body"`
}

// RegisterBuiltins adds the core built-in tools (send_message, spawn_agent,
// terminate_agent, compress_context, run_javascript, http_request) to reg.
// Each tool's Parameters schema is reflected from its Args struct via
// invopop/jsonschema rather than hand-written, so the schema and the
// decode target can never drift apart.
func RegisterBuiltins(reg *Registry, sender MessageSender, spawner AgentSpawner, terminator AgentTerminator, compressor ConversationCompressor) {
	reg.Register(Definition{
		Name:        "send_message",
		Description: "Send a text message to another agent.",
		Parameters:  mustGenerateSchema[SendMessageArgs](),
		Groups:      []string{GroupMessaging},
	}, sendMessageHandler(sender))

	reg.Register(Definition{
		Name:        "spawn_agent",
		Description: "Spawn a new child agent under a role, with a task brief.",
		Parameters:  mustGenerateSchema[SpawnAgentArgs](),
		Groups:      []string{GroupOrgControl},
	}, spawnAgentHandler(spawner))

	reg.Register(Definition{
		Name:        "terminate_agent",
		Description: "Terminate a direct child agent.",
		Parameters:  mustGenerateSchema[TerminateAgentArgs](),
		Groups:      []string{GroupOrgControl},
	}, terminateAgentHandler(terminator))

	reg.Register(Definition{
		Name:        "compress_context",
		Description: "Summarize and compress the calling agent's conversation history.",
		Parameters:  mustGenerateSchema[CompressContextArgs](),
		Groups:      []string{GroupContext},
	}, compressContextHandler(compressor))

	reg.Register(Definition{
		Name:        "run_javascript",
		Description: "Evaluate a small JavaScript-like expression in a restricted sandbox.",
		Parameters:  mustGenerateSchema[RunJavascriptArgs](),
		Groups:      []string{GroupSandbox},
	}, runJavascriptHandler)

	reg.Register(Definition{
		Name:        "http_request",
		Description: "Make an outbound HTTPS request.",
		Parameters:  mustGenerateSchema[HTTPRequestArgs](),
		Groups:      []string{GroupNetwork},
	}, httpRequestHandler)
}

func sendMessageHandler(sender MessageSender) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args SendMessageArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		if args.To == "" {
			return nil, apperr.New(apperr.MissingTo)
		}
		if args.Text == "" {
			return nil, apperr.New(apperr.MissingText)
		}
		// taskId is inherited from the current message unless a future
		// extension of the schema allows overriding it explicitly.
		messageID, err := sender.SendMessage(call.AgentID, args.To, call.TaskID, args.Text, args.ReasoningContent)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "messageId": messageID}, nil
	}
}

func spawnAgentHandler(spawner AgentSpawner) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args SpawnAgentArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		if args.RoleID == "" {
			return nil, apperr.New(apperr.InvalidArgs)
		}
		if err := validateTaskBrief(args.TaskBrief); err != nil {
			return nil, err
		}
		agentID, reused, err := spawner.SpawnAgent(call.AgentID, call.TaskID, args.RoleID, args.TaskBrief)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "agentId": agentID, "reused": reused}, nil
	}
}

func validateTaskBrief(b TaskBrief) error {
	if b.Objective == "" || b.CompletionCriteria == "" {
		return apperr.Newf(apperr.InvalidArgs, "taskBrief requires objective and completion_criteria")
	}
	return nil
}

func terminateAgentHandler(terminator AgentTerminator) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args TerminateAgentArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		if args.AgentID == "" {
			return nil, apperr.New(apperr.MissingAgentID)
		}
		if err := terminator.TerminateAgent(call.AgentID, args.AgentID, args.Reason); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	}
}

func compressContextHandler(compressor ConversationCompressor) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args CompressContextArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return nil, err
		}
		result, err := compressor.Compress(call.AgentID, args.Summary, args.KeepRecentCount)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"ok":            true,
			"compressed":    result.Compressed,
			"originalCount": result.OriginalCount,
			"newCount":      result.NewCount,
		}, nil
	}
}

func decodeArgs(raw map[string]any, dst any) error {
	if err := mapstructure.Decode(raw, dst); err != nil {
		return apperr.Wrap(apperr.InvalidArgs, err, fmt.Sprintf("%v", raw))
	}
	return nil
}
