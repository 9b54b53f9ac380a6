// Package agentsociety provides an agent society runtime: a host for many
// interacting LLM-backed agents organized into roles, routed through a
// message bus under cross-task isolation, driven by a per-agent dispatcher,
// and bounded by a global LLM concurrency controller.
//
// # Core subsystems
//
//   - pkg/bus          — per-recipient FIFO queues, delayed delivery, hooks
//   - pkg/orgregistry   — roles and agents, parentage, termination events
//   - pkg/conversation — per-agent message history and compression
//   - pkg/concurrency  — global LLM admission control, FIFO queue, abort
//   - pkg/llmclient    — chat invocation contract, retry/backoff, abort
//   - pkg/contentrouter — attachment capability routing and fallback-to-text
//   - pkg/tool         — tool definitions, registry, built-in tools, sandbox
//   - pkg/toolloop     — bounded LLM↔tool round orchestration
//   - pkg/dispatcher   — per-agent compute-status loop, spawn/terminate, shutdown
//   - pkg/society      — wires the above into a runnable Society
//
// # Using as a library
//
//	import "github.com/agentsociety/runtime/pkg/society"
//
// # Status
//
// This module implements the runtime core only; the HTTP surface, artifact
// storage, and LLM wire formats are external collaborators (see the
// reference implementation under internal/httpapi and pkg/llmclient).
package agentsociety
