// Package apperr defines the domain error tokens surfaced from the core
// and a small typed wrapper for attaching context to them.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable domain error token. Callers should compare with Is(err,
// code), or with errors.Is against New(code), never by matching messages.
type Code string

// Validation errors.
const (
	MissingAgentID      Code = "missing_agent_id"
	MissingText         Code = "missing_text"
	MissingTo           Code = "missing_to"
	MissingFrom         Code = "missing_from"
	InvalidParentAgentID Code = "invalid_parentAgentId"
	InvalidMethod       Code = "invalid_method"
	InvalidArgs         Code = "invalid_args"
)

// Policy errors.
const (
	CrossTaskCommunicationDenied Code = "cross_task_communication_denied"
	NotChildAgent                Code = "not_child_agent"
	NotChildRole                 Code = "not_child_role"
	CannotDeleteSystemAgent      Code = "cannot_delete_system_agent"
	CannotDeleteSystemRole       Code = "cannot_delete_system_role"
	ToolNotAllowedForRole        Code = "tool_not_allowed_for_role"
	BlockedCode                  Code = "blocked_code"
)

// State errors.
const (
	AgentNotFound        Code = "agent_not_found"
	RoleNotFound         Code = "role_not_found"
	AgentAlreadyActive   Code = "agent_already_active"
	AgentAlreadyTerminated Code = "agent_already_terminated"
	RoleAlreadyDeleted   Code = "role_already_deleted"
	ToolNotFound         Code = "tool_not_found"
)

// Runtime errors.
const (
	RequestTimeout           Code = "request_timeout"
	RequestAborted           Code = "request_aborted"
	RequestCancelled         Code = "request_cancelled"
	NonJSONSerializableReturn Code = "non_json_serializable_return"
	LLMCallFailedAfterRetries Code = "llm_call_failed_after_retries"
	MaxToolRoundsExceeded    Code = "max_tool_rounds_exceeded"
	RejectedMissingAgentID   Code = "rejected_missing_agent_id"
	OnlyHTTPSAllowed         Code = "only_https_allowed"
)

// Error is a domain error carrying a stable Code plus human context.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, New(CodeX)) match any *Error sharing the same Code,
// regardless of Message/Err, so call sites can compare against a bare
// sentinel built from the Code alone.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Code == e.Code
	}
	return false
}

// New builds a bare *Error for the given code, suitable as an errors.Is target.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
