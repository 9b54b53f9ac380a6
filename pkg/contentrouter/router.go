// Package contentrouter partitions message attachments into ones a
// service's declared capabilities can accept inline and ones that must be
// rendered as text descriptions.
package contentrouter

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Route partitions attachments against capability.Input, inlining supported
// ones and rendering unsupported ones as structured text descriptions.
// A zero-value Capability (no Input/Output entries) is treated as
// DefaultCapability.
func Route(text string, attachments []RawAttachment, capability Capability) RouteResult {
	if len(capability.Input) == 0 {
		capability = DefaultCapability
	}
	supported := make(map[string]bool, len(capability.Input))
	for _, t := range capability.Input {
		supported[t] = true
	}

	result := RouteResult{Text: text}
	for _, a := range attachments {
		if supported[a.Type] {
			result.Attachments = append(result.Attachments, ProcessedAttachment{
				Supported:  true,
				Ref:        a.Ref,
				Type:       a.Type,
				Filename:   a.Filename,
				Size:       a.Size,
				InlineData: base64.StdEncoding.EncodeToString(a.Data),
			})
			continue
		}
		result.Attachments = append(result.Attachments, ProcessedAttachment{
			Supported:   false,
			Ref:         a.Ref,
			Type:        a.Type,
			Filename:    a.Filename,
			Size:        a.Size,
			Description: describe(a),
		})
	}
	return result
}

// describe renders an unsupported attachment as a text description
// carrying its reference identifier, type, filename, size, and a
// forwarding suggestion.
func describe(a RawAttachment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[unsupported attachment: type=%s ref=%s", a.Type, a.Ref)
	if a.Filename != "" {
		fmt.Fprintf(&b, " filename=%s", a.Filename)
	}
	if a.Size > 0 {
		fmt.Fprintf(&b, " size=%d", a.Size)
	}
	b.WriteString("] this service cannot process this attachment type directly; consider spawning an agent with a service whose capabilities include it")
	return b.String()
}
