package contentrouter

// Capability is a service's declared input/output media support.
type Capability struct {
	Input  []string
	Output []string
}

// DefaultCapability is used when a service declares no capabilities object
// (backward-compatible default: text only).
var DefaultCapability = Capability{Input: []string{"text"}, Output: []string{"text"}}

// RawAttachment mirrors bus.Attachment without importing pkg/bus, so the
// router stays usable independently of the bus's wire shape.
type RawAttachment struct {
	Type     string
	Ref      string
	Filename string
	Size     int64
	MimeType string
	Data     []byte // raw bytes, base64-encoded into the processed content when supported
}

// ProcessedAttachment is one routed attachment: either inlined (supported)
// or rendered as a structured text description (unsupported).
type ProcessedAttachment struct {
	Supported   bool
	Ref         string
	Type        string
	Filename    string
	Size        int64
	InlineData  string // base64 payload when Supported
	Description string // text description when !Supported
}

// RouteResult is the outcome of routing a message's attachments against a
// capability set.
type RouteResult struct {
	Text        string
	Attachments []ProcessedAttachment
}
