package bus

import "time"

// AttachmentType identifies the kind of external blob an Attachment points to.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentFile     AttachmentType = "file"
	AttachmentDocument AttachmentType = "document"
)

// Attachment is a content-addressed reference to a blob held by an external
// artifact store; the bus only ever sees the reference.
type Attachment struct {
	Type     AttachmentType
	Ref      string
	Filename string
	Size     int64
	MimeType string
}

// Payload is a message body: free text plus zero or more attachments.
type Payload struct {
	Text        string
	Attachments []Attachment
}

// Message is an immutable-once-accepted unit sent from one agent to another.
type Message struct {
	ID                    string
	From                  string
	To                    string
	TaskID                string
	Payload               Payload
	CreatedAt             time.Time
	ScheduledDeliveryTime *time.Time
	DeliveredAt           *time.Time

	// ReasoningContent carries an assistant's reasoning when this message
	// originates from a send_message tool call.
	ReasoningContent string

	seq uint64 // internal send-order sequence, used for tie-breaking
}

// SendInput is what a caller supplies to Send; ID/CreatedAt are assigned by
// the bus.
type SendInput struct {
	From    string
	To      string
	TaskID  string
	Payload Payload
	// DelayMs, if > 0, schedules delivery DelayMs milliseconds from now
	// instead of enqueuing immediately.
	DelayMs          int64
	ReasoningContent string
}

// SendResult is returned on a successful Send.
type SendResult struct {
	MessageID             string
	ScheduledDeliveryTime *time.Time
}

// IsolationPolicy supplies the facts the bus needs to enforce cross-task
// communication isolation without owning agent/role data itself.
type IsolationPolicy interface {
	// IsSystemAgent reports whether agentID is the root or user singleton.
	IsSystemAgent(agentID string) bool

	// EntryAgentOf returns the agent that established taskID, if any.
	EntryAgentOf(taskID string) (agentID string, ok bool)

	// IsSelfOrDescendant reports whether candidate is ancestor itself or a
	// transitive descendant of ancestor via parentAgentId.
	IsSelfOrDescendant(candidate, ancestor string) bool
}

// DelayedCallback is invoked (best-effort, synchronously) when a delayed
// message is moved into its recipient's FIFO queue.
type DelayedCallback func(msg *Message)

// MessageCallback is invoked for every accepted send, delayed or not.
type MessageCallback func(msg *Message)

// UserCallback is invoked for every accepted send whose sender or recipient
// is a system agent (root or user).
type UserCallback func(msg *Message)
