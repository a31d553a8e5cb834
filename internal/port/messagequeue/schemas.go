package messagequeue

// DispatchPayload is the schema for dispatch.{kind}.{name} messages:
// an authorized command handed to an execution target.
type DispatchPayload struct {
	DeliveryID  string            `json:"delivery_id"`
	Source      string            `json:"source"`
	Channel     string            `json:"channel"`
	ThreadID    string            `json:"thread_id,omitempty"`
	UserID      string            `json:"user_id"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text"`
	TargetKind  string            `json:"target_kind"`
	TargetName  string            `json:"target_name"`
	Context     string            `json:"context"`
	ActionClass string            `json:"action_class"`
	ApprovalID  string            `json:"approval_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ResultPayload is the schema for dispatch.result messages.
type ResultPayload struct {
	DeliveryID string `json:"delivery_id"`
	Source     string `json:"source"`
	Channel    string `json:"channel"`
	ThreadID   string `json:"thread_id,omitempty"`
	TargetKind string `json:"target_kind"`
	TargetName string `json:"target_name"`
	Status     string `json:"status"` // completed | failed
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// CancelPayload is the schema for dispatch.cancel messages.
type CancelPayload struct {
	DeliveryID string `json:"delivery_id"`
	Reason     string `json:"reason,omitempty"`
}
