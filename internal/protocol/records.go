package protocol

import "encoding/json"

// The assistant CLI emits one JSON record per stdout line. The record
// vocabulary is closed: anything with an unrecognized type is ignored.
const (
	recordSystem    = "system"
	recordAssistant = "assistant"
	recordUser      = "user"
	recordResult    = "result"

	subtypeInit    = "init"
	subtypeSuccess = "success"
)

// rawRecord is the top-level wire shape of a stream record. Fields not
// relevant to a given type are simply absent.
type rawRecord struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	Message      *messagePayload `json:"message,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	Result       string          `json:"result,omitempty"`
	TotalCostUSD float64         `json:"total_cost_usd,omitempty"`
	DurationMS   int64           `json:"duration_ms,omitempty"`
	NumTurns     int             `json:"num_turns,omitempty"`
}

// messagePayload is the message body of assistant and user records.
type messagePayload struct {
	Model   string        `json:"model,omitempty"`
	Content []contentItem `json:"content"`
	Usage   *usagePayload `json:"usage,omitempty"`
}

// contentItem is one entry of a message content array. The Type field
// selects which of the other fields are meaningful.
type contentItem struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
}

// usagePayload carries token counts for a single assistant record.
type usagePayload struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result summarizes a terminal result record.
type Result struct {
	SessionID    string
	TotalCostUSD float64
	DurationMS   int64
	NumTurns     int
}
