package types

import "time"

// MessageKind classifies a conversation log entry.
type MessageKind string

const (
	KindUser       MessageKind = "user"
	KindAssistant  MessageKind = "assistant"
	KindThinking   MessageKind = "thinking"
	KindToolUse    MessageKind = "tool_use"
	KindToolResult MessageKind = "tool_result"
	KindSystem     MessageKind = "system"
	KindError      MessageKind = "error"
)

// Message is a single conversation log entry. Messages are append-only:
// once created they are never edited, and log order is arrival order.
type Message struct {
	Kind      MessageKind    `json:"kind"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TokenTotals carries cumulative token and cost totals for the current
// session. Values are running totals, never per-record deltas.
type TokenTotals struct {
	Input   int     `json:"input"`
	Output  int     `json:"output"`
	CostUSD float64 `json:"costUsd"`
}

// ChatMessage is an inbound message from a chat platform.
type ChatMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	ChannelID  string    `json:"channelId"`
	IsBot      bool      `json:"isBot"`
	Timestamp  time.Time `json:"timestamp"`
	Platform   string    `json:"platform"`
}

// InputResult is the outcome of a chat input request. A timeout is a
// first-class result, not an error: callers branch on TimedOut.
type InputResult struct {
	Response string `json:"response"`
	TimedOut bool   `json:"timedOut"`
}
