// Package protocol decodes the assistant CLI's newline-delimited JSON
// stream into typed events. The decoder tolerates records split across
// arbitrary chunk boundaries and drops malformed lines with a
// diagnostic; it never propagates a parse failure upstream.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// authFailurePattern marks an in-band credential failure inside a
// result record's payload text.
const authFailurePattern = "Invalid API key"

// AuthFailureMessage is the single error surfaced when the assistant
// reports invalid credentials.
const AuthFailureMessage = "🔐 Login Required: the assistant's API key is invalid or expired. Run the assistant's login command in a terminal."

// Events receives decoded protocol events, strictly in the order their
// source records arrived on the stream.
type Events interface {
	// Message delivers a conversation entry derived from the stream.
	Message(msg types.Message)
	// Usage delivers the token delta of one assistant record together
	// with its estimated cost.
	Usage(model string, inputTokens, outputTokens int, costUSD float64)
	// Result delivers a terminal result record. The receiver owns
	// session binding and republishing cumulative totals.
	Result(res Result)
	// AuthFailure delivers an in-band credential failure. No session
	// binding is attempted from the same record.
	AuthFailure(detail string)
}

// Decoder incrementally parses the assistant's stdout stream.
type Decoder struct {
	events      Events
	pricing     *PriceTable
	log         *logger.Logger
	buf         []byte
	onMalformed func()
}

// NewDecoder creates a decoder delivering events to the given sink.
func NewDecoder(events Events, pricing *PriceTable, log *logger.Logger) *Decoder {
	return &Decoder{
		events:  events,
		pricing: pricing,
		log:     log.WithComponent("decoder"),
	}
}

// SetFailureHook installs a callback invoked once per dropped
// malformed line, for failure counting.
func (d *Decoder) SetFailureHook(fn func()) {
	d.onMalformed = fn
}

// Write consumes one chunk of stream bytes. Complete lines are decoded
// immediately; a trailing partial line is retained for the next chunk.
// Write never returns an error: malformed input is logged and skipped.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		d.decodeLine(line)
	}

	return len(p), nil
}

// Close flushes any trailing line that arrived without a final newline.
func (d *Decoder) Close() error {
	if len(d.buf) > 0 {
		d.decodeLine(d.buf)
		d.buf = nil
	}
	return nil
}

func (d *Decoder) decodeLine(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}

	var rec rawRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		d.log.Warn("dropping malformed stream line: %v", err)
		if d.onMalformed != nil {
			d.onMalformed()
		}
		return
	}

	switch rec.Type {
	case recordSystem:
		// Informational only. The init record carries no state.
		if rec.Subtype == subtypeInit {
			d.log.Debug("assistant stream initialized")
		}
	case recordAssistant:
		d.handleAssistant(&rec)
	case recordUser:
		d.handleUser(&rec)
	case recordResult:
		d.handleResult(&rec)
	default:
		d.log.Debug("ignoring unknown record type %q", rec.Type)
	}
}

// handleAssistant processes an assistant record: usage first, then each
// content item in arrival order.
func (d *Decoder) handleAssistant(rec *rawRecord) {
	if rec.Message == nil {
		return
	}

	if u := rec.Message.Usage; u != nil {
		cost := d.pricing.Cost(rec.Message.Model, u.InputTokens, u.OutputTokens)
		d.events.Usage(rec.Message.Model, u.InputTokens, u.OutputTokens, cost)
	}

	for _, item := range rec.Message.Content {
		switch item.Type {
		case "text":
			if text := strings.TrimSpace(item.Text); text != "" {
				d.events.Message(types.Message{
					Kind:      types.KindAssistant,
					Content:   text,
					Timestamp: time.Now(),
				})
			}
		case "thinking":
			if text := strings.TrimSpace(item.Thinking); text != "" {
				d.events.Message(types.Message{
					Kind:      types.KindThinking,
					Content:   text,
					Timestamp: time.Now(),
				})
			}
		case "tool_use":
			d.events.Message(types.Message{
				Kind:      types.KindToolUse,
				Content:   fmt.Sprintf("🔧 Executing: %s", item.Name),
				Timestamp: time.Now(),
				Metadata: map[string]any{
					"toolName":  item.Name,
					"toolInput": string(item.Input),
				},
			})
		}
	}
}

// handleUser processes the assistant protocol's tool-result echo. These
// are not human turns; only tool_result items are meaningful.
func (d *Decoder) handleUser(rec *rawRecord) {
	if rec.Message == nil {
		return
	}

	for _, item := range rec.Message.Content {
		if item.Type != "tool_result" {
			continue
		}

		result := toolResultText(item.Content)
		content := "✅ " + result
		if item.IsError {
			content = "❌ Tool Error: " + result
		}

		d.events.Message(types.Message{
			Kind:      types.KindToolResult,
			Content:   content,
			Timestamp: time.Now(),
			Metadata: map[string]any{
				"isError":   item.IsError,
				"toolUseId": item.ToolUseID,
			},
		})
	}
}

// handleResult processes a terminal result record. An in-band auth
// failure short-circuits: exactly one error message, no session binding
// from the same record.
func (d *Decoder) handleResult(rec *rawRecord) {
	if rec.Subtype != subtypeSuccess {
		return
	}

	if rec.IsError && strings.Contains(rec.Result, authFailurePattern) {
		d.events.AuthFailure(AuthFailureMessage)
		return
	}

	d.events.Result(Result{
		SessionID:    rec.SessionID,
		TotalCostUSD: rec.TotalCostUSD,
		DurationMS:   rec.DurationMS,
		NumTurns:     rec.NumTurns,
	})
}

// toolResultText renders a tool_result payload, which arrives as either
// a bare string or a structured array.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "Tool executed successfully"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "Tool executed successfully"
		}
		return s
	}

	// Structured content: collect the text blocks.
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return string(raw)
}
