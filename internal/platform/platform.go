// Package platform contains the chat platform adapters (Discord,
// Telegram) and the contract they share with the router.
package platform

import (
	"strings"
	"time"

	"github.com/EchoBridge/echobridge/pkg/types"
)

// progressCells is the width of the textual progress bar.
const progressCells = 20

// InboundHandler receives chat messages that passed the adapter's
// filters and were not consumed by a pending input request.
type InboundHandler func(msg types.ChatMessage)

// Adapter is one chat platform connection. Implementations deliver
// inbound messages to the handler set before Initialize and expose the
// outbound operations the router fans out to.
type Adapter interface {
	// Name returns the platform identifier ("discord", "telegram").
	Name() string

	// Initialize connects the adapter. An adapter that fails to
	// initialize stays unavailable; it does not poison the others.
	Initialize() error

	// SetHandler installs the inbound message handler. Must be called
	// before Initialize.
	SetHandler(handler InboundHandler)

	// SendMessage delivers assistant output. Urgent messages are
	// formatted to stand out.
	SendMessage(content string, urgent bool) error

	// SendStatusUpdate delivers a status card. progress is a percentage;
	// a negative value omits the bar.
	SendStatusUpdate(status, details string, progress int) error

	// RequestInput asks the platform's user a question and blocks until
	// a reply arrives or the timeout elapses. Timeout is a result, not
	// an error: {TimedOut: true} with an empty response.
	RequestInput(prompt string, timeout time.Duration) (types.InputResult, error)

	// IsAvailable reports whether the adapter is connected and able to
	// deliver messages.
	IsAvailable() bool

	// Cleanup disconnects the adapter. Safe to call more than once.
	Cleanup() error
}

// shouldAccept applies the adapter's inbound filter. Bot-authored
// messages are always discarded; every configured filter must pass,
// so a channel match never admits a non-configured user. With neither
// filter configured every remaining message is accepted; that open
// mode is for testing only.
func shouldAccept(msg types.ChatMessage, channelID, userID string) bool {
	if msg.IsBot {
		return false
	}
	if channelID != "" && msg.ChannelID != channelID {
		return false
	}
	if userID != "" && msg.AuthorID != userID {
		return false
	}
	return true
}

// ProgressBar renders a percentage as a fixed-width bar, e.g.
// "████████░░░░░░░░░░░░" for 40.
func ProgressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * progressCells / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", progressCells-filled)
}
