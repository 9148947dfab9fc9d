// Package tui is the local chat surface: a bubbletea program showing
// the live session, fed by the bridge's notifier callbacks.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/EchoBridge/echobridge/internal/assistant"
	"github.com/EchoBridge/echobridge/internal/bridge"
	"github.com/EchoBridge/echobridge/pkg/types"
)

// Command represents a slash command
type Command int

const (
	CmdNone Command = iota
	CmdNew
	CmdUsage
	CmdStop
	CmdSend
	CmdHelp
	CmdQuit
	CmdUnknown
)

// Messages delivered into the program by the bridge notifier.
type (
	messageMsg    struct{ msg types.Message }
	processingMsg struct{ busy bool }
	sessionMsg    struct{ id string }
	tokensMsg     struct{ totals types.TokenTotals }
)

// Notifier forwards bridge events into the running program.
type Notifier struct {
	p *tea.Program
}

// NewNotifier wraps a program as an assistant.Notifier.
func NewNotifier(p *tea.Program) *Notifier {
	return &Notifier{p: p}
}

func (n *Notifier) MessageAppended(msg types.Message) { n.p.Send(messageMsg{msg: msg}) }
func (n *Notifier) ProcessingChanged(busy bool)       { n.p.Send(processingMsg{busy: busy}) }
func (n *Notifier) SessionChanged(id string)          { n.p.Send(sessionMsg{id: id}) }
func (n *Notifier) TokensUpdated(t types.TokenTotals) { n.p.Send(tokensMsg{totals: t}) }

var _ assistant.Notifier = (*Notifier)(nil)

// Model is the bubbletea model for the TUI
type Model struct {
	viewport   viewport.Model
	textarea   textarea.Model
	bridge     *bridge.Bridge
	messages   []types.Message
	processing bool
	sessionID  string
	totals     types.TokenTotals
	err        error
	width      int
	height     int
	ready      bool
	quitting   bool
}

// New creates a new TUI model
func New(b *bridge.Bridge) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message... (Enter to send)"
	ta.Focus()
	ta.CharLimit = 4096
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	m := &Model{
		textarea: ta,
		bridge:   b,
	}

	// Pick up whatever the session already holds.
	if sess := b.Sessions().Current(); sess != nil {
		m.messages = sess.Messages()
		m.sessionID = sess.ID()
		m.totals = sess.Totals()
	}

	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			if msg.Alt {
				break
			}
			text := strings.TrimSpace(m.textarea.Value())
			if text != "" {
				m.textarea.Reset()
				return m.handleInput(text)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 1
		inputHeight := 5
		chatHeight := m.height - headerHeight - inputHeight - 3

		if !m.ready {
			m.viewport = viewport.New(m.width-2, chatHeight)
			m.viewport.SetContent(m.renderMessages())
			m.ready = true
		} else {
			m.viewport.Width = m.width - 2
			m.viewport.Height = chatHeight
		}

		m.textarea.SetWidth(m.width - 4)
		return m, nil

	case messageMsg:
		m.messages = append(m.messages, msg.msg)
		m.refresh()
		return m, nil

	case processingMsg:
		m.processing = msg.busy
		m.refresh()
		return m, nil

	case sessionMsg:
		m.sessionID = msg.id
		if msg.id == "" {
			// Fresh session: the log starts over.
			m.messages = nil
			m.refresh()
		}
		return m, nil

	case tokensMsg:
		m.totals = msg.totals
		return m, nil
	}

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleInput processes user input (message or command)
func (m Model) handleInput(text string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(text, "/") {
		cmd, arg := parseCommand(text)
		return m.handleCommand(cmd, arg)
	}

	// The engine appends the user message and echoes it back through
	// the notifier, so nothing is added to the log here.
	if err := m.bridge.HandleUserInput(text); err != nil {
		m.err = err
	}
	return m, nil
}

// handleCommand processes slash commands
func (m Model) handleCommand(cmd Command, arg string) (tea.Model, tea.Cmd) {
	switch cmd {
	case CmdNew:
		m.bridge.Service().NewSession()
		m.messages = nil
		m.totals = types.TokenTotals{}
		m.sessionID = ""
		m.addSystemMessage("Started a new session")

	case CmdUsage:
		m.addSystemMessage(m.bridge.Ledger().Summary(time.Now()))

	case CmdStop:
		m.bridge.Service().Stop()

	case CmdSend:
		if arg == "" {
			m.addSystemMessage("Usage: /send <text>")
			break
		}
		if err := m.bridge.SendChat(arg); err != nil {
			m.addSystemMessage(fmt.Sprintf("Send failed: %v", err))
		} else {
			m.addSystemMessage("📤 Sent to chat")
		}

	case CmdHelp:
		m.addSystemMessage(helpText())

	case CmdQuit:
		m.quitting = true
		return m, tea.Quit

	case CmdUnknown:
		m.addSystemMessage("Unknown command. Type /help for available commands.")
	}

	m.refresh()
	return m, nil
}

// addSystemMessage adds a local-only system line to the chat
func (m *Model) addSystemMessage(text string) {
	m.messages = append(m.messages, types.Message{
		Kind:      types.KindSystem,
		Content:   text,
		Timestamp: time.Now(),
	})
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return "Goodbye! 👋\n"
	}

	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	b.WriteString(chatBorderStyle.Width(m.width - 2).Render(m.viewport.View()))
	b.WriteString("\n")

	b.WriteString(inputBorderStyle.Width(m.width - 2).Render(m.textarea.View()))
	b.WriteString("\n")

	b.WriteString(helpStyle.Render("Enter send · /new /usage /stop /send /help /quit · Ctrl+C quit"))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(formatError(m.err.Error()))
	}

	return b.String()
}

func (m Model) renderHeader() string {
	session := m.sessionID
	if session == "" {
		session = "unbound"
	}
	left := headerStyle.Render("EchoBridge")
	right := fmt.Sprintf(" session %s · %d in / %d out · $%.4f",
		session, m.totals.Input, m.totals.Output, m.totals.CostUSD)
	if m.processing {
		right += " · " + formatProcessing()
	}
	return left + systemStyle.Render(right)
}

// renderMessages renders all messages for the viewport
func (m Model) renderMessages() string {
	if len(m.messages) == 0 && !m.processing {
		return systemStyle.Render("Welcome to EchoBridge! Type a message to reach the assistant.\n\nCommands: /new, /usage, /stop, /send, /help, /quit")
	}

	var lines []string
	for _, msg := range m.messages {
		lines = append(lines, wrapText(m.formatMessage(msg), m.viewport.Width-4))
		lines = append(lines, "")
	}

	if m.processing {
		lines = append(lines, formatProcessing())
	}

	return strings.Join(lines, "\n")
}

// formatMessage renders one log entry by kind
func (m Model) formatMessage(msg types.Message) string {
	switch msg.Kind {
	case types.KindUser:
		return formatUserMessage(msg.Content)
	case types.KindAssistant:
		return formatAssistantMessage(msg.Content)
	case types.KindThinking:
		return formatThinkingMessage(msg.Content)
	case types.KindToolUse, types.KindToolResult:
		return formatToolMessage(msg.Content)
	case types.KindError:
		return formatError(msg.Content)
	default:
		return formatSystemMessage(msg.Content)
	}
}

// parseCommand parses a slash command and its argument text
func parseCommand(input string) (Command, string) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/new":
		return CmdNew, arg
	case "/usage":
		return CmdUsage, arg
	case "/stop":
		return CmdStop, arg
	case "/send":
		return CmdSend, arg
	case "/help":
		return CmdHelp, arg
	case "/quit", "/exit", "/q":
		return CmdQuit, arg
	default:
		return CmdUnknown, arg
	}
}

// helpText returns the help message
func helpText() string {
	return `Available commands:
  /new          Start a new session (clears the log)
  /usage        Show usage totals (today, this month, all time)
  /stop         Abort the in-flight request
  /send <text>  Send text straight to the chat platforms
  /help         Show this help message
  /quit         Exit the TUI

Keyboard shortcuts:
  Enter   Send message
  Ctrl+C  Quit`
}

// wrapText wraps text to fit within the given width
func wrapText(text string, width int) string {
	if width <= 0 {
		width = 80
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		currentLine := words[0]
		for _, word := range words[1:] {
			if lipgloss.Width(currentLine+" "+word) <= width {
				currentLine += " " + word
			} else {
				result.WriteString(currentLine)
				result.WriteString("\n")
				currentLine = word
			}
		}
		result.WriteString(currentLine)
	}

	return result.String()
}

// Run starts the TUI against a running bridge and blocks until exit.
func Run(b *bridge.Bridge) error {
	p := tea.NewProgram(New(b), tea.WithAltScreen())
	b.SetNotifier(NewNotifier(p))
	defer b.SetNotifier(nil)

	_, err := p.Run()
	return err
}
