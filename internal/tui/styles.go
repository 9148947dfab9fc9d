package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	primaryColor   = lipgloss.Color("#06B6D4") // Cyan for EchoBridge branding
	secondaryColor = lipgloss.Color("#7C3AED") // Purple accent
	userColor      = lipgloss.Color("#3B82F6") // Blue for user messages
	aiColor        = lipgloss.Color("#10B981") // Green for assistant messages
	dimColor       = lipgloss.Color("#6B7280") // Gray for help text
	errorColor     = lipgloss.Color("#EF4444") // Red for errors
	toolColor      = lipgloss.Color("#F59E0B") // Amber for tool activity
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	userPrefixStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(userColor)

	aiPrefixStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(aiColor)

	userTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	aiTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F3F4F6"))

	thinkingTextStyle = lipgloss.NewStyle().
				Foreground(dimColor).
				Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(toolColor)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	processingStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	chatBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor)
)

// formatUserMessage formats a user message with styling
func formatUserMessage(text string) string {
	prefix := userPrefixStyle.Render("You:")
	return prefix + " " + userTextStyle.Render(text)
}

// formatAssistantMessage formats an assistant message with styling
func formatAssistantMessage(text string) string {
	prefix := aiPrefixStyle.Render("AI:")
	return prefix + " " + aiTextStyle.Render(text)
}

// formatThinkingMessage formats the assistant's reasoning text
func formatThinkingMessage(text string) string {
	return thinkingTextStyle.Render("💭 " + text)
}

// formatToolMessage formats tool activity lines
func formatToolMessage(text string) string {
	return toolStyle.Render(text)
}

// formatSystemMessage formats a system message
func formatSystemMessage(text string) string {
	return systemStyle.Render("• " + text)
}

// formatError formats an error message
func formatError(text string) string {
	return errorStyle.Render("✗ " + text)
}

// formatProcessing returns the in-flight indicator
func formatProcessing() string {
	return processingStyle.Render("⏳ Working...")
}
