package platform

import (
	"strings"
	"unicode"
)

const (
	// TelegramMaxMessageLength is Telegram's max message length
	TelegramMaxMessageLength = 4096
	// DiscordMaxMessageLength is Discord's max message length
	DiscordMaxMessageLength = 2000
	// telegramSafeLength leaves room for continuation indicators
	telegramSafeLength = 4000
	// discordSafeLength leaves room for continuation indicators
	discordSafeLength = 1900
)

// SplitMessage splits a message into chunks that fit a platform limit.
// It tries to split at paragraph boundaries, then sentence boundaries,
// then word boundaries, to avoid breaking markdown formatting.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = telegramSafeLength
	}

	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			parts = append(parts, remaining)
			break
		}

		splitPoint := findSplitPoint(remaining, maxLen)

		part := strings.TrimSpace(remaining[:splitPoint])
		if len(remaining) > splitPoint {
			part += "\n\n_(continued...)_"
		}

		parts = append(parts, part)
		remaining = strings.TrimSpace(remaining[splitPoint:])
	}

	return parts
}

// findSplitPoint finds the best point to split a message.
// Tries paragraph > sentence > word boundaries in that order.
func findSplitPoint(text string, maxLen int) int {
	if len(text) <= maxLen {
		return len(text)
	}

	// Leave room for continuation indicator
	searchEnd := maxLen - 30
	if searchEnd < maxLen/2 {
		searchEnd = maxLen - 10
	}

	searchText := text[:searchEnd]

	// Try to split at a paragraph boundary (double newline)
	if idx := strings.LastIndex(searchText, "\n\n"); idx > maxLen/2 {
		return idx + 2
	}

	if idx := strings.LastIndex(searchText, "\n"); idx > maxLen/2 {
		return idx + 1
	}

	if idx := findLastSentenceEnd(searchText); idx > maxLen/2 {
		return idx + 1
	}

	if idx := strings.LastIndex(searchText, " "); idx > maxLen/2 {
		return idx + 1
	}

	// Fallback: hard split at maxLen
	return maxLen
}

// findLastSentenceEnd finds the last sentence-ending punctuation
// followed by space or end of text.
func findLastSentenceEnd(text string) int {
	runes := []rune(text)

	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			// Convert rune index back to byte index
			return len(string(runes[:i+1]))
		}
	}
	return -1
}

// TruncateForPreview truncates text for preview display.
func TruncateForPreview(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	truncated := text[:maxLen-3]
	if idx := strings.LastIndex(truncated, " "); idx > maxLen/2 {
		return truncated[:idx] + "..."
	}

	return truncated + "..."
}
