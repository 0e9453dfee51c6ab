package chat

import "strings"

// DefaultTitle is used whenever title derivation fails or yields nothing.
const DefaultTitle = "New Chat"

// maxTitleLen is the longest title the UI will render without truncation.
const maxTitleLen = 80

// CleanTitle normalizes a model-derived chat title: quotes and colons are
// stripped, whitespace collapsed, and the result cut to 80 characters. An
// empty result falls back to DefaultTitle.
func CleanTitle(raw string) string {
	title := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '`', ':', '“', '”', '‘', '’':
			return -1
		}
		return r
	}, raw)

	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return DefaultTitle
	}

	runes := []rune(title)
	if len(runes) > maxTitleLen {
		title = strings.TrimSpace(string(runes[:maxTitleLen]))
	}
	return title
}
