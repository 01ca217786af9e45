package templates

import (
	"strings"
	"unicode/utf8"
)

// TelegramMessageLimit is the maximum text length of one Telegram message
const TelegramMessageLimit = 4096

// EscapeMarkdownV2 escapes special characters for Telegram MarkdownV2 format
// According to Telegram docs:
// - Any character with code between 1 and 126 can be escaped with preceding '\'
// - In all other places: '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!' must be escaped
func EscapeMarkdownV2(text string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\", // Backslash must be escaped first
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"(", "\\(",
		")", "\\)",
		"~", "\\~",
		"`", "\\`",
		">", "\\>",
		"#", "\\#",
		"+", "\\+",
		"-", "\\-",
		"=", "\\=",
		"|", "\\|",
		"{", "\\{",
		"}", "\\}",
		".", "\\.",
		"!", "\\!",
	)
	return replacer.Replace(strings.ToValidUTF8(text, ""))
}

// EscapeMarkdownV2Code escapes special characters inside code/pre blocks
// Inside code and pre entities, only '`' and '\' must be escaped
func EscapeMarkdownV2Code(code string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"`", "\\`",
	)
	return replacer.Replace(code)
}

// SplitMessage cuts text into chunks of at most limit runes, preferring line
// breaks. Rune boundaries are always respected.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndex(text[:cut], "\n"); nl > 0 {
			cut = nl + 1
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// byteOffset returns the byte index of the n-th rune
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
