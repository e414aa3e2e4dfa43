package utils

// TelegramMessageLimit is the Bot API hard cap per message.
const TelegramMessageLimit = 4096

// SplitMessage breaks text into chunks that fit a single Telegram message.
func SplitMessage(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = TelegramMessageLimit
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return []string{text}
	}
	var parts []string
	for i := 0; i < len(runes); i += maxLength {
		end := i + maxLength
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[i:end]))
	}
	return parts
}

// Truncate bounds s to max runes for compact user-facing error texts.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
