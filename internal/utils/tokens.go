package utils

// Token estimation helpers used to bound prompt sections. The 1 token ~= 4
// characters heuristic is coarse but stable across the supported models.

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit truncates text to roughly fit within a token limit,
// appending a marker when anything was dropped.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	return string(runes[:charLimit]) + "\n... (truncated)"
}
