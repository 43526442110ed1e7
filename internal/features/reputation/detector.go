package reputation

import "strings"

// IsThankYou проверяет, является ли текст благодарностью: «спасибо» или «+».
// Регистр не важен. Пунктуация в конце допускается.
func IsThankYou(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	if cleaned == "+" {
		return true
	}
	cleaned = strings.TrimRight(cleaned, "!.,;:)")
	return cleaned == "спасибо"
}
