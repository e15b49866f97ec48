package gateway

import "strings"

const telegramMessageLimit = 4096

// splitText режет текст на части не длиннее limit рун, по возможности по переводу строки.
func splitText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for len(runes) > 0 {
		cut := len(runes)
		if cut > limit {
			cut = limit
			for i := limit; i > limit/2; i-- {
				if runes[i-1] == '\n' {
					cut = i
					break
				}
			}
		}
		if chunk := strings.Trim(string(runes[:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}
