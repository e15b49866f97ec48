package gateway

import (
	"strings"
	"testing"
)

func TestSplitTextPrefersNewline(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := splitText(text, telegramMessageLimit)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > telegramMessageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("неожиданное содержимое второй части")
	}
}

func TestSplitTextHardCut(t *testing.T) {
	parts := splitText(strings.Repeat("я", 25), 10)
	if len(parts) != 3 || len([]rune(parts[2])) != 5 {
		t.Fatalf("ожидали разрез по лимиту: %v", parts)
	}
}

func TestSplitTextShortAndEmpty(t *testing.T) {
	if parts := splitText("hello", telegramMessageLimit); len(parts) != 1 || parts[0] != "hello" {
		t.Fatalf("неожиданный результат: %v", parts)
	}
	if parts := splitText("  \n ", telegramMessageLimit); len(parts) != 0 {
		t.Fatalf("ожидали пустой результат, получили %v", parts)
	}
}
