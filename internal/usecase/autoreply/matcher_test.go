package autoreply

import (
	"testing"
	"time"

	"chat-automation/internal/domain"
)

func TestMatchKeywords(t *testing.T) {
	cases := []struct {
		name      string
		keywords  []string
		matchType string
		text      string
		want      bool
	}{
		{"contains", []string{"price"}, domain.MatchContains, "What is the PRICE?", true},
		{"contains miss", []string{"price"}, domain.MatchContains, "hello", false},
		{"exact trims", []string{"Hi"}, domain.MatchExact, "  hi ", true},
		{"exact miss", []string{"hi"}, domain.MatchExact, "hi there", false},
		{"starts", []string{"order"}, domain.MatchStartsWith, "Order #12", true},
		{"ends", []string{"thanks"}, domain.MatchEndsWith, "many THANKS", true},
		{"any keyword", []string{"a1", "b2"}, domain.MatchContains, "xx b2", true},
		{"empty keyword skipped", []string{" "}, domain.MatchContains, "anything", false},
	}
	for _, tc := range cases {
		if got := matchKeywords(tc.keywords, tc.matchType, tc.text); got != tc.want {
			t.Fatalf("%s: ожидали %v, получили %v", tc.name, tc.want, got)
		}
	}
}

func TestCompilePattern(t *testing.T) {
	if re := compilePattern("hello", "gi"); re == nil || !re.MatchString("HeLLo") {
		t.Fatalf("ожидали совпадение без учёта регистра")
	}
	if re := compilePattern("^b", "m"); re == nil || !re.MatchString("a\nb") {
		t.Fatalf("ожидали многострочный режим")
	}
	if re := compilePattern("(unclosed", ""); re != nil {
		t.Fatalf("некорректный шаблон должен давать nil")
	}
	if re := compilePattern("x", "q"); re != nil {
		t.Fatalf("неизвестный флаг должен давать nil")
	}
}

func TestInTimeRange(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 10, 19, h, m, 0, 0, time.UTC) }
	day := domain.TimeRange{Enabled: true, Start: "09:00", End: "18:00"}
	night := domain.TimeRange{Enabled: true, Start: "22:00", End: "06:00"}
	cases := []struct {
		r    domain.TimeRange
		now  time.Time
		want bool
	}{
		{day, at(9, 0), true},
		{day, at(18, 0), true},
		{day, at(18, 1), false},
		{day, at(3, 0), false},
		{night, at(23, 30), true},
		{night, at(5, 59), true},
		{night, at(12, 0), false},
		{domain.TimeRange{Enabled: true, Start: "bad", End: "06:00"}, at(12, 0), true},
	}
	for i, tc := range cases {
		if got := inTimeRange(tc.r, tc.now); got != tc.want {
			t.Fatalf("случай %d: ожидали %v, получили %v", i, tc.want, got)
		}
	}
}

func TestMatchConditions(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	personal := domain.InboundMessage{ChatID: "79990001122@s.whatsapp.net", Sender: "79990001122@s.whatsapp.net"}
	group := domain.InboundMessage{ChatID: "12345@g.us", Sender: "79990001122:3@s.whatsapp.net"}

	if matchConditions(domain.RuleConditions{ChatType: domain.ChatTypeGroup}, personal, now) {
		t.Fatalf("личный чат не должен проходить условие group")
	}
	if matchConditions(domain.RuleConditions{ChatType: domain.ChatTypePersonal}, group, now) {
		t.Fatalf("групповой чат не должен проходить условие personal")
	}
	if !matchConditions(domain.RuleConditions{ChatType: domain.ChatTypeAll}, group, now) {
		t.Fatalf("условие all должно проходить")
	}
	excluded := domain.RuleConditions{ExcludeContacts: []string{"+79990001122"}}
	if matchConditions(excluded, group, now) {
		t.Fatalf("исключённый контакт не должен проходить")
	}
	window := domain.RuleConditions{TimeRange: domain.TimeRange{Enabled: true, Start: "13:00", End: "14:00"}}
	if matchConditions(window, personal, now) {
		t.Fatalf("время вне окна не должно проходить")
	}
}

func TestSubstitute(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 5, 0, 0, time.UTC)
	msg := domain.InboundMessage{Sender: "79990001122@s.whatsapp.net", SenderName: "Alex"}
	got := substitute("Hi {name} ({sender}) at {time} on {date}", msg, now)
	if want := "Hi Alex (79990001122) at 08:05 on 2026-10-19"; got != want {
		t.Fatalf("ожидали %q, получили %q", want, got)
	}
	msg.SenderName = ""
	if got := substitute("{name}", msg, now); got != "79990001122" {
		t.Fatalf("ожидали номер вместо имени, получили %q", got)
	}
}
