package autoreply

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"chat-automation/internal/domain"
)

// regexCache хранит скомпилированные шаблоны. Неудачная компиляция тоже кэшируется.
type regexCache struct {
	mu    sync.Mutex
	items map[string]*regexp.Regexp
}

func (c *regexCache) get(pattern, flags string) *regexp.Regexp {
	key := flags + "/" + pattern
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.items[key]; ok {
		return re
	}
	re := compilePattern(pattern, flags)
	if c.items == nil {
		c.items = make(map[string]*regexp.Regexp)
	}
	c.items[key] = re
	return re
}

// compilePattern переводит флаги i, m, s в inline-модификаторы RE2.
// g, u и y не влияют на проверку совпадения. Неизвестный флаг делает шаблон непригодным.
func compilePattern(pattern, flags string) *regexp.Regexp {
	var mods strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(mods.String(), f) {
				mods.WriteRune(f)
			}
		case 'g', 'u', 'y':
		default:
			return nil
		}
	}
	expr := pattern
	if mods.Len() > 0 {
		expr = fmt.Sprintf("(?%s)%s", mods.String(), pattern)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return re
}

// matchTrigger проверяет текст сообщения против триггера правила.
func (s *Service) matchTrigger(t domain.RuleTrigger, text string) bool {
	switch t.Type {
	case domain.TriggerAll:
		return true
	case domain.TriggerKeyword:
		return matchKeywords(t.Keywords, t.MatchType, text)
	case domain.TriggerRegex:
		if t.Pattern == "" {
			return false
		}
		re := s.regex.get(t.Pattern, t.Flags)
		return re != nil && re.MatchString(text)
	default:
		// first_message: история диалогов не отслеживается.
		return false
	}
}

func matchKeywords(keywords []string, matchType, text string) bool {
	lower := strings.ToLower(text)
	trimmed := strings.TrimSpace(lower)
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.TrimSpace(kw) == "" {
			continue
		}
		var ok bool
		switch matchType {
		case domain.MatchExact:
			ok = trimmed == strings.TrimSpace(kw)
		case domain.MatchStartsWith:
			ok = strings.HasPrefix(lower, kw)
		case domain.MatchEndsWith:
			ok = strings.HasSuffix(lower, kw)
		default:
			ok = strings.Contains(lower, kw)
		}
		if ok {
			return true
		}
	}
	return false
}

// matchConditions проверяет тип чата, окно времени и исключённые контакты.
func matchConditions(c domain.RuleConditions, msg domain.InboundMessage, now time.Time) bool {
	switch c.ChatType {
	case domain.ChatTypePersonal:
		if msg.Group() {
			return false
		}
	case domain.ChatTypeGroup:
		if !msg.Group() {
			return false
		}
	}
	if c.TimeRange.Enabled && !inTimeRange(c.TimeRange, now) {
		return false
	}
	if len(c.ExcludeContacts) > 0 {
		sender := msg.SenderNumber()
		for _, contact := range c.ExcludeContacts {
			if domain.BareNumber(contact) == sender {
				return false
			}
		}
	}
	return true
}

// inTimeRange: границы включительно, start > end означает окно через полночь.
// Окно с неразборчивыми границами не ограничивает правило.
func inTimeRange(r domain.TimeRange, now time.Time) bool {
	start, okStart := parseClock(r.Start)
	end, okEnd := parseClock(r.End)
	if !okStart || !okEnd {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

func parseClock(raw string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// substitute подставляет {name}, {sender}, {time} и {date}.
func substitute(template string, msg domain.InboundMessage, now time.Time) string {
	sender := msg.SenderNumber()
	name := strings.TrimSpace(msg.SenderName)
	if name == "" {
		name = sender
	}
	return strings.NewReplacer(
		"{name}", name,
		"{sender}", sender,
		"{time}", now.Format("15:04"),
		"{date}", now.Format("2006-01-02"),
	).Replace(template)
}
