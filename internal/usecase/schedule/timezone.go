package schedule

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimezone возвращается, если часовой пояс не удалось распознать.
var ErrInvalidTimezone = errors.New("invalid timezone")

// resolveLocation приводит имя пояса к каноническому IANA-виду и загружает его.
// Допускает пробелы вместо подчёркиваний и произвольный регистр: "europe/moscow", "America/New York".
func resolveLocation(raw string) (string, *time.Location, error) {
	name := strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")
	if name == "" {
		return "", nil, ErrInvalidTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return name, loc, nil
	}
	titled := titleZone(name)
	if loc, err := time.LoadLocation(titled); err == nil {
		return titled, loc, nil
	}
	return "", nil, ErrInvalidTimezone
}

func titleZone(name string) string {
	upper := true
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = r == '/' || r == '_' || r == '-'
		b.WriteRune(r)
	}
	return b.String()
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseScheduledAt разбирает RFC3339 или локальное время без смещения в поясе loc.
func parseScheduledAt(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized time format")
}
