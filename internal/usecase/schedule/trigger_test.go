package schedule

import (
	"testing"
	"time"

	"chat-automation/internal/domain"
)

func TestDeriveTriggerExpressions(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// понедельник, 09:30 по Москве
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, loc)
	cases := map[domain.Repeat]string{
		domain.RepeatOnce:    "CRON_TZ=Europe/Moscow 30 9 19 10 *",
		domain.RepeatDaily:   "CRON_TZ=Europe/Moscow 30 9 * * *",
		domain.RepeatWeekly:  "CRON_TZ=Europe/Moscow 30 9 * * 1",
		domain.RepeatMonthly: "CRON_TZ=Europe/Moscow 30 9 19 * *",
	}
	for repeat, want := range cases {
		tr, err := DeriveTrigger(at, repeat, loc)
		if err != nil {
			t.Fatalf("%s: не ожидали ошибку: %v", repeat, err)
		}
		if tr.Expr != want {
			t.Fatalf("%s: ожидали %q, получили %q", repeat, want, tr.Expr)
		}
	}
	if _, err := DeriveTrigger(at, "yearly", loc); err == nil {
		t.Fatalf("ожидали ошибку для неизвестной периодичности")
	}
}

func TestDeriveTriggerNextFire(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	daily, _ := DeriveTrigger(at, domain.RepeatDaily, time.UTC)
	next := daily.Schedule.Next(time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 10, 21, 9, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("daily: ожидали %s, получили %s", want, next)
	}

	weekly, _ := DeriveTrigger(at, domain.RepeatWeekly, time.UTC)
	next = weekly.Schedule.Next(at)
	if want := at.AddDate(0, 0, 7); !next.Equal(want) {
		t.Fatalf("weekly: ожидали %s, получили %s", want, next)
	}

	once, _ := DeriveTrigger(at, domain.RepeatOnce, time.UTC)
	if next := once.Schedule.Next(at.Add(-time.Hour)); !next.Equal(at) {
		t.Fatalf("once: ожидали %s, получили %s", at, next)
	}
	if next := once.Schedule.Next(at); !next.IsZero() {
		t.Fatalf("once: повторное срабатывание недопустимо, получили %s", next)
	}
}

func TestResolveLocation(t *testing.T) {
	cases := map[string]string{
		"UTC":              "UTC",
		"europe/moscow":    "Europe/Moscow",
		"America/New York": "America/New_York",
	}
	for raw, want := range cases {
		got, _, err := resolveLocation(raw)
		if err != nil {
			t.Fatalf("%q: не ожидали ошибку: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%q: ожидали %q, получили %q", raw, want, got)
		}
	}
	if _, _, err := resolveLocation("Nowhere/Land"); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного пояса")
	}
}
