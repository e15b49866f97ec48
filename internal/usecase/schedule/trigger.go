package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"chat-automation/internal/domain"
)

// Trigger описывает срабатывание, выведенное из времени и периодичности.
// Expr хранит производное cron-выражение для отображения и логов.
type Trigger struct {
	Expr     string
	Schedule cron.Schedule
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// DeriveTrigger строит правило из scheduledAt и repeat в часовом поясе loc.
// Для repeat=once срабатывание ровно одно, в момент scheduledAt.
func DeriveTrigger(scheduledAt time.Time, repeat domain.Repeat, loc *time.Location) (Trigger, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := scheduledAt.In(loc)
	var fields string
	switch repeat {
	case domain.RepeatOnce:
		fields = fmt.Sprintf("%d %d %d %d *", local.Minute(), local.Hour(), local.Day(), int(local.Month()))
	case domain.RepeatDaily:
		fields = fmt.Sprintf("%d %d * * *", local.Minute(), local.Hour())
	case domain.RepeatWeekly:
		fields = fmt.Sprintf("%d %d * * %d", local.Minute(), local.Hour(), int(local.Weekday()))
	case domain.RepeatMonthly:
		fields = fmt.Sprintf("%d %d %d * *", local.Minute(), local.Hour(), local.Day())
	default:
		return Trigger{}, domain.Validationf("unknown repeat %q", repeat)
	}
	expr := fmt.Sprintf("CRON_TZ=%s %s", loc.String(), fields)

	if repeat == domain.RepeatOnce {
		return Trigger{Expr: expr, Schedule: oneShot{at: scheduledAt}}, nil
	}
	sched, err := specParser.Parse(expr)
	if err != nil {
		return Trigger{}, fmt.Errorf("разбор %q: %w", expr, err)
	}
	return Trigger{Expr: expr, Schedule: sched}, nil
}

// oneShot срабатывает один раз в момент at. Нулевое время cron трактует как «никогда».
type oneShot struct {
	at time.Time
}

func (o oneShot) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}
