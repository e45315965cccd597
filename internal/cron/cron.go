// Package cron renders frequency rules as crontab lines so a scheduler can
// re-trigger materialization on each item's own cadence.
//
// Cron cannot express "second Tuesday" or "last Friday" on its own, so those
// rules fire on every matching weekday and carry a trailing shell guard that
// only succeeds in the right week.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cashflow/internal/core"
)

// Expression returns the cron line for rule. Minute and hour always come
// from date. A nil rule describes a one-off job on date.
func Expression(rule *core.FrequencyRule, date time.Time) string {
	minute, hour := strconv.Itoa(date.Minute()), strconv.Itoa(date.Hour())
	day := strconv.Itoa(date.Day())

	if rule == nil {
		return join(minute, hour, day, strconv.Itoa(int(date.Month())), "*")
	}

	n := rule.Step()
	switch rule.Type {
	case core.Daily:
		return join(minute, hour, every(n), "*", "*")

	case core.Weekly:
		if rule.DayOfWeek == nil {
			return join(minute, hour, every(7*n), "*", "*")
		}
		return join(minute, hour, optional(rule.DayOfMonth, "*"), "*", weekday(*rule.DayOfWeek))

	case core.Monthly:
		if rule.DayOfWeek == nil {
			return join(minute, hour, optional(rule.DayOfMonth, day), every(n), "*")
		}
		return join(minute, hour, "*", "*", weekday(*rule.DayOfWeek)) + " " + WeekGuard(weekOf(rule))

	case core.Yearly:
		month := every(12 * n)
		if rule.MonthOfYear != nil {
			month = strconv.Itoa(*rule.MonthOfYear + 1)
		}
		if rule.DayOfWeek == nil {
			return join(minute, hour, optional(rule.DayOfMonth, day), month, "*")
		}
		if rule.MonthOfYear == nil {
			month = "*"
		}
		return join(minute, hour, "*", month, weekday(*rule.DayOfWeek)) + " " + WeekGuard(weekOf(rule))
	}

	return join(minute, hour, day, strconv.Itoa(int(date.Month())), "*")
}

// WeekGuard returns a shell test that succeeds only during the given week of
// the month (0-3 first to fourth, 4 last). Percent signs are escaped for
// crontab.
func WeekGuard(week int) string {
	const (
		thisMonth = `"$(date +\%m)"`
		monthAt   = `"$(date +\%%m -d '%s days')"`
	)
	if week >= core.WeekOfMonthLast {
		// a week from now is already next month
		return fmt.Sprintf(`[ `+monthAt+` != %s ]`, "+7", thisMonth)
	}
	guard := fmt.Sprintf(`[ `+monthAt+` != %s ]`, strconv.Itoa(-7*(week+1)), thisMonth)
	if week > 0 {
		guard += fmt.Sprintf(` && [ `+monthAt+` = %s ]`, strconv.Itoa(-7*week), thisMonth)
	}
	return guard
}

func weekOf(rule *core.FrequencyRule) int {
	if rule.WeekOfMonth == nil {
		return 0
	}
	return *rule.WeekOfMonth
}

func every(n int) string {
	return "*/" + strconv.Itoa(n)
}

func optional(v *int, fallback string) string {
	if v == nil {
		return fallback
	}
	return strconv.Itoa(*v)
}

func weekday(d time.Weekday) string {
	return strconv.Itoa(int(d))
}

func join(fields ...string) string {
	return strings.Join(fields, " ")
}
