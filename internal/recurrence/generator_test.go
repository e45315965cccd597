package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow/internal/core"
)

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format("2006-01-02")
	}
	return out
}

func TestGenerate_Daily(t *testing.T) {
	begin := day(2020, 1, 2)
	until := day(2020, 1, 6)

	tests := []struct {
		name     string
		interval int
		want     []string
	}{
		{"every day", 1, []string{"2020-01-02", "2020-01-03", "2020-01-04", "2020-01-05", "2020-01-06"}},
		{"every other day", 2, []string{"2020-01-02", "2020-01-04", "2020-01-06"}},
		{"zero interval behaves as one", 0, []string{"2020-01-02", "2020-01-03", "2020-01-04", "2020-01-05", "2020-01-06"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Occurrences(begin, core.FrequencyRule{Type: core.Daily, Interval: tt.interval}, until)
			assert.Equal(t, tt.want, formatDates(got))
		})
	}
}

func TestGenerate_DailyIgnoresRefinements(t *testing.T) {
	rule := core.FrequencyRule{
		Type:        core.Daily,
		Interval:    1,
		DayOfWeek:   ptr(time.Friday),
		WeekOfMonth: ptr(2),
		MonthOfYear: ptr(5),
	}
	got := Occurrences(day(2020, 1, 2), rule, day(2020, 1, 3))
	assert.Equal(t, []string{"2020-01-02", "2020-01-03"}, formatDates(got))
}

func TestGenerate_Weekly(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		got := Occurrences(day(2024, 1, 3), core.FrequencyRule{Type: core.Weekly, Interval: 2}, day(2024, 2, 1))
		assert.Equal(t, []string{"2024-01-03", "2024-01-17", "2024-01-31"}, formatDates(got))
	})

	t.Run("day of week snaps within begin month", func(t *testing.T) {
		rule := core.FrequencyRule{Type: core.Weekly, Interval: 1, DayOfWeek: ptr(time.Monday)}
		got := Occurrences(day(2024, 1, 17), rule, day(2024, 1, 31))
		// first Monday of January 2024 is the 1st
		assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}, formatDates(got))
	})
}

func TestGenerate_MonthlyDayOfWeek(t *testing.T) {
	begin := day(2024, 1, 10)
	until := day(2024, 12, 31)

	t.Run("first tuesday", func(t *testing.T) {
		rule := core.FrequencyRule{Type: core.Monthly, Interval: 1, DayOfWeek: ptr(time.Tuesday)}
		got := Occurrences(begin, rule, until)
		require.Len(t, got, 12)
		for i, d := range got {
			assert.Equal(t, time.Tuesday, d.Weekday(), "occurrence %d", i)
			assert.Equal(t, time.Month(i+1), d.Month(), "occurrence %d", i)
			assert.LessOrEqual(t, d.Day(), 7, "occurrence %d", i)
		}
	})

	t.Run("second tuesday", func(t *testing.T) {
		rule := core.FrequencyRule{Type: core.Monthly, Interval: 1, DayOfWeek: ptr(time.Tuesday), WeekOfMonth: ptr(1)}
		got := Occurrences(begin, rule, until)
		require.Len(t, got, 12)
		for i, d := range got {
			assert.Equal(t, time.Tuesday, d.Weekday(), "occurrence %d", i)
			assert.Equal(t, 1, (d.Day()-1)/7, "occurrence %d on %s", i, d.Format("2006-01-02"))
		}
	})

	t.Run("last friday", func(t *testing.T) {
		rule := core.FrequencyRule{Type: core.Monthly, Interval: 1, DayOfWeek: ptr(time.Friday), WeekOfMonth: ptr(core.WeekOfMonthLast)}
		got := Occurrences(begin, rule, day(2024, 3, 31))
		// January and February 2024 have four Fridays, March has five
		assert.Equal(t, []string{"2024-01-26", "2024-02-23", "2024-03-29"}, formatDates(got))
		for _, d := range got {
			assert.NotEqual(t, d.Month(), d.AddDate(0, 0, 7).Month(), "expected %s to be last", d)
		}
	})

	t.Run("every third month", func(t *testing.T) {
		rule := core.FrequencyRule{Type: core.Monthly, Interval: 3, DayOfWeek: ptr(time.Wednesday)}
		got := Occurrences(begin, rule, until)
		assert.Equal(t, []string{"2024-01-03", "2024-04-03", "2024-07-03", "2024-10-02"}, formatDates(got))
	})
}

func TestGenerate_MonthlyClampsMonthEnd(t *testing.T) {
	rule := core.FrequencyRule{Type: core.Monthly, Interval: 1}
	got := Occurrences(day(2024, 1, 31), rule, day(2024, 5, 1))
	// derived from the begin date every time, so March returns to the 31st
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, formatDates(got))
}

func TestGenerate_Yearly(t *testing.T) {
	t.Run("anniversary", func(t *testing.T) {
		got := Occurrences(day(2020, 2, 29), core.FrequencyRule{Type: core.Yearly, Interval: 1}, day(2024, 12, 31))
		assert.Equal(t, []string{"2020-02-29", "2021-02-28", "2022-02-28", "2023-02-28", "2024-02-29"}, formatDates(got))
	})

	t.Run("month of year", func(t *testing.T) {
		rule := core.FrequencyRule{Type: core.Yearly, Interval: 1, MonthOfYear: ptr(5)}
		got := Occurrences(day(2024, 1, 15), rule, day(2026, 12, 31))
		assert.Equal(t, []string{"2024-06-15", "2025-06-15", "2026-06-15"}, formatDates(got))
	})

	t.Run("month of year with second monday", func(t *testing.T) {
		rule := core.FrequencyRule{
			Type:        core.Yearly,
			Interval:    2,
			MonthOfYear: ptr(8),
			DayOfWeek:   ptr(time.Monday),
			WeekOfMonth: ptr(1),
		}
		got := Occurrences(day(2024, 1, 1), rule, day(2028, 12, 31))
		assert.Equal(t, []string{"2024-09-09", "2026-09-14", "2028-09-11"}, formatDates(got))
	})
}

func TestGenerate_MonthOfYearIgnoredForMonthly(t *testing.T) {
	rule := core.FrequencyRule{Type: core.Monthly, Interval: 1, MonthOfYear: ptr(11)}
	got := Occurrences(day(2024, 1, 5), rule, day(2024, 2, 5))
	assert.Equal(t, []string{"2024-01-05", "2024-02-05"}, formatDates(got))
}

func TestGenerate_WeekOfMonthWithoutDayOfWeek(t *testing.T) {
	rule := core.FrequencyRule{Type: core.Monthly, Interval: 1, WeekOfMonth: ptr(2)}
	got := Occurrences(day(2024, 1, 5), rule, day(2024, 2, 5))
	assert.Equal(t, []string{"2024-01-05", "2024-02-05"}, formatDates(got))
}

func TestGenerate_PreservesTimeOfDay(t *testing.T) {
	begin := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	rule := core.FrequencyRule{Type: core.Monthly, Interval: 1, DayOfWeek: ptr(time.Tuesday)}
	for _, d := range Occurrences(begin, rule, day(2024, 4, 1)) {
		assert.Equal(t, 9, d.Hour())
		assert.Equal(t, 30, d.Minute())
	}
}

func TestGenerate_BeginAfterUntil(t *testing.T) {
	got := Occurrences(day(2024, 2, 1), core.FrequencyRule{Type: core.Daily}, day(2024, 1, 1))
	assert.Empty(t, got)
}

func TestGenerate_UnknownType(t *testing.T) {
	got := Occurrences(day(2024, 1, 1), core.FrequencyRule{Type: "fortnightly"}, day(2024, 12, 31))
	assert.Empty(t, got)
}

func TestGenerate_StopsEarly(t *testing.T) {
	var seen int
	for range Generate(day(2024, 1, 1), core.FrequencyRule{Type: core.Daily}, day(2100, 1, 1)) {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestGenerate_Deterministic(t *testing.T) {
	rule := core.FrequencyRule{Type: core.Monthly, Interval: 2, DayOfWeek: ptr(time.Thursday), WeekOfMonth: ptr(3)}
	a := Occurrences(day(2023, 5, 20), rule, day(2025, 5, 20))
	b := Occurrences(day(2023, 5, 20), rule, day(2025, 5, 20))
	assert.Equal(t, a, b)
}

func TestUntil(t *testing.T) {
	w := core.Window{From: day(2024, 1, 1), To: day(2024, 12, 31)}
	assert.Equal(t, w.To, Until(w, nil))
	assert.Equal(t, day(2024, 6, 1), Until(w, ptr(day(2024, 6, 1))))
	assert.Equal(t, w.To, Until(w, ptr(day(2025, 6, 1))))
}

func TestGetStepper(t *testing.T) {
	tests := []struct {
		name      string
		frequency core.FrequencyType
		wantErr   bool
	}{
		{"daily", core.Daily, false},
		{"weekly", core.Weekly, false},
		{"monthly", core.Monthly, false},
		{"yearly", core.Yearly, false},
		{"unknown", core.FrequencyType("biweekly"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := GetStepper(tt.frequency)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetStepper() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && s == nil {
				t.Error("GetStepper() returned nil stepper")
			}
		})
	}
}

func TestRegisterStepper(t *testing.T) {
	custom := core.FrequencyType("biweekly")
	RegisterStepper(custom, WeeklyStepper{})
	defer delete(steppers, custom)

	got := Occurrences(day(2024, 1, 1), core.FrequencyRule{Type: custom, Interval: 2}, day(2024, 1, 31))
	assert.Equal(t, []string{"2024-01-01", "2024-01-15", "2024-01-29"}, formatDates(got))
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		in   time.Time
		n    int
		want string
	}{
		{day(2024, 1, 31), 1, "2024-02-29"},
		{day(2023, 1, 31), 1, "2023-02-28"},
		{day(2024, 3, 31), -1, "2024-02-29"},
		{day(2024, 11, 15), 3, "2025-02-15"},
		{day(2024, 2, 29), 12, "2025-02-28"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AddMonths(tt.in, tt.n).Format("2006-01-02"), "AddMonths(%s, %d)", tt.in.Format("2006-01-02"), tt.n)
	}
}
