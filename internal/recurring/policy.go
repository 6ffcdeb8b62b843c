// Package recurring turns recurring expense templates into dated expense instances.
package recurring

import (
	"time"

	"pocketledger/internal/models"
)

// Policy decides whether a template last materialized at last is due again at ref.
type Policy interface {
	Eligible(last, ref time.Time) bool
	// PeriodKey names the calendar bucket ref falls into for this recurrence.
	PeriodKey(ref time.Time) string
}

// ElapsedDays returns the whole number of 24h periods between last and ref.
// It is negative when ref is before last.
func ElapsedDays(last, ref time.Time) int {
	d := ref.Sub(last)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

type dailyPolicy struct{}

func (dailyPolicy) Eligible(last, ref time.Time) bool { return ElapsedDays(last, ref) >= 1 }
func (dailyPolicy) PeriodKey(ref time.Time) string   { return ref.Format("2006-01-02") }

type weeklyPolicy struct{}

func (weeklyPolicy) Eligible(last, ref time.Time) bool { return ElapsedDays(last, ref) >= 7 }
func (weeklyPolicy) PeriodKey(ref time.Time) string   { return ref.Format("2006-01-02") }

// monthlyPolicy fires once the reference date crosses into a later calendar
// month, whatever the day of month.
type monthlyPolicy struct{}

func (monthlyPolicy) Eligible(last, ref time.Time) bool {
	last = last.In(ref.Location())
	if ref.Year() != last.Year() {
		return ref.Year() > last.Year()
	}
	return ref.Month() > last.Month()
}

func (monthlyPolicy) PeriodKey(ref time.Time) string { return ref.Format("2006-01") }

type yearlyPolicy struct{}

func (yearlyPolicy) Eligible(last, ref time.Time) bool {
	return ref.Year() > last.In(ref.Location()).Year()
}

func (yearlyPolicy) PeriodKey(ref time.Time) string { return ref.Format("2006") }

var policies = map[models.RecurringType]Policy{
	models.RecurringDaily:   dailyPolicy{},
	models.RecurringWeekly:  weeklyPolicy{},
	models.RecurringMonthly: monthlyPolicy{},
	models.RecurringYearly:  yearlyPolicy{},
}

// PolicyFor returns the policy for t. ok is false for unknown recurrences,
// which are never eligible.
func PolicyFor(t models.RecurringType) (Policy, bool) {
	p, ok := policies[t]
	return p, ok
}

// IsDue reports whether a template with recurrence t is due at ref.
func IsDue(t models.RecurringType, last, ref time.Time) bool {
	p, ok := PolicyFor(t)
	if !ok {
		return false
	}
	return p.Eligible(last, ref)
}
