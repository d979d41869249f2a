package healthcheck

import (
	"context"
	"time"
)

// Report is the combined outcome of every registered checker.
type Report struct {
	Status    string        `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []CheckResult `json:"checks"`
}

// Aggregator runs a fixed set of checkers.
type Aggregator struct {
	checkers []Checker
}

// NewAggregator creates an Aggregator. Nil checkers are skipped.
func NewAggregator(checkers ...Checker) *Aggregator {
	items := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			items = append(items, c)
		}
	}
	return &Aggregator{checkers: items}
}

// Run evaluates all checkers in registration order. The report status is
// the worst status among the checks.
func (a *Aggregator) Run(ctx context.Context) Report {
	report := Report{
		Status:    StatusOK,
		CheckedAt: time.Now().UTC(),
		Checks:    []CheckResult{},
	}
	if a == nil {
		return report
	}
	for _, c := range a.checkers {
		report.Checks = append(report.Checks, c.ListChecks(ctx)...)
	}
	for _, item := range report.Checks {
		if severity(item.Status) > severity(report.Status) {
			report.Status = item.Status
		}
	}
	return report
}

func severity(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusWarn:
		return 2
	case StatusError:
		return 3
	default:
		return 1
	}
}
