package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

const dateLayout = "2006-01-02"

// Clock returns the current time. Services take one so "today" can be pinned in tests.
type Clock func() time.Time

func systemClock() time.Time { return time.Now() }

// dayOf truncates t to midnight UTC of its calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseDate reads a YYYY-MM-DD date as midnight UTC.
func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, time.UTC)
}

// FeeInputs is everything the calculator needs to know about one student.
// Entries may include charges that do not apply to the student; they are
// filtered by scope.
type FeeInputs struct {
	StudentID string
	CourseIDs []string
	SessionID *string
	Entries   []models.FeeEntry
	TotalPaid decimal.Decimal
}

// ApplicableEntries returns the entries that bind a student enrolled in
// courseIDs and assigned to sessionID. Course and session charges are summed
// together, never one instead of the other.
func ApplicableEntries(entries []models.FeeEntry, courseIDs []string, sessionID *string) []models.FeeEntry {
	enrolled := make(map[string]struct{}, len(courseIDs))
	for _, id := range courseIDs {
		enrolled[id] = struct{}{}
	}

	matched := make([]models.FeeEntry, 0, len(entries))
	for _, entry := range entries {
		switch entry.Scope.Kind {
		case models.FeeScopeCourse:
			if _, ok := enrolled[entry.Scope.CourseID]; ok {
				matched = append(matched, entry)
			}
		case models.FeeScopeSession:
			if sessionID != nil && *sessionID == entry.SessionID {
				matched = append(matched, entry)
			}
		}
	}
	return matched
}

// ZeroFeeStatus is the status reported for a student with no charges.
func ZeroFeeStatus(studentID string, today time.Time) models.FeeStatus {
	return models.FeeStatus{
		StudentID: studentID,
		TotalDue:  decimal.Zero,
		TotalPaid: decimal.Zero,
		Balance:   decimal.Zero,
		DueDate:   dayOf(today),
	}
}

// CalculateFeeStatus derives the balance view from a student's charges and
// payments. Payments are pooled; they are never matched to individual entries.
func CalculateFeeStatus(in FeeInputs, today time.Time) models.FeeStatus {
	today = dayOf(today)
	status := ZeroFeeStatus(in.StudentID, today)
	if in.TotalPaid.IsPositive() {
		status.TotalPaid = in.TotalPaid
	}

	matched := ApplicableEntries(in.Entries, in.CourseIDs, in.SessionID)
	for i, entry := range matched {
		status.TotalDue = status.TotalDue.Add(entry.Amount)
		due := dayOf(entry.DueDate)
		if i == 0 || due.Before(status.DueDate) {
			status.DueDate = due
		}
	}

	balance := status.TotalDue.Sub(status.TotalPaid)
	if !balance.IsPositive() {
		return status
	}
	status.Balance = balance

	if today.After(status.DueDate) {
		status.PendingDays = daysBetween(status.DueDate, today)
		status.Overdue = true
	} else {
		status.PendingDays = daysBetween(today, status.DueDate)
	}
	return status
}

// daysBetween counts whole calendar days from a to b; both must be day-aligned.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
