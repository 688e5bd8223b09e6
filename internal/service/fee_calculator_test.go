package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/models"
)

func day(value string) time.Time {
	t, err := parseDate(value)
	if err != nil {
		panic(err)
	}
	return t
}

func courseFee(id, courseID string, amount int64, due string) models.FeeEntry {
	return models.FeeEntry{ID: id, Amount: decimal.NewFromInt(amount), DueDate: day(due), SessionID: "sess-1", Scope: models.CourseScoped(courseID)}
}

func sessionFee(id, sessionID string, amount int64, due string) models.FeeEntry {
	return models.FeeEntry{ID: id, Amount: decimal.NewFromInt(amount), DueDate: day(due), SessionID: sessionID, Scope: models.SessionScoped()}
}

func strPtr(s string) *string { return &s }

func TestCalculateFeeStatusNoMatchingEntries(t *testing.T) {
	today := day("2025-03-01")
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c9"},
		SessionID: strPtr("sess-2"),
		Entries:   []models.FeeEntry{courseFee("f1", "c1", 1000, "2025-01-01"), sessionFee("f2", "sess-1", 500, "2025-01-01")},
	}

	status := CalculateFeeStatus(in, today)
	assert.True(t, status.Balance.IsZero())
	assert.Zero(t, status.PendingDays)
	assert.True(t, status.TotalDue.IsZero())
	assert.Equal(t, today, status.DueDate)
	assert.False(t, status.Overdue)
}

func TestCalculateFeeStatusBalanceNeverNegative(t *testing.T) {
	today := day("2025-03-01")
	entries := []models.FeeEntry{courseFee("f1", "c1", 1000, "2025-04-01")}
	for _, paid := range []int64{0, 400, 1000, 1001, 50000} {
		status := CalculateFeeStatus(FeeInputs{StudentID: "s1", CourseIDs: []string{"c1"}, Entries: entries, TotalPaid: decimal.NewFromInt(paid)}, today)
		expected := decimal.Max(decimal.Zero, decimal.NewFromInt(1000-paid))
		assert.True(t, status.Balance.Equal(expected), "paid %d", paid)
		assert.False(t, status.Balance.IsNegative())
	}
}

func TestCalculateFeeStatusIsIdempotent(t *testing.T) {
	today := day("2025-02-10")
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c1"},
		SessionID: strPtr("sess-1"),
		Entries:   []models.FeeEntry{courseFee("f1", "c1", 1200, "2025-01-20"), sessionFee("f2", "sess-1", 300, "2025-03-01")},
		TotalPaid: decimal.NewFromInt(200),
	}

	first := CalculateFeeStatus(in, today)
	second := CalculateFeeStatus(in, today)
	assert.Equal(t, first, second)
}

func TestCalculateFeeStatusOverpayment(t *testing.T) {
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c1"},
		Entries:   []models.FeeEntry{courseFee("f1", "c1", 1000, "2025-01-01")},
		TotalPaid: decimal.NewFromInt(1500),
	}

	status := CalculateFeeStatus(in, day("2025-02-01"))
	assert.True(t, status.Balance.IsZero())
	assert.Zero(t, status.PendingDays)
	assert.False(t, status.Overdue)
	assert.Equal(t, "1500", status.TotalPaid.String())
}

func TestCalculateFeeStatusPicksEarliestDueDate(t *testing.T) {
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c1", "c2"},
		Entries:   []models.FeeEntry{courseFee("f2", "c2", 100, "2025-02-01"), courseFee("f1", "c1", 100, "2025-01-10")},
	}

	status := CalculateFeeStatus(in, day("2024-12-01"))
	assert.Equal(t, day("2025-01-10"), status.DueDate)
	assert.Equal(t, 40, status.PendingDays)
	assert.False(t, status.Overdue)
}

func TestCalculateFeeStatusOverdueExample(t *testing.T) {
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c1"},
		Entries:   []models.FeeEntry{courseFee("f1", "c1", 5000, "2025-01-01")},
	}

	status := CalculateFeeStatus(in, time.Date(2025, 1, 15, 17, 45, 0, 0, time.UTC))
	assert.Equal(t, "5000", status.Balance.String())
	assert.Equal(t, 14, status.PendingDays)
	assert.True(t, status.Overdue)
}

func TestCalculateFeeStatusAddsCourseAndSessionFees(t *testing.T) {
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c1", "c2"},
		SessionID: strPtr("sess-1"),
		Entries: []models.FeeEntry{
			courseFee("f1", "c1", 1000, "2025-05-01"),
			courseFee("f2", "c2", 1000, "2025-05-01"),
			sessionFee("f3", "sess-1", 500, "2025-05-01"),
		},
	}

	status := CalculateFeeStatus(in, day("2025-04-01"))
	assert.Equal(t, "2500", status.TotalDue.String())
	assert.Equal(t, "2500", status.Balance.String())
}

func TestCalculateFeeStatusWithoutSessionKeepsCourseFees(t *testing.T) {
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c1"},
		Entries:   []models.FeeEntry{courseFee("f1", "c1", 1000, "2025-05-01"), sessionFee("f3", "sess-1", 500, "2025-05-01")},
	}

	status := CalculateFeeStatus(in, day("2025-04-01"))
	assert.Equal(t, "1000", status.TotalDue.String())
}

func TestCalculateFeeStatusPaymentsAreNotPartitioned(t *testing.T) {
	// The payment was made against an entry the student no longer matches.
	in := FeeInputs{
		StudentID: "s1",
		CourseIDs: []string{"c2"},
		Entries:   []models.FeeEntry{courseFee("f1", "c1", 800, "2025-05-01"), courseFee("f2", "c2", 1000, "2025-05-01")},
		TotalPaid: decimal.NewFromInt(800),
	}

	status := CalculateFeeStatus(in, day("2025-04-01"))
	assert.Equal(t, "1000", status.TotalDue.String())
	assert.Equal(t, "200", status.Balance.String())
}

func TestApplicableEntriesIsExhaustiveOverScopes(t *testing.T) {
	entries := []models.FeeEntry{
		courseFee("f1", "c1", 1, "2025-01-01"),
		sessionFee("f2", "sess-1", 1, "2025-01-01"),
		{ID: "f3", Scope: models.FeeScope{Kind: "UNKNOWN"}},
	}
	matched := ApplicableEntries(entries, []string{"c1"}, strPtr("sess-1"))
	require.Len(t, matched, 2)
	assert.Equal(t, "f1", matched[0].ID)
	assert.Equal(t, "f2", matched[1].ID)
}
