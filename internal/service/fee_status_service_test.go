package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type memoryCache struct {
	values map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{values: map[string][]byte{}} }

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			delete(m.values, key)
		}
	}
	return nil
}

type studentDirectoryStub struct {
	profiles map[string]models.StudentProfile
	order    []string
}

func newStudentDirectory(profiles ...models.StudentProfile) *studentDirectoryStub {
	d := &studentDirectoryStub{profiles: map[string]models.StudentProfile{}}
	for _, p := range profiles {
		d.profiles[p.Student.ID] = p
		d.order = append(d.order, p.Student.ID)
	}
	return d
}

func (d *studentDirectoryStub) GetStudentProfile(_ context.Context, id string) (*models.StudentProfile, error) {
	p, ok := d.profiles[id]
	if ok {
		return &p, nil
	}
	// postgres rejects non-uuid input for uuid columns before matching rows
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get student profile: %w", &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	}
	return nil, sql.ErrNoRows
}

func (d *studentDirectoryStub) ListStudentProfiles(_ context.Context) ([]models.StudentProfile, error) {
	out := make([]models.StudentProfile, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.profiles[id])
	}
	return out, nil
}

type feeEntriesStub struct {
	entries []models.FeeEntry
	calls   int
}

func (f *feeEntriesStub) ListApplicable(_ context.Context, courseIDs []string, sessionID *string) ([]models.FeeEntry, error) {
	f.calls++
	return ApplicableEntries(f.entries, courseIDs, sessionID), nil
}

type paymentTotalsStub struct {
	totals map[string]decimal.Decimal
	latest map[string]string
	// afterRead runs once, after the total has been read, to interleave a
	// concurrent payment.
	afterRead func()
}

func (p *paymentTotalsStub) SumByStudent(_ context.Context, studentID string) (decimal.Decimal, error) {
	total := p.totals[studentID]
	if hook := p.afterRead; hook != nil {
		p.afterRead = nil
		hook()
	}
	return total, nil
}

func (p *paymentTotalsStub) LatestIDs(context.Context) (map[string]string, error) {
	return p.latest, nil
}

type notifierStub struct {
	requests []models.NotifyRequest
}

func (n *notifierStub) Notify(_ context.Context, req models.NotifyRequest) models.NotificationResult {
	n.requests = append(n.requests, req)
	var outcomes []models.Outcome
	for _, r := range req.Recipients {
		if !req.GuardianOnly {
			outcomes = append(outcomes, models.Outcome{UserID: r.UserID, Audience: models.AudiencePrimary, Channel: req.Channel, Status: models.DeliverySent})
		}
		if r.Guardian != nil {
			outcomes = append(outcomes, models.Outcome{UserID: r.Guardian.UserID, Audience: models.AudienceGuardian, Channel: req.Channel, Status: models.DeliverySent})
		}
	}
	return models.NotificationResult{Status: models.SummariseOutcomes(outcomes), Outcomes: outcomes}
}

func fixedClock(value string) Clock {
	t := day(value).Add(9 * time.Hour)
	return func() time.Time { return t }
}

func profileFor(id, name string, session *string, courses ...string) models.StudentProfile {
	phone := "555-" + id
	guardianPhone := "555-g-" + id
	return models.StudentProfile{
		Student:   models.User{ID: id, Name: name, Role: models.RoleStudent, SessionID: session, PhoneNumber: &phone},
		Guardian:  &models.User{ID: "g-" + id, Name: "Guardian of " + name, Role: models.RoleParent, PhoneNumber: &guardianPhone},
		CourseIDs: courses,
	}
}

type feeStatusFixture struct {
	svc      *FeeStatusService
	entries  *feeEntriesStub
	payments *paymentTotalsStub
	notifier *notifierStub
	cache    *memoryCache
}

func newFeeStatusFixture(clock Clock, profiles ...models.StudentProfile) *feeStatusFixture {
	f := &feeStatusFixture{
		entries: &feeEntriesStub{entries: []models.FeeEntry{
			courseFee("f1", "c1", 1000, "2025-01-01"),
			courseFee("f2", "c2", 1000, "2025-02-01"),
			sessionFee("f3", "sess-1", 500, "2025-03-01"),
		}},
		payments: &paymentTotalsStub{totals: map[string]decimal.Decimal{}, latest: map[string]string{}},
		notifier: &notifierStub{},
		cache:    newMemoryCache(),
	}
	cache := NewCacheService(f.cache, nil, time.Minute, nil, true)
	f.svc = NewFeeStatusService(newStudentDirectory(profiles...), f.entries, f.payments, cache, f.notifier, nil, FeeStatusConfig{}, clock, nil)
	return f
}

func TestFeeStatusUnknownStudentIsZeroed(t *testing.T) {
	for name, id := range map[string]string{
		"no such row":  unknownStudent,
		"malformed id": "42",
	} {
		t.Run(name, func(t *testing.T) {
			f := newFeeStatusFixture(fixedClock("2025-01-15"))

			status, err := f.svc.Calculate(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, id, status.StudentID)
			assert.True(t, status.Balance.IsZero())
			assert.Zero(t, status.PendingDays)
			assert.Equal(t, day("2025-01-15"), status.DueDate)
			assert.Zero(t, f.entries.calls)
		})
	}
}

func TestFeeStatusCachesPerDayUntilInvalidated(t *testing.T) {
	f := newFeeStatusFixture(fixedClock("2025-01-15"), profileFor("s1", "Asha", strPtr("sess-1"), "c1", "c2"))
	ctx := context.Background()

	first, err := f.svc.Calculate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "2500.00", first.TotalDue.StringFixed(2))
	assert.Equal(t, 14, first.PendingDays)
	assert.True(t, first.Overdue)

	second, err := f.svc.Calculate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.entries.calls)
	assert.True(t, first.Balance.Equal(second.Balance))
	assert.Contains(t, f.cache.values, "fees:status:s1:2025-01-15")

	f.payments.totals["s1"] = decimal.NewFromInt(2500)
	f.svc.Invalidate(ctx, "s1")
	third, err := f.svc.Calculate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.entries.calls)
	assert.True(t, third.Balance.IsZero())
	assert.Zero(t, third.PendingDays)
}

func TestFeeStatusPaymentDuringCalculationIsNotCached(t *testing.T) {
	f := newFeeStatusFixture(fixedClock("2025-01-15"), profileFor("s1", "Asha", strPtr("sess-1"), "c1"))
	ctx := context.Background()

	// The payment commits and invalidates after the total was read but before
	// the computed status reaches the cache.
	f.payments.afterRead = func() {
		f.payments.totals["s1"] = decimal.NewFromInt(1500)
		f.svc.Invalidate(ctx, "s1")
	}

	stale, err := f.svc.Calculate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "1500.00", stale.Balance.StringFixed(2))
	assert.NotContains(t, f.cache.values, "fees:status:s1:2025-01-15")

	fresh, err := f.svc.Calculate(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, fresh.Balance.IsZero())
	assert.Contains(t, f.cache.values, "fees:status:s1:2025-01-15")
}

func TestListPendingFiltersSettledStudents(t *testing.T) {
	f := newFeeStatusFixture(fixedClock("2025-01-15"),
		profileFor("s1", "Asha", nil, "c1"),
		profileFor("s2", "Bilal", strPtr("sess-1")),
		profileFor("s3", "Chen", nil, "c2"),
	)
	f.payments.totals["s1"] = decimal.NewFromInt(1000)
	f.payments.latest["s1"] = "pay-9"

	all, err := f.svc.ListFeeStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.NotNil(t, all[0].LatestPaymentID)
	assert.Equal(t, "pay-9", *all[0].LatestPaymentID)

	pending, err := f.svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Chen", pending[0].StudentName)
	assert.Equal(t, "Bilal", pending[1].StudentName)
}

func TestExportPendingCSV(t *testing.T) {
	f := newFeeStatusFixture(fixedClock("2025-01-15"), profileFor("s1", "Asha", nil, "c1"))

	file, err := f.svc.ExportPending(context.Background(), "CSV")
	require.NoError(t, err)
	assert.Equal(t, "fee-pending-2025-01-15.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Student,Phone,Total Due"))
	assert.Contains(t, lines[1], "Asha,555-s1,1000.00,0.00,1000.00,2025-01-01,14,true")

	_, err = f.svc.ExportPending(context.Background(), "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSendFeeReminder(t *testing.T) {
	f := newFeeStatusFixture(fixedClock("2024-12-25"), profileFor("s1", "Asha", nil, "c1"), profileFor("s2", "Bilal", nil))
	ctx := context.Background()

	resp, err := f.svc.SendFeeReminder(ctx, "s1", "")
	require.NoError(t, err)
	require.Len(t, f.notifier.requests, 1)
	req := f.notifier.requests[0]
	assert.Equal(t, models.ChannelSMS, req.Channel)
	assert.Equal(t, models.EventFeeReminder, req.Kind)
	assert.Equal(t, "Dear Asha, your fee balance of 1000.00 is due on 2025-01-01.", req.Payload.Body)
	assert.Equal(t, "Fee balance of 1000.00 for Asha is due on 2025-01-01.", req.Payload.GuardianBody)
	assert.Equal(t, 7, resp.FeeStatus.PendingDays)
	assert.Len(t, resp.Notification.Outcomes, 2)

	_, err = f.svc.SendFeeReminder(ctx, "s2", models.ChannelPush)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.SendFeeReminder(ctx, "ghost", models.ChannelPush)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = f.svc.SendFeeReminder(ctx, "s1", "FAX")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRemindSkipsSettledBalance(t *testing.T) {
	f := newFeeStatusFixture(fixedClock("2025-01-15"), profileFor("s1", "Asha", nil, "c1"))

	result := f.svc.Remind(context.Background(), "s1", ZeroFeeStatus("s1", time.Now()))
	assert.Equal(t, models.NotificationStatusNone, result.Status)
	assert.Empty(t, f.notifier.requests)
}
