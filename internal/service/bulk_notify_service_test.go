package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
	"github.com/noah-isme/sma-fee-api/pkg/jobs"
)

type batchStoreStub struct {
	batches map[string]*models.NotificationBatch
}

func newBatchStore() *batchStoreStub {
	return &batchStoreStub{batches: map[string]*models.NotificationBatch{}}
}

func (b *batchStoreStub) Create(_ context.Context, batch *models.NotificationBatch) error {
	batch.ID = "batch-1"
	batch.Status = models.BatchStatusQueued
	stored := *batch
	b.batches[batch.ID] = &stored
	return nil
}

func (b *batchStoreStub) FindByID(_ context.Context, id string) (*models.NotificationBatch, error) {
	batch, ok := b.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *batch
	return &out, nil
}

func (b *batchStoreStub) MarkRunning(_ context.Context, id string, startedAt time.Time) error {
	b.batches[id].Status = models.BatchStatusRunning
	b.batches[id].StartedAt = &startedAt
	return nil
}

func (b *batchStoreStub) UpdateCounts(_ context.Context, id string, sent, failed, skipped int) error {
	b.batches[id].SentCount, b.batches[id].FailedCount, b.batches[id].SkippedCount = sent, failed, skipped
	return nil
}

func (b *batchStoreStub) Finish(_ context.Context, id string, status models.BatchStatus, msg *string, finishedAt time.Time) error {
	b.batches[id].Status = status
	b.batches[id].ErrorMessage = msg
	b.batches[id].FinishedAt = &finishedAt
	return nil
}

type audienceStub struct {
	*studentDirectoryStub
	users   []models.User
	listErr error
}

func (a *audienceStub) ListByRoles(_ context.Context, roles []models.UserRole) ([]models.User, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	var out []models.User
	for _, u := range a.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type messageLogStub struct {
	written []models.Message
	views   []models.MessageView
	asked   []string
}

func (m *messageLogStub) CreateMany(_ context.Context, messages []models.Message) error {
	m.written = append(m.written, messages...)
	return nil
}

func (m *messageLogStub) ListForRecipients(_ context.Context, ids []string, _ int) ([]models.MessageView, error) {
	m.asked = ids
	return m.views, nil
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type bulkFixture struct {
	svc      *BulkNotifyService
	batches  *batchStoreStub
	audience *audienceStub
	messages *messageLogStub
	queue    *dispatcherStub
	sender   *recordingSender
}

func newBulkFixture() *bulkFixture {
	token := "tok-t1"
	f := &bulkFixture{
		batches: newBatchStore(),
		audience: &audienceStub{
			studentDirectoryStub: newStudentDirectory(attendanceProfile()),
			users: []models.User{
				{ID: "t1", Name: "Teacher", Role: models.RoleTeacher, DeviceToken: &token},
				{ID: "g1", Name: "Ravi", Role: models.RoleParent},
			},
		},
		messages: &messageLogStub{},
		queue:    &dispatcherStub{},
		sender:   newRecordingSender(),
	}
	dispatcher := NewNotificationService(f.sender.set(), nil, nil, time.Second, nil)
	f.svc = NewBulkNotifyService(f.batches, f.audience, f.messages, dispatcher, nil, nil, fixedClock("2025-03-03"), nil)
	f.svc.UseQueue(f.queue)
	return f
}

func TestBulkSubmitQueuesBatch(t *testing.T) {
	f := newBulkFixture()

	batch, err := f.svc.Submit(context.Background(), dto.BulkNotifyRequest{
		Channel:     "push",
		TargetGroup: "all",
		Subject:     "Holiday",
		Body:        "School closed Friday",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusQueued, batch.Status)
	assert.Equal(t, models.EventAnnouncementPublished, batch.Kind)
	assert.Equal(t, models.ChannelPush, batch.Channel)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, JobTypeNotificationBatch, f.queue.jobs[0].Type)
	assert.Equal(t, batch.ID, f.queue.jobs[0].Payload)
}

func TestBulkSubmitValidation(t *testing.T) {
	f := newBulkFixture()
	cases := map[string]dto.BulkNotifyRequest{
		"bad channel": {Channel: "PIGEON", TargetGroup: "ALL", Subject: "s", Body: "b"},
		"bad group":   {Channel: "SMS", TargetGroup: "ALUMNI", Subject: "s", Body: "b"},
		"bad kind":    {Kind: "GOSSIP", Channel: "SMS", TargetGroup: "ALL", Subject: "s", Body: "b"},
		"no body":     {Channel: "SMS", TargetGroup: "ALL", Subject: "s"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), req, "")
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, f.batches.batches)
}

func TestBulkSubmitMarksBatchFailedWhenQueueRejects(t *testing.T) {
	f := newBulkFixture()
	f.queue.err = errors.New("queue full")

	_, err := f.svc.Submit(context.Background(), dto.BulkNotifyRequest{Channel: "SMS", TargetGroup: "PARENTS", Subject: "s", Body: "b"}, "")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.BatchStatusFailed, f.batches.batches["batch-1"].Status)
	assert.Equal(t, "queue full", *f.batches.batches["batch-1"].ErrorMessage)
}

func TestBulkProcessDispatchesAndRecordsCounts(t *testing.T) {
	f := newBulkFixture()
	ctx := context.Background()
	batch, err := f.svc.Submit(ctx, dto.BulkNotifyRequest{Channel: "PUSH", TargetGroup: "ALL", Subject: "Holiday", Body: "Closed"}, "admin-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Process(ctx, f.queue.jobs[0]))

	stored := f.batches.batches[batch.ID]
	assert.Equal(t, models.BatchStatusCompleted, stored.Status)
	// s1 and guardian g1 via fan-out, t1 directly; g1 again as a parent is deduplicated and has no token.
	assert.Equal(t, 3, stored.SentCount)
	assert.Equal(t, 0, stored.FailedCount)
	assert.Equal(t, []string{"PUSH:tok-s", "PUSH:tok-g", "PUSH:tok-t1"}, channelsTo(f.sender.messages()))
	require.Len(t, f.messages.written, 3)
	assert.Equal(t, "Holiday\n\nClosed", f.messages.written[0].Content)

	// A redelivered job for a finished batch does nothing.
	require.NoError(t, f.svc.Process(ctx, f.queue.jobs[0]))
	assert.Len(t, f.sender.messages(), 3)
}

func TestBulkProcessFailureIsRetriedThenRecorded(t *testing.T) {
	f := newBulkFixture()
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, dto.BulkNotifyRequest{Channel: "PUSH", TargetGroup: "TEACHERS", Subject: "s", Body: "b"}, "")
	require.NoError(t, err)
	f.audience.listErr = errors.New("db down")

	job := f.queue.jobs[0]
	procErr := f.svc.Process(ctx, job)
	require.Error(t, procErr)
	assert.Equal(t, models.BatchStatusRunning, f.batches.batches["batch-1"].Status)

	f.svc.OnJobComplete(ctx, job, procErr)
	assert.Equal(t, models.BatchStatusFailed, f.batches.batches["batch-1"].Status)
	assert.Contains(t, *f.batches.batches["batch-1"].ErrorMessage, "db down")

	_, err = f.svc.GetBatch(ctx, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBulkRunsThroughQueue(t *testing.T) {
	f := newBulkFixture()
	done := make(chan error, 1)
	queue := jobs.NewQueue("notifications", f.svc.Process, jobs.QueueConfig{
		Workers: 1,
		OnComplete: func(ctx context.Context, job jobs.Job, err error) {
			f.svc.OnJobComplete(ctx, job, err)
			done <- err
		},
	})
	f.svc.UseQueue(queue)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	batch, err := f.svc.Submit(ctx, dto.BulkNotifyRequest{Channel: "PUSH", TargetGroup: "TEACHERS", Subject: "Staff meeting", Body: "4pm"}, "")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not processed")
	}
	got, err := f.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, got.Status)
	assert.Equal(t, 1, got.SentCount)
}

type submitterStub struct {
	req dto.BulkNotifyRequest
	err error
}

func (s *submitterStub) Submit(_ context.Context, req dto.BulkNotifyRequest, _ string) (*models.NotificationBatch, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.NotificationBatch{ID: "batch-9", Status: models.BatchStatusQueued}, nil
}

type announcementRepoStub struct {
	created []models.Announcement
}

func (r *announcementRepoStub) List(context.Context, int, int) ([]models.Announcement, int, error) {
	return r.created, len(r.created), nil
}

func (r *announcementRepoStub) GetByID(_ context.Context, id string) (*models.Announcement, error) {
	for _, a := range r.created {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *announcementRepoStub) Create(_ context.Context, a *models.Announcement) error {
	a.ID = "ann-1"
	r.created = append(r.created, *a)
	return nil
}

func (r *announcementRepoStub) Delete(context.Context, string) error { return nil }

func TestPublishAnnouncementQueuesPushByDefault(t *testing.T) {
	repo := &announcementRepoStub{}
	bulk := &submitterStub{}
	svc := NewAnnouncementService(repo, bulk, nil, nil)

	out, err := svc.Publish(context.Background(), dto.PublishAnnouncementRequest{Title: " Sports day ", Content: "Friday", TargetGroup: "students"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "Sports day", out.Announcement.Title)
	require.NotNil(t, out.Batch)
	assert.Equal(t, models.ChannelPush, bulk.req.Channel)
	assert.Equal(t, models.TargetGroupStudents, bulk.req.TargetGroup)
	assert.Equal(t, models.EventAnnouncementPublished, bulk.req.Kind)

	bulk.err = appErrors.Clone(appErrors.ErrInternal, "failed to queue notification batch")
	out, err = svc.Publish(context.Background(), dto.PublishAnnouncementRequest{Title: "t", Content: "c", TargetGroup: "ALL"}, "")
	require.NoError(t, err)
	assert.Nil(t, out.Batch)
	assert.Equal(t, "failed to queue notification batch", out.NotificationError)
	assert.Len(t, repo.created, 2)

	_, err = svc.Publish(context.Background(), dto.PublishAnnouncementRequest{Title: "t", Content: "c", TargetGroup: "ALUMNI"}, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "nope")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
