package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fee-api/internal/dto"
	"github.com/noah-isme/sma-fee-api/internal/models"
	appErrors "github.com/noah-isme/sma-fee-api/pkg/errors"
)

type familyStub struct {
	*studentDirectoryStub
	users    map[string]models.User
	children map[string][]models.User
}

func (f *familyStub) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (f *familyStub) ListChildren(_ context.Context, parentID string) ([]models.User, error) {
	return f.children[parentID], nil
}

func newMessageFixture() (*MessageService, *messageLogStub, *recordingSender) {
	profile := attendanceProfile()
	family := &familyStub{
		studentDirectoryStub: newStudentDirectory(profile),
		users: map[string]models.User{
			"g1":        *profile.Guardian,
			studentAsha: profile.Student,
		},
		children: map[string][]models.User{"g1": {profile.Student}},
	}
	log := &messageLogStub{}
	sender := newRecordingSender()
	dispatcher := NewNotificationService(sender.set(), nil, nil, time.Second, nil)
	return NewMessageService(family, log, dispatcher, nil, fixedClock("2025-03-03"), nil), log, sender
}

func TestSendToStudentWritesPortalCopies(t *testing.T) {
	svc, log, sender := newMessageFixture()

	out, err := svc.SendToStudent(context.Background(), dto.DirectMessageRequest{StudentID: studentAsha, Subject: " Homework ", Body: "Missing essay"}, "t1")
	require.NoError(t, err)
	require.Len(t, log.written, 2)
	assert.Equal(t, studentAsha, log.written[0].RecipientID)
	assert.Equal(t, "Homework\n\nMissing essay", log.written[0].Content)
	assert.Equal(t, "g1", log.written[1].RecipientID)
	assert.Equal(t, "MESSAGE ABOUT CHILD Asha: Homework\n\nMissing essay", log.written[1].Content)
	assert.Equal(t, "t1", *log.written[1].SenderID)
	assert.Nil(t, out.Notification)
	assert.Empty(t, sender.messages())
}

func TestSendToStudentDeliversOnChannel(t *testing.T) {
	svc, _, sender := newMessageFixture()
	push := models.Channel("push")

	out, err := svc.SendToStudent(context.Background(), dto.DirectMessageRequest{StudentID: studentAsha, Subject: "Homework", Body: "Missing essay", Channel: &push}, "t1")
	require.NoError(t, err)
	require.NotNil(t, out.Notification)
	assert.Equal(t, models.NotificationStatusSent, out.Notification.Status)

	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Homework", sent[0].title)
	assert.Equal(t, "MESSAGE ABOUT CHILD Asha: Homework", sent[1].title)
}

func TestSendToStudentErrors(t *testing.T) {
	svc, _, _ := newMessageFixture()
	ctx := context.Background()

	_, err := svc.SendToStudent(ctx, dto.DirectMessageRequest{StudentID: unknownStudent, Subject: "s", Body: "b"}, "")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	fax := models.Channel("FAX")
	_, err = svc.SendToStudent(ctx, dto.DirectMessageRequest{StudentID: studentAsha, Subject: "s", Body: "b", Channel: &fax}, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListForParentIncludesChildren(t *testing.T) {
	svc, log, _ := newMessageFixture()
	log.views = []models.MessageView{{Message: models.Message{ID: "m1", RecipientID: studentAsha}, RecipientName: "Asha"}}

	views, err := svc.ListForParent(context.Background(), "g1")
	require.NoError(t, err)
	assert.Len(t, views, 1)
	assert.Equal(t, []string{"g1", studentAsha}, log.asked)

	_, err = svc.ListForParent(context.Background(), studentAsha)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
