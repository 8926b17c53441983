package service

import (
	"context"
	"testing"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// tick returns a clock advancing one second per call.
func tick(start time.Time) clock {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func TestSendMessage(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	msg, err := f.chat.SendMessage(ctx, f.clientActor, SendMessageInput{ReceiverID: f.trainer.ID, Message: "  olá  "})
	require.NoError(t, err)
	assert.Equal(t, "olá", msg.Message)
	assert.False(t, msg.Read)

	events := f.publisher.ofType(notify.EventNewMessage)
	require.Len(t, events, 1)
	assert.ElementsMatch(t, []string{f.client.ID.Hex(), f.trainer.ID.Hex()}, events[0].Topics)
	payload := events[0].Event.Payload.(map[string]interface{})
	assert.Equal(t, "Rita", payload["senderName"])

	_, err = f.chat.SendMessage(ctx, f.clientActor, SendMessageInput{ReceiverID: f.trainer.ID, Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.chat.SendMessage(ctx, f.clientActor, SendMessageInput{ReceiverID: primitive.NewObjectID(), Message: "olá"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	imageOnly, err := f.chat.SendMessage(ctx, f.clientActor, SendMessageInput{ReceiverID: f.trainer.ID, Image: "http://x/uploads/chat/a.png"})
	require.NoError(t, err)
	assert.Empty(t, imageOnly.Message)
}

func TestConversationAndMarkRead(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	f.chat.(*chatService).now = tick(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	for _, m := range []struct {
		from Actor
		to   primitive.ObjectID
		text string
	}{
		{f.clientActor, f.trainer.ID, "um"},
		{f.trainerActor, f.client.ID, "dois"},
		{f.clientActor, f.trainer.ID, "três"},
	} {
		_, err := f.chat.SendMessage(ctx, m.from, SendMessageInput{ReceiverID: m.to, Message: m.text})
		require.NoError(t, err)
	}

	conv, err := f.chat.GetConversation(ctx, f.trainerActor, f.client.ID)
	require.NoError(t, err)
	require.Len(t, conv, 3)
	assert.Equal(t, "um", conv[0].Message)
	assert.Equal(t, "três", conv[2].Message)

	n, err := f.chat.MarkRead(ctx, f.trainerActor, f.client.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.chat.MarkRead(ctx, f.trainerActor, f.client.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestListContacts(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	f.chat.(*chatService).now = tick(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))

	created, err := f.userSvc.CreateUser(ctx, f.trainerActor, CreateUserInput{Name: "Nuno", Email: "nuno@x.pt", Password: "secret123"})
	require.NoError(t, err)
	admin, err := f.users.GetByEmail(ctx, "admin@gym.pt")
	require.NoError(t, err)

	_, err = f.chat.SendMessage(ctx, f.clientActor, SendMessageInput{ReceiverID: f.trainer.ID, Message: "olá"})
	require.NoError(t, err)
	_, err = f.chat.SendMessage(ctx, f.adminActor, SendMessageInput{ReceiverID: f.trainer.ID, Message: "aviso", IsAlert: true})
	require.NoError(t, err)

	contacts, err := f.chat.ListContacts(ctx, f.trainerActor)
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	assert.Equal(t, admin.ID, contacts[0].UserID)
	assert.Equal(t, 1, contacts[0].UnreadCount)
	assert.Equal(t, f.client.ID, contacts[1].UserID)
	require.NotNil(t, contacts[1].LastMessage)
	assert.Equal(t, "olá", contacts[1].LastMessage.Message)
	assert.Equal(t, created.ID, contacts[2].UserID)
	assert.Nil(t, contacts[2].LastMessage)

	clientContacts, err := f.chat.ListContacts(ctx, f.clientActor)
	require.NoError(t, err)
	require.Len(t, clientContacts, 1)
	assert.Equal(t, f.trainer.ID, clientContacts[0].UserID)
	assert.Equal(t, 0, clientContacts[0].UnreadCount)
}

func TestListContacts_ClientWithoutHistory(t *testing.T) {
	f := newPlanFixture(t)

	contacts, err := f.chat.ListContacts(context.Background(), f.clientActor)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, f.trainer.ID, contacts[0].UserID)
	assert.Equal(t, domain.RoleTrainer, contacts[0].Role)
}

func TestListContacts_SkipsDeletedUsers(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()
	ghost, ghostActor := f.seed("Fantasma", "ghost@x.pt", domain.RoleUser)
	_, err := f.chat.SendMessage(ctx, ghostActor, SendMessageInput{ReceiverID: f.adminActor.ID, Message: "olá"})
	require.NoError(t, err)
	require.NoError(t, f.users.Delete(ctx, ghost.ID))

	contacts, err := f.chat.ListContacts(ctx, f.adminActor)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestUploadImage(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	url, err := f.chat.UploadImage(ctx, f.clientActor, pngUpload(1024))
	require.NoError(t, err)
	assert.Regexp(t, `^https://cdn\.test/[0-9a-f-]+\.png$`, url)

	_, err = f.chat.UploadImage(ctx, f.clientActor, nil)
	assert.ErrorIs(t, err, ErrFileRequired)

	f.chatFiles.putErr = errBoom
	_, err = f.chat.UploadImage(ctx, f.clientActor, pngUpload(1024))
	assert.Equal(t, KindDependency, KindOf(err))
}
