package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	tele "gopkg.in/telebot.v4"

	"laundromat-backend/internal/model"
)

type fakeTelegram struct {
	to   tele.Recipient
	what interface{}
	err  error
}

func (f *fakeTelegram) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.to = to
	f.what = what
	return &tele.Message{}, f.err
}

func TestTelegramSender_Send(t *testing.T) {
	api := &fakeTelegram{}
	s := NewTelegramSender(api)
	msg := Message{Text: "Dryer D-11: 45 seconds remaining"}

	require.NoError(t, s.Send(context.Background(), model.Recipient{TargetID: "-100123"}, msg))
	assert.Equal(t, "-100123", api.to.Recipient())
	assert.Equal(t, msg.Text, api.what)

	err := s.Send(context.Background(), model.Recipient{TargetID: "not-a-number"}, msg)
	assert.ErrorIs(t, err, model.ErrDeliveryFailure)

	api.err = tele.ErrBlockedByUser
	assert.ErrorIs(t, s.Send(context.Background(), model.Recipient{TargetID: "42"}, msg), ErrRecipientGone)

	api.err = errors.New("timeout")
	err = s.Send(context.Background(), model.Recipient{TargetID: "42"}, msg)
	assert.ErrorIs(t, err, model.ErrDeliveryFailure)
	assert.NotErrorIs(t, err, ErrRecipientGone)
}

func TestChatRecipient(t *testing.T) {
	r := ChatRecipient(&tele.Chat{ID: 42, Type: tele.ChatPrivate, FirstName: "Ada", LastName: "L"})
	assert.Equal(t, model.Recipient{TargetID: "42", Label: "private:Ada L", Channel: model.ChannelTelegram}, r)

	r = ChatRecipient(&tele.Chat{ID: -7, Type: tele.ChatGroup, Title: "Floor 3"})
	assert.Equal(t, "group:Floor 3", r.Label)

	r = ChatRecipient(&tele.Chat{ID: 9, Type: tele.ChatPrivate})
	assert.Equal(t, "private:9", r.Label)
}

func TestTelegramListener_HandleRegistersChat(t *testing.T) {
	ctx := context.Background()
	s := newRecipientStore(t)
	l := NewTelegramListener(nil, s.Recipients(), "You will be notified.", zaptest.NewLogger(t))

	var replies []interface{}
	send := func(what interface{}, _ ...interface{}) error {
		replies = append(replies, what)
		return nil
	}

	chat := &tele.Chat{ID: 42, Type: tele.ChatPrivate, Username: "ada"}
	require.NoError(t, l.handle(ctx, chat, send))
	require.NoError(t, l.handle(ctx, chat, send))
	require.NoError(t, l.handle(ctx, nil, send))

	recipients, err := s.Recipients().List(ctx)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, "42", recipients[0].TargetID)
	assert.Equal(t, "private:ada", recipients[0].Label)
	assert.Equal(t, []interface{}{"You will be notified.", "You will be notified."}, replies)
}
