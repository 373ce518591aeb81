package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/store"
)

// TelegramAPI is the part of *tele.Bot used to send messages.
type TelegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// NewTelegramBot creates a long-polling bot.
func NewTelegramBot(token string, pollTimeout time.Duration) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	return tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
}

// TelegramSender delivers notifications to Telegram chats. The recipient
// target id is the numeric chat id.
type TelegramSender struct {
	api TelegramAPI
}

// NewTelegramSender wraps api as a Sender.
func NewTelegramSender(api TelegramAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

func (s *TelegramSender) Channel() string { return model.ChannelTelegram }

func (s *TelegramSender) Send(_ context.Context, r model.Recipient, msg Message) error {
	chatID, err := strconv.ParseInt(r.TargetID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", r.TargetID, model.ErrDeliveryFailure)
	}
	if _, err := s.api.Send(tele.ChatID(chatID), msg.Text); err != nil {
		if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrChatNotFound) {
			return fmt.Errorf("chat %d: %v: %w", chatID, err, ErrRecipientGone)
		}
		return fmt.Errorf("telegram chat %d: %v: %w", chatID, err, model.ErrDeliveryFailure)
	}
	return nil
}

// TelegramListener registers every chat that talks to the bot as a
// recipient, the Telegram counterpart of the LINE webhook.
type TelegramListener struct {
	bot        *tele.Bot
	recipients store.RecipientStore
	reply      string
	log        *zap.Logger
}

// NewTelegramListener creates a listener. reply, when set, answers every
// message.
func NewTelegramListener(bot *tele.Bot, recipients store.RecipientStore, reply string, log *zap.Logger) *TelegramListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &TelegramListener{
		bot:        bot,
		recipients: recipients,
		reply:      reply,
		log:        log.With(zap.String("component", "telegram")),
	}
}

// Run polls for updates until ctx is done.
func (l *TelegramListener) Run(ctx context.Context) {
	l.bot.Handle(tele.OnText, func(c tele.Context) error {
		return l.handle(ctx, c.Chat(), c.Send)
	})

	go func() {
		<-ctx.Done()
		l.bot.Stop()
	}()
	l.log.Info("polling started")
	l.bot.Start() // blocks until Stop() called
	l.log.Info("polling stopped")
}

func (l *TelegramListener) handle(ctx context.Context, chat *tele.Chat, send func(what interface{}, opts ...interface{}) error) error {
	if chat == nil {
		return nil
	}
	created, err := l.recipients.Register(ctx, ChatRecipient(chat))
	if err != nil {
		l.log.Error("recipient insert error", zap.Int64("chat_id", chat.ID), zap.Error(err))
		return nil
	}
	if created {
		l.log.Info("registered recipient", zap.Int64("chat_id", chat.ID))
	}
	if l.reply != "" {
		if err := send(l.reply); err != nil {
			l.log.Warn("reply error", zap.Int64("chat_id", chat.ID), zap.Error(err))
		}
	}
	return nil
}

// ChatRecipient converts a Telegram chat into a recipient.
func ChatRecipient(chat *tele.Chat) model.Recipient {
	name := chat.Username
	if name == "" {
		name = chat.Title
	}
	if name == "" {
		name = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	id := strconv.FormatInt(chat.ID, 10)
	if name == "" {
		name = id
	}
	return model.Recipient{
		TargetID: id,
		Label:    string(chat.Type) + ":" + name,
		Channel:  model.ChannelTelegram,
	}
}
