// Package telegram adapts telebot long polling to the transport contract.
// Chat addresses are decimal chat IDs.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"onboardbot/internal/logger"
	"onboardbot/internal/transport"
)

// photoMIME is what Telegram re-encodes every photo upload to.
const photoMIME = "image/jpeg"

// Client is the Telegram transport adapter.
type Client struct {
	token       string
	pollTimeout time.Duration
	handler     transport.Handler

	bot *tele.Bot
}

// New creates an unconnected adapter.
func New(token string, longPollTimeoutSeconds int, handler transport.Handler) *Client {
	if longPollTimeoutSeconds <= 0 {
		longPollTimeoutSeconds = 10
	}
	return &Client{
		token:       token,
		pollTimeout: time.Duration(longPollTimeoutSeconds) * time.Second,
		handler:     handler,
	}
}

// Start authorizes the bot and begins long polling in the background.
func (c *Client) Start(ctx context.Context) error {
	bot, err := tele.NewBot(tele.Settings{
		Token:  c.token,
		Poller: &tele.LongPoller{Timeout: c.pollTimeout},
		Client: buildHTTPClient(),
		OnError: func(err error, _ tele.Context) {
			logger.TG.Error("handler error",
				slog.String("event", "tg.handler_error"),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: authorize: %w", err)
	}
	c.bot = bot

	bot.Handle(tele.OnText, c.onUpdate)
	bot.Handle(tele.OnPhoto, c.onUpdate)
	bot.Handle(tele.OnDocument, c.onUpdate)

	logger.TG.Info("client ready",
		slog.String("event", "tg.ready"),
		slog.String("username", bot.Me.Username),
	)
	go bot.Start()
	return nil
}

// Close stops the long-poll loop.
func (c *Client) Close() error {
	if c.bot != nil {
		c.bot.Stop()
	}
	return nil
}

// Send delivers a plain-text message to the given chat ID.
func (c *Client) Send(ctx context.Context, to, text string) error {
	id, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: parse chat id %q: %w", to, err)
	}
	if _, err := c.bot.Send(tele.ChatID(id), text); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (c *Client) onUpdate(tc tele.Context) error {
	if c.handler == nil {
		return nil
	}
	m := tc.Message()
	if m == nil {
		return nil
	}

	chat := m.Chat
	msg := transport.Message{
		From:      strconv.FormatInt(chat.ID, 10),
		Body:      messageBody(m),
		FromSelf:  m.Sender != nil && m.Sender.IsBot,
		Broadcast: chat.Type == tele.ChatChannel || chat.Type == tele.ChatChannelPrivate,
		IsGroup:   chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup,
		ChatName:  chatName(chat, m.Sender),
	}

	if mime, file, ok := attachment(m); ok {
		msg.HasMedia = true
		msg.MimeType = mime
		bot := c.bot
		msg.Download = func(ctx context.Context) (*transport.Media, error) {
			rc, err := bot.File(&file)
			if err != nil {
				return nil, fmt.Errorf("telegram: download media: %w", err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("telegram: read media: %w", err)
			}
			return &transport.Media{MimeType: mime, Data: data}, nil
		}
	}

	ctx := logger.WithHandler(logger.WithAddress(context.Background(), msg.From), "tg.message")
	if logger.ShouldSampleDebug() {
		logger.TG.LogAttrs(ctx, slog.LevelDebug, "message received",
			slog.String("event", "tg.message"),
			slog.String("address", msg.From),
			slog.Bool("has_media", msg.HasMedia),
			slog.Bool("is_group", msg.IsGroup),
			slog.String("chat_name", logger.SanitizeLimit(msg.ChatName, 64)),
		)
	}
	c.handler(ctx, msg)
	return nil
}

// attachment picks the media payload out of a message. Photos always arrive
// as JPEG; documents carry their declared MIME type.
func attachment(m *tele.Message) (mime string, file tele.File, ok bool) {
	switch {
	case m.Photo != nil:
		return photoMIME, m.Photo.File, true
	case m.Document != nil:
		return m.Document.MIME, m.Document.File, true
	}
	return "", tele.File{}, false
}

func messageBody(m *tele.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

func chatName(chat *tele.Chat, sender *tele.User) string {
	if chat.Title != "" {
		return chat.Title
	}
	if sender == nil {
		return ""
	}
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}
