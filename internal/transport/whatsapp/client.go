// Package whatsapp adapts whatsmeow to the transport contract: QR pairing on
// first run, inbound message normalization, lazy media download.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"onboardbot/internal/logger"
	"onboardbot/internal/transport"
)

// Client is the WhatsApp transport adapter.
type Client struct {
	sessionDB string
	handler   transport.Handler

	container *sqlstore.Container
	wa        *whatsmeow.Client
}

// New creates an unconnected adapter. The session database is created on
// Start if it does not exist yet.
func New(sessionDB string, handler transport.Handler) *Client {
	return &Client{sessionDB: sessionDB, handler: handler}
}

// Start opens the device session and connects. On an unpaired session the QR
// code is rendered to the terminal until the phone scans it.
func (c *Client) Start(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", c.sessionDB)
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLogger{logger.WA})
	if err != nil {
		return fmt.Errorf("whatsapp: session store: %w", err)
	}
	c.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp: device: %w", err)
	}

	c.wa = whatsmeow.NewClient(device, waLogger{logger.WA})
	c.wa.AddEventHandler(c.handleEvent)

	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					fmt.Fprintln(os.Stdout, "\nScan QR Code:")
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				default:
					logger.WA.Info("pairing",
						slog.String("event", "wa.pairing"),
						slog.String("status", evt.Event),
					)
				}
			}
		}()
		return nil
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	return nil
}

// Close disconnects from WhatsApp and closes the session store.
func (c *Client) Close() error {
	if c.wa != nil {
		c.wa.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

// Send delivers a plain-text message to the given JID.
func (c *Client) Send(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("whatsapp: parse jid %q: %w", to, err)
	}
	_, err = c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	return nil
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		logger.WA.Info("client ready", slog.String("event", "wa.ready"))
	case *events.LoggedOut:
		logger.WA.Error("authentication lost",
			slog.String("event", "wa.auth_failure"),
			slog.String("cause", v.Reason.String()),
		)
	case *events.Disconnected:
		logger.WA.Warn("client disconnected", slog.String("event", "wa.disconnected"))
	case *events.Message:
		c.handleMessage(v)
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	if c.handler == nil {
		return
	}
	msg := transport.Message{
		From:      evt.Info.Chat.String(),
		Body:      extractBody(evt.Message),
		FromSelf:  evt.Info.IsFromMe,
		Broadcast: evt.Info.Chat.Server == types.BroadcastServer,
		IsGroup:   evt.Info.IsGroup,
		ChatName:  evt.Info.PushName,
	}

	if media, ok := downloadable(evt.Message); ok {
		msg.HasMedia = true
		msg.MimeType = media.GetMimetype()
		wa := c.wa
		msg.Download = func(ctx context.Context) (*transport.Media, error) {
			data, err := wa.Download(ctx, media)
			if err != nil {
				return nil, fmt.Errorf("whatsapp: download media: %w", err)
			}
			return &transport.Media{MimeType: media.GetMimetype(), Data: data}, nil
		}
	}

	ctx := logger.WithHandler(logger.WithAddress(context.Background(), msg.From), "wa.message")
	// Receipt logs are sampled: one per chat burst is enough to trace flow.
	if logger.ShouldSampleDebug() {
		logger.WA.LogAttrs(ctx, slog.LevelDebug, "message received",
			slog.String("event", "wa.message"),
			slog.String("address", msg.From),
			slog.Bool("has_media", msg.HasMedia),
			slog.Bool("is_group", msg.IsGroup),
			slog.String("chat_name", logger.SanitizeLimit(msg.ChatName, 64)),
		)
	}
	c.handler(ctx, msg)
}

// mediaMessage is the slice of the whatsmeow download interface the adapter
// needs: bytes plus the declared media type.
type mediaMessage interface {
	whatsmeow.DownloadableMessage
	GetMimetype() string
}

func downloadable(msg *waE2E.Message) (mediaMessage, bool) {
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage(), true
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage(), true
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage(), true
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage(), true
	}
	return nil, false
}

func extractBody(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	case msg.GetDocumentMessage().GetCaption() != "":
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}
