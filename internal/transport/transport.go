// Package transport defines the chat transport boundary. Adapters deliver
// inbound messages to a registered handler and send plain-text replies; the
// dispatcher never sees adapter-specific types.
package transport

import "context"

// Media is a downloaded attachment.
type Media struct {
	MimeType string
	Data     []byte
}

// Message is one inbound chat event, normalized across adapters. Download is
// nil when the message carries no media; attachment bytes are fetched lazily
// so the dispatcher only pays for downloads it persists.
type Message struct {
	From      string
	Body      string
	HasMedia  bool
	MimeType  string
	FromSelf  bool
	Broadcast bool
	IsGroup   bool
	ChatName  string
	Download  func(ctx context.Context) (*Media, error)
}

// Handler consumes inbound messages. It must not panic; adapters call it
// synchronously from their receive loop.
type Handler func(ctx context.Context, msg Message)

// Client is a connected chat transport.
type Client interface {
	// Start connects and begins delivering messages until ctx is done or
	// Close is called.
	Start(ctx context.Context) error
	// Close disconnects the transport.
	Close() error
	// Send delivers a plain-text reply to the given channel address.
	Send(ctx context.Context, to, text string) error
}
