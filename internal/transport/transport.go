// Package transport moves opaque payloads between services over named
// channels. Delivery is at-most-once: there is no acknowledgement and no
// redelivery, and a failed Publish is reported to the caller only.
//
// Three implementations share the same contract: PGNotify rides on Postgres
// LISTEN/NOTIFY, WebsocketClient talks to the Broker hub in this package, and
// Bus is an in-process bus for tests and single-binary setups.
package transport

import (
	"context"
	"errors"
	"strings"
)

// ErrTransport is wrapped by every publish or delivery failure.
var ErrTransport = errors.New("transport failure")

// Message is one payload on a channel. Target names the service it is meant
// for; an empty Target reaches every listener on the channel.
type Message struct {
	Channel string
	Topic   string
	Target  string
	Payload []byte
}

// Handler receives messages from a listening transport.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) { f(ctx, msg) }

// Publisher sends messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Transport is a publisher that can also listen on a channel. Listen blocks
// until ctx is cancelled or the transport gives up, and is intended to be
// called with `go`.
type Transport interface {
	Publisher
	Listen(ctx context.Context, channel string, h Handler) error
	Close() error
}

// targets reports whether a message addressed to target should be delivered
// to service. Service names compare case-insensitively.
func targets(target, service string) bool {
	return target == "" || strings.EqualFold(target, service)
}
