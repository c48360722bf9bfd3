package transport

import (
	"context"
	"fmt"
	"sync"
)

// Bus is an in-process message bus. Each service gets an endpoint; messages
// are delivered synchronously to every matching subscription.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	// fail, when set, makes every publish return it wrapped in ErrTransport.
	fail error
}

type subscription struct {
	id      int
	service string
	channel string
	handler Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// SetFailure makes subsequent publishes fail with err; nil restores delivery.
func (b *Bus) SetFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// Subscribe registers h for messages on channel addressed to service and
// returns a function that removes the subscription.
func (b *Bus) Subscribe(service, channel string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := len(b.subs) + 1
	for _, s := range b.subs {
		id = max(id, s.id+1)
	}
	b.subs = append(b.subs, subscription{id: id, service: service, channel: channel, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	if b.fail != nil {
		err := b.fail
		b.mu.RUnlock()
		return fmt.Errorf("%w: publish %s/%s: %v", ErrTransport, msg.Channel, msg.Topic, err)
	}
	var matched []Handler
	for _, s := range b.subs {
		if s.channel == msg.Channel && targets(msg.Target, s.service) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		payload := append([]byte(nil), msg.Payload...)
		h.HandleMessage(ctx, Message{Channel: msg.Channel, Topic: msg.Topic, Target: msg.Target, Payload: payload})
	}
	return nil
}

// Endpoint returns a Transport bound to service.
func (b *Bus) Endpoint(service string) Transport {
	return &endpoint{bus: b, service: service}
}

type endpoint struct {
	bus     *Bus
	service string
}

func (e *endpoint) Publish(ctx context.Context, msg Message) error {
	return e.bus.publish(ctx, msg)
}

func (e *endpoint) Listen(ctx context.Context, channel string, h Handler) error {
	unsubscribe := e.bus.Subscribe(e.service, channel, h)
	defer unsubscribe()
	<-ctx.Done()
	return nil
}

func (e *endpoint) Close() error { return nil }
