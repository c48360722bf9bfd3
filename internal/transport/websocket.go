package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// WebsocketClient connects to a Broker. Publishing shares one lazily dialed
// connection; every Listen call holds its own.
type WebsocketClient struct {
	url     string
	service string
	logger  *slog.Logger
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebsocketClient returns a client for the broker at brokerURL
// (ws:// or wss://) identified as service.
func NewWebsocketClient(brokerURL, service string, logger *slog.Logger) (*WebsocketClient, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("broker URL %q: scheme must be ws or wss", brokerURL)
	}
	q := u.Query()
	q.Set("service", service)
	u.RawQuery = q.Encode()

	return &WebsocketClient{
		url:     u.String(),
		service: service,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *WebsocketClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	return conn, nil
}

func writeFrame(conn *websocket.Conn, f frame) error {
	data, err := marshalFrame(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Publish hands msg to the broker. A broken connection is dropped so the next
// publish dials again; the failed message is not resent.
func (c *WebsocketClient) Publish(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			return fmt.Errorf("%w: publish %s/%s: %v", ErrTransport, msg.Channel, msg.Topic, err)
		}
		c.conn = conn
	}

	err := writeFrame(c.conn, frame{
		Action:  actionPub,
		Channel: msg.Channel,
		Topic:   msg.Topic,
		Target:  msg.Target,
		Data:    msg.Payload,
	})
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("%w: publish %s/%s: %v", ErrTransport, msg.Channel, msg.Topic, err)
	}
	return nil
}

// Listen subscribes to channel and delivers incoming messages to h,
// reconnecting with exponential backoff whenever the connection drops.
func (c *WebsocketClient) Listen(ctx context.Context, channel string, h Handler) error {
	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			conn, err := c.dial(ctx)
			if err != nil {
				c.logger.Debug("Broker dial failed, retrying", "url", c.url, "error", err)
				return nil, err
			}
			if err := writeFrame(conn, frame{Action: actionSub, Channel: channel}); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()))
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error("Broker unreachable, retrying", "url", c.url, "error", err)
			continue
		}

		c.logger.Info("Broker listener connected", "channel", channel, "service", c.service)
		err = c.readLoop(ctx, conn, h)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("Broker listener disconnected, reconnecting...", "channel", channel, "error", err)
	}
}

func (c *WebsocketClient) readLoop(ctx context.Context, conn *websocket.Conn, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := unmarshalFrame(data)
		if err != nil || f.Action != actionMsg {
			c.logger.Warn("Ignoring unexpected broker frame", "bytes", len(data), "error", err)
			continue
		}
		h.HandleMessage(ctx, f.message())
	}
}

// Close drops the publishing connection.
func (c *WebsocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
