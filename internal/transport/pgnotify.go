package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second

	// Postgres rejects NOTIFY payloads of 8000 bytes or more.
	maxNotifyPayload = 7999
)

// envelope is the JSON text carried in a pg_notify payload. Payload bytes are
// base64 encoded by encoding/json.
type envelope struct {
	Topic  string `json:"topic"`
	Target string `json:"target,omitempty"`
	Source string `json:"source,omitempty"`
	Data   []byte `json:"data"`
}

// Execer is the part of pgxpool.Pool (or pgx.Conn) used for publishing.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGNotify publishes with pg_notify and listens on a dedicated connection
// (not from the pool) so a long-lived LISTEN never starves queries.
type PGNotify struct {
	db      Execer
	dbURL   string
	service string
	logger  *slog.Logger
}

// NewPGNotify returns a transport identified as service. db is used for
// publishing; dbURL opens the listening connection.
func NewPGNotify(db Execer, dbURL, service string, logger *slog.Logger) *PGNotify {
	return &PGNotify{db: db, dbURL: dbURL, service: service, logger: logger}
}

func encodeEnvelope(msg Message, source string) (string, error) {
	data, err := json.Marshal(envelope{Topic: msg.Topic, Target: msg.Target, Source: source, Data: msg.Payload})
	if err != nil {
		return "", err
	}
	if len(data) > maxNotifyPayload {
		return "", fmt.Errorf("notify payload of %d bytes exceeds %d", len(data), maxNotifyPayload)
	}
	return string(data), nil
}

func decodeEnvelope(channel, payload string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Message{}, err
	}
	return Message{Channel: channel, Topic: env.Topic, Target: env.Target, Payload: env.Data}, nil
}

// Publish sends msg with pg_notify. It returns once Postgres accepted it.
func (p *PGNotify) Publish(ctx context.Context, msg Message) error {
	payload, err := encodeEnvelope(msg, p.service)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrTransport, msg.Channel, msg.Topic, err)
	}
	if _, err := p.db.Exec(ctx, "SELECT pg_notify($1, $2)", msg.Channel, payload); err != nil {
		return fmt.Errorf("%w: pg_notify %s/%s: %v", ErrTransport, msg.Channel, msg.Topic, err)
	}
	return nil
}

// Listen delivers notifications on channel addressed to this service. It
// reconnects automatically on connection loss and blocks until ctx is
// cancelled.
func (p *PGNotify) Listen(ctx context.Context, channel string, h Handler) error {
	backoff := reconnectBackoff

	for {
		err := p.listenLoop(ctx, channel, h)
		if ctx.Err() != nil {
			p.logger.Info("Channel listener stopped (context cancelled)", "channel", channel)
			return nil
		}

		p.logger.Error("Channel listener disconnected, reconnecting...",
			"channel", channel, "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return nil
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (p *PGNotify) listenLoop(ctx context.Context, channel string, h Handler) error {
	conn, err := pgx.Connect(ctx, p.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	p.logger.Info("Channel listener connected", "channel", channel, "service", p.service)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		msg, err := decodeEnvelope(notification.Channel, notification.Payload)
		if err != nil {
			p.logger.Warn("Failed to parse channel envelope",
				"channel", notification.Channel, "bytes", len(notification.Payload), "error", err)
			continue
		}
		if !targets(msg.Target, p.service) {
			continue
		}
		h.HandleMessage(ctx, msg)
	}
}

// Close is a no-op; the listening connection closes with its context.
func (p *PGNotify) Close() error { return nil }
