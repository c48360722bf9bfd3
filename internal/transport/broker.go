package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Broker is a websocket hub routing published frames to the clients that
// subscribed to the channel and match the frame's target service.
type Broker struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*brokerClient]struct{}
}

type brokerClient struct {
	conn    *websocket.Conn
	service string

	writeMu sync.Mutex

	mu       sync.RWMutex
	channels map[string]bool
}

// NewBroker returns a broker ready to be mounted as an http.Handler.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:  logger,
		clients: make(map[*brokerClient]struct{}),
	}
}

// ServeHTTP upgrades the request. Clients identify themselves with the
// `service` query parameter.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		http.Error(w, "service query parameter is required", http.StatusBadRequest)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Broker upgrade failed", "service", service, "error", err)
		return
	}

	c := &brokerClient{conn: conn, service: service, channels: make(map[string]bool)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	b.logger.Info("Broker client connected", "service", service, "remote", r.RemoteAddr)

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		conn.Close()
		b.logger.Info("Broker client disconnected", "service", service)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := unmarshalFrame(data)
		if err != nil {
			b.logger.Warn("Broker received invalid frame", "service", service, "bytes", len(data), "error", err)
			continue
		}
		switch f.Action {
		case actionSub:
			c.mu.Lock()
			c.channels[f.Channel] = true
			c.mu.Unlock()
		case actionPub:
			f.Source = service
			b.route(f)
		default:
			b.logger.Warn("Broker received unknown action", "service", service, "action", f.Action)
		}
	}
}

func (b *Broker) route(f frame) {
	f.Action = actionMsg
	f.Timestamp = time.Now().UnixMilli()
	data, err := marshalFrame(f)
	if err != nil {
		b.logger.Error("Broker frame encoding failed", "channel", f.Channel, "error", err)
		return
	}

	b.mu.RLock()
	var recipients []*brokerClient
	for c := range b.clients {
		c.mu.RLock()
		subscribed := c.channels[f.Channel]
		c.mu.RUnlock()
		if subscribed && targets(f.Target, c.service) {
			recipients = append(recipients, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range recipients {
		if err := c.write(data); err != nil {
			b.logger.Warn("Broker delivery failed", "service", c.service, "channel", f.Channel, "error", err)
		}
	}
}

func (c *brokerClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Subscribers returns how many connected clients listen on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for c := range b.clients {
		c.mu.RLock()
		if c.channels[channel] {
			n++
		}
		c.mu.RUnlock()
	}
	return n
}
