package game

import (
	"context"
	"time"

	"github.com/albapepper/matchstats/internal/transport"
)

// commandTimeout bounds one proxy command publish.
const commandTimeout = 5 * time.Second

// scheduleTeleport sends every player to the lobby after the configured
// delay and returns how many players were scheduled.
func (c *Controller) scheduleTeleport(players []string) int {
	if len(players) == 0 || c.opts.Publisher == nil {
		return 0
	}
	players = append([]string(nil), players...)

	c.tmu.Lock()
	defer c.tmu.Unlock()
	if c.closed {
		return 0
	}
	c.running.Add(1)
	var t *time.Timer
	t = time.AfterFunc(c.opts.TeleportDelay, func() {
		defer c.running.Done()
		c.tmu.Lock()
		delete(c.timers, t)
		c.tmu.Unlock()
		c.teleport(players)
	})
	c.timers[t] = struct{}{}
	return len(players)
}

func (c *Controller) teleport(players []string) {
	c.logger.Info("Teleporting players", "count", len(players), "lobby", c.opts.LobbyServer)
	ok, failed := 0, 0
	for _, name := range players {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err := c.opts.Publisher.Publish(ctx, transport.Message{
			Channel: CommandChannel,
			Topic:   CommandTopic,
			Target:  c.opts.ProxyService,
			Payload: []byte("send " + name + " " + c.opts.LobbyServer),
		})
		cancel()
		if err != nil {
			failed++
			c.logger.Error("Failed to send teleport command", "player", name, "error", err)
			continue
		}
		ok++
	}
	c.logger.Info("Teleport commands sent", "succeeded", ok, "failed", failed)
}

// Close cancels teleports that have not started and waits for running ones.
func (c *Controller) Close() {
	c.tmu.Lock()
	c.closed = true
	for t := range c.timers {
		if t.Stop() {
			c.running.Done()
		}
		delete(c.timers, t)
	}
	c.tmu.Unlock()
	c.running.Wait()
}

// Wait blocks until every scheduled teleport has run.
func (c *Controller) Wait() {
	c.running.Wait()
}
