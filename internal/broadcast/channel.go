// Package broadcast fans committed mutations out to the other execution
// contexts sharing a named channel, mirroring the semantics of a same-origin
// browser broadcast channel: fire-and-forget delivery, FIFO per sender, no
// acknowledgment, no replay for contexts that subscribe late.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"patientcore/internal/metrics"
	"patientcore/pkg/domain"
)

// eventBufferSize bounds each subscriber's inbox. Events beyond the bound
// are dropped; delivery is best effort.
const eventBufferSize = 100

// Hub is the namespace shared by the execution contexts of one application
// instance. Channels opened under the same name on the same hub see each
// other's events.
type Hub struct {
	mu       sync.Mutex
	channels map[string][]*Channel
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string][]*Channel)}
}

// Channel is one execution context's endpoint on a named channel. Events it
// publishes reach every other open channel with the same name; it never
// receives its own events.
type Channel struct {
	hub    *Hub
	name   string
	id     string
	events chan domain.ChangeEvent
	log    zerolog.Logger

	mu      sync.Mutex
	handler func(domain.ChangeEvent)
	closed  bool
	wg      sync.WaitGroup
}

// Open registers a new channel endpoint under name. The returned channel
// observes events published after this call only.
func (h *Hub) Open(name string, log zerolog.Logger) *Channel {
	c := &Channel{
		hub:    h,
		name:   name,
		id:     uuid.NewString(),
		events: make(chan domain.ChangeEvent, eventBufferSize),
		log:    log.With().Str("channel", name).Logger(),
	}
	c.handler = c.logEvent

	h.mu.Lock()
	h.channels[name] = append(h.channels[name], c)
	h.mu.Unlock()

	c.wg.Add(1)
	go c.dispatch()
	return c
}

// ID returns the endpoint's unique context identifier.
func (c *Channel) ID() string { return c.id }

// Publish fans event out to every other endpoint on the channel. It never
// blocks: an endpoint whose inbox is full loses the event.
func (c *Channel) Publish(event domain.ChangeEvent) {
	metrics.RecordBroadcast("published")
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	for _, peer := range c.hub.channels[c.name] {
		if peer == c {
			continue
		}
		select {
		case peer.events <- event:
		default:
			metrics.RecordBroadcast("dropped")
			peer.log.Warn().
				Str("table", string(event.Table)).
				Str("type", string(event.Type)).
				Msg("broadcast inbox full, event dropped")
		}
	}
}

// OnReceive replaces the handler invoked for every event published by
// another endpoint. The default handler only logs the event; received
// changes are not applied to local state, so contexts converge only after
// an explicit reload.
func (c *Channel) OnReceive(handler func(domain.ChangeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if handler == nil {
		handler = c.logEvent
	}
	c.handler = handler
}

// Close detaches the endpoint from the hub and stops its dispatch loop.
func (c *Channel) Close() {
	c.hub.mu.Lock()
	if c.closed {
		c.hub.mu.Unlock()
		return
	}
	c.closed = true
	peers := c.hub.channels[c.name]
	for i, peer := range peers {
		if peer == c {
			c.hub.channels[c.name] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	// Sends only happen under the hub lock, so closing here is safe.
	close(c.events)
	c.hub.mu.Unlock()
	c.wg.Wait()
}

func (c *Channel) dispatch() {
	defer c.wg.Done()
	for event := range c.events {
		metrics.RecordBroadcast("received")
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		handler(event)
	}
}

func (c *Channel) logEvent(event domain.ChangeEvent) {
	c.log.Info().
		Str("table", string(event.Table)).
		Str("type", string(event.Type)).
		Msg("received change from another context")
}
