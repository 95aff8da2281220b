package gateway

import (
	"encoding/json"
	"log/slog"
)

// Wildcard subscribes to every event the gateway emits.
const Wildcard = "*"

// Event is an inbound gateway notification as delivered to subscribers.
type Event struct {
	Name    string
	Seq     int64
	Payload json.RawMessage
}

// EventHandler receives one event. A panicking handler is recovered so it
// cannot break delivery to the remaining subscribers.
type EventHandler func(ev Event)

// Subscription is the opaque handle returned by Subscribe; it is the only
// way to remove the subscription again.
type Subscription struct {
	event string
	id    uint64
}

// Subscribe registers fn for the named event, or for all events when name is
// Wildcard.
func (c *Client) Subscribe(name string, fn EventHandler) Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.nextSub++
	if c.subs[name] == nil {
		c.subs[name] = make(map[uint64]EventHandler)
	}
	c.subs[name][c.nextSub] = fn
	return Subscription{event: name, id: c.nextSub}
}

// Unsubscribe removes a subscription. Redeeming a handle twice is a no-op.
func (c *Client) Unsubscribe(s Subscription) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if set := c.subs[s.event]; set != nil {
		delete(set, s.id)
		if len(set) == 0 {
			delete(c.subs, s.event)
		}
	}
}

func (c *Client) dispatchEvent(frame EventFrame) {
	ev := Event{Name: frame.Event, Seq: frame.Seq, Payload: frame.Payload}

	// Snapshot under the lock; handlers run without it so they may
	// subscribe or unsubscribe freely. Literal subscribers first, then
	// wildcard ones.
	c.subsMu.Lock()
	handlers := make([]EventHandler, 0, len(c.subs[frame.Event])+len(c.subs[Wildcard]))
	for _, fn := range c.subs[frame.Event] {
		handlers = append(handlers, fn)
	}
	for _, fn := range c.subs[Wildcard] {
		handlers = append(handlers, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range handlers {
		deliver(fn, ev)
	}
}

func deliver(fn EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked", "event", ev.Name, "panic", r)
		}
	}()
	fn(ev)
}
