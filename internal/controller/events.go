package controller

import "time"

// EventType names what changed.
type EventType string

const (
	EventSoftware EventType = "software"
	EventStartup  EventType = "startup"
	EventSystem   EventType = "system"
	EventSearch   EventType = "search"
	EventAction   EventType = "action"
)

// Event is published to subscribers after a list is replaced, a search is
// evaluated or an action succeeds.
type Event struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation,omitempty"`
	Count      int       `json:"count"`
	Query      string    `json:"query,omitempty"`
	Action     string    `json:"action,omitempty"`
	Target     string    `json:"target,omitempty"`
	Data       any       `json:"data,omitempty"`
	Time       time.Time `json:"time"`
}

// Subscribe returns a channel of events and a function that unsubscribes.
// Events are dropped for a subscriber whose buffer is full.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
}

// Dropped returns how many events were dropped for slow subscribers.
func (c *Controller) Dropped() uint64 {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.dropped
}

func (c *Controller) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.dropped++
			if c.dropped%100 == 1 {
				log.Warn("dropping events for slow subscriber", "dropped", c.dropped)
			}
		}
	}
}
