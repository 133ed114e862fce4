// Package reloadbus fans reload notifications out to the browsers that hold
// an open /stream_reload connection.
package reloadbus

import (
	"context"
	"time"

	"noise-concert-map/pkg/dataset"
)

// Event describes one finished reload of the data directory. Error is set
// when the new files could not be imported and the previous data is still
// being served.
type Event struct {
	Generation int             `json:"generation"`
	LoadedAt   time.Time       `json:"loadedAt"`
	Stats      []dataset.Stats `json:"stats,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Bus broadcasts events to subscribers without locks; one goroutine owns
// the listener set.
type Bus struct {
	publish     chan Event
	subscribe   chan chan Event
	unsubscribe chan chan Event
	count       chan chan int
}

// NewBus starts the broadcaster. It lives as long as the process; caller
// contexts prune subscribers.
func NewBus(buffer int) *Bus {
	b := &Bus{
		publish:     make(chan Event, buffer),
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		count:       make(chan chan int),
	}
	go b.run()
	return b
}

// Publish forwards ev to every listener. Slow listeners miss the event
// rather than stall the reload; the browser refetches the layers anyway.
func (b *Bus) Publish(ev Event) {
	select {
	case b.publish <- ev:
	default:
	}
}

// Subscribe registers a listener. The returned channel closes when ctx ends.
func (b *Bus) Subscribe(ctx context.Context, buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.subscribe <- ch

	go func() {
		<-ctx.Done()
		b.unsubscribe <- ch
		close(ch)
	}()
	return ch
}

// Subscribers reports how many listeners are registered.
func (b *Bus) Subscribers() int {
	reply := make(chan int)
	b.count <- reply
	return <-reply
}

func (b *Bus) run() {
	listeners := make(map[chan Event]struct{})
	for {
		select {
		case ch := <-b.subscribe:
			listeners[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(listeners, ch)
		case reply := <-b.count:
			reply <- len(listeners)
		case ev := <-b.publish:
			for ch := range listeners {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}
