package store

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Subscribe registers fn for events of type t. The returned function
// removes the registration.
func (s *Store) Subscribe(t EventType, fn Listener) func() {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[t] = append(s.listeners[t], registration{id: id, fn: fn})
	return func() {
		s.busMu.Lock()
		defer s.busMu.Unlock()
		s.listeners[t] = without(s.listeners[t], id)
	}
}

// SubscribeAll registers fn for every event type.
func (s *Store) SubscribeAll(fn Listener) func() {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	s.nextID++
	id := s.nextID
	s.all = append(s.all, registration{id: id, fn: fn})
	return func() {
		s.busMu.Lock()
		defer s.busMu.Unlock()
		s.all = without(s.all, id)
	}
}

func without(regs []registration, id int) []registration {
	out := make([]registration, 0, len(regs))
	for _, r := range regs {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// Dispatch delivers e to its type's listeners, then to catch-all
// listeners, in registration order and on the caller's goroutine. A
// panicking listener is logged and delivery continues. Channel
// subscribers receive e without blocking.
func (s *Store) Dispatch(e Event) {
	s.busMu.Lock()
	regs := make([]registration, 0, len(s.listeners[e.Type])+len(s.all))
	regs = append(regs, s.listeners[e.Type]...)
	regs = append(regs, s.all...)
	chans := make([]chan Event, 0, len(s.subscribers))
	for ch := range s.subscribers {
		chans = append(chans, ch)
	}
	s.busMu.Unlock()

	for _, r := range regs {
		s.deliver(r.fn, e)
	}

	s.busMu.Lock()
	defer s.busMu.Unlock()
	for _, ch := range chans {
		if _, ok := s.subscribers[ch]; !ok {
			continue
		}
		select {
		case ch <- e:
		default:
			// Non-blocking send to prevent slow clients from stalling the index
		}
	}
}

func (s *Store) deliver(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"event": e.Type,
				"path":  e.Path,
				"panic": fmt.Sprint(r),
			}).Error("Event listener panicked")
		}
	}()
	fn(e)
}

// SubscribeChan creates a buffered channel receiving every event.
func (s *Store) SubscribeChan() chan Event {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	ch := make(chan Event, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a channel subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Event) {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}
