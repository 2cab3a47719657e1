// Praxcache - Referral CRM Data Cache and Background Sync
// Copyright 2026 M. Tierney (mtierney)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mtierney/praxcache

// Package connectivity abstracts the ambient "window focus" and "network
// online" signals the orchestrator reacts to. The core subscribes to an
// Observer; environment glue (a UI shell, a network prober) publishes
// events through a Notifier. Tests publish events directly.
package connectivity

import "sync"

// Event is a connectivity or visibility change.
type Event int

const (
	// EventFocus signals the application regained user focus.
	EventFocus Event = iota

	// EventOnline signals network connectivity was restored.
	EventOnline
)

// String returns the event name for logs.
func (e Event) String() string {
	switch e {
	case EventFocus:
		return "focus"
	case EventOnline:
		return "online"
	default:
		return "unknown"
	}
}

// Observer delivers connectivity events to subscribers.
type Observer interface {
	// Subscribe registers fn for future events and returns an
	// unsubscribe function. fn runs on the publisher's goroutine and
	// must not block.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Notifier is the in-process Observer implementation.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(Event))}
}

// Subscribe implements Observer.
func (n *Notifier) Subscribe(fn func(Event)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// NotifyFocus publishes EventFocus to every subscriber.
func (n *Notifier) NotifyFocus() {
	n.publish(EventFocus)
}

// NotifyOnline publishes EventOnline to every subscriber.
func (n *Notifier) NotifyOnline() {
	n.publish(EventOnline)
}

func (n *Notifier) publish(ev Event) {
	n.mu.Lock()
	fns := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
