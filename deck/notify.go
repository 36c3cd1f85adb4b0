package deck

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// NotificationKind identifies a notification channel of the client.
type NotificationKind uint8

const (
	// KindState fires with the new state on every state change.
	KindState NotificationKind = iota
	// KindSubscribed fires when the client enters Subscribed.
	KindSubscribed
	// KindUnsubscribed fires when the client enters Unsubscribed.
	KindUnsubscribed
	// KindReport fires with the decoded state for every byte received from the deck,
	// including repeated states and states rejected by the subscription protocol.
	KindReport
)

func (k NotificationKind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindSubscribed:
		return "subscribed"
	case KindUnsubscribed:
		return "unsubscribed"
	case KindReport:
		return "report"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type listener struct {
	id    uint64
	match func(State) bool
	fn    func(State)
	once  bool
	fired atomic.Bool
}

// Handle identifies a registered listener.
type Handle struct {
	reg  *registry
	kind NotificationKind
	id   uint64
}

// Remove deregisters the listener. It is safe to call more than once and after a once
// listener has fired.
func (h *Handle) Remove() {
	if h == nil || h.reg == nil {
		return
	}
	h.reg.remove(h.kind, h.id)
}

// registry holds listeners per notification kind.
//
// emit calls listeners without holding the registry lock, so a listener may add or
// remove listeners, including itself.
type registry struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[NotificationKind][]*listener
}

func newRegistry() *registry {
	return &registry{listeners: make(map[NotificationKind][]*listener)}
}

func (r *registry) add(kind NotificationKind, match func(State) bool, fn func(State), once bool) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	l := &listener{id: r.nextID, match: match, fn: fn, once: once}
	r.listeners[kind] = append(r.listeners[kind], l)

	return &Handle{reg: r, kind: kind, id: l.id}
}

func (r *registry) remove(kind NotificationKind, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls := r.listeners[kind]
	for i, l := range ls {
		if l.id == id {
			r.listeners[kind] = append(ls[:i:i], ls[i+1:]...)
			if len(r.listeners[kind]) == 0 {
				delete(r.listeners, kind)
			}

			return
		}
	}
}

func (r *registry) count(kind NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.listeners[kind])
}

func (r *registry) emit(kind NotificationKind, s State) {
	r.mu.Lock()
	ls := append([]*listener(nil), r.listeners[kind]...)
	r.mu.Unlock()

	for _, l := range ls {
		if l.match != nil && !l.match(s) {
			continue
		}

		if l.once {
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			r.remove(kind, l.id)
		}

		l.fn(s)
	}
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.listeners)
}

// AddListener registers fn for every notification of the given kind.
func (c *Client) AddListener(kind NotificationKind, fn func(State)) *Handle {
	return c.listeners.add(kind, nil, fn, false)
}

// AddOnceListener registers fn for the next notification of the given kind only.
func (c *Client) AddOnceListener(kind NotificationKind, fn func(State)) *Handle {
	return c.listeners.add(kind, nil, fn, true)
}

// On calls fn every time the client changes to state.
func (c *Client) On(state State, fn func()) *Handle {
	return c.listeners.add(KindState, equals(state), func(State) { fn() }, false)
}

// Once calls fn the first time the client changes to state, then deregisters it.
func (c *Client) Once(state State, fn func()) *Handle {
	return c.listeners.add(KindState, equals(state), func(State) { fn() }, true)
}

// ListensTo returns a function registering handlers with On for state.
func (c *Client) ListensTo(state State) func(fn func()) *Handle {
	return func(fn func()) *Handle { return c.On(state, fn) }
}

// ListensOnce returns a function registering handlers with Once for state.
func (c *Client) ListensOnce(state State) func(fn func()) *Handle {
	return func(fn func()) *Handle { return c.Once(state, fn) }
}

func equals(want State) func(State) bool {
	return func(s State) bool { return s == want }
}
