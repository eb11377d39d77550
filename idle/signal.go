package idle

import (
	"slices"
	"sync"
)

// Signal names a kind of user activity.
type Signal string

const (
	PointerMove Signal = "pointermove"
	KeyPress    Signal = "keypress"
	Touch       Signal = "touchstart"
	Scroll      Signal = "scroll"
	Click       Signal = "click"
)

// DefaultSignals returns the signals a Monitor listens to unless configured
// otherwise.
func DefaultSignals() []Signal {
	return []Signal{PointerMove, KeyPress, Touch, Scroll, Click}
}

// ActivitySource delivers activity signals. Subscribe registers fn for the
// given signals and returns a function that removes the registration.
type ActivitySource interface {
	Subscribe(signals []Signal, fn func(Signal)) (unsubscribe func())
}

type subscription struct {
	signals []Signal
	fn      func(Signal)
}

// Bus is an in-process ActivitySource. Emit may be called from any
// goroutine; subscribers run on the emitting goroutine.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]subscription
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]subscription)}
}

// Subscribe implements ActivitySource.
func (b *Bus) Subscribe(signals []Signal, fn func(Signal)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = subscription{signals: slices.Clone(signals), fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers s to every subscriber listening for it.
func (b *Bus) Emit(s Signal) {
	b.mu.RLock()
	targets := make([]func(Signal), 0, len(b.subs))
	for _, sub := range b.subs {
		if slices.Contains(sub.signals, s) {
			targets = append(targets, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(s)
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
