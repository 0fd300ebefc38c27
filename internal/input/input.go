// Package input defines the thin, mapping-free producers the Reactivity
// Router consumes: pointer, wheel, motion, and audio-frame events
// normalized and enqueued onto a single channel as one InputEvent envelope
// with a discriminated Kind.
package input

import "github.com/example/vishost/internal/audio"

// Kind discriminates the InputEvent union.
type Kind int

const (
	KindPointerMove Kind = iota
	KindPointerDown
	KindPointerUp
	KindWheel
	KindMotion
	KindAudio
)

// Event is the normalized, mapping-free record every Source produces.
// Pointer/touch coordinates are normalized to [0,1] against the target
// surface's bounding box, never the viewport.
type Event struct {
	Kind Kind

	X, Y float64 // pointer/touch, [0,1]
	DY float64 // wheel delta, sign-only significant per mode

	MotionX, MotionY, MotionZ float64 // device orientation deltas

	Audio audio.Features
}

// Source is anything that normalizes raw platform input into Events and
// pushes them onto a shared channel; it performs no mapping to Params.
type Source interface {
	// Run drains the source until done is closed, sending normalized
	// Events to out. Run must not block forever after done closes.
	Run(out chan<- Event, done <-chan struct{})
}

// Bus is the single channel every Source feeds and the Router drains once
// per scheduler tick.
type Bus struct {
	Events chan Event
	done chan struct{}
}

// NewBus creates a Bus with the given channel buffer depth.
func NewBus(buffer int) *Bus {
	return &Bus{Events: make(chan Event, buffer), done: make(chan struct{})}
}

// Start launches src.Run in its own goroutine, feeding this Bus.
func (b *Bus) Start(src Source) {
	go src.Run(b.Events, b.done)
}

// Close signals every running Source to stop.
func (b *Bus) Close() { close(b.done) }

// Drain returns every Event currently queued without blocking, for the
// scheduler's once-per-tick pull: any platform-native async input is
// drained at the top of the next tick, never mid-tick.
func (b *Bus) Drain() []Event {
	var events []Event
	for {
		select {
		case e := <-b.Events:
			events = append(events, e)
		default:
			return events
		}
	}
}
