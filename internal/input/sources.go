package input

import (
	"github.com/example/vishost/internal/audio"
)

// PointerSource adapts normalized pointer/touch samples into Events.
// Move/Down/Up each push one sample onto the given channel; Run only
// exists to satisfy Source for uniformity with the other adapters.
type PointerSource struct{}

func NewPointerSource() *PointerSource { return &PointerSource{} }

func (p *PointerSource) Run(out chan<- Event, done <-chan struct{}) {}

// Move pushes a pointer-move sample normalized to [0,1] against the
// target surface's bounds.
func (p *PointerSource) Move(out chan<- Event, x, y float64) {
	out <- Event{Kind: KindPointerMove, X: x, Y: y}
}

// Down/Up mark click/tap boundaries; Router click modes trigger on Up.
func (p *PointerSource) Down(out chan<- Event, x, y float64) {
	out <- Event{Kind: KindPointerDown, X: x, Y: y}
}

func (p *PointerSource) Up(out chan<- Event, x, y float64) {
	out <- Event{Kind: KindPointerUp, X: x, Y: y}
}

// WheelSource adapts wheel/scroll delta samples into Events.
type WheelSource struct{}

func NewWheelSource() *WheelSource { return &WheelSource{} }

func (w *WheelSource) Run(out chan<- Event, done <-chan struct{}) {}

func (w *WheelSource) Scroll(out chan<- Event, dy float64) {
	out <- Event{Kind: KindWheel, DY: dy}
}

// MotionSource adapts device-orientation deltas, gated by a
// gesture-initiated permission grant the host must request and remember.
type MotionSource struct {
	granted bool
}

func NewMotionSource() *MotionSource { return &MotionSource{} }

func (m *MotionSource) Grant() { m.granted = true }
func (m *MotionSource) Denied() bool { return !m.granted }

func (m *MotionSource) Run(out chan<- Event, done <-chan struct{}) {}

func (m *MotionSource) Sample(out chan<- Event, x, y, z float64) {
	if !m.granted {
		return
	}
	out <- Event{Kind: KindMotion, MotionX: x, MotionY: y, MotionZ: z}
}

// AudioSource feeds the Audio Analyzer's per-frame Features into the bus
// as audio InputEvents, roughly at frame rate.
type AudioSource struct {
	analyzer *audio.Analyzer
	granted bool
}

func NewAudioSource(analyzer *audio.Analyzer) *AudioSource {
	return &AudioSource{analyzer: analyzer}
}

func (a *AudioSource) Grant() { a.granted = true }
func (a *AudioSource) Denied() bool { return !a.granted }

func (a *AudioSource) Run(out chan<- Event, done <-chan struct{}) {}

// Push feeds one frame of PCM samples through the analyzer and, unless
// permission was denied, enqueues the resulting features.
func (a *AudioSource) Push(out chan<- Event, samples []float32) {
	if !a.granted {
		return
	}
	out <- Event{Kind: KindAudio, Audio: a.analyzer.Analyze(samples)}
}
