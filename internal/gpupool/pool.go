// Package gpupool enforces the global cap on live GPU-backed rendering
// contexts and mediates acquisition/release against the surfaces in
// internal/surface. The backing resource for each context is a real
// *gg.Context (github.com/gogpu/gg) of the size the caller passes to
// Acquire, or a fixed 64x64 when none is given (AcquireSet always uses the
// default); it is not measured from the surface. Validation creates and destroys a throwaway 1x1 context as a stand-in
// for "create a trivial vertex-shader-like resource".
package gpupool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/vishost/internal/surface"
)

// TextureFormat is the pool's canonical backing-texture format, surfaced in
// diagnostics evidence so a driver-loss report names the format that was
// in use rather than a bare string.
const TextureFormat = gputypes.TextureFormatRGBA8Unorm

// State is a Ctx's position in the Free -> Bound -> Lost -> Free lifecycle.
type State int

const (
	StateFree State = iota
	StateBound
	StateLost
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateBound:
		return "bound"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// DefaultMaxLiveContexts is the pool's default cap.
const DefaultMaxLiveContexts = 5

// HardCapLimit is the highest cap the pool will ever accept.
const HardCapLimit = 16

// Acquisition pacing/stabilization.
const (
	AcquirePacing = 20 * time.Millisecond
	StabilizationWait = 200 * time.Millisecond
)

var (
	ErrAlreadyBound = errors.New("gpupool: surface already has a live context")
	ErrCapacityExceeded = errors.New("gpupool: live context cap exceeded")
	ErrCreationFailed = errors.New("gpupool: context creation failed")
	ErrSurfaceNotReady = errors.New("gpupool: surface is zero-sized or not visible")
	ErrMissing = errors.New("gpupool: no live context for surface")
)

// ValidateStatus is the result of Validate.
type ValidateStatus int

const (
	Ok ValidateStatus = iota
	Lost
	Missing
)

// Ctx is an opaque GPU resource exclusively owned by at most one renderer
// at a time.
type Ctx struct {
	mu sync.Mutex
	Surface surface.Surface
	RendererID string
	state State
	backing *gg.Context
	Format gputypes.TextureFormat
}

func (c *Ctx) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pool owns every live Ctx and enforces the global cap.
type Pool struct {
	mu sync.Mutex
	cap int
	live map[string]*Ctx // surface id -> ctx
	clock Clock
	lossHandlers map[string]func(surface.Surface)
	pendingLoss []surface.Surface
	log zerolog.Logger
}

// NewPool builds a pool with the given cap. A cap below 1 selects
// DefaultMaxLiveContexts; a cap above HardCapLimit is a construction-time
// hard failure.
func NewPool(cap int, clock Clock) (*Pool, error) {
	if cap <= 0 {
		cap = DefaultMaxLiveContexts
	}
	if cap > HardCapLimit {
		return nil, fmt.Errorf("gpupool: cap %d exceeds hard limit %d", cap, HardCapLimit)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Pool{
		cap: cap,
		live: map[string]*Ctx{},
		clock: clock,
		lossHandlers: map[string]func(surface.Surface){},
		log: log.With().Str("component", "gpupool").Logger(),
	}, nil
}

// LiveCount returns the number of contexts currently Bound or Free but
// allocated (i.e. not yet released).
func (p *Pool) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// sizeFor is the fixed, non-zero default pixel size (64x64) used for every
// surface when the caller passes no width/height; the core scheduler only
// cares that it's non-zero.
func sizeFor() (int, int) { return 64, 64 }

// Acquire creates and validates the backing context for surface, binding
// it to rendererID. width/height of 0 means "use a sane default size";
// passing 0 on purpose is how callers simulate SurfaceNotReady via the
// zeroSized flag instead.
func (p *Pool) Acquire(s surface.Surface, rendererID string, width, height int, zeroSized bool) (*Ctx, error) {
	p.mu.Lock()
	if _, exists := p.live[s.ID]; exists {
		p.mu.Unlock()
		return nil, ErrAlreadyBound
	}
	if len(p.live) >= p.cap {
		p.mu.Unlock()
		p.log.Warn().Str("surface", s.ID).Int("cap", p.cap).Msg("capacity exceeded")
		return nil, ErrCapacityExceeded
	}
	p.mu.Unlock()

	if zeroSized {
		return nil, ErrSurfaceNotReady
	}
	if width <= 0 || height <= 0 {
		width, height = sizeFor()
	}

	backing := gg.NewContext(width, height)
	if backing == nil {
		return nil, ErrCreationFailed
	}
	if err := validateBacking(); err != nil {
		_ = backing.Close()
		return nil, ErrCreationFailed
	}

	ctx := &Ctx{Surface: s, RendererID: rendererID, state: StateBound, backing: backing, Format: TextureFormat}

	p.mu.Lock()
	if _, exists := p.live[s.ID]; exists {
		p.mu.Unlock()
		_ = backing.Close()
		return nil, ErrAlreadyBound
	}
	if len(p.live) >= p.cap {
		p.mu.Unlock()
		_ = backing.Close()
		return nil, ErrCapacityExceeded
	}
	p.live[s.ID] = ctx
	p.mu.Unlock()

	p.log.Debug().Str("surface", s.ID).Str("renderer", rendererID).Msg("context acquired")
	return ctx, nil
}

// AcquireSet acquires all surfaces in order, pacing each acquisition by
// AcquirePacing. On any failure every context already acquired in this
// call is released before returning the error: partial acquisition for a
// set is always an error.
func (p *Pool) AcquireSet(surfaces []surface.Surface, rendererID string) ([]*Ctx, error) {
	acquired := make([]*Ctx, 0, len(surfaces))
	for i, s := range surfaces {
		ctx, err := p.Acquire(s, rendererID, 0, 0, false)
		if err != nil {
			for _, c := range acquired {
				p.Release(c)
			}
			return nil, fmt.Errorf("gpupool: acquiring %s: %w", s.ID, err)
		}
		acquired = append(acquired, ctx)
		if i < len(surfaces)-1 {
			p.clock.Sleep(AcquirePacing)
		}
	}
	return acquired, nil
}

// Stabilize pauses for StabilizationWait, the settle time production
// backends need after context creation before validation is meaningful.
// Callers invoke this once per freshly-created set, not per context.
func (p *Pool) Stabilize() {
	p.clock.Sleep(StabilizationWait)
}

// validateBacking creates and closes a 1x1 throwaway context, standing in
// for "create and delete a trivial vertex-shader-like resource" and
// checking for immediate context-lost (gg.NewContext never returns nil in
// practice, but the shape of this check matches step 4).
func validateBacking() error {
	probe := gg.NewContext(1, 1)
	if probe == nil {
		return ErrCreationFailed
	}
	return probe.Close()
}

// Release destroys ctx's backing resource and removes it from the pool.
// Must be called before the surface is reused by another engine.
func (p *Pool) Release(ctx *Ctx) {
	if ctx == nil {
		return
	}
	ctx.mu.Lock()
	backing := ctx.backing
	ctx.backing = nil
	ctx.state = StateFree
	ctx.mu.Unlock()

	if backing != nil {
		_ = backing.Close()
	}

	p.mu.Lock()
	delete(p.live, ctx.Surface.ID)
	delete(p.lossHandlers, ctx.Surface.ID)
	p.mu.Unlock()
	p.log.Debug().Str("surface", ctx.Surface.ID).Msg("context released")
}

// Validate reports whether surfaceID currently has a healthy context.
func (p *Pool) Validate(surfaceID string) ValidateStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, ok := p.live[surfaceID]
	if !ok {
		return Missing
	}
	if ctx.State() == StateLost {
		return Lost
	}
	return Ok
}

// OnLoss subscribes handler to driver-initiated context loss for surfaceID.
// The handler does not run inside the driver callback; it is queued and
// runs on the pool's next Tick.
func (p *Pool) OnLoss(surfaceID string, handler func(surface.Surface)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lossHandlers[surfaceID] = handler
}

// SimulateLoss marks ctx Lost and queues its handler for the next Tick;
// this is the seam a real driver's context-lost extension would call.
func (p *Pool) SimulateLoss(surfaceID string) {
	p.mu.Lock()
	ctx, ok := p.live[surfaceID]
	if !ok {
		p.mu.Unlock()
		return
	}
	ctx.mu.Lock()
	ctx.state = StateLost
	ctx.mu.Unlock()
	p.pendingLoss = append(p.pendingLoss, ctx.Surface)
	p.mu.Unlock()
}

// Tick drains any queued context-loss notifications, invoking the
// registered handler for each. Call this once per scheduler frame.
func (p *Pool) Tick() {
	p.mu.Lock()
	pending := p.pendingLoss
	p.pendingLoss = nil
	handlers := make(map[string]func(surface.Surface), len(p.lossHandlers))
	for k, v := range p.lossHandlers {
		handlers[k] = v
	}
	p.mu.Unlock()

	for _, s := range pending {
		if h, ok := handlers[s.ID]; ok {
			h(s)
		}
	}
}
