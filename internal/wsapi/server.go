// Package wsapi is the host's control surface: /ws (per-frame renderer
// output), /diag (diagnostic callback stream), /control (input events and
// mode selection), /health, and /deep-link.
package wsapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	diag "github.com/example/vishost/internal/diagnostics"
	"github.com/example/vishost/internal/engine"
	"github.com/example/vishost/internal/gpupool"
	"github.com/example/vishost/internal/input"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/router"
	"github.com/example/vishost/internal/scheduler"
	"github.com/example/vishost/internal/snapshot"
	"github.com/example/vishost/internal/surface"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Server wires the HTTP+WebSocket surface to the scheduler, router, and
// parameter store; it owns no rendering state of its own.
type Server struct {
	mu sync.RWMutex

	Scheduler *scheduler.Scheduler
	Router    *router.Router
	Store     *params.Store
	Bus       *input.Bus
	Pool      *gpupool.Pool

	// AudioSource/MotionSource are optional: nil unless a caller opts in
	// via SetAudioSource/SetMotionSource, matching each channel's
	// gesture/permission-gated grant model.
	AudioSource  *input.AudioSource
	MotionSource *input.MotionSource

	startTime   time.Time
	frameID     uint64
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool

	log zerolog.Logger
}

func New(sched *scheduler.Scheduler, r *router.Router, store *params.Store, bus *input.Bus, pool *gpupool.Pool) *Server {
	return &Server{
		Scheduler:   sched,
		Router:      r,
		Store:       store,
		Bus:         bus,
		Pool:        pool,
		startTime:   time.Now(),
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
		log:         log.With().Str("component", "wsapi").Logger(),
	}
}

// SetAudioSource attaches the source /control audio samples are pushed
// through. Until called, "audioSamples" messages are ignored.
func (s *Server) SetAudioSource(a *input.AudioSource) { s.AudioSource = a }

// SetMotionSource attaches the source /control motion samples are pushed
// through. Until called, "motion" messages are ignored.
func (s *Server) SetMotionSource(m *input.MotionSource) { s.MotionSource = m }

// BroadcastFrame pushes one rendered frame's per-role outputs to every
// connected /ws client. The scheduler's tick loop calls this once per
// frame with whatever the active engine's Tick returned.
func (s *Server) BroadcastFrame(activeEngine surface.EngineID, out map[surface.Role]engine.Output) {
	s.mu.Lock()
	s.frameID++
	frameID := s.frameID
	s.mu.Unlock()

	type wireFrame struct {
		T       int64                        `json:"t"`
		FrameID uint64                        `json:"frame_id"`
		Engine  string                       `json:"engine"`
		Roles   map[string]engine.Output `json:"roles"`
	}
	roles := make(map[string]engine.Output, len(out))
	for role, o := range out {
		roles[string(role)] = o
	}
	b, err := json.Marshal(wireFrame{T: time.Now().UnixNano(), FrameID: frameID, Engine: string(activeEngine), Roles: roles})
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			s.log.Debug().Err(err).Msg("write frame")
		}
	}
}

// PushDiag pushes d to every connected /diag client.
func (s *Server) PushDiag(d diag.Diagnostic) {
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

func (s *Server) HandleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) HandleDiag(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.diagClients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.diagClients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleControl decodes one inbound JSON envelope per message and applies
// every recognized key in it: switch_to requests, mode selection, the
// router enable switch, pointer/click/wheel events, audio and motion
// samples and their grants, and parameter sets.
func (s *Server) HandleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.applyControl(msg)
	}
}

func (s *Server) applyControl(msg map[string]any) {
	if v, ok := msg["switchTo"].(string); ok {
		if _, err := s.Scheduler.SwitchTo(surface.EngineID(v)); err != nil {
			s.PushDiag(diag.Diagnostic{
				Severity: diag.Warn,
				Code:     diag.CodeSwitchFailed,
				Summary:  "switch_to failed",
				Detail:   err.Error(),
				Evidence: map[string]any{"backingFormat": fmt.Sprintf("%v", gpupool.TextureFormat)},
			})
		}
	}
	if v, ok := msg["pointerMode"].(string); ok {
		s.Router.SetPointerMode(parsePointerMode(v))
	}
	if v, ok := msg["clickMode"].(string); ok {
		s.Router.SetClickMode(parseClickMode(v))
	}
	if v, ok := msg["wheelMode"].(string); ok {
		s.Router.SetWheelMode(parseWheelMode(v))
	}
	if v, ok := msg["routerEnabled"].(bool); ok {
		s.Router.SetEnabled(v)
	}
	if x, okx := msg["pointerX"].(float64); okx {
		if y, oky := msg["pointerY"].(float64); oky {
			s.Bus.Events <- input.Event{Kind: input.KindPointerMove, X: x, Y: y}
		}
	}
	if x, okx := msg["clickX"].(float64); okx {
		if y, oky := msg["clickY"].(float64); oky {
			s.Bus.Events <- input.Event{Kind: input.KindPointerUp, X: x, Y: y}
		}
	}
	if dy, ok := msg["wheelDelta"].(float64); ok {
		s.Bus.Events <- input.Event{Kind: input.KindWheel, DY: dy}
	}
	if raw, ok := msg["audioSamples"].([]any); ok && s.AudioSource != nil {
		samples := make([]float32, len(raw))
		for i, v := range raw {
			f, _ := v.(float64)
			samples[i] = float32(f)
		}
		s.AudioSource.Push(s.Bus.Events, samples)
	}
	if grant, ok := msg["audioGrant"].(bool); ok && grant && s.AudioSource != nil {
		s.AudioSource.Grant()
	}
	if m, ok := msg["motion"].(map[string]any); ok && s.MotionSource != nil {
		x, _ := m["x"].(float64)
		y, _ := m["y"].(float64)
		z, _ := m["z"].(float64)
		s.MotionSource.Sample(s.Bus.Events, x, y, z)
	}
	if grant, ok := msg["motionGrant"].(bool); ok && grant && s.MotionSource != nil {
		s.MotionSource.Grant()
	}
	if field, ok := msg["setParam"].(map[string]any); ok {
		if engineID, ok := field["engine"].(string); ok {
			if name, ok := field["field"].(string); ok {
				if value, ok := field["value"]; ok {
					s.Store.Set(engineID, params.Field(name), value)
				}
			}
		}
	}
}

func parsePointerMode(v string) router.PointerMode {
	switch v {
	case "rotations":
		return router.PointerRotations
	case "velocity":
		return router.PointerVelocity
	case "distance":
		return router.PointerDistance
	default:
		return router.PointerOff
	}
}

func parseClickMode(v string) router.ClickMode {
	switch v {
	case "burst":
		return router.ClickBurst
	case "blast":
		return router.ClickBlast
	case "ripple":
		return router.ClickRipple
	default:
		return router.ClickOff
	}
}

func parseWheelMode(v string) router.WheelMode {
	switch v {
	case "cycle":
		return router.WheelCycle
	case "wave":
		return router.WheelWave
	case "sweep":
		return router.WheelSweep
	default:
		return router.WheelOff
	}
}

// HandleHealth reports active engine, live context count, uptime, and
// frame counter.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	active, hasActive := "", false
	if id, ok := s.Scheduler.Active(); ok {
		active, hasActive = string(id), true
	}
	liveContexts := 0
	if s.Pool != nil {
		liveContexts = s.Pool.LiveCount()
	}
	resp := map[string]any{
		"frame_id":      s.frameID,
		"uptime_s":      time.Since(s.startTime).Seconds(),
		"active":        active,
		"has_active":    hasActive,
		"live_contexts": liveContexts,
	}
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleSnapshot serves the parameter snapshot schema over HTTP for the
// engine named by the "engine" query parameter: GET returns that engine's
// Params as a Snapshot, POST applies a posted
// Snapshot's fields on top of the engine's current values (legacy aliases
// canonicalized, invalid values falling back rather than rejecting the
// whole document).
func (s *Server) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	engineID := surface.EngineID(r.URL.Query().Get("engine"))
	if engineID == "" {
		http.Error(w, "snapshot: missing engine query param", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		snap := snapshot.FromParams(string(engineID), s.Store.Snapshot(string(engineID)), "", time.Now().UTC().Format(time.RFC3339))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	case http.MethodPost:
		var incoming snapshot.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			http.Error(w, "snapshot: invalid JSON body", http.StatusBadRequest)
			return
		}
		variantCount := 1
		if sp, ok := s.Scheduler.Spec(engineID); ok {
			variantCount = sp.VariantCount
		}
		current := s.Store.Snapshot(string(engineID))
		merged := incoming.ToParams(current, variantCount)
		s.Store.Restore(string(engineID), merged)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "snapshot: method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDeepLink switches to the requested engine (falling back to
// faceted if unavailable), then applies each numeric query parameter via
// Set.
func (s *Server) HandleDeepLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := surface.EngineID(q.Get("system"))
	if target == "" {
		target = surface.Faceted
	}
	if _, err := s.Scheduler.SwitchTo(target); err != nil {
		target = surface.Faceted
		if _, err := s.Scheduler.SwitchTo(target); err != nil {
			http.Error(w, "deep-link: no engine available", http.StatusInternalServerError)
			return
		}
	}
	for _, f := range params.AllFields {
		raw := q.Get(string(f))
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			s.Store.Set(string(target), f, v)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
