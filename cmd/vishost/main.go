package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/vishost/internal/audio"
	"github.com/example/vishost/internal/config"
	"github.com/example/vishost/internal/engine"
	"github.com/example/vishost/internal/gpupool"
	"github.com/example/vishost/internal/input"
	"github.com/example/vishost/internal/params"
	"github.com/example/vishost/internal/router"
	"github.com/example/vishost/internal/scheduler"
	"github.com/example/vishost/internal/snapshot"
	"github.com/example/vishost/internal/surface"
	"github.com/example/vishost/internal/wsapi"
)

// variantCounts gives each engine its named-preset table size; holographic
// carries the deepest table.
var variantCounts = map[surface.EngineID]int{
	surface.Faceted:     10,
	surface.Quantum:     20,
	surface.Holographic: 30,
	surface.Polychora:   15,
}

func main() {
	var (
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		configPath = flag.String("config", "vishost.yaml", "path to vishost.yaml")
		maxLive    = flag.Int("max-live-contexts", 0, "GPU context cap (overrides config)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; using defaults")
		cfg = config.Default()
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *maxLive > 0 {
		cfg.MaxLiveContexts = *maxLive
	}

	pool, err := gpupool.NewPool(cfg.MaxLiveContexts, gpupool.RealClock{})
	if err != nil {
		log.Fatal().Err(err).Msg("gpupool: failed to construct")
	}

	store := params.NewStore()
	specs := buildSpecs(cfg)

	sched := scheduler.New(store, pool, specs, cfg.DestroyOnSwitch)
	r := router.New(store)
	sched.SetRouter(r)

	bus := input.NewBus(64)
	var analyzer *audio.Analyzer
	if cfg.Audio.Enabled {
		analyzer = audio.New(cfg.Audio.SampleRate)
	}

	srv := wsapi.New(sched, r, store, bus, pool)
	r.SetAudioTarget(sched)
	if analyzer != nil {
		// Grant is withheld until a client sends an explicit audioGrant
		// control message; opening the analyzer needs a user gesture.
		srv.SetAudioSource(input.NewAudioSource(analyzer))
	}
	srv.SetMotionSource(input.NewMotionSource())

	activeEngine := surface.EngineID(cfg.DefaultEngine)
	if _, err := sched.SwitchTo(activeEngine); err != nil {
		log.Warn().Err(err).Str("engine", cfg.DefaultEngine).Msg("default engine failed; falling back")
		activeEngine = surface.EngineID(cfg.FallbackEngine)
		if _, err := sched.SwitchTo(activeEngine); err != nil {
			log.Fatal().Err(err).Msg("fallback engine also failed; nothing to run")
		}
	}
	restoreLastKnownGood(cfg, sched, store, activeEngine)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleFrames)
	mux.HandleFunc("/diag", srv.HandleDiag)
	mux.HandleFunc("/control", srv.HandleControl)
	mux.HandleFunc("/health", srv.HandleHealth)
	mux.HandleFunc("/deep-link", srv.HandleDeepLink)
	mux.HandleFunc("/snapshot", srv.HandleSnapshot)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan struct{})
	go runLoop(sched, r, bus, srv, stop)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	close(stop)
	_ = httpSrv.Close()
	saveLastKnownGood(cfg, sched, store)
}

// restoreLastKnownGood loads cfg.StatePath, if present, and applies its
// saved parameters on top of active's freshly seeded defaults. A missing
// or unreadable file is normal on first run and is logged at Debug, not
// treated as a fault.
func restoreLastKnownGood(cfg *config.Config, sched *scheduler.Scheduler, store *params.Store, active surface.EngineID) {
	if cfg.StatePath == "" {
		return
	}
	snap, err := snapshot.LoadFromFile(cfg.StatePath)
	if err != nil {
		log.Debug().Err(err).Str("path", cfg.StatePath).Msg("no last known-good state to restore")
		return
	}
	if snap.System != string(active) {
		return
	}
	variantCount := 1
	if sp, ok := sched.Spec(active); ok {
		variantCount = sp.VariantCount
	}
	restored := snap.ToParams(store.Snapshot(string(active)), variantCount)
	store.Restore(string(active), restored)
	log.Info().Str("engine", string(active)).Str("path", cfg.StatePath).Msg("restored last known-good parameters")
}

// saveLastKnownGood persists the active engine's current Params so a future
// cold start (or a failed recovery switch) has a known-good snapshot to
// fall back to.
func saveLastKnownGood(cfg *config.Config, sched *scheduler.Scheduler, store *params.Store) {
	if cfg.StatePath == "" {
		return
	}
	active, ok := sched.Active()
	if !ok {
		return
	}
	snap := snapshot.FromParams(string(active), store.Snapshot(string(active)), "", time.Now().UTC().Format(time.RFC3339))
	if err := snapshot.SaveToFile(cfg.StatePath, snap); err != nil {
		log.Warn().Err(err).Str("path", cfg.StatePath).Msg("failed to persist last known-good state")
		return
	}
	log.Info().Str("engine", string(active)).Str("path", cfg.StatePath).Msg("saved last known-good parameters")
}

// runLoop drains input events into the router once per tick, ticks the
// active engine, and broadcasts the resulting frame. ~60Hz, matching the
// render cadence the scheduler's pacing constants assume.
func runLoop(sched *scheduler.Scheduler, r *router.Router, bus *input.Bus, srv *wsapi.Server, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, e := range bus.Drain() {
				r.HandleEvent(e)
			}
			r.Tick()

			id, ok := sched.Active()
			if !ok {
				continue
			}
			inst, ok := sched.Instance(id)
			if !ok {
				continue
			}
			out := inst.Tick(now.Sub(start).Seconds())
			srv.BroadcastFrame(id, out)
		}
	}
}

func buildSpecs(cfg *config.Config) map[surface.EngineID]engine.Spec {
	specs := make(map[surface.EngineID]engine.Spec, len(surface.AllEngines))
	for _, id := range surface.AllEngines {
		d := cfg.EngineDefaults[string(id)]
		specs[id] = engine.Spec{
			ID: id,
			Defaults: params.Params{
				Geometry:    1,
				GridDensity: d.GridDensity,
				MorphFactor: d.MorphFactor,
				Chaos:       0.1,
				Speed:       1.0,
				Hue:         d.Hue,
				Intensity:   d.Intensity,
				Saturation:  d.Saturation,
				Dimension:   3.5,
			},
			VariantCount:        variantCounts[id],
			HasNativeReactivity: id == surface.Holographic,
		}
	}
	return specs
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
