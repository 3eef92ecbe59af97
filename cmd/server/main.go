package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"broadcast-director/internal/authority"
	"broadcast-director/internal/journal"
	"broadcast-director/internal/pipeline"
	"broadcast-director/internal/platform/config"
	"broadcast-director/internal/platform/logger"
	"broadcast-director/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func main() {
	_ = config.Load()

	cfg, err := config.Parse()
	if err != nil {
		logger.New("info", "json").Error("config error", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	peerID := cfg.PeerID
	if peerID == "" {
		peerID = "director-" + uuid.NewString()[:8]
	}

	var supported []pipeline.Slot
	for _, s := range cfg.LiveSlots {
		slot, ok := pipeline.ParseSlot(s)
		if !ok || !slot.IsLive() {
			log.Error("invalid live slot in config", "slot", s)
			os.Exit(1)
		}
		supported = append(supported, slot)
	}

	met := metrics.New()
	coord := authority.NewCoordinator(authority.Config{
		SupportedSlots: supported,
		Log:            log,
		Metrics:        met,
	})
	// The host is its own transport; the session is up as soon as the HTTP
	// surface listens.
	coord.SetReady(true)

	registry := pipeline.NewRegistry()
	mirror := authority.NewMirror(peerID, log)
	table := pipeline.NewTable(pipeline.TableConfig{
		Registry:  registry,
		Requester: coord,
		Ownership: mirror,
		PeerID:    peerID,
		Log:       log,
	})
	mirror.AddListener(func(c authority.Change) { table.HandleOwnershipChange(c.Slot) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirrorSub := coord.Subscribe(cfg.EventBuffer, false)
	go authority.Pump(ctx, mirrorSub, mirror.Apply)

	var jr *journal.Journal
	if cfg.JournalPath != "" {
		jr, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Error("journal error", "error", err)
			os.Exit(1)
		}
		journalSub := coord.Subscribe(cfg.EventBuffer, false)
		go authority.Pump(ctx, journalSub, func(c authority.Change) {
			if err := jr.Append(ctx, c); err != nil {
				log.Error("journal append failed", "error", err)
			}
		})
	}

	ah := authority.NewHandler(coord, log)
	ph := pipeline.NewHandler(registry, table, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetActiveLiveSlots(coord.ActiveSlotCount())
			met.SetEventSubscribers(coord.SubscriberCount())
		}).ServeHTTP(w, r)
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sources", ph.RegisterSource)
		r.Get("/sources", ph.ListSources)
		r.Delete("/sources/{id}", ph.UnregisterSource)
		r.Get("/pipeline", ph.Snapshot)
		r.Post("/pipeline/forward", ph.Forward)
		r.Post("/pipeline/{slot}/source", ph.AssignSource)
		r.Get("/slots", ah.ListRecords)
		r.Route("/slots/{slot}", func(r chi.Router) {
			r.Post("/control", ah.RequestControl)
			r.Post("/release", ah.ReleaseControl)
			r.Post("/force-release", ah.ForceRelease)
		})
		r.Get("/events", ah.StreamEvents)
		if jr != nil {
			r.Get("/journal", func(w http.ResponseWriter, req *http.Request) {
				limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
				entries, err := jr.Recent(req.Context(), limit)
				if err != nil {
					log.Error("journal read failed", "error", err)
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"entries": entries})
			})
		}
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"peer_id", peerID,
		"live_slots", cfg.LiveSlots,
		"journal", cfg.JournalPath != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Closing the coordinator ends every event stream, so the open SSE
	// connections drain instead of pinning Shutdown until the timeout.
	coord.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	cancel()
	if jr != nil {
		if err := jr.Close(); err != nil {
			log.Error("journal close error", "error", err)
		}
	}

	log.Info("server stopped")
}
