package server

import (
	"context"
	"net/http"
	"time"

	"example.com/tinysns/internal/broker"
	config "example.com/tinysns/internal/init"
	"example.com/tinysns/internal/logger"
	"example.com/tinysns/internal/metrics"
	"example.com/tinysns/internal/middleware"
	"example.com/tinysns/internal/store"
)

type Server struct {
	store store.StoreInterface
	bus   broker.Bus
	cfg   *config.Config
}

var logg = logger.New()

// Run starts the HTTP server with identity-protected routes and graceful
// shutdown. Login is public; Follow/Unfollow/List are request/response
// calls; /timeline upgrades to the duplex websocket stream.
func Run(ctx context.Context, st store.StoreInterface, bus broker.Bus, cfg *config.Config) {
	s := &Server{
		store: st,
		bus:   bus,
		cfg:   cfg,
	}

	// --- HTTP routes ---
	mux := http.NewServeMux()

	mux.Handle("/login", http.HandlerFunc(s.loginHandler))
	mux.Handle("/follow", middleware.Identity(http.HandlerFunc(s.followHandler)))
	mux.Handle("/unfollow", middleware.Identity(http.HandlerFunc(s.unfollowHandler)))
	mux.Handle("/list", middleware.Identity(http.HandlerFunc(s.listHandler)))
	mux.Handle("/timeline", middleware.Identity(http.HandlerFunc(s.timelineHandler)))

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second, // prevent slowloris attacks
		// No WriteTimeout: timeline streams stay open indefinitely.
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			logg.Info("server", "Starting HTTPS server on "+cfg.ServerAddr)
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			logg.Info("server", "Starting HTTP server on "+cfg.ServerAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
