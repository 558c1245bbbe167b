package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/tcp"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/app/relay"
	"github.com/dkeye/Meet/internal/catalog"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/events"
	"github.com/dkeye/Meet/internal/logger"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/dkeye/Meet/internal/recorder"
	"github.com/dkeye/Meet/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logging until the config says otherwise.
	logger.Init(logger.Config{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Log)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	hub := orch.New(app.NewRegistry(), app.NewRoomManager(), app.PolicyByName(cfg.Hub.Policy))
	hub.Metrics = m
	hub.Limiter = app.NewJoinRateLimiter(cfg.Hub.JoinLimit, cfg.Hub.JoinInterval)
	if cfg.Hub.BacklogThreshold > 0 {
		hub.Threshold = cfg.Hub.BacklogThreshold
	}

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.UDPPort})
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", cfg.UDPPort, err)
	}
	defer udpConn.Close()
	rel := relay.New(udpConn, relay.Options{
		Freshness:     cfg.Relay.Freshness,
		Timeout:       cfg.Relay.Timeout,
		SweepInterval: cfg.Relay.SweepInterval,
	}, m)

	tcpLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.TCPPort))
	if err != nil {
		return fmt.Errorf("listen tcp :%d: %w", cfg.TCPPort, err)
	}

	db, err := catalog.Open(cfg.Database)
	if err != nil {
		return err
	}
	repo := catalog.NewRepository(db)

	store, err := storage.New(ctx, cfg.Storage, cfg.Recorder.ContentRoot)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Recorder.Enabled {
		rec := recorder.New(recorder.Options{
			ContentRoot: cfg.Recorder.ContentRoot,
			FPS:         cfg.Recorder.FPS,
			Width:       cfg.Recorder.Width,
			Height:      cfg.Recorder.Height,
			JPEGQuality: cfg.Recorder.JPEGQuality,
			RelayAddr:   fmt.Sprintf("127.0.0.1:%d", cfg.UDPPort),
		}, recorder.FFmpegFactory{
			Path:        cfg.Recorder.FFmpegPath,
			StopTimeout: cfg.Recorder.StopTimeout,
		}, repo, m)
		if cfg.Storage.Type == "s3" {
			rec.SetArchive(store)
		}
		hub.AddListener(rec)
		g.Go(func() error { return rec.Run(ctx) })
	}

	if cfg.Events.RedisAddr != "" {
		pub, err := events.NewRedisPublisher(ctx, cfg.Events)
		if err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("membership events disabled")
		} else {
			n := events.NewNotifier(pub, cfg.Events.ChannelPrefix)
			hub.AddListener(n)
			g.Go(func() error { return n.Run(ctx) })
		}
	}

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return rel.Serve(ctx, udpConn) })
	g.Go(func() error {
		return (&tcp.Server{Hub: hub}).Serve(ctx, tcpLn)
	})

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router.SetupRouter(ctx, cfg, router.Deps{
			Hub:        hub,
			Rooms:      hub.Rooms,
			Relay:      rel,
			Recordings: repo,
			Storage:    store,
			Metrics:    m,
		}),
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Int("tcp", cfg.TCPPort).Int("udp", cfg.UDPPort).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
