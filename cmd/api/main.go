package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"foodbridge.org/internal/auth"
	"foodbridge.org/internal/config"
	"foodbridge.org/internal/httpapi"
	"foodbridge.org/internal/market"
	"foodbridge.org/internal/migrate"
	"foodbridge.org/internal/notify"
	"foodbridge.org/internal/obs"
	"foodbridge.org/internal/store/pg"
	"foodbridge.org/internal/stream"
	migrations "foodbridge.org/ops/migrations"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults to $FOODBRIDGE_CONFIG)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: PostgreSQL when a DSN is set, otherwise process memory.
	var (
		store market.Store
		probe httpapi.ReadyProbe
		pgs   *pg.Store
	)
	if cfg.Database.DSN != "" {
		pgs, err = pg.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		if cfg.Database.AutoMigrate {
			mctx, cancel := context.WithTimeout(ctx, time.Minute)
			_, err := migrate.NewManager(pgs.DB(), migrations.SQL(), migrations.Seeds()).Up(mctx)
			cancel()
			if err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		store, probe = pgs, httpapi.ReadyProbe{DB: pgs.DB()}
	} else {
		obs.Info("no database configured, using in-memory store", nil)
		store = market.NewInMemory()
	}

	// Notifications: email delivery plus the public live feed.
	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Notify.SendGridKey != "" {
		sg, err := notify.NewSendGridMailer(cfg.Notify.SendGridKey, cfg.Notify.FromName, cfg.Notify.FromAddress)
		if err != nil {
			log.Fatalf("mailer: %v", err)
		}
		mailer = sg
	}
	dispatcher := notify.NewDispatcher(mailer, notify.WithQueueSize(cfg.Notify.QueueSize))
	feed := stream.New()

	svc := market.NewServices(store,
		market.WithNotifier(notify.Fanout{dispatcher, feed}),
		market.WithNotifyRadius(cfg.Notify.RadiusKm),
	)
	if cfg.Admin.Email != "" {
		if _, err := svc.Identity.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name); err != nil {
			log.Fatalf("seed admin: %v", err)
		}
	}

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// HTTP API
	api := httpapi.New(probe, version, svc, issuer,
		httpapi.WithRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins...),
		httpapi.WithStream(feed),
	)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health
	health := httpapi.NewGRPCServer(probe, version)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	var grpcLis net.Listener
	if cfg.HTTP.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.HTTP.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		go health.Watch(ctx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				obs.Error("grpc serve", err, nil)
			}
		}()
	}

	obs.Info("starting foodbridge-api", map[string]any{
		"version":   version,
		"http_addr": srv.Addr,
		"grpc_addr": cfg.HTTP.GRPCAddr,
		"postgres":  pgs != nil,
	})

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	obs.SetReady(false)
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		obs.Error("notification queue not drained", err, nil)
	}
	if pgs != nil {
		_ = pgs.Close()
	}
	obs.Info("stopped", nil)
}
