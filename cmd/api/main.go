package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenroom.fm/internal/config"
	"greenroom.fm/internal/httpapi"
	"greenroom.fm/internal/ledger"
	"greenroom.fm/internal/obs"
	"greenroom.fm/internal/store/bolt"
	"greenroom.fm/internal/store/pg"
	"greenroom.fm/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

// pgProbe пингует Postgres, чтобы /readyz отражал состояние БД.
type pgProbe struct {
	store *pg.Store
}

func (p pgProbe) IsReady() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.store.Ping(ctx) == nil
}

// staticProbe для бэкендов без внешних зависимостей (bolt, память).
type staticProbe struct{}

func (staticProbe) IsReady() bool { return true }

func main() {
	configPath := flag.String("config", "greenroom.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Выбор хранилища: Postgres > bbolt > память.
	var (
		store  ledger.Store
		probe  httpapi.ReadyProbe = staticProbe{}
		closer func() error
	)
	switch {
	case cfg.PostgresDSN != "":
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		store = pgStore
		probe = pgProbe{store: pgStore}
		closer = pgStore.Close
		log.Println("ledger backend: postgres")
	case cfg.BoltPath != "":
		boltStore, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			log.Fatalf("open bolt store: %v", err)
		}
		store = boltStore
		closer = boltStore.Close
		log.Printf("ledger backend: bolt (%s)", cfg.BoltPath)
	default:
		store = ledger.NewMemStore()
		log.Println("ledger backend: in-memory (state is lost on restart)")
	}

	svc := ledger.New(store, ledger.WithCurrency(cfg.Currency))

	st := stream.New()
	if cfg.StreamDemo {
		stopDemo := st.StartDemo(3 * time.Second)
		defer stopDemo()
		log.Println("demo event stream enabled")
	}

	api := httpapi.New(probe, version, svc, st, cfg)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting greenroom-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if closer != nil {
		_ = closer()
	}
	log.Println("Stopped")
}
