package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotswapper.dev/internal/auth"
	"slotswapper.dev/internal/httpapi"
	"slotswapper.dev/internal/notify"
	"slotswapper.dev/internal/obs"
	"slotswapper.dev/internal/store/memory"
	"slotswapper.dev/internal/store/pg"
	"slotswapper.dev/internal/store/sqlite"
	"slotswapper.dev/internal/swap"
	"slotswapper.dev/internal/ws"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SLOTSWAPPER_COMMIT"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, db, err := openStore(ctx)
	cancel()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	hub := ws.NewHub(func(token string) (string, error) {
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	})
	dispatcher := notify.NewDispatcher(store.Notifications(), hub)
	svc := swap.NewService(store, dispatcher)

	api := httpapi.New(svc, store, httpapi.ReadyProbe{DB: db}, hub, version)

	addr := os.Getenv("SLOTSWAPPER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting slotswapper-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	grpcCtx, grpcCancel := context.WithCancel(context.Background())
	defer grpcCancel()
	if grpcAddr := os.Getenv("SLOTSWAPPER_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		log.Printf("Starting gRPC health service on %s", grpcAddr)
		go func() {
			if err := api.ServeGRPC(grpcCtx, lis); err != nil {
				log.Printf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	grpcCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// openStore selects the backing store: PostgreSQL when a DSN is set, SQLite
// when a path is set, otherwise in-memory (data is lost on restart).
func openStore(ctx context.Context) (swap.Store, *sql.DB, error) {
	if dsn := os.Getenv("SLOTSWAPPER_PG_DSN"); dsn != "" {
		st, err := pg.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Using PostgreSQL store")
		return st, st.DB(), nil
	}
	if path := os.Getenv("SLOTSWAPPER_SQLITE_PATH"); path != "" {
		st, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Using SQLite store at %s", path)
		return st, st.DB(), nil
	}
	log.Println("Using in-memory store")
	return memory.New(), nil, nil
}
