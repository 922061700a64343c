package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"neplus.org/internal/access"
	"neplus.org/internal/audit"
	"neplus.org/internal/collab"
	"neplus.org/internal/governance"
	"neplus.org/internal/httpapi"
	"neplus.org/internal/obs"
	"neplus.org/internal/stream"
	"neplus.org/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres is optional; without a DSN the audit trail stays
	// in-memory only and /readyz has nothing to ping.
	var db *sql.DB
	if dsn := os.Getenv("NEPLUS_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	alerts := stream.New()

	auditOpts := []audit.Option{audit.WithNotifier(alerts)}
	if raw := os.Getenv("NEPLUS_AUDIT_CAPACITY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Fatalf("invalid NEPLUS_AUDIT_CAPACITY: %q", raw)
		}
		auditOpts = append(auditOpts, audit.WithCapacity(n))
	}
	if db != nil {
		archive, err := audit.NewPGArchive(db)
		if err != nil {
			log.Fatalf("audit archive: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := archive.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("audit schema: %v", err)
		}
		cancel()
		auditOpts = append(auditOpts, audit.WithArchiver(archive))
	}

	ac := access.NewControl()
	if admin := os.Getenv("NEPLUS_ADMIN_PRINCIPAL"); admin != "" {
		ac.AssignRole(admin, access.RoleAdmin)
	}

	auditor := audit.New(auditOpts...)
	protocol := collab.NewProtocol(ac, auditor)
	gov := governance.New(ac, auditor)

	authority := os.Getenv("NEPLUS_TOKEN_AUTHORITY")
	if authority == "" {
		authority = "treasury"
	}
	supply := token.New(authority, auditor)

	api := httpapi.New(httpapi.Config{
		Access:     ac,
		Auditor:    auditor,
		Collab:     protocol,
		Governance: gov,
		Supply:     supply,
		Alerts:     alerts,
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
	})

	addr := os.Getenv("NEPLUS_ADDR")
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

	// Expired proposals are finalized in the background; the HTTP sweep
	// endpoint stays available for operators.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n := gov.SweepExpired(sweepCtx); n > 0 {
					obs.Emit(map[string]any{
						"level": "info",
						"msg":   "expired proposals finalized",
						"count": n,
					})
				}
			}
		}
	}()

	log.Printf("Starting neplus-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	sweepCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
