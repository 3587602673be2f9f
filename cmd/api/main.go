package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/httpapi"
	"github.com/sdalgetty/funnel-app-sub003/internal/identity"
	"github.com/sdalgetty/funnel-app-sub003/internal/obs"
	"github.com/sdalgetty/funnel-app-sub003/internal/session"
	"github.com/sdalgetty/funnel-app-sub003/internal/stream"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("FUNNEL_BUILD_COMMIT"))

	// Postgres when a DSN is configured, in-memory otherwise. /readyz pings
	// the DB through the probe either way.
	var (
		db            *sql.DB
		accounts      account.Store
		identityStore identity.Store
		auditStore    audit.Store
	)
	if dsn := os.Getenv("FUNNEL_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		accounts = account.NewPGStore(db)
		identityStore = identity.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		accounts = account.NewInMemory()
		identityStore = identity.NewMemoryStore()
		auditStore = audit.NewInMemory()
	}

	// Session persistence: Redis when configured, in-memory otherwise.
	var persist session.Store
	if addr := os.Getenv("FUNNEL_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("FUNNEL_REDIS_PASSWORD"),
		})
		persist = session.NewRedisStore(client)
	} else {
		persist = session.NewInMemory()
	}

	events := stream.New()
	auditLog := audit.NewLog(auditStore, audit.WithNotify(func(e audit.Entry) {
		events.Publish(stream.AccessEvent{
			Kind:      string(e.Action),
			ActorID:   e.ActorAccountID,
			TargetID:  e.TargetAccountID,
			SessionID: e.SessionID,
			Details:   e.Details,
			Timestamp: e.CreatedAt,
		})
	}))

	inviteOpts := []identity.InvitationOption{
		identity.WithInviteBaseURL(os.Getenv("FUNNEL_BASE_URL")),
	}
	if smtpAddr := os.Getenv("FUNNEL_SMTP_ADDR"); smtpAddr != "" {
		inviteOpts = append(inviteOpts, identity.WithMailer(&identity.SMTPMailer{
			Addr:     smtpAddr,
			From:     os.Getenv("FUNNEL_SMTP_FROM"),
			Username: os.Getenv("FUNNEL_SMTP_USER"),
			Password: os.Getenv("FUNNEL_SMTP_PASSWORD"),
		}))
	}
	invitations := identity.NewInvitationService(identityStore, accounts, inviteOpts...)
	impersonation := identity.NewController(identityStore, accounts, auditLog, persist)
	resolver := identity.NewResolver(invitations, impersonation, accounts, persist)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	go resolver.StartLivenessLoop(rootCtx, time.Minute)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Accounts:      accounts,
		Invitations:   invitations,
		Impersonation: impersonation,
		Resolver:      resolver,
		AuditLog:      auditLog,
		Stream:        events,
	})

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.Logging(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.RateLimit(handler, 50, 25)

	addr := os.Getenv("FUNNEL_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	// No WriteTimeout: the access-log stream holds its response open.
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting funnel-identity-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rootCancel()
	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
