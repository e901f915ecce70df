package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/account"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/course"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/delivery"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/ingest"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/messaging"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/oidc"
	outboxrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/outbox/repo"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan"
	planrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/plan/repo"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/router"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/session"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/database"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	logCfg := utilities.ConfigFromEnv()
	logCfg.Service = "microburst-api"
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting microburst api")

	db, err := database.ConnectX(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	fnCfg := ingest.ConfigFromEnv()
	issuer := strings.TrimRight(utilities.EnvOr("OIDC_ISSUER", "http://localhost:8431/auth/v1"), "/")
	clientID := utilities.EnvOr("OIDC_CLIENT_ID", "microburst-web")

	// identity provider
	identitySvc := identity.NewService(db, nil, nil)
	tokens, err := oidc.NewOIDCService(db, issuer)
	if err != nil {
		sugar.Fatalf("oidc init: %v", err)
	}
	provider := oidc.NewProvider(identitySvc, tokens, clientID)

	// profiles, plans and per-client sessions
	accounts := account.NewService(db)
	plans := plan.NewService(planrepo.NewRepo(db), accounts)
	registry := session.NewRegistry(provider, accounts, clock, sugar.Named("session"))

	// courses
	ingestor := ingest.NewClient(fnCfg)
	sender := messaging.NewClient(fnCfg.BaseURL, fnCfg.Key)
	courses := course.NewService(db, ingestor, sender, plans, clock, sugar.Named("course"))

	// delivery
	deliveries := outboxrepo.NewOutboxRepo(db)
	dispatcher, err := delivery.New(delivery.ConfigFromEnv(), courses.Lessons(), deliveries, sender, clock, sugar.Named("delivery"))
	if err != nil {
		sugar.Fatalf("delivery init: %v", err)
	}
	if err := dispatcher.AddFunc("@every 10m", func() {
		if n := registry.Sweep(); n > 0 {
			sugar.Debugw("swept idle clients", "removed", n)
		}
		metrics.SetClients(registry.Len())
	}); err != nil {
		sugar.Fatalf("session sweeper: %v", err)
	}
	if err := dispatcher.Start(ctx); err != nil {
		sugar.Fatalf("delivery start: %v", err)
	}

	handler := router.RegisterRoutes(sugar, router.Deps{
		Session:  session.NewHandler(registry, provider, sugar.Named("session")),
		Courses:  course.NewHandler(courses, deliveries, registry, sugar.Named("course")),
		Plans:    plan.NewHandler(plans, sugar),
		Identity: identity.NewHandler(identitySvc, sugar.Named("identity")),
		OIDC:     oidc.NewHandler(tokens, identitySvc, sugar.Named("oidc")),
		Auth:     provider,
	})
	srv := &http.Server{
		Addr:              utilities.EnvOr("HTTP_ADDR", "0.0.0.0:8431"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	select {
	case <-dispatcher.Stop().Done():
	case <-doneCtx.Done():
		sugar.Warn("delivery run still in progress at shutdown")
	}

	sugar.Info("goodbye")
}
