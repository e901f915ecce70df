package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	accountrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/account/repo"
	courserepo "github.com/ovaphlow/pitchfork/service-microburst/internal/course/repo"
	identityrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/identity/repo"
	oidcrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/oidc/repo"
	outboxrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/outbox/repo"
	planrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/plan/repo"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/database"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

type tableOwner interface {
	EnsureTable(ctx context.Context) error
}

// Schema bootstrap: creates every table the api needs, then exits.
func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("ensuring microburst schema")

	db, err := database.ConnectX(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	// order matters: lessons reference courses, the outbox is joined by the dispatcher
	steps := []struct {
		name string
		repo tableOwner
	}{
		{"identities", identityrepo.NewIdentityRepo(db)},
		{"refresh_sessions", oidcrepo.NewRefreshRepo(db)},
		{"accounts", accountrepo.NewAccountRepo(db)},
		{"plans", planrepo.NewRepo(db)},
		{"courses", courserepo.NewCourseRepo(db)},
		{"outbound_messages", outboxrepo.NewOutboxRepo(db)},
	}
	for _, st := range steps {
		if err := st.repo.EnsureTable(ctx); err != nil {
			sugar.Fatalf("ensure %s: %v", st.name, err)
		}
		sugar.Infow("table ready", "table", st.name)
	}

	sugar.Info("schema ready")
}
