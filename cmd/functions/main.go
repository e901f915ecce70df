package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/ingest"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/messaging"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/router"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	logCfg := utilities.ConfigFromEnv()
	logCfg.Service = "microburst-functions"
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	perMinute := 10.0
	if v, err := strconv.ParseFloat(os.Getenv("SEND_RATE_PER_MINUTE"), 64); err == nil && v > 0 {
		perMinute = v
	}
	limiter := messaging.NewRateLimiter(perMinute, 3)

	fns := ingest.NewFunctions(sugar.Named("ingest"))
	send := messaging.NewFunction(limiter, sugar.Named("messaging"))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /functions/v1/process-youtube", fns.ProcessYouTube)
	mux.HandleFunc("POST /functions/v1/process-pdf", fns.ProcessPDF)
	mux.HandleFunc("POST /functions/v1/send-whatsapp", send.SendWhatsApp)
	mux.Handle("GET /metrics", metrics.Handler())

	handler := metrics.InstrumentHandler(router.LoggingMiddleware(sugar)(ingest.CORS(mux)))
	srv := &http.Server{
		Addr:              utilities.EnvOr("FUNCTIONS_ADDR", "0.0.0.0:8432"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("functions listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			limiter.Cleanup(10000)
		case <-ctx.Done():
			sugar.Info("shutting down")
			doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(doneCtx); err != nil {
				sugar.Warnf("http server shutdown failed: %v", err)
			}
			return
		}
	}
}
