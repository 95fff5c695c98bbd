package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/vessellink/veddy/internal/adapters/http"
	"github.com/vessellink/veddy/internal/bootstrap"
	"github.com/vessellink/veddy/internal/config"
	"github.com/vessellink/veddy/internal/core/ports"
	"github.com/vessellink/veddy/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	var newStreamSender func(conv ports.ChannelConversation) httpadapter.ChannelStreamSender
	if app.NewTeamsSender != nil {
		newStreamSender = func(conv ports.ChannelConversation) httpadapter.ChannelStreamSender {
			return app.NewTeamsSender(conv)
		}
	}

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(
		app.Chat,
		app.Ingest,
		app.Repo,
		newStreamSender,
		app.Channel,
		serverMetrics,
		app.Logger,
		httpadapter.Options{
			Service:             "api",
			StreamRatePerSecond: cfg.StreamRatePerSecond,
			StreamBurst:         cfg.StreamBurst,
			RateLimitRPS:        cfg.APIRateLimitRPS,
			RateLimitBurst:      cfg.APIRateLimitBurst,
			MaxInFlight:         cfg.APIMaxInFlight,
			TeamsAggregate:      cfg.TeamsAggregateReply,
		},
	).Handler()

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Streaming responses can legitimately run for minutes.
		WriteTimeout: time.Duration(cfg.GenerationTimeoutSeconds+30) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
