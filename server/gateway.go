package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gratheon/graphql-gateway/internal/auth"
	"github.com/gratheon/graphql-gateway/internal/config"
	"github.com/gratheon/graphql-gateway/internal/httpapi"
	"github.com/gratheon/graphql-gateway/internal/identity"
	"github.com/gratheon/graphql-gateway/internal/observability"
	"github.com/gratheon/graphql-gateway/internal/querylog"
	"github.com/gratheon/graphql-gateway/internal/registryclient"
	"github.com/gratheon/graphql-gateway/internal/supergraph"
	"github.com/gratheon/graphql-gateway/internal/telemetry"
)

const gatewayVersion = "v0.1.0"

// Run loads configuration, builds the supergraph manager and HTTP surface,
// and serves until an interrupt or SIGTERM is received.
func Run() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load gateway config: %v", err)
	}

	flushSentry, err := observability.Init(cfg.SentryDsn, cfg.ServiceName, gatewayVersion)
	if err != nil {
		log.Fatalf("failed to initialize observability: %v", err)
	}
	defer flushSentry()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, gatewayVersion)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}

	registry := registryclient.New(cfg.SchemaRegistryURL, nil)
	manager := supergraph.New(registry, cfg.PollIntervalMs, cfg.RouterSignature, nil)

	if _, err := manager.Initialize(ctx, func(sdl string) {
		logger.Info("published new supergraph", "sdl_bytes", len(sdl))
	}); err != nil {
		log.Fatalf("failed to build initial supergraph: %v", err)
	}
	defer manager.Cancel()

	identityClient := identity.New(cfg.UserCycleURL, nil)
	authPipeline := auth.New(identityClient, cfg.PrivateKey)

	sink := querylog.New(cfg.KafkaBrokerURL)
	defer sink.Close()

	handler := httpapi.New(manager, authPipeline, func(r *http.Request, requestID string, id auth.Context, operationName string, durationMs int64, subgraphFanout int, reqErr error) {
		sink.Record(r, requestID, id, operationName, durationMs, subgraphFanout, reqErr, time.Now().UnixMilli())
	})

	if cfg.Opentelemetry.TracingSetting.Enable {
		handler = otelhttp.NewHandler(handler, cfg.ServiceName)
	}

	timeoutDuration, err := time.ParseDuration(cfg.TimeoutDuration)
	if err != nil {
		log.Fatalf("failed to parse timeout duration: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: handler,
	}

	go func() {
		log.Printf("starting gateway server on port %d", cfg.ListenPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server failed: %v", err)
		}
	}()

	<-ctx.Done()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), timeoutDuration)
	defer cancel()

	log.Println("shutting down gateway server...")
	if err := srv.Shutdown(timeoutCtx); err != nil {
		log.Fatalf("failed to shutdown gateway server: %v", err)
	}

	if err := shutdownTracer(timeoutCtx); err != nil {
		log.Fatalf("failed to shutdown tracer: %v", err)
	}

	log.Println("gateway server stopped")
}
