package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/winfrey-Git/customer-portal/internal/config"
	"github.com/winfrey-Git/customer-portal/internal/erp"
	"github.com/winfrey-Git/customer-portal/internal/gateway"
	"github.com/winfrey-Git/customer-portal/internal/messaging"
	"github.com/winfrey-Git/customer-portal/internal/middleware"
	"github.com/winfrey-Git/customer-portal/internal/registrations"
	"github.com/winfrey-Git/customer-portal/internal/soap"
	"github.com/winfrey-Git/customer-portal/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(middleware.NewLogHandler(config.NewLogger(cfg.Log, os.Stdout).Handler()))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateGateway(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.App.Name, cfg.App.Version, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.SamplingRatio)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.App.Name, cfg.App.Version)
	if err != nil {
		return fmt.Errorf("initialize meter: %w", err)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	upstream, err := telemetry.NewUpstreamMetrics()
	if err != nil {
		return fmt.Errorf("initialize upstream metrics: %w", err)
	}

	creds, err := erp.NewCredentials(cfg.ERP.Username, cfg.ERP.AccessKey)
	if err != nil {
		return err
	}

	endpoints, err := erp.NewEndpointTable(cfg.ERP.BaseURL, cfg.ERP.Company, erp.DefaultCatalogue, cfg.ERP.EntitySets)
	if err != nil {
		return err
	}

	// Per-call timeouts come from the dispatcher and SOAP client contexts.
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	dispatcher := gateway.NewDispatcher(endpoints, creds, httpClient, logger,
		gateway.WithTimeout(cfg.ERP.Timeout),
		gateway.WithMetrics(upstream),
	)
	service := gateway.NewService(dispatcher, cfg.Gateway.SearchLimit, logger)
	soapClient := soap.NewClient(cfg.ERP.SOAPURL, creds, httpClient, logger,
		soap.WithTimeout(cfg.ERP.Timeout),
		soap.WithMetrics(upstream),
		soap.WithExtractor(soap.NewExtractor(cfg.Gateway.SOAPResponseParser)),
	)

	opts := []gateway.HandlerOption{gateway.WithUpstreamStatus(cfg.Gateway.PropagateUpstreamStatus)}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.CustomerCreatedTopic)
		defer func() { _ = producer.Close() }()
		opts = append(opts, gateway.WithEventPublisher(producer))
	}

	if cfg.Database.URL != "" {
		db, err := telemetry.OpenDB("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		opts = append(opts, gateway.WithRegistrations(registrations.NewRepository(db)))
	}

	handler := gateway.NewHandler(dispatcher, service, soapClient, logger, opts...)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: otelhttp.NewHandler(
			middleware.Chain(mux,
				middleware.RequestID,
				middleware.Logging(logger),
				middleware.Recover(logger),
				middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
				middleware.RateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
			),
			cfg.App.Name,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting gateway service",
			"port", cfg.App.Port,
			"erp", cfg.ERP.BaseURL,
			"company", cfg.ERP.Company,
			"entities", len(endpoints.Keys()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
