package offers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"printfarm-system/internal/common/config"
	"printfarm-system/internal/common/httpx"
	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/connections/database"
	"printfarm-system/internal/connections/rabbitmq"
	"printfarm-system/internal/dispatch"
	"printfarm-system/internal/repository"
	"printfarm-system/internal/transport/amqprt"
	"printfarm-system/internal/transport/kafkart"
)

// Run wires the dispatch service: audit storage, the configured transport,
// the response consumer and the HTTP API. Blocks until ctx is done.
func Run(ctx context.Context, cfg config.App, port int) error {
	lg := logger.New("dispatch-service")
	if port == 0 {
		port = cfg.Dispatch.HTTPPort
	}
	offerTimeout := time.Duration(cfg.Dispatch.OfferTimeoutSeconds) * time.Second

	var audit *repository.AuditPG
	if cfg.Database.Host != "" {
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := database.Migrate(db, "migrations"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		audit = repository.NewAuditPG(db)
		lg.Info("audit_storage_ready", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Name})
	} else {
		lg.Warn("audit_storage_disabled", map[string]any{"reason": "no database host configured"})
	}

	var (
		sender   dispatch.OfferSender
		events   dispatch.EventSink
		auditLog dispatch.AuditLog
		consume  func(context.Context, *dispatch.Dispatcher) error
	)
	if audit != nil {
		auditLog = audit
	}

	switch cfg.Dispatch.Transport {
	case "kafka":
		kt, err := kafkart.New(lg, cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("kafka transport: %w", err)
		}
		defer kt.Close()
		sender, events = kt, kt
		consume = func(ctx context.Context, d *dispatch.Dispatcher) error {
			return kafkart.ConsumeResponses(ctx, lg, cfg.Kafka.Brokers, cfg.Kafka.GroupID, d)
		}
		lg.Info("transport_ready", map[string]any{"transport": "kafka", "brokers": cfg.Kafka.Brokers})
	case "rabbitmq", "":
		rmq, err := rabbitmq.Dial(rabbitmq.Config{
			Host: cfg.Rabbit.Host, Port: cfg.Rabbit.Port,
			User: cfg.Rabbit.User, Password: cfg.Rabbit.Pass, VHost: cfg.Rabbit.VHost,
		})
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer rmq.Close()
		if err := rmq.DeclareTopology(); err != nil {
			return fmt.Errorf("declare topology: %w", err)
		}
		// Responses come in on a separate connection so a slow consumer never
		// backs up offer publishing, and confirms stay per-channel.
		consRMQ, err := rabbitmq.Dial(rabbitmq.Config{
			Host: cfg.Rabbit.Host, Port: cfg.Rabbit.Port,
			User: cfg.Rabbit.User, Password: cfg.Rabbit.Pass, VHost: cfg.Rabbit.VHost,
		})
		if err != nil {
			return fmt.Errorf("connect rabbitmq consumer: %w", err)
		}
		defer consRMQ.Close()
		at := amqprt.New(lg, rmq)
		consumerTransport := amqprt.New(lg, consRMQ)
		sender, events = at, at
		consume = func(ctx context.Context, d *dispatch.Dispatcher) error {
			return consumerTransport.ConsumeResponses(ctx, "dispatch-service", d)
		}
		lg.Info("transport_ready", map[string]any{"transport": "rabbitmq", "host": cfg.Rabbit.Host})
	default:
		return fmt.Errorf("unknown transport %q", cfg.Dispatch.Transport)
	}

	d := dispatch.New(lg, sender, events, auditLog, offerTimeout)

	consumeErr := make(chan error, 1)
	go func() { consumeErr <- consume(ctx, d) }()

	h := NewHandler(lg, d, audit)
	srv := httpx.New(":"+strconv.Itoa(port), h.Routes())
	lg.Info("http_listening", map[string]any{"port": port})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run(ctx) }()

	select {
	case err := <-consumeErr:
		if err != nil {
			return fmt.Errorf("response consumer: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		return err
	}
}
