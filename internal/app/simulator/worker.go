package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"printfarm-system/internal/common/config"
	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/connections/rabbitmq"
	"printfarm-system/internal/domain"
)

// Config tunes how the simulated farmers behave. Whatever probability mass is
// left after accept and decline is silence, which exercises the timeout path.
type Config struct {
	Name          string
	AcceptRate    float64
	DeclineRate   float64
	ResponseDelay time.Duration
}

// Run consumes every offer from the offers exchange and answers as a pool of
// farmers would. It exists for local end-to-end runs; real farmers answer
// through their own clients.
func Run(ctx context.Context, appCfg config.App, cfg Config) error {
	lg := logger.New("farmer-simulator")
	if cfg.Name == "" {
		cfg.Name = "farmer-simulator"
	}

	rmq, err := rabbitmq.Dial(rabbitmq.Config{
		Host: appCfg.Rabbit.Host, Port: appCfg.Rabbit.Port,
		User: appCfg.Rabbit.User, Password: appCfg.Rabbit.Pass, VHost: appCfg.Rabbit.VHost,
	})
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer rmq.Close()
	if err := rmq.DeclareTopology(); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	queue := cfg.Name + ".q"
	ch := rmq.Channel()
	if _, err := ch.QueueDeclare(queue, false, true, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, "farmer.*", rabbitmq.OffersExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", queue, err)
	}

	deliveries, err := rmq.Consume(queue, cfg.Name, 10)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}
	lg.Info("simulator_started", map[string]any{
		"queue": queue, "accept_rate": cfg.AcceptRate, "decline_rate": cfg.DeclineRate,
		"response_delay": cfg.ResponseDelay.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case del, ok := <-deliveries:
			if !ok {
				return nil
			}
			var offer domain.OfferMessage
			if err := json.Unmarshal(del.Body, &offer); err != nil {
				lg.Error("offer_unmarshal_failed", err, nil)
				_ = del.Nack(false, false)
				continue
			}
			_ = del.Ack(false)
			go respond(ctx, lg, rmq, cfg, offer)
		}
	}
}

func respond(ctx context.Context, lg *logger.Logger, rmq *rabbitmq.Client, cfg Config, offer domain.OfferMessage) {
	roll := rand.Float64()
	switch {
	case roll < cfg.AcceptRate:
		sendDecision(ctx, lg, rmq, cfg, offer, true)
	case roll < cfg.AcceptRate+cfg.DeclineRate:
		sendDecision(ctx, lg, rmq, cfg, offer, false)
	default:
		// Stay silent; the dispatcher's timeout moves the offer along.
		lg.Debug("offer_ignored", map[string]any{"order_id": offer.OrderID, "farmer_id": offer.FarmerID})
	}
}

func sendDecision(ctx context.Context, lg *logger.Logger, rmq *rabbitmq.Client, cfg Config, offer domain.OfferMessage, accepted bool) {
	if cfg.ResponseDelay > 0 {
		select {
		case <-time.After(cfg.ResponseDelay):
		case <-ctx.Done():
			return
		}
	}
	resp := domain.OfferResponseMessage{OrderID: offer.OrderID, FarmerID: offer.FarmerID, Accepted: accepted}
	body, err := json.Marshal(resp)
	if err != nil {
		lg.Error("response_marshal_failed", err, nil)
		return
	}
	headers := amqp.Table{"x-source": "farmer-simulator"}
	// Default exchange routes straight to the responses queue.
	if err := rmq.Publish(ctx, "", rabbitmq.ResponsesQueue, body, headers, "application/json", true); err != nil {
		lg.Error("response_publish_failed", err, map[string]any{"order_id": offer.OrderID})
		return
	}
	lg.Info("decision_sent", map[string]any{
		"order_id": offer.OrderID, "farmer_id": offer.FarmerID, "accepted": accepted,
	})
}
