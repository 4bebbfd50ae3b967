package amqprt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/connections/rabbitmq"
	"printfarm-system/internal/dispatch"
	"printfarm-system/internal/domain"
)

// Transport pushes offers and session events through RabbitMQ and feeds
// farmer responses back into the dispatcher. Offers go to the topic exchange
// keyed farmer.<id>; events fan out to anyone displaying dispatch progress.
type Transport struct {
	lg     *logger.Logger
	client *rabbitmq.Client
}

func New(lg *logger.Logger, client *rabbitmq.Client) *Transport {
	return &Transport{lg: lg, client: client}
}

func (t *Transport) SendOffer(ctx context.Context, farmerID string, order domain.OrderDescriptor) error {
	msg := domain.NewOfferMessage(order, farmerID)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	key := "farmer." + farmerID
	headers := amqp.Table{"x-source": "dispatch-service", "x-order-id": order.OrderID}
	if err := t.client.Publish(ctx, rabbitmq.OffersExchange, key, body, headers, "application/json", true); err != nil {
		return fmt.Errorf("publish offer: %w", err)
	}
	return nil
}

func (t *Transport) PublishSessionEvent(ctx context.Context, ev domain.SessionEventMessage) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if err := t.client.Publish(ctx, rabbitmq.EventsExchange, "", body, nil, "application/json", false); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// ConsumeResponses pumps offer_responses.q into the dispatcher until ctx is
// done or the channel drops. Malformed messages go to the DLQ; stale
// responses are acked and forgotten per the idempotency contract.
func (t *Transport) ConsumeResponses(ctx context.Context, consumerTag string, d *dispatch.Dispatcher) error {
	deliveries, err := t.client.Consume(rabbitmq.ResponsesQueue, consumerTag, 1)
	if err != nil {
		return fmt.Errorf("consume %s: %w", rabbitmq.ResponsesQueue, err)
	}

	closeCh := t.client.Channel().NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-closeCh:
			if e != nil {
				return fmt.Errorf("amqp channel closed: %w", e)
			}
			return nil
		case del, ok := <-deliveries:
			if !ok {
				return nil
			}
			t.handleDelivery(del, d)
		}
	}
}

func (t *Transport) handleDelivery(del amqp.Delivery, d *dispatch.Dispatcher) {
	var msg domain.OfferResponseMessage
	if err := json.Unmarshal(del.Body, &msg); err != nil {
		t.lg.Error("response_unmarshal_failed", err, map[string]any{"body_len": len(del.Body)})
		_ = del.Nack(false, false) // dead-letter
		return
	}
	if msg.OrderID == "" || msg.FarmerID == "" {
		t.lg.Warn("response_missing_ids", map[string]any{"order_id": msg.OrderID, "farmer_id": msg.FarmerID})
		_ = del.Nack(false, false)
		return
	}
	if err := d.SubmitResponse(msg.OrderID, msg.FarmerID, msg.Accepted); err != nil && !errors.Is(err, dispatch.ErrNoActiveWaiter) {
		t.lg.Error("response_submit_failed", err, map[string]any{"order_id": msg.OrderID})
	}
	_ = del.Ack(false)
}
