package kafkart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/dispatch"
	"printfarm-system/internal/domain"
)

// Topic layout of the Kafka transport. Offers are keyed by farmer so one
// farmer's offers stay ordered; responses are keyed by order.
const (
	OffersTopic    = "farm.offers"
	EventsTopic    = "farm.session-events"
	ResponsesTopic = "farm.offer-responses"
)

// Transport is the Kafka alternative to the RabbitMQ transport, for
// deployments already running a Kafka backbone.
type Transport struct {
	lg       *logger.Logger
	producer sarama.SyncProducer
}

func New(lg *logger.Logger, brokers []string) (*Transport, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Timeout = 5 * time.Second
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return &Transport{lg: lg, producer: prod}, nil
}

func (t *Transport) Close() error { return t.producer.Close() }

func (t *Transport) SendOffer(ctx context.Context, farmerID string, order domain.OrderDescriptor) error {
	msg := domain.NewOfferMessage(order, farmerID)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	_, _, err = t.producer.SendMessage(&sarama.ProducerMessage{
		Topic: OffersTopic,
		Key:   sarama.StringEncoder(farmerID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

func (t *Transport) PublishSessionEvent(ctx context.Context, ev domain.SessionEventMessage) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	_, _, err = t.producer.SendMessage(&sarama.ProducerMessage{
		Topic: EventsTopic,
		Key:   sarama.StringEncoder(ev.OrderID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("send session event: %w", err)
	}
	return nil
}

// ConsumeResponses runs a consumer group over the responses topic, feeding
// each decision into the dispatcher, until ctx is done.
func ConsumeResponses(ctx context.Context, lg *logger.Logger, brokers []string, groupID string, d *dispatch.Dispatcher) error {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer group.Close()

	handler := responseHandler{lg: lg, d: d}
	for {
		if err := group.Consume(ctx, []string{ResponsesTopic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			lg.Error("consumer_group_error", err, nil)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type responseHandler struct {
	lg *logger.Logger
	d  *dispatch.Dispatcher
}

func (responseHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (responseHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h responseHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var resp domain.OfferResponseMessage
		if err := json.Unmarshal(msg.Value, &resp); err != nil {
			h.lg.Error("response_unmarshal_failed", err, map[string]any{
				"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset,
			})
			session.MarkMessage(msg, "")
			continue
		}
		if err := h.d.SubmitResponse(resp.OrderID, resp.FarmerID, resp.Accepted); err != nil && !errors.Is(err, dispatch.ErrNoActiveWaiter) {
			h.lg.Error("response_submit_failed", err, map[string]any{"order_id": resp.OrderID})
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
