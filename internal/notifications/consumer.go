package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const orderNotificationConsumer = "order-notifications"

type vendorNotifier interface {
	NotifyVendors(ctx context.Context, notice NewOrderNotice) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns order_created events into vendor notifications. It backs
// up the direct write done at checkout.
type Consumer struct {
	notifier     vendorNotifier
	subscription *pubsub.Subscriber
	decoders     *registry.DecoderRegistry
	idempotency  idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(notifier vendorNotifier, subscription *pubsub.Subscriber, decoders *registry.DecoderRegistry, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifier:     notifier,
		subscription: subscription,
		decoders:     decoders,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("notification subscription not configured")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if eventType != enums.EventOrderCreated {
		c.logg.Debug(logCtx, "skipping event without vendor notifications")
		return processResult{ack: true}
	}

	envelope, decoded, err := c.decoders.Decode(eventType, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	payload, ok := decoded.(*payloads.OrderCreatedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("got %T", decoded))
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithOrderGroupID(logCtx, payload.GroupID.String())
	notice := NewOrderNotice{GroupID: payload.GroupID, Code: payload.Code}
	for _, order := range payload.Orders {
		notice.Orders = append(notice.Orders, VendorOrder{VendorID: order.VendorID, OrderCode: order.Code, Bill: order.Bill})
	}
	if err := c.notifier.NotifyVendors(ctx, notice); err != nil {
		c.logg.Error(logCtx, "vendor notification failed", err)
		if delErr := c.idempotency.Delete(ctx, orderNotificationConsumer, eventID); delErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", delErr.Error()), "failed to clear idempotency key")
		}
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "vendors notified of new order")
	return processResult{ack: true}
}
