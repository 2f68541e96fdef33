package registry

import (
	"fmt"
	"sync"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// DecoderRegistry decodes pub/sub message bodies on the consumer side. Each
// event type maps to a payload factory.
type DecoderRegistry struct {
	mtx       sync.RWMutex
	factories map[enums.OutboxEventType]func() any
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{factories: make(map[enums.OutboxEventType]func() any)}
}

// NewOrderDecoders registers every order event payload.
func NewOrderDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOrderCreated, func() any { return &payloads.OrderCreatedEvent{} })
	reg.Register(enums.EventOrderStatusChanged, func() any { return &payloads.OrderStatusChangedEvent{} })
	reg.Register(enums.EventReservationReleased, func() any { return &payloads.ReservationReleasedEvent{} })
	return reg
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, factory func() any) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.factories[eventType] = factory
}

// Decode parses a message body that carries a PayloadEnvelope.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, body []byte) (outbox.PayloadEnvelope, any, error) {
	r.mtx.RLock()
	factory, ok := r.factories[eventType]
	r.mtx.RUnlock()
	if !ok {
		return outbox.PayloadEnvelope{}, nil, fmt.Errorf("decoder not registered for %s", eventType)
	}
	return decodeEnvelope(eventType, body, factory)
}
