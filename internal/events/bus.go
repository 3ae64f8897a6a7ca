// Package events provides an in-process pub/sub bus. Analytics, metrics and
// persistence subscribe to trade lifecycle events so the bot loop never
// blocks on them.
package events

import (
	"sync"
	"time"
)

// EventType represents the kinds of events the bots emit.
type EventType string

const (
	EventTradeExecuted  EventType = "TRADE_EXECUTED"
	EventTradeRejected  EventType = "TRADE_REJECTED"
	EventTradeFailed    EventType = "TRADE_FAILED"
	EventBreakerTripped EventType = "BREAKER_TRIPPED"
	EventLegOpened      EventType = "LEG_OPENED" // extension, runner or chase leg
	EventLegClosed      EventType = "LEG_CLOSED"
	EventReserveDeploy  EventType = "RESERVE_DEPLOYED"
	EventRegimeChanged  EventType = "REGIME_CHANGED"
	EventBotStarted     EventType = "BOT_STARTED"
	EventBotStopped     EventType = "BOT_STOPPED"
	EventPriceUpdate    EventType = "PRICE_UPDATE"
)

// Event is one bus message.
type Event struct {
	Type       EventType              `json:"type"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data"`
}

// Subscriber handles events. Subscribers run on their own goroutines; a slow
// subscriber never blocks a publisher.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish fans an event out to its subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTradeExecuted reports a filled trade.
func (b *Bus) PublishTradeExecuted(instanceID, side, clientOrderID string, price, quoteAmount, realizedPnl float64) {
	b.Publish(Event{
		Type:       EventTradeExecuted,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"side":            side,
			"client_order_id": clientOrderID,
			"price":           price,
			"quote_amount":    quoteAmount,
			"realized_pnl":    realizedPnl,
		},
	})
}

// PublishTradeRejected reports a gating rejection with its reason code.
func (b *Bus) PublishTradeRejected(instanceID, side, code, reason string) {
	b.Publish(Event{
		Type:       EventTradeRejected,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"side":   side,
			"code":   code,
			"reason": reason,
		},
	})
}

// PublishBreakerTripped reports a PAUSE-level breaker.
func (b *Bus) PublishBreakerTripped(instanceID, code, reason string) {
	b.Publish(Event{
		Type:       EventBreakerTripped,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"code":   code,
			"reason": reason,
		},
	})
}

// PublishLegOpened reports a new extension, runner or chase leg.
func (b *Bus) PublishLegOpened(instanceID, legType string, qty, price float64) {
	b.Publish(Event{
		Type:       EventLegOpened,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"leg_type": legType,
			"qty":      qty,
			"price":    price,
		},
	})
}

// PublishLegClosed reports a closed leg and its realized pnl.
func (b *Bus) PublishLegClosed(instanceID, legType, reason string, realizedPnl float64) {
	b.Publish(Event{
		Type:       EventLegClosed,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"leg_type":     legType,
			"reason":       reason,
			"realized_pnl": realizedPnl,
		},
	})
}

// PublishReserveDeployed reports a rescue or chase deployment.
func (b *Bus) PublishReserveDeployed(instanceID, action string, amount float64) {
	b.Publish(Event{
		Type:       EventReserveDeploy,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"action": action,
			"amount": amount,
		},
	})
}

// PublishRegimeChanged reports a regime classification change.
func (b *Bus) PublishRegimeChanged(instanceID, from, to string, confidence float64) {
	b.Publish(Event{
		Type:       EventRegimeChanged,
		InstanceID: instanceID,
		Data: map[string]interface{}{
			"from":       from,
			"to":         to,
			"confidence": confidence,
		},
	})
}
