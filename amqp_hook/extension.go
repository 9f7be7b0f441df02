// Package amqphook publishes tierpay journal events to a RabbitMQ topic
// exchange. Routing keys are "tierpay." followed by the event kind, for
// example "tierpay.usage.applied".
package amqphook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rabbitmq/amqp091-go"

	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/plugin"
)

// DefaultExchange is the exchange used when none is configured.
const DefaultExchange = "tierpay_events"

// Compile-time interface checks.
var (
	_ plugin.Plugin  = (*Extension)(nil)
	_ plugin.OnEvent = (*Extension)(nil)
)

// Message is the JSON body of a published event. Amounts are decimal strings.
type Message struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Account      string            `json:"account"`
	Counterparty string            `json:"counterparty,omitempty"`
	Token        string            `json:"token,omitempty"`
	TokenID      uint64            `json:"token_id,omitempty"`
	Units        uint64            `json:"units,omitempty"`
	Amount       string            `json:"amount"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// NewMessage converts a journal event.
func NewMessage(e *event.Event) Message {
	m := Message{
		ID:         e.ID.String(),
		Kind:       string(e.Kind),
		Account:    e.Account.Hex(),
		TokenID:    e.TokenID,
		Units:      e.Units,
		Amount:     "0",
		Attributes: e.Attributes,
		Timestamp:  e.Timestamp,
	}
	if e.Amount != nil {
		m.Amount = e.Amount.Dec()
	}
	if e.Counterparty != (common.Address{}) {
		m.Counterparty = e.Counterparty.Hex()
	}
	if e.Token != (common.Address{}) {
		m.Token = e.Token.Hex()
	}
	return m
}

// Extension forwards every journal event to a Publisher.
type Extension struct {
	publisher Publisher
	exchange  string
	kinds     map[event.Kind]bool // nil = all kinds
	logger    *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithExchange sets the exchange name.
func WithExchange(name string) Option {
	return func(e *Extension) {
		if name != "" {
			e.exchange = name
		}
	}
}

// WithKinds limits publishing to the given event kinds.
func WithKinds(kinds ...event.Kind) Option {
	return func(e *Extension) {
		e.kinds = make(map[event.Kind]bool, len(kinds))
		for _, k := range kinds {
			e.kinds[k] = true
		}
	}
}

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// New creates an Extension publishing through p.
func New(p Publisher, opts ...Option) *Extension {
	e := &Extension{
		publisher: p,
		exchange:  DefaultExchange,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "amqp-hook" }

// RoutingKey returns the routing key for kind.
func RoutingKey(kind event.Kind) string { return "tierpay." + string(kind) }

// OnEvent implements plugin.OnEvent. Publish failures are returned so the
// registry logs them; they never affect the committed change.
func (e *Extension) OnEvent(ctx context.Context, evt *event.Event) error {
	if e.kinds != nil && !e.kinds[evt.Kind] {
		return nil
	}

	body, err := json.Marshal(NewMessage(evt))
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.ID.String(),
		Type:         string(evt.Kind),
		Timestamp:    evt.Timestamp,
		Body:         body,
	}
	if err := e.publisher.Publish(ctx, e.exchange, RoutingKey(evt.Kind), msg); err != nil {
		e.logger.Warn("amqp_hook: publish failed",
			"kind", evt.Kind,
			"event_id", evt.ID.String(),
			"error", err,
		)
		return err
	}
	return nil
}
