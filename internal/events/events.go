// Package events публикует доменные события CoFish в RabbitMQ.
// Публикация идёт из post-commit хуков: сбой брокера логируется
// и не откатывает начисление или покупку.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"cofish.app/core/internal/hooks"
	"cofish.app/core/internal/store"
)

// Ключи маршрутизации
const (
	CatchAwarded        = "catch.awarded"
	KarmaAwarded        = "karma.awarded"
	TargetZonePurchased = "targetzone.purchased"
)

const (
	exchangeKind   = "topic"
	publishTimeout = 5 * time.Second
)

// Envelope конверт события.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Publisher отправляет события.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// Nop публикатор без брокера (AMQP_URL не задан).
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// AMQPPublisher публикатор в exchange RabbitMQ.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	now      func() time.Time
}

// NewAMQPPublisher подключается к брокеру и объявляет durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		exchangeKind,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("объявление exchange %s: %w", exchange, err)
	}
	log.WithField("exchange", exchange).Info("Публикация событий в RabbitMQ включена")
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, now: time.Now}, nil
}

// Publish отправляет JSON-конверт с persistent delivery.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := Encode(routingKey, payload, p.now())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.now(),
		},
	)
	if err != nil {
		return fmt.Errorf("публикация %s: %w", routingKey, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.WithError(err).Warn("Не удалось закрыть канал RabbitMQ")
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Encode сериализует конверт события.
func Encode(routingKey string, payload any, at time.Time) ([]byte, error) {
	body, err := json.Marshal(Envelope{Type: routingKey, OccurredAt: at.UTC(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", routingKey, err)
	}
	return body, nil
}

// publish ограничивает время публикации из хука.
func publish(ctx context.Context, p Publisher, key string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.Publish(ctx, key, payload)
}

type catchAwarded struct {
	CatchID     string `json:"catchId"`
	UserID      string `json:"userId"`
	Species     string `json:"species,omitempty"`
	BasePoints  int64  `json:"basePoints"`
	HasLocation bool   `json:"hasLocation"`
}

// CatchAwardedHook событие начисления очков за улов.
// Координаты в событие не попадают.
func CatchAwardedHook(p Publisher) hooks.Hook[*store.Catch] {
	return hooks.Hook[*store.Catch]{Name: "events." + CatchAwarded, Fn: func(ctx context.Context, c *store.Catch) error {
		_, _, ok := c.Location()
		return publish(ctx, p, CatchAwarded, catchAwarded{
			CatchID:     c.ID,
			UserID:      c.UserID,
			Species:     c.Species,
			BasePoints:  c.BasePoints,
			HasLocation: ok,
		})
	}}
}

// KarmaAwardedHook событие начисления кармы помощнику.
func KarmaAwardedHook(p Publisher) hooks.Hook[*store.KarmaEvent] {
	return hooks.Hook[*store.KarmaEvent]{Name: "events." + KarmaAwarded, Fn: func(ctx context.Context, e *store.KarmaEvent) error {
		return publish(ctx, p, KarmaAwarded, e)
	}}
}

type zonePurchased struct {
	PurchaseID      string  `json:"purchaseId"`
	UserID          string  `json:"userId"`
	RadiusMiles     float64 `json:"radiusMiles"`
	FinalCostPoints int64   `json:"finalCostPoints"`
	IncludedCatches int     `json:"includedCatches"`
	// Degraded поиск уловов не удался, карма по покупке не начислится
	Degraded bool `json:"degraded"`
}

// PurchaseHook событие покупки таргет-зоны.
func PurchaseHook(p Publisher) hooks.Hook[*store.InfoPurchase] {
	return hooks.Hook[*store.InfoPurchase]{Name: "events." + TargetZonePurchased, Fn: func(ctx context.Context, ip *store.InfoPurchase) error {
		return publish(ctx, p, TargetZonePurchased, zonePurchased{
			PurchaseID:      ip.ID,
			UserID:          ip.UserID,
			RadiusMiles:     ip.RadiusMiles,
			FinalCostPoints: ip.FinalCostPoints,
			IncludedCatches: len(ip.IncludedCatchIDs),
			Degraded:        ip.IncludedCatchIDs == nil,
		})
	}}
}
