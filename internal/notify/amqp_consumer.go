package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"forge/internal/pipeline"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Relay feeds events published by other processes into a local notifier,
// typically the SSE hub of an API server whose pipelines run on workers.
// It binds an exclusive auto-delete queue to every pipeline routing key.
func Relay(ctx context.Context, url, exchange string, to pipeline.Notifier, logger *zap.Logger) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		closeAll()
		return fmt.Errorf("declare relay queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "pipeline.#", exchange, false, nil); err != nil {
		closeAll()
		return fmt.Errorf("bind relay queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		closeAll()
		return fmt.Errorf("consume relay queue: %w", err)
	}

	go func() {
		defer closeAll()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					logger.Warn("amqp relay closed")
					return
				}
				var e pipeline.Event
				if err := json.Unmarshal(d.Body, &e); err != nil {
					logger.Warn("drop undecodable event", zap.String("routing_key", d.RoutingKey))
					continue
				}
				to.Notify(e)
			}
		}
	}()
	return nil
}
