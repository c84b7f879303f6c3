package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"forge/internal/pipeline"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const amqpBuffer = 256

// AMQP publishes events to a topic exchange with routing key
// pipeline.<type>.<status>. Publishing happens on a background goroutine;
// Notify only enqueues and drops when the buffer is full.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	events   chan pipeline.Event
	logger   *zap.Logger
	done     chan struct{}
	once     sync.Once
}

func NewAMQP(url, exchange string, logger *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	a := &AMQP{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		events:   make(chan pipeline.Event, amqpBuffer),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go a.loop()
	return a, nil
}

func (a *AMQP) Notify(e pipeline.Event) {
	select {
	case a.events <- e:
	default:
		a.logger.Warn("amqp event buffer full, dropping event", zap.String("pipeline_id", e.PipelineID))
	}
}

func (a *AMQP) loop() {
	defer close(a.done)
	for e := range a.events {
		body, err := json.Marshal(e)
		if err != nil {
			continue
		}
		err = a.ch.Publish(a.exchange, RoutingKey(e), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    e.PipelineID,
			Body:         body,
		})
		if err != nil {
			a.logger.Error("fail to publish pipeline event", zap.String("pipeline_id", e.PipelineID), zap.Error(err))
		}
	}
}

// Close flushes queued events and closes the connection. Notify must not be
// called afterwards.
func (a *AMQP) Close() error {
	var err error
	a.once.Do(func() {
		close(a.events)
		<-a.done
		a.ch.Close()
		err = a.conn.Close()
	})
	return err
}

func RoutingKey(e pipeline.Event) string {
	if e.Type == pipeline.EventPipeline {
		return fmt.Sprintf("pipeline.%s.%s", e.Type, e.Status)
	}
	return fmt.Sprintf("pipeline.%s.%s", e.Type, e.StageStatus)
}
