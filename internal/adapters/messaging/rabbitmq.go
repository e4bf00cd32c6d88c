package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQMessaging реализация MessagingPort поверх RabbitMQ.
// Каждая тема - отдельная durable-очередь в default exchange.
type RabbitMQMessaging struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	pubMu    sync.Mutex
	prefetch int
	logger   interfaces.LoggerPort

	declared sync.Map
}

// NewRabbitMQMessaging подключается к брокеру и открывает канал публикации
func NewRabbitMQMessaging(url string, prefetch int, logger interfaces.LoggerPort) (*RabbitMQMessaging, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if prefetch <= 0 {
		prefetch = 10
	}

	return &RabbitMQMessaging{
		conn:     conn,
		pubCh:    ch,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// Publish публикует сообщение в очередь topic
func (r *RabbitMQMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return r.publish(ctx, topic, "", message, amqp.Table{})
}

// PublishForTenant публикует сообщение с заголовком арендатора
func (r *RabbitMQMessaging) PublishForTenant(ctx context.Context, topic, key string, message []byte, tenantID string) error {
	return r.publish(ctx, topic, key, message, amqp.Table{"tenant_id": tenantID})
}

func (r *RabbitMQMessaging) publish(ctx context.Context, topic, key string, message []byte, headers amqp.Table) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if _, ok := r.declared.Load(topic); !ok {
		if err := declareQueue(r.pubCh, topic); err != nil {
			return err
		}
		r.declared.Store(topic, struct{}{})
	}

	if key != "" {
		headers["key"] = key
	}

	err := r.pubCh.PublishWithContext(ctx,
		"",    // default exchange
		topic, // routing key = queue
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
			Body:         message,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", topic, err)
	}
	return nil
}

// Subscribe начинает чтение очереди topic в отдельном канале.
// Успешно обработанное сообщение подтверждается; неудачное один раз возвращается в очередь.
func (r *RabbitMQMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := declareQueue(ch, topic); err != nil {
		_ = ch.Close()
		return nil, err
	}

	tag := "marketplace-" + uuid.New().String()
	deliveries, err := ch.Consume(
		topic,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.consume(consumeCtx, topic, deliveries, handler)
	}()

	var once sync.Once
	return func() error {
		var closeErr error
		once.Do(func() {
			cancel()
			_ = ch.Cancel(tag, false)
			<-done
			closeErr = ch.Close()
		})
		return closeErr
	}, nil
}

func (r *RabbitMQMessaging) consume(ctx context.Context, topic string, deliveries <-chan amqp.Delivery, handler interfaces.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			msg := deliveryToMessage(topic, d)
			if err := handler(ctx, msg); err != nil {
				r.logger.Error("Ошибка обработки сообщения RabbitMQ",
					interfaces.LogField{Key: "queue", Value: topic},
					interfaces.LogField{Key: "message_id", Value: msg.ID},
					interfaces.LogField{Key: "redelivered", Value: d.Redelivered},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func deliveryToMessage(topic string, d amqp.Delivery) *interfaces.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return &interfaces.Message{
		ID:          d.MessageId,
		Topic:       topic,
		Key:         headers["key"],
		Value:       d.Body,
		Headers:     headers,
		TenantID:    headers["tenant_id"],
		PublishedAt: d.Timestamp,
	}
}

// Close закрывает канал публикации и соединение
func (r *RabbitMQMessaging) Close() error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	if err := r.pubCh.Close(); err != nil && err != amqp.ErrClosed {
		r.logger.Warn("Ошибка закрытия канала RabbitMQ", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	if err := r.conn.Close(); err != nil && err != amqp.ErrClosed {
		return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
	}
	return nil
}
