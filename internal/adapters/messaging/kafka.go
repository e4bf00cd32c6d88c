package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer *kafka.Producer
	// unsubscribes активные подписки по id
	unsubscribes map[string]func() error
	subsMutex    sync.Mutex
	brokers      string
	groupID      string
	logger       interfaces.LoggerPort
	wg           sync.WaitGroup
}

// NewKafkaMessaging создает продюсера и запускает чтение отчетов о доставке
func NewKafkaMessaging(brokers []string, groupID string, logger interfaces.LoggerPort) (*KafkaMessaging, error) {
	servers := strings.Join(brokers, ",")
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            servers,
		"client.id":                    "marketplace-service-producer",
		"acks":                         "all",
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,
		"batch.size":                   16384,
		"message.max.bytes":            1000000,
		"queue.buffering.max.messages": 100000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	k := &KafkaMessaging{
		producer:     producer,
		unsubscribes: make(map[string]func() error),
		brokers:      servers,
		groupID:      groupID,
		logger:       logger,
	}

	k.wg.Add(1)
	go k.deliveryReports()

	return k, nil
}

// deliveryReports логирует сообщения, которые брокер не принял
func (k *KafkaMessaging) deliveryReports() {
	defer k.wg.Done()
	for ev := range k.producer.Events() {
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			k.logger.Error("Сообщение не доставлено в Kafka",
				interfaces.LogField{Key: "topic", Value: *m.TopicPartition.Topic},
				interfaces.LogField{Key: "error", Value: m.TopicPartition.Error.Error()},
			)
		}
	}
}

// newKafkaMessage собирает kafka.Message со служебными заголовками
func newKafkaMessage(topic string, message []byte, key string, headers map[string]string) *kafka.Message {
	kafkaHeaders := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}
	kafkaHeaders = append(kafkaHeaders,
		kafka.Header{Key: "message_id", Value: []byte(uuid.New().String())},
		kafka.Header{Key: "timestamp", Value: []byte(strconv.FormatInt(time.Now().UnixNano(), 10))},
	)

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        kafkaHeaders,
	}
}

// toMessage преобразует kafka.Message в Message
func toMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	publishedAt := msg.Timestamp
	if ns, err := strconv.ParseInt(headers["timestamp"], 10, 64); err == nil {
		publishedAt = time.Unix(0, ns)
	}

	var topic string
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	return &interfaces.Message{
		ID:          headers["message_id"],
		Topic:       topic,
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		TenantID:    headers["tenant_id"],
		PublishedAt: publishedAt,
	}
}

// Publish публикует сообщение в указанную тему
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return k.produce(ctx, newKafkaMessage(topic, message, "", nil))
}

// PublishForTenant публикует сообщение с ключом партиционирования и заголовком арендатора
func (k *KafkaMessaging) PublishForTenant(ctx context.Context, topic, key string, message []byte, tenantID string) error {
	return k.produce(ctx, newKafkaMessage(topic, message, key, map[string]string{"tenant_id": tenantID}))
}

func (k *KafkaMessaging) produce(ctx context.Context, msg *kafka.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message to %s: %w", *msg.TopicPartition.Topic, err)
	}
	return nil
}

// Subscribe подписывается на тему в группе groupID. Сообщение подтверждается только
// после успешной обработки; при ошибке обработчика смещение не фиксируется.
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	config := &interfaces.ConsumerConfig{
		GroupID:     k.groupID,
		AutoCommit:  false,
		PollTimeout: 100 * time.Millisecond,
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":        k.brokers,
		"group.id":                 config.GroupID,
		"auto.offset.reset":        "latest",
		"enable.auto.commit":       config.AutoCommit,
		"session.timeout.ms":       30000,
		"max.poll.interval.ms":     300000,
		"heartbeat.interval.ms":    3000,
		"fetch.min.bytes":          1,
		"fetch.wait.max.ms":        500,
		"reconnect.backoff.ms":     50,
		"reconnect.backoff.max.ms": 10000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}

	if err := consumer.Subscribe(topic, nil); err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	id := uuid.New().String()
	consumeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		k.consume(consumeCtx, consumer, config, handler)
	}()

	var once sync.Once
	unsubscribe := func() error {
		var closeErr error
		once.Do(func() {
			cancel()
			<-done

			k.subsMutex.Lock()
			delete(k.unsubscribes, id)
			k.subsMutex.Unlock()

			closeErr = consumer.Close()
		})
		return closeErr
	}

	k.subsMutex.Lock()
	k.unsubscribes[id] = unsubscribe
	k.subsMutex.Unlock()

	return unsubscribe, nil
}

// consume читает сообщения до отмены ctx
func (k *KafkaMessaging) consume(ctx context.Context, consumer *kafka.Consumer, config *interfaces.ConsumerConfig, handler interfaces.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := consumer.Poll(int(config.PollTimeout.Milliseconds()))
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msg := toMessage(e)
			if err := handler(ctx, msg); err != nil {
				k.logger.Error("Ошибка обработки сообщения Kafka",
					interfaces.LogField{Key: "topic", Value: msg.Topic},
					interfaces.LogField{Key: "message_id", Value: msg.ID},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
				continue
			}
			if !config.AutoCommit {
				if _, err := consumer.CommitMessage(e); err != nil {
					k.logger.Warn("Не удалось зафиксировать смещение Kafka",
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
				}
			}

		case kafka.Error:
			k.logger.Error("Ошибка Kafka consumer",
				interfaces.LogField{Key: "code", Value: e.Code().String()},
				interfaces.LogField{Key: "error", Value: e.Error()},
			)
			if e.Code() == kafka.ErrAllBrokersDown {
				return
			}
		}
	}
}

// CreateTopic создает тему, если ее еще нет
func (k *KafkaMessaging) CreateTopic(ctx context.Context, topic string, partitions int, replicationFactor int) error {
	adminClient, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("ошибка создания Kafka admin client: %w", err)
	}
	defer adminClient.Close()

	result, err := adminClient.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}}, kafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ошибка создания топика %s: %w", topic, err)
	}

	for _, r := range result {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("ошибка создания топика %s: %s", r.Topic, r.Error.String())
		}
	}
	return nil
}

// Close закрывает подписчиков и дожидается отправки буфера продюсера
func (k *KafkaMessaging) Close() error {
	k.subsMutex.Lock()
	subs := make([]func() error, 0, len(k.unsubscribes))
	for _, unsubscribe := range k.unsubscribes {
		subs = append(subs, unsubscribe)
	}
	k.subsMutex.Unlock()

	for _, unsubscribe := range subs {
		_ = unsubscribe()
	}

	k.producer.Flush(15 * 1000)
	k.producer.Close()
	k.wg.Wait()
	return nil
}
