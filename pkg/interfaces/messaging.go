package interfaces

import (
	"context"
	"time"
)

// Message представляет сообщение в системе
type Message struct {
	ID          string            `json:"id"`           // Уникальный ID сообщения
	Topic       string            `json:"topic"`        // Тема сообщения
	Key         string            `json:"key"`          // Ключ сообщения (опционально)
	Value       []byte            `json:"value"`        // Содержимое сообщения
	Headers     map[string]string `json:"headers"`      // Заголовки сообщения
	TenantID    string            `json:"tenant_id"`    // ID арендатора (для многоарендности)
	PublishedAt time.Time         `json:"published_at"` // Время публикации
}

// MessageHandler определяет функцию обработчика сообщений
type MessageHandler func(ctx context.Context, msg *Message) error

// ConsumerConfig содержит настройки для подписчика на сообщения
type ConsumerConfig struct {
	GroupID            string        // ID группы потребителей
	AutoCommit         bool          // Автоматически подтверждать полученные сообщения
	AutoCommitInterval time.Duration // Интервал автоматического подтверждения
	PollTimeout        time.Duration // Таймаут для опроса новых сообщений
	Prefetch           int           // Число неподтвержденных сообщений на потребителя
}

// MessagingPort определяет интерфейс брокера сообщений (Kafka, RabbitMQ)
type MessagingPort interface {
	// Publish публикует сообщение в указанную тему
	Publish(ctx context.Context, topic string, message []byte) error

	// PublishForTenant публикует сообщение с ключом и заголовком арендатора
	PublishForTenant(ctx context.Context, topic, key string, message []byte, tenantID string) error

	// Subscribe подписывается на тему; возвращает функцию отписки
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (func() error, error)

	Close() error
}
