package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/google/uuid"
)

const (
	// EventsTopic доменные события синхронизации
	EventsTopic = "marketplace-events"
	// CommandsTopic команды воркеру
	CommandsTopic = "marketplace-commands"
)

// Типы команд воркера
const (
	CommandSyncAccount = "sync_account"
	CommandPricePush   = "price_push"
)

// Event конверт доменного события
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	Key        string          `json:"key,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Command команда воркеру, полученная через брокер
type Command struct {
	Type      string     `json:"type"`
	TenantID  string     `json:"tenant_id"`
	AccountID string     `json:"account_id,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// ParseCommand разбирает и проверяет команду
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}
	switch cmd.Type {
	case CommandSyncAccount:
		if cmd.TenantID == "" || cmd.AccountID == "" {
			return nil, errors.New("sync_account requires tenant_id and account_id")
		}
	case CommandPricePush:
	default:
		return nil, fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return &cmd, nil
}

// EventPublisher публикует доменные события в брокер
type EventPublisher struct {
	broker interfaces.MessagingPort
	topic  string
	now    func() time.Time
}

// NewEventPublisher создает издателя событий; пустой topic - EventsTopic
func NewEventPublisher(broker interfaces.MessagingPort, topic string) *EventPublisher {
	if topic == "" {
		topic = EventsTopic
	}
	return &EventPublisher{broker: broker, topic: topic, now: time.Now}
}

// PublishEvent оборачивает payload в Event и публикует с ключом key (или tenantID)
func (p *EventPublisher) PublishEvent(ctx context.Context, tenantID, key, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		Key:        key,
		OccurredAt: p.now().UTC(),
		Payload:    body,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	partitionKey := key
	if partitionKey == "" {
		partitionKey = tenantID
	}
	if err := p.broker.PublishForTenant(ctx, p.topic, partitionKey, data, tenantID); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", eventType, err)
	}
	return nil
}
