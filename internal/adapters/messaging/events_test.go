package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic, key, tenantID string
	body                 []byte
}

type fakeBroker struct {
	messages []published
}

func (b *fakeBroker) Publish(_ context.Context, topic string, message []byte) error {
	b.messages = append(b.messages, published{topic: topic, body: message})
	return nil
}

func (b *fakeBroker) PublishForTenant(_ context.Context, topic, key string, message []byte, tenantID string) error {
	b.messages = append(b.messages, published{topic: topic, key: key, tenantID: tenantID, body: message})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string, interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (b *fakeBroker) Close() error { return nil }

func TestEventPublisher_PublishEvent(t *testing.T) {
	broker := &fakeBroker{}
	p := NewEventPublisher(broker, "")
	p.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	err := p.PublishEvent(context.Background(), "tenant-1", "acc-1", "orders_synced", map[string]int{"processed": 3})
	require.NoError(t, err)
	require.Len(t, broker.messages, 1)

	m := broker.messages[0]
	assert.Equal(t, EventsTopic, m.topic)
	assert.Equal(t, "acc-1", m.key)
	assert.Equal(t, "tenant-1", m.tenantID)

	var ev Event
	require.NoError(t, json.Unmarshal(m.body, &ev))
	assert.Equal(t, "orders_synced", ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.JSONEq(t, `{"processed":3}`, string(ev.Payload))
}

func TestEventPublisher_KeyDefaultsToTenant(t *testing.T) {
	broker := &fakeBroker{}
	require.NoError(t, NewEventPublisher(broker, "custom").PublishEvent(context.Background(), "tenant-1", "", "price_push_completed", nil))
	assert.Equal(t, "tenant-1", broker.messages[0].key)
	assert.Equal(t, "custom", broker.messages[0].topic)
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"type":"sync_account","tenant_id":"t1","account_id":"a1","from":"2024-06-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandSyncAccount, cmd.Type)
	require.NotNil(t, cmd.From)
	assert.Nil(t, cmd.To)

	_, err = ParseCommand([]byte(`{"type":"price_push"}`))
	assert.NoError(t, err)

	_, err = ParseCommand([]byte(`{"type":"sync_account","tenant_id":"t1"}`))
	assert.Error(t, err)

	_, err = ParseCommand([]byte(`{"type":"drop_tables"}`))
	assert.Error(t, err)

	_, err = ParseCommand([]byte(`not json`))
	assert.Error(t, err)
}
