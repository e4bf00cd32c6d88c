package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QueueStatus состояние элемента очереди исходящей синхронизации
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	// QueueStatusSuperseded неудачная попытка, вытесненная более новым изменением той же связи
	QueueStatusSuperseded QueueStatus = "superseded"
)

// SyncQueueItem ожидающее изменение цены/остатка для одной связи
type SyncQueueItem struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	ProductLinkID string          `json:"product_link_id"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	TargetStock   int             `json:"target_stock"`
	Status        QueueStatus     `json:"status"`
	LastError     string          `json:"last_error,omitempty"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsPending сообщает, ожидает ли элемент отправки
func (i *SyncQueueItem) IsPending() bool {
	return i.Status == QueueStatusPending
}
