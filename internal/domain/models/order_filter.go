package models

import "time"

// OrderFilter фильтр для чтения канонических заказов
type OrderFilter struct {
	AccountID string      `json:"account_id,omitempty"`
	Platform  Platform    `json:"platform,omitempty"`
	Status    OrderStatus `json:"status,omitempty"`

	// Фильтрация по времени заказа, полуинтервал [OrderedFrom, OrderedTo)
	OrderedFrom time.Time `json:"ordered_from,omitempty"`
	OrderedTo   time.Time `json:"ordered_to,omitempty"`
}
