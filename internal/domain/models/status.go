package models

// OrderStatus каноническое состояние заказа
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
	OrderStatusUnknown   OrderStatus = "unknown"
)

// OrderStatuses возвращает все канонические статусы
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusNew,
		OrderStatusPreparing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusReturned,
		OrderStatusUnknown,
	}
}

// IsValid проверяет, что статус входит в каноническое перечисление
func (s OrderStatus) IsValid() bool {
	for _, st := range OrderStatuses() {
		if s == st {
			return true
		}
	}
	return false
}
