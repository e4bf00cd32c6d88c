package models

import (
	"encoding/json"
	"time"
)

// Account подключение арендатора к внешней площадке (MarketplaceAccount).
// Аккаунты не удаляются, а деактивируются, чтобы не терять происхождение заказов.
type Account struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Platform Platform `json:"platform"`
	Name     string   `json:"name"`
	// BaseURL адрес API или витрины; пустой означает адрес площадки по умолчанию
	BaseURL string `json:"base_url,omitempty"`
	// Credentials формат зависит от площадки и разбирается только коннектором
	Credentials json.RawMessage `json:"-"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
