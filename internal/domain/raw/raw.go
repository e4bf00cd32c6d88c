// Package raw содержит исходные формы заказов площадок.
//
// Order - закрытое объединение: варианты создаются коннекторами через Decode*,
// а разбирает их по полям только маппер канонических заказов.
// Остальной код видит лишь идентификатор, время и исходный ответ.
package raw

import (
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
)

// Order исходный заказ одной из площадок
type Order interface {
	Platform() models.Platform
	// NativeID идентификатор заказа на площадке, пустой для нераспознанного элемента
	NativeID() string
	OccurredAt() time.Time
	// Payload исходный ответ площадки для этого заказа без изменений
	Payload() []byte
	Format() models.PayloadFormat

	sealed()
}

type source struct {
	payload []byte
	format  models.PayloadFormat
}

func (s source) Payload() []byte              { return s.payload }
func (s source) Format() models.PayloadFormat { return s.format }
func (source) sealed()                        {}

// Merge сводит два элемента с одинаковым NativeID. Trendyol отдает заказ пакетами отгрузки
// с общим orderNumber: строки и суммы разных пакетов складываются. В остальных случаях
// остается первый экземпляр.
func Merge(first, next Order) Order {
	a, ok := first.(*TrendyolOrder)
	if !ok {
		return first
	}
	b, ok := next.(*TrendyolOrder)
	if !ok {
		return first
	}
	return a.withPackage(b)
}

// Malformed элемент ответа, который не удалось разобрать в форму площадки
type Malformed struct {
	source
	platform models.Platform
	nativeID string
	Err      error
}

func (m *Malformed) Platform() models.Platform { return m.platform }
func (m *Malformed) NativeID() string          { return m.nativeID }
func (m *Malformed) OccurredAt() time.Time     { return time.Time{} }

// NewMalformed создает вариант для нераспознанного элемента
func NewMalformed(platform models.Platform, nativeID string, payload []byte, format models.PayloadFormat, err error) *Malformed {
	return &Malformed{
		source:   source{payload: payload, format: format},
		platform: platform,
		nativeID: nativeID,
		Err:      err,
	}
}
