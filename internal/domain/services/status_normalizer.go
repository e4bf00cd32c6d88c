package services

import (
	"strings"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type statusEntry struct {
	native string
	status models.OrderStatus
}

// Словари статусов площадок. Порядок совпадает с документацией площадок.
var (
	trendyolStatuses = []statusEntry{
		{"Awaiting", models.OrderStatusNew},
		{"Created", models.OrderStatusNew},
		{"Picking", models.OrderStatusPreparing},
		{"Invoiced", models.OrderStatusPreparing},
		{"Repack", models.OrderStatusPreparing},
		{"UnPacked", models.OrderStatusPreparing},
		{"Shipped", models.OrderStatusShipped},
		{"AtCollectionPoint", models.OrderStatusShipped},
		{"Delivered", models.OrderStatusDelivered},
		{"Cancelled", models.OrderStatusCancelled},
		{"UnSupplied", models.OrderStatusCancelled},
		{"UnDelivered", models.OrderStatusReturned},
		{"Returned", models.OrderStatusReturned},
	}

	wooStatuses = []statusEntry{
		{"checkout-draft", models.OrderStatusNew},
		{"pending", models.OrderStatusNew},
		{"on-hold", models.OrderStatusNew},
		{"processing", models.OrderStatusPreparing},
		{"completed", models.OrderStatusDelivered},
		{"cancelled", models.OrderStatusCancelled},
		{"failed", models.OrderStatusCancelled},
		{"trash", models.OrderStatusCancelled},
		{"refunded", models.OrderStatusReturned},
	}

	// n11 отдает статус кодом; в выгрузках и старых версиях API встречается турецкое название
	n11Statuses = []statusEntry{
		{"1", models.OrderStatusNew}, {"İşlem Bekliyor", models.OrderStatusNew},
		{"2", models.OrderStatusNew}, {"Ödendi", models.OrderStatusNew},
		{"3", models.OrderStatusCancelled}, {"Geçersiz", models.OrderStatusCancelled},
		{"4", models.OrderStatusCancelled}, {"İptal Edilmiş", models.OrderStatusCancelled},
		{"5", models.OrderStatusPreparing}, {"Kabul Edilmiş", models.OrderStatusPreparing},
		{"6", models.OrderStatusShipped}, {"Kargoda", models.OrderStatusShipped},
		{"7", models.OrderStatusDelivered}, {"Teslim Edilmiş", models.OrderStatusDelivered},
		{"8", models.OrderStatusCancelled}, {"Reddedilmiş", models.OrderStatusCancelled},
		{"9", models.OrderStatusReturned}, {"İade Edildi", models.OrderStatusReturned},
		{"10", models.OrderStatusDelivered}, {"Tamamlandı", models.OrderStatusDelivered},
		{"11", models.OrderStatusReturned}, {"İade İptal Değişim Talep Edildi", models.OrderStatusReturned},
		{"12", models.OrderStatusReturned}, {"İade İptal Değişim Tamamlandı", models.OrderStatusReturned},
		{"13", models.OrderStatusReturned}, {"Kargoda İade", models.OrderStatusReturned},
		{"14", models.OrderStatusPreparing}, {"Kargo Yapılması Gecikmiş", models.OrderStatusPreparing},
		{"15", models.OrderStatusPreparing}, {"Kabul Edilmiş Ama Zamanında Kargoya Verilmemiş", models.OrderStatusPreparing},
		{"16", models.OrderStatusReturned}, {"Teslim Edilmiş İade", models.OrderStatusReturned},
		{"17", models.OrderStatusReturned}, {"Tamamlandıktan Sonra İade", models.OrderStatusReturned},
	}

	ciceksepetiStatuses = []statusEntry{
		{"1", models.OrderStatusNew}, {"Yeni", models.OrderStatusNew},
		{"2", models.OrderStatusPreparing}, {"Hazırlanıyor", models.OrderStatusPreparing},
		{"3", models.OrderStatusShipped}, {"Kargoya Verildi", models.OrderStatusShipped},
		{"4", models.OrderStatusDelivered}, {"Teslim Edildi", models.OrderStatusDelivered},
		{"5", models.OrderStatusCancelled}, {"İptal Edildi", models.OrderStatusCancelled},
		{"6", models.OrderStatusReturned}, {"İade Edildi", models.OrderStatusReturned},
		{"7", models.OrderStatusReturned}, {"Teslim Edilemedi", models.OrderStatusReturned},
		{"11", models.OrderStatusPreparing}, {"Kargoya Hazır", models.OrderStatusPreparing},
	}
)

type statusTable struct {
	normalize func(string) string
	entries   []statusEntry
	index     map[string]models.OrderStatus
}

func newStatusTable(normalize func(string) string, entries []statusEntry) *statusTable {
	t := &statusTable{normalize: normalize, entries: entries, index: make(map[string]models.OrderStatus, len(entries))}
	for _, e := range entries {
		t.index[normalize(e.native)] = e.status
	}
	return t
}

// Caser хранит состояние, поэтому создается на каждый вызов
func foldEnglish(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func lowerTurkish(s string) string {
	return cases.Lower(language.Turkish).String(strings.TrimSpace(s))
}

var statusTables = map[models.Platform]*statusTable{
	models.PlatformTrendyol:    newStatusTable(foldEnglish, trendyolStatuses),
	models.PlatformWooCommerce: newStatusTable(foldEnglish, wooStatuses),
	models.PlatformN11:         newStatusTable(lowerTurkish, n11Statuses),
	models.PlatformCiceksepeti: newStatusTable(lowerTurkish, ciceksepetiStatuses),
}

// NormalizeStatus переводит статус площадки в канонический.
// Незнакомые значения и площадки дают OrderStatusUnknown.
func NormalizeStatus(platform models.Platform, native string) models.OrderStatus {
	t, ok := statusTables[platform]
	if !ok {
		return models.OrderStatusUnknown
	}
	if st, ok := t.index[t.normalize(native)]; ok {
		return st
	}
	return models.OrderStatusUnknown
}

// KnownStatuses перечисляет словарь статусов площадки
func KnownStatuses(platform models.Platform) []string {
	t, ok := statusTables[platform]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.native)
	}
	return out
}
