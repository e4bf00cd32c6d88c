package models

import "fmt"

// Platform идентификатор внешней торговой площадки
type Platform string

const (
	// PlatformTrendyol REST, Basic auth, окно в epoch ms
	PlatformTrendyol Platform = "trendyol"
	// PlatformWooCommerce REST, consumer key/secret в query
	PlatformWooCommerce Platform = "woocommerce"
	// PlatformN11 SOAP/XML, даты DD/MM/YYYY
	PlatformN11 Platform = "n11"
	// PlatformCiceksepeti REST, токен в заголовке, offset-пагинация
	PlatformCiceksepeti Platform = "ciceksepeti"
)

// Platforms возвращает все поддерживаемые площадки
func Platforms() []Platform {
	return []Platform{PlatformTrendyol, PlatformWooCommerce, PlatformN11, PlatformCiceksepeti}
}

// ParsePlatform проверяет идентификатор площадки
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}
