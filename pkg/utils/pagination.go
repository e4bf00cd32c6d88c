package utils

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination параметры страницы списка и сведения о результате
type Pagination struct {
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalItems int64  `json:"total_items"`
	TotalPages int    `json:"total_pages"`
	SortBy     string `json:"sort_by,omitempty"`
	SortDesc   bool   `json:"sort_desc"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
}

// NewPagination создает пагинацию; страница меньше 1 становится первой,
// размер вне [1, MaxPageSize] заменяется на DefaultPageSize
func NewPagination(page, pageSize int, sortBy string, sortDesc bool) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	return &Pagination{
		Page:     page,
		PageSize: pageSize,
		SortBy:   sortBy,
		SortDesc: sortDesc,
	}
}

// SetTotal устанавливает общее количество элементов и пересчитывает зависимые поля
func (p *Pagination) SetTotal(totalItems int64) {
	p.TotalItems = totalItems
	p.TotalPages = int((totalItems + int64(p.PageSize) - 1) / int64(p.PageSize))
	p.HasNext = p.Page < p.TotalPages
	p.HasPrev = p.Page > 1
}

// GetOffset возвращает смещение для SQL запроса
func (p *Pagination) GetOffset() int {
	return (p.Page - 1) * p.PageSize
}

// GetLimit возвращает лимит для SQL запроса
func (p *Pagination) GetLimit() int {
	return p.PageSize
}

// Direction направление сортировки для ORDER BY.
// Колонку вызывающий выбирает сам по белому списку: SortBy приходит от клиента.
func (p *Pagination) Direction() string {
	if p.SortDesc {
		return "DESC"
	}
	return "ASC"
}
