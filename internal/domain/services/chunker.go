package services

import (
	"context"
	"sort"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/adapters/connectors"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/raw"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkTimeout время на выборку одного подынтервала со всеми его страницами
const DefaultChunkTimeout = 2 * time.Minute

// SplitRange делит полуинтервал на смежные полуинтервалы не шире width.
// Каждый момент окна попадает ровно в один подынтервал. Окно сначала расширяется
// до целых секунд, чтобы границы совпадали с посекундными фильтрами площадок.
// Если loc задан, внутренние границы выравниваются на полночь в этом поясе,
// а ширина округляется вниз до целых суток (не меньше одних).
func SplitRange(window models.TimeRange, width time.Duration, loc *time.Location) []models.TimeRange {
	if window.Validate() != nil {
		return nil
	}
	window = window.WholeSeconds()
	if width > 0 && width < time.Second {
		width = time.Second
	}
	width = width.Truncate(time.Second)
	if width <= 0 {
		return []models.TimeRange{window}
	}

	days := int(width / (24 * time.Hour))
	if days < 1 {
		days = 1
	}

	var chunks []models.TimeRange
	for from := window.From; from.Before(window.To); {
		var to time.Time
		if loc != nil {
			local := from.In(loc)
			midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
			to = midnight.AddDate(0, 0, days)
		} else {
			to = from.Add(width)
		}
		if to.After(window.To) {
			to = window.To
		}
		chunks = append(chunks, models.TimeRange{From: from, To: to})
		from = to
	}
	return chunks
}

// ChunkOutcome результат выборки одного подынтервала
type ChunkOutcome struct {
	Range  models.TimeRange
	Orders int
	Err    error
}

// FetchFunc выборка заказов одного подынтервала
type FetchFunc func(ctx context.Context, r models.TimeRange) ([]raw.Order, error)

// RangeChunker выполняет выборку окна по подынтервалам с ограниченным параллелизмом
type RangeChunker struct {
	chunkTimeout time.Duration
}

// NewRangeChunker создает чанкер; timeout <= 0 означает DefaultChunkTimeout
func NewRangeChunker(chunkTimeout time.Duration) *RangeChunker {
	if chunkTimeout <= 0 {
		chunkTimeout = DefaultChunkTimeout
	}
	return &RangeChunker{chunkTimeout: chunkTimeout}
}

// Fetch выбирает все подынтервалы окна и объединяет результат после завершения всех выборок.
// Ошибка подынтервала не прерывает остальные и возвращается в его ChunkOutcome.
// Заказы без дублей по NativeID упорядочены по (OccurredAt, NativeID).
func (c *RangeChunker) Fetch(ctx context.Context, window models.TimeRange, limits connectors.Limits, fetch FetchFunc) ([]raw.Order, []ChunkOutcome) {
	chunks := SplitRange(window, limits.ChunkWidth, limits.Location)
	outcomes := make([]ChunkOutcome, len(chunks))
	results := make([][]raw.Order, len(chunks))

	concurrency := limits.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, r := range chunks {
		outcomes[i].Range = r
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}

			chunkCtx, cancel := context.WithTimeout(ctx, c.chunkTimeout)
			defer cancel()

			orders, err := fetch(chunkCtx, r)
			if err != nil {
				outcomes[i].Err = err
				return nil
			}
			results[i] = orders
			outcomes[i].Orders = len(orders)
			return nil
		})
	}
	_ = g.Wait()

	return mergeOrders(results), outcomes
}

// mergeOrders склеивает результаты подынтервалов. Элементы с одним NativeID сводятся через raw.Merge:
// пакеты одного заказа Trendyol объединяются, прочие дубли отбрасываются в пользу первого.
// Итог упорядочен по времени заказа, затем по идентификатору.
func mergeOrders(results [][]raw.Order) []raw.Order {
	index := make(map[string]int)
	var merged []raw.Order
	for _, orders := range results {
		for _, o := range orders {
			if id := o.NativeID(); id != "" {
				if i, dup := index[id]; dup {
					merged[i] = raw.Merge(merged[i], o)
					continue
				}
				index[id] = len(merged)
			}
			merged = append(merged, o)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if !a.OccurredAt().Equal(b.OccurredAt()) {
			return a.OccurredAt().Before(b.OccurredAt())
		}
		return a.NativeID() < b.NativeID()
	})
	return merged
}
