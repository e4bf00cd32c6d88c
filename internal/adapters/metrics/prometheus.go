package metrics

import (
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace"

// метрики HTTP
var (
	HTTPDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_durations_seconds",
		Help:      "Длительность HTTP запросов",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Общее количество HTTP запросов",
	}, []string{"path", "method", "status"})

	HTTPActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_active_requests",
		Help:      "Количество активных HTTP запросов",
	})
)

// метрики синхронизации
var (
	ordersSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_synced_total",
		Help:      "Заказы, обработанные при синхронизации",
	}, []string{"platform", "result"})

	chunkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_chunk_failures_total",
		Help:      "Неудачные подинтервалы выгрузки заказов",
	}, []string{"platform", "kind"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Длительность синхронизации одного аккаунта",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"platform"})

	pushItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_push_items_total",
		Help:      "Элементы очереди цен и остатков по результату отправки",
	}, []string{"platform", "status"})

	// CacheOperations операции с кэшем и блокировками
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_operations_total",
		Help:      "Количество операций с кэшем",
	}, []string{"operation", "status"})

	// WorkerPasses запуски фоновых задач воркера
	WorkerPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_passes_total",
		Help:      "Запуски фоновых задач воркера",
	}, []string{"task", "status"})

	// MessagesProcessed команды, полученные воркером из брокера
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_messages_processed_total",
		Help:      "Общее количество обработанных сообщений",
	}, []string{"type", "status"})

	// MessageDuration длительность обработки команды
	MessageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_message_processing_duration_seconds",
		Help:      "Длительность обработки сообщений",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
)

// Recorder записывает метрики синхронизации в Prometheus
type Recorder struct{}

// NewRecorder возвращает Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) OrdersSynced(platform models.Platform, processed, failed int) {
	ordersSynced.WithLabelValues(string(platform), "processed").Add(float64(processed))
	ordersSynced.WithLabelValues(string(platform), "failed").Add(float64(failed))
}

func (Recorder) ChunkFailed(platform models.Platform, kind string) {
	chunkFailures.WithLabelValues(string(platform), kind).Inc()
}

func (Recorder) SyncDuration(platform models.Platform, d time.Duration) {
	syncDuration.WithLabelValues(string(platform)).Observe(d.Seconds())
}

func (Recorder) PushItem(platform models.Platform, status string) {
	pushItems.WithLabelValues(string(platform), status).Inc()
}
