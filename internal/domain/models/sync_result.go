package models

import "time"

// Единицы, к которым относится ошибка синхронизации
const (
	FailureUnitAccount = "account"
	FailureUnitChunk   = "chunk"
	FailureUnitOrder   = "order"
)

// SyncFailure описывает неуспешную единицу работы
type SyncFailure struct {
	Unit    string `json:"unit"`
	Ref     string `json:"ref"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SyncResult итог синхронизации одного аккаунта
type SyncResult struct {
	AccountID       string        `json:"accountId"`
	Platform        Platform      `json:"platform"`
	Success         bool          `json:"success"`
	OrdersProcessed int           `json:"ordersProcessed"`
	OrdersFailed    int           `json:"ordersFailed"`
	ChunksTotal     int           `json:"chunksTotal"`
	ChunksFailed    int           `json:"chunksFailed"`
	Window          TimeRange     `json:"window"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       string        `json:"errorKind,omitempty"`
	Failures        []SyncFailure `json:"failures,omitempty"`
	StartedAt       time.Time     `json:"startedAt"`
	FinishedAt      time.Time     `json:"finishedAt"`
}

// AddFailure регистрирует неуспешную единицу работы
func (r *SyncResult) AddFailure(unit, ref, kind string, err error) {
	r.Failures = append(r.Failures, SyncFailure{Unit: unit, Ref: ref, Kind: kind, Message: err.Error()})
}

// Статусы элемента в результате прохода воркера
const (
	PushStatusDone   = "done"
	PushStatusFailed = "failed"
)

// PushItemResult результат отправки одного элемента очереди
type PushItemResult struct {
	ItemID string `json:"itemId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PricePushResult итог одного прохода воркера исходящей синхронизации
type PricePushResult struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Released  int              `json:"released,omitempty"`
	Results   []PushItemResult `json:"results"`
}

// SyncSummary итог синхронизации нескольких аккаунтов площадки
type SyncSummary struct {
	Platform        Platform      `json:"platform,omitempty"`
	Success         bool          `json:"success"`
	OrdersProcessed int           `json:"ordersProcessed"`
	OrdersFailed    int           `json:"ordersFailed"`
	AccountsFailed  int           `json:"accountsFailed"`
	Error           string        `json:"error,omitempty"`
	Accounts        []*SyncResult `json:"accounts"`
}

// Add учитывает результат одного аккаунта
func (s *SyncSummary) Add(r *SyncResult) {
	s.Accounts = append(s.Accounts, r)
	s.OrdersProcessed += r.OrdersProcessed
	s.OrdersFailed += r.OrdersFailed
	if !r.Success {
		s.AccountsFailed++
		if s.Error == "" && r.Error != "" {
			s.Error = r.Error
		}
	}
	s.Success = s.AccountsFailed == 0 && s.OrdersFailed == 0
}
