package models

import (
	"errors"
	"time"
)

var ErrEmptyRange = errors.New("time range is empty")

// TimeRange полуинтервал [From, To)
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate проверяет, что интервал не пустой
func (r TimeRange) Validate() error {
	if !r.To.After(r.From) {
		return ErrEmptyRange
	}
	return nil
}

// Contains проверяет принадлежность момента интервалу
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Duration длина интервала
func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// CeilSecond округляет момент вверх до целой секунды
func CeilSecond(t time.Time) time.Time {
	if f := t.Truncate(time.Second); !f.Equal(t) {
		return f.Add(time.Second)
	}
	return t
}

// WholeSeconds расширяет интервал до целых секунд: площадки принимают границы с точностью до секунды
func (r TimeRange) WholeSeconds() TimeRange {
	return TimeRange{From: r.From.Truncate(time.Second), To: CeilSecond(r.To)}
}

// NextMidnight ближайшая полночь в loc не раньше t
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if midnight.Before(local) {
		midnight = midnight.AddDate(0, 0, 1)
	}
	return midnight
}

// LastDays интервал последних days суток, заканчивающийся в now
func LastDays(now time.Time, days int) TimeRange {
	return TimeRange{From: now.AddDate(0, 0, -days), To: now}
}
