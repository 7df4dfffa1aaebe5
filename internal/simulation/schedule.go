package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/arena/backend/internal/contracts"
)

// ScheduleFilter decides which dates still need work. It is the piece
// that makes job resume idempotent: dates every model has already
// completed are dropped, dates where at least one model is pending or
// failed are retained.
type ScheduleFilter struct {
	days contracts.ModelDayStore
}

// NewScheduleFilter creates a new schedule filter
func NewScheduleFilter(days contracts.ModelDayStore) *ScheduleFilter {
	return &ScheduleFilter{days: days}
}

// FilterCompleted returns the subset of available dates that still need
// work for at least one model, in ascending order. An empty available
// set returns empty.
func (f *ScheduleFilter) FilterCompleted(ctx context.Context, jobID uuid.UUID, available []time.Time, models []string) ([]time.Time, error) {
	if len(available) == 0 {
		return nil, nil
	}

	from, to := available[0], available[0]
	for _, d := range available[1:] {
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}

	// 모델별로 완료된 날짜를 한 번에 조회 (날짜별 개별 쿼리 금지)
	doneByModel := make(map[string]map[time.Time]bool, len(models))
	for _, model := range models {
		done, err := f.days.CompletedDates(ctx, jobID, model, from, to)
		if err != nil {
			return nil, fmt.Errorf("completed dates for %s: %w", model, err)
		}
		set := make(map[time.Time]bool, len(done))
		for _, d := range done {
			set[d.UTC().Truncate(24*time.Hour)] = true
		}
		doneByModel[model] = set
	}

	var need []time.Time
	for _, date := range available {
		key := date.UTC().Truncate(24 * time.Hour)
		for _, model := range models {
			if !doneByModel[model][key] {
				need = append(need, date)
				break
			}
		}
	}
	return need, nil
}
