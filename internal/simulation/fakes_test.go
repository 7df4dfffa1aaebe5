package simulation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/arena/backend/internal/contracts"
)

// In-memory stores mirroring the repository semantics, including
// terminal-state immutability. Shared by the worker and filter tests.

type memJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*contracts.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[uuid.UUID]*contracts.Job)}
}

func (s *memJobStore) Create(_ context.Context, job *contracts.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.CreatedAt = time.Now()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *memJobStore) Get(_ context.Context, id uuid.UUID) (*contracts.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *memJobStore) List(_ context.Context, limit int) ([]*contracts.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*contracts.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memJobStore) SetStatus(_ context.Context, id uuid.UUID, status contracts.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s: %w", id, ErrTerminalState)
	}
	job.Status = status
	job.Error = errMsg
	now := time.Now()
	if status == contracts.JobDownloadingData && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() {
		job.CompletedAt = &now
	}
	return nil
}

func (s *memJobStore) AppendWarnings(_ context.Context, id uuid.UUID, warnings []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Warnings = append(job.Warnings, warnings...)
	return nil
}

func cloneJob(j *contracts.Job) *contracts.Job {
	c := *j
	c.Dates = append([]time.Time(nil), j.Dates...)
	c.Models = append([]string(nil), j.Models...)
	c.Warnings = append([]string(nil), j.Warnings...)
	return &c
}

type memDayStore struct {
	mu     sync.Mutex
	nextID int64
	days   []*contracts.ModelDay
}

func newMemDayStore() *memDayStore {
	return &memDayStore{nextID: 1}
}

func (s *memDayStore) CreateBatch(_ context.Context, days []*contracts.ModelDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range days {
		if s.find(d.JobID, d.ModelID, d.Date) != nil {
			continue
		}
		c := *d
		c.ID = s.nextID
		s.nextID++
		s.days = append(s.days, &c)
	}
	return nil
}

func (s *memDayStore) ListByJob(_ context.Context, jobID uuid.UUID) ([]*contracts.ModelDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.ModelDay
	for _, d := range s.days {
		if d.JobID == jobID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].Date.Equal(out[k].Date) {
			return out[i].Date.Before(out[k].Date)
		}
		return out[i].ModelID < out[k].ModelID
	})
	return out, nil
}

func (s *memDayStore) CompletedDates(_ context.Context, jobID uuid.UUID, modelID string, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dates []time.Time
	for _, d := range s.days {
		if d.JobID == jobID && d.ModelID == modelID && d.Status == contracts.ModelDayCompleted &&
			!d.Date.Before(from) && !d.Date.After(to) {
			dates = append(dates, d.Date)
		}
	}
	sort.Slice(dates, func(i, k int) bool { return dates[i].Before(dates[k]) })
	return dates, nil
}

func (s *memDayStore) Get(_ context.Context, jobID uuid.UUID, modelID string, date time.Time) (*contracts.ModelDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.find(jobID, modelID, date); d != nil {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (s *memDayStore) SetStatus(_ context.Context, id int64, status contracts.ModelDayStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.days {
		if d.ID != id {
			continue
		}
		if d.Status == contracts.ModelDayCompleted || d.Status == contracts.ModelDayFailed {
			return fmt.Errorf("model-day %d: %w", id, ErrTerminalState)
		}
		d.Status = status
		d.Error = errMsg
		return nil
	}
	return fmt.Errorf("model-day %d not found", id)
}

func (s *memDayStore) find(jobID uuid.UUID, modelID string, date time.Time) *contracts.ModelDay {
	for _, d := range s.days {
		if d.JobID == jobID && d.ModelID == modelID && d.Date.Equal(date) {
			return d
		}
	}
	return nil
}

// memLedger values positions with a fixed price table.
type memLedger struct {
	mu      sync.Mutex
	prices  map[string]float64
	records map[string][]*contracts.PositionRecord
}

func newMemLedger(prices map[string]float64) *memLedger {
	return &memLedger{
		prices:  prices,
		records: make(map[string][]*contracts.PositionRecord),
	}
}

func pairKey(jobID uuid.UUID, modelID string) string {
	return jobID.String() + "/" + modelID
}

func (l *memLedger) value(cash float64, holdings []contracts.Holding) float64 {
	v := cash
	for _, h := range holdings {
		v += h.Quantity * l.prices[h.Symbol]
	}
	return v
}

func (l *memLedger) RecordBaseline(_ context.Context, jobID uuid.UUID, modelID string, date time.Time, cash float64, holdings []contracts.Holding) (*contracts.PositionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := pairKey(jobID, modelID)
	if len(l.records[key]) > 0 {
		return nil, fmt.Errorf("baseline already recorded")
	}
	rec := &contracts.PositionRecord{
		JobID:          jobID,
		ModelID:        modelID,
		Date:           date,
		Seq:            0,
		Cash:           cash,
		PortfolioValue: l.value(cash, holdings),
		Action:         contracts.ActionBaseline,
		Holdings:       append([]contracts.Holding(nil), holdings...),
	}
	l.records[key] = append(l.records[key], rec)
	return rec, nil
}

func (l *memLedger) RecordAction(_ context.Context, in contracts.ActionInput) (*contracts.PositionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := pairKey(in.JobID, in.ModelID)
	recs := l.records[key]
	if len(recs) == 0 {
		return nil, fmt.Errorf("pair not initialized")
	}
	last := recs[len(recs)-1]
	if in.Date.Before(last.Date) {
		return nil, fmt.Errorf("date regression")
	}

	seq := last.Seq + 1
	if !in.Date.Equal(last.Date) {
		// new calendar date: materialize the start-of-day baseline
		baseline := &contracts.PositionRecord{
			JobID:          in.JobID,
			ModelID:        in.ModelID,
			Date:           in.Date,
			Seq:            seq,
			Cash:           last.Cash,
			PortfolioValue: l.value(last.Cash, last.Holdings),
			Action:         contracts.ActionBaseline,
			Holdings:       append([]contracts.Holding(nil), last.Holdings...),
		}
		l.records[key] = append(l.records[key], baseline)
		seq++
	}

	base := l.dayBaseline(key, in.Date)
	value := l.value(in.NewCash, in.NewHoldings)
	profit := value - base
	returnPct := 0.0
	if base != 0 {
		returnPct = profit / base * 100
	}

	rec := &contracts.PositionRecord{
		JobID:          in.JobID,
		ModelID:        in.ModelID,
		Date:           in.Date,
		Seq:            seq,
		Cash:           in.NewCash,
		PortfolioValue: value,
		DailyProfit:    &profit,
		DailyReturnPct: &returnPct,
		Action:         in.Action,
		Symbol:         in.Symbol,
		Quantity:       in.Quantity,
		ModelDayID:     in.ModelDayID,
		Holdings:       append([]contracts.Holding(nil), in.NewHoldings...),
	}
	l.records[key] = append(l.records[key], rec)
	return rec, nil
}

func (l *memLedger) dayBaseline(key string, date time.Time) float64 {
	for _, r := range l.records[key] {
		if r.Date.Equal(date) {
			return r.PortfolioValue
		}
	}
	return 0
}

func (l *memLedger) CurrentPosition(_ context.Context, jobID uuid.UUID, modelID string, asOf time.Time) (*contracts.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest *contracts.PositionRecord
	for _, r := range l.records[pairKey(jobID, modelID)] {
		if r.Date.After(asOf) {
			continue
		}
		if latest == nil || r.Seq > latest.Seq {
			latest = r
		}
	}
	if latest == nil {
		return &contracts.Position{Initialized: false}, nil
	}
	return &contracts.Position{
		Initialized: true,
		Cash:        latest.Cash,
		Holdings:    append([]contracts.Holding(nil), latest.Holdings...),
		NextSeq:     latest.Seq + 1,
		AsOf:        latest.Date,
	}, nil
}

func (l *memLedger) Records(_ context.Context, jobID uuid.UUID, modelID string) ([]*contracts.PositionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := l.records[pairKey(jobID, modelID)]
	out := append([]*contracts.PositionRecord(nil), recs...)
	sort.Slice(out, func(i, k int) bool { return out[i].Seq < out[k].Seq })
	return out, nil
}

// fakePreparer returns a canned preparation outcome.
type fakePreparer struct {
	available []time.Time
	warnings  []string
	err       error
}

func (f *fakePreparer) Prepare(context.Context, []time.Time) ([]time.Time, []string, error) {
	return f.available, f.warnings, f.err
}

// fakeQuotes serves one static price table for every date.
type fakeQuotes struct {
	prices map[string]float64
}

func (f *fakeQuotes) Closes(context.Context, []string, time.Time) (map[string]float64, error) {
	return f.prices, nil
}

// scriptedAgent returns canned decisions in order, then holds.
type scriptedAgent struct {
	mu        sync.Mutex
	decisions []*contracts.Decision
	err       error
	calls     int
}

func (a *scriptedAgent) Decide(context.Context, contracts.DecisionRequest) (*contracts.Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.calls++
	if len(a.decisions) == 0 {
		return &contracts.Decision{Action: contracts.ActionHold}, nil
	}
	d := a.decisions[0]
	a.decisions = a.decisions[1:]
	return d, nil
}

// mapProvider routes each model id to its own agent.
type mapProvider struct {
	agents map[string]contracts.Agent
}

func (p *mapProvider) AgentFor(modelID string) (contracts.Agent, error) {
	a, ok := p.agents[modelID]
	if !ok {
		return nil, fmt.Errorf("no agent for %s", modelID)
	}
	return a, nil
}
