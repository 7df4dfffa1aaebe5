package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/pkg/logger"
)

// DataPreparer ensures price coverage for the requested dates and
// returns the dates that are actually tradable.
type DataPreparer interface {
	Prepare(ctx context.Context, requested []time.Time) (available []time.Time, warnings []string, err error)
}

// QuoteSource supplies closing prices for the tradable universe.
type QuoteSource interface {
	Closes(ctx context.Context, symbols []string, date time.Time) (map[string]float64, error)
}

// AgentProvider resolves a model id to its trading agent.
type AgentProvider interface {
	AgentFor(modelID string) (contracts.Agent, error)
}

// Worker executes simulation jobs end to end: data preparation, date
// filtering, then one session per (date, model). Dates run strictly in
// order; models of the same date run in parallel.
type Worker struct {
	jobs     contracts.JobStore
	days     contracts.ModelDayStore
	ledger   contracts.Ledger
	preparer DataPreparer
	quotes   QuoteSource
	agents   AgentProvider
	symbols  []string
	sm       *StateMachine
	filter   *ScheduleFilter
	logger   *logger.Logger
}

// NewWorker creates a new job worker
func NewWorker(
	jobs contracts.JobStore,
	days contracts.ModelDayStore,
	ledg contracts.Ledger,
	preparer DataPreparer,
	quotes QuoteSource,
	agents AgentProvider,
	symbols []string,
	log *logger.Logger,
) *Worker {
	return &Worker{
		jobs:     jobs,
		days:     days,
		ledger:   ledg,
		preparer: preparer,
		quotes:   quotes,
		agents:   agents,
		symbols:  symbols,
		sm:       NewStateMachine(jobs, log),
		filter:   NewScheduleFilter(days),
		logger:   log,
	}
}

// Start launches Run on its own goroutine. Errors are logged, not
// returned; the job row carries the outcome.
func (w *Worker) Start(jobID uuid.UUID) {
	go func() {
		if err := w.Run(context.Background(), jobID); err != nil {
			w.logger.WithError(err).WithField("job_id", jobID).Error("Job execution failed")
		}
	}()
}

// Run drives one job from its current status to a terminal status.
// Safe to call again on an interrupted job: completed model-days are
// skipped and the ledger continues from the last recorded position.
func (w *Worker) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		w.logger.WithField("job_id", jobID).Debug("Job already terminal, nothing to do")
		return nil
	}
	if !IsResumable(job.Status) {
		return fmt.Errorf("job %s in unexpected status %s", jobID, job.Status)
	}

	log := w.logger.WithField("job_id", jobID)
	log.WithFields(map[string]interface{}{
		"dates":  len(job.Dates),
		"models": len(job.Models),
	}).Info("Job started")

	available, err := w.prepare(ctx, job)
	if err != nil {
		return err
	}
	if available == nil {
		// prepare already moved the job to failed
		return nil
	}

	need, err := w.filter.FilterCompleted(ctx, job.ID, available, job.Models)
	if err != nil {
		_ = w.sm.Fail(ctx, job, fmt.Sprintf("schedule filter: %v", err))
		return fmt.Errorf("filter dates: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"available": len(available),
		"needed":    len(need),
	}).Info("Trading dates resolved")

	// 날짜는 반드시 순차 실행 (전일 포지션이 다음 날의 입력)
	for _, date := range need {
		if err := w.runDate(ctx, job, date); err != nil {
			_ = w.sm.Fail(ctx, job, fmt.Sprintf("session %s: %v", date.Format("2006-01-02"), err))
			return err
		}
	}

	return w.finalize(ctx, job)
}

// prepare runs the data preparation phase. A nil available slice with
// nil error means the job was finalized as failed (zero tradable dates).
func (w *Worker) prepare(ctx context.Context, job *contracts.Job) ([]time.Time, error) {
	if job.Status == contracts.JobPending {
		if err := w.sm.Transition(ctx, job, contracts.JobDownloadingData, ""); err != nil {
			return nil, err
		}
	}

	available, warnings, err := w.preparer.Prepare(ctx, job.Dates)
	if err != nil {
		_ = w.sm.Fail(ctx, job, fmt.Sprintf("data preparation: %v", err))
		return nil, fmt.Errorf("prepare data: %w", err)
	}
	if len(warnings) > 0 {
		if err := w.jobs.AppendWarnings(ctx, job.ID, warnings); err != nil {
			return nil, fmt.Errorf("append warnings: %w", err)
		}
	}
	if len(available) == 0 {
		if err := w.sm.Fail(ctx, job, "no trading dates available after price data preparation"); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if job.Status == contracts.JobDownloadingData {
		if err := w.sm.Transition(ctx, job, contracts.JobRunning, ""); err != nil {
			return nil, err
		}
	}
	return available, nil
}

// runDate executes every still-pending model session for one date in
// parallel. Per-model failures land on the model-day row only; an error
// is returned solely for infrastructure problems that affect the job.
func (w *Worker) runDate(ctx context.Context, job *contracts.Job, date time.Time) error {
	quotes, err := w.quotes.Closes(ctx, w.symbols, date)
	if err != nil {
		return fmt.Errorf("load quotes for %s: %w", date.Format("2006-01-02"), err)
	}

	var wg sync.WaitGroup
	for _, model := range job.Models {
		wg.Add(1)
		go func(modelID string) {
			defer wg.Done()
			w.runModelDay(ctx, job, modelID, date, quotes)
		}(model)
	}
	wg.Wait()
	return nil
}

// runModelDay executes one trading session. Any failure is recorded on
// the model-day; the other models keep running.
func (w *Worker) runModelDay(ctx context.Context, job *contracts.Job, modelID string, date time.Time, quotes map[string]float64) {
	log := w.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"model":  modelID,
		"date":   date.Format("2006-01-02"),
	})

	day, err := w.days.Get(ctx, job.ID, modelID, date)
	if err != nil {
		log.WithError(err).Error("Model-day lookup failed")
		return
	}
	if day == nil {
		log.Error("Model-day row missing")
		return
	}
	if day.Status == contracts.ModelDayCompleted {
		return
	}

	if err := w.days.SetStatus(ctx, day.ID, contracts.ModelDayRunning, ""); err != nil {
		log.WithError(err).Error("Model-day status update failed")
		return
	}

	if err := w.executeSession(ctx, job, modelID, date, day.ID, quotes, log); err != nil {
		log.WithError(err).Error("Model-day failed")
		if serr := w.days.SetStatus(ctx, day.ID, contracts.ModelDayFailed, err.Error()); serr != nil {
			log.WithError(serr).Error("Model-day failure not recorded")
		}
		return
	}

	if err := w.days.SetStatus(ctx, day.ID, contracts.ModelDayCompleted, ""); err != nil {
		log.WithError(err).Error("Model-day completion not recorded")
		return
	}
	log.Info("Model-day completed")
}

func (w *Worker) executeSession(ctx context.Context, job *contracts.Job, modelID string, date time.Time, dayID int64, quotes map[string]float64, log *logger.Logger) error {
	pos, err := w.ledger.CurrentPosition(ctx, job.ID, modelID, date)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if !pos.Initialized {
		// 첫 거래일: 초기 현금으로 seq-0 기준선 생성
		if _, err := w.ledger.RecordBaseline(ctx, job.ID, modelID, date, job.InitialCash, nil); err != nil {
			return fmt.Errorf("record baseline: %w", err)
		}
		pos = &contracts.Position{
			Initialized: true,
			Cash:        job.InitialCash,
		}
	}

	agent, err := w.agents.AgentFor(modelID)
	if err != nil {
		return fmt.Errorf("resolve agent: %w", err)
	}

	decision, err := agent.Decide(ctx, contracts.DecisionRequest{
		JobID:    job.ID,
		ModelID:  modelID,
		Date:     date,
		Cash:     pos.Cash,
		Holdings: pos.Holdings,
		Quotes:   quotes,
	})
	if err != nil {
		return fmt.Errorf("agent decision: %w", err)
	}

	applied := applyDecision(pos, decision, quotes)
	if applied.downgraded != "" {
		log.WithField("reason", applied.downgraded).Warn("Decision downgraded to hold")
	}

	in := contracts.ActionInput{
		JobID:       job.ID,
		ModelID:     modelID,
		Date:        date,
		Action:      applied.action,
		Symbol:      applied.symbol,
		Quantity:    applied.quantity,
		NewCash:     applied.cash,
		NewHoldings: applied.holdings,
		ModelDayID:  &dayID,
	}
	if _, err := w.ledger.RecordAction(ctx, in); err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// appliedDecision is a decision after validation, with the resulting
// cash and holdings. Invalid decisions degrade to hold, never to an
// error; the session itself is still a success.
type appliedDecision struct {
	action     contracts.ActionKind
	symbol     string
	quantity   float64
	cash       float64
	holdings   []contracts.Holding
	downgraded string // non-empty when an invalid decision became a hold
}

func applyDecision(pos *contracts.Position, dec *contracts.Decision, quotes map[string]float64) appliedDecision {
	hold := appliedDecision{
		action:   contracts.ActionHold,
		cash:     pos.Cash,
		holdings: pos.Holdings,
	}
	if dec == nil {
		hold.downgraded = "nil decision"
		return hold
	}

	switch dec.Action {
	case contracts.ActionHold:
		return hold

	case contracts.ActionBuy:
		price, ok := quotes[dec.Symbol]
		if !ok {
			hold.downgraded = fmt.Sprintf("no quote for %s", dec.Symbol)
			return hold
		}
		if dec.Quantity <= 0 {
			hold.downgraded = fmt.Sprintf("non-positive buy quantity %g", dec.Quantity)
			return hold
		}
		cost := dec.Quantity * price
		if cost > pos.Cash {
			hold.downgraded = fmt.Sprintf("insufficient cash: need %.2f, have %.2f", cost, pos.Cash)
			return hold
		}
		return appliedDecision{
			action:   contracts.ActionBuy,
			symbol:   dec.Symbol,
			quantity: dec.Quantity,
			cash:     pos.Cash - cost,
			holdings: adjustHolding(pos.Holdings, dec.Symbol, dec.Quantity),
		}

	case contracts.ActionSell:
		price, ok := quotes[dec.Symbol]
		if !ok {
			hold.downgraded = fmt.Sprintf("no quote for %s", dec.Symbol)
			return hold
		}
		if dec.Quantity <= 0 {
			hold.downgraded = fmt.Sprintf("non-positive sell quantity %g", dec.Quantity)
			return hold
		}
		held := pos.Quantity(dec.Symbol)
		if dec.Quantity > held {
			hold.downgraded = fmt.Sprintf("oversell: %g requested, %g held", dec.Quantity, held)
			return hold
		}
		return appliedDecision{
			action:   contracts.ActionSell,
			symbol:   dec.Symbol,
			quantity: dec.Quantity,
			cash:     pos.Cash + dec.Quantity*price,
			holdings: adjustHolding(pos.Holdings, dec.Symbol, -dec.Quantity),
		}

	default:
		hold.downgraded = fmt.Sprintf("unknown action %q", dec.Action)
		return hold
	}
}

// adjustHolding returns a new holdings slice with delta applied to the
// symbol. Zeroed lines are dropped.
func adjustHolding(holdings []contracts.Holding, symbol string, delta float64) []contracts.Holding {
	out := make([]contracts.Holding, 0, len(holdings)+1)
	found := false
	for _, h := range holdings {
		if h.Symbol == symbol {
			found = true
			h.Quantity += delta
		}
		if h.Quantity > 0 {
			out = append(out, h)
		}
	}
	if !found && delta > 0 {
		out = append(out, contracts.Holding{Symbol: symbol, Quantity: delta})
	}
	return out
}

func (w *Worker) finalize(ctx context.Context, job *contracts.Job) error {
	days, err := w.days.ListByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list model-days: %w", err)
	}
	status, err := w.sm.Finalize(ctx, job, days)
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	w.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"status": status,
	}).Info("Job finished")
	return nil
}
