package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/arena/backend/internal/simulation"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "시뮬레이션 Job 실행",
	Long: `시뮬레이션 Job을 생성하고 완료될 때까지 동기 실행합니다.

--job 으로 기존 Job을 재개할 수도 있습니다. 이미 완료된
모델-날짜 세션은 건너뛰므로 재실행은 항상 안전합니다.

--from/--to 는 이미 저장된 시세가 있는 거래일로 확장됩니다.

Example:
  go run ./cmd/arena run --dates 2025-01-06,2025-01-07
  go run ./cmd/arena run --from 2025-01-06 --to 2025-01-10
  go run ./cmd/arena run --dates 2025-01-06 --models gpt-5.2,claude-opus-4.6
  go run ./cmd/arena run --job 6f47ac10-58cc-4372-a567-0e02b2c3d479
  go run ./cmd/arena run --dates 2025-01-06 --stub-agent`,
	RunE: runSimulation,
}

var (
	runDates  string
	runFrom   string
	runTo     string
	runModels string
	runCash   float64
	runJobID  string
	runStub   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDates, "dates", "", "시뮬레이션 날짜 목록 (YYYY-MM-DD, 쉼표 구분)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "시세가 있는 거래일로 확장할 시작일 (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runTo, "to", "", "시세가 있는 거래일로 확장할 종료일 (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runModels, "models", "", "모델 목록 (기본: SIM_MODELS)")
	runCmd.Flags().Float64Var(&runCash, "cash", 0, "모델별 초기 현금 (기본: SIM_INITIAL_CASH)")
	runCmd.Flags().StringVar(&runJobID, "job", "", "재개할 기존 Job ID")
	runCmd.Flags().BoolVar(&runStub, "stub-agent", false, "LLM 대신 결정적 스텁 에이전트 사용")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if runJobID == "" && runDates == "" && (runFrom == "" || runTo == "") {
		return fmt.Errorf("either --dates, --from/--to or --job is required")
	}
	if runDates != "" && (runFrom != "" || runTo != "") {
		return fmt.Errorf("--dates and --from/--to are mutually exclusive")
	}

	s, err := newStack(runStub)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	var jobID uuid.UUID
	if runJobID != "" {
		jobID, err = uuid.Parse(runJobID)
		if err != nil {
			return fmt.Errorf("invalid job id: %w", err)
		}
	} else {
		var dates []time.Time
		if runDates != "" {
			dates, err = parseDates(runDates)
		} else {
			dates, err = tradingDatesInRange(ctx, s, runFrom, runTo)
		}
		if err != nil {
			return err
		}

		models := s.Config.Sim.Models
		if runModels != "" {
			models = splitList(runModels)
		}
		cash := s.Config.Sim.InitialCash
		if runCash > 0 {
			cash = runCash
		}

		job, err := simulation.CreateJob(ctx, s.Jobs, s.Days, simulation.JobRequest{
			Dates:       dates,
			Models:      models,
			InitialCash: cash,
		})
		if err != nil {
			return fmt.Errorf("create job: %w", err)
		}
		jobID = job.ID
		fmt.Printf("Job created: %s\n", jobID)
	}

	if err := s.Worker.Run(ctx, jobID); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	fmt.Printf("\nJob %s finished: %s\n", job.ID, job.Status)
	if job.Error != "" {
		fmt.Printf("Error: %s\n", job.Error)
	}
	for _, w := range job.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	return nil
}

// tradingDatesInRange expands [from, to] to the dates that already have
// stored price rows.
func tradingDatesInRange(ctx context.Context, s *stack, from, to string) ([]time.Time, error) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, fmt.Errorf("invalid --from date %q (expected YYYY-MM-DD)", from)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, fmt.Errorf("invalid --to date %q (expected YYYY-MM-DD)", to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("--to precedes --from")
	}

	dates, err := s.Prices.AvailableTradingDates(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query trading dates: %w", err)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no stored price data between %s and %s", from, to)
	}
	return dates, nil
}

func parseDates(csv string) ([]time.Time, error) {
	parts := splitList(csv)
	dates := make([]time.Time, 0, len(parts))
	for _, p := range parts {
		d, err := time.Parse("2006-01-02", p)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", p)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func splitList(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
