package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/arena/backend/internal/scheduler"
	"github.com/wonny/arena/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 시작",
	Long: `야간 따라잡기 Job을 포함한 정기 작업 스케줄러를 시작합니다.

매일 밤 설정된 모델들로 최근 평일에 대한 시뮬레이션 Job을 제출하고,
이미 완료된 세션은 건너뜁니다.

--run-now 는 스케줄을 기다리지 않고 따라잡기 Job을 즉시 한 번 실행합니다.

Example:
  go run ./cmd/arena scheduler
  go run ./cmd/arena scheduler --run-now`,
	RunE: runScheduler,
}

var schedulerRunNow bool

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().BoolVar(&schedulerRunNow, "run-now", false, "시작 시 따라잡기 Job 즉시 실행")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Arena Scheduler ===")

	s, err := newStack(false)
	if err != nil {
		return err
	}
	defer s.Close()

	log := s.Logger

	sched := scheduler.New(log)

	catchup := jobs.NewCatchupJob(s.Jobs, s.Days, s.Worker, s.Config, log)
	if err := sched.AddJob(catchup); err != nil {
		return fmt.Errorf("add catch-up job: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	fmt.Println("\n✅ Scheduler running")
	for _, name := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if schedulerRunNow {
		if err := sched.RunJob(catchup.Name()); err != nil {
			return fmt.Errorf("run job now: %w", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Scheduler stopping")
	printJobHistory(sched)
	return nil
}

// printJobHistory prints a per-job run summary on shutdown.
func printJobHistory(sched *scheduler.Scheduler) {
	for _, name := range sched.GetAllJobs() {
		history, err := sched.GetJobHistory(name)
		if err != nil {
			continue
		}
		if len(history.Results) == 0 {
			fmt.Printf("\n📊 %s: no runs\n", name)
			continue
		}

		fmt.Printf("\n📊 %s: %d runs, %.0f%% success\n",
			name, len(history.Results), history.GetSuccessRate()*100)
		for _, r := range history.GetLatestResults(5) {
			mark := "✅"
			if !r.Success {
				mark = "❌"
			}
			fmt.Printf("  %s %s (%s)", mark, r.StartTime.Format("2006-01-02 15:04:05"), r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				fmt.Printf(" %s", r.Error)
			}
			fmt.Println()
		}
	}
}
