package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/arena/backend/internal/simulation"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Job 워커 시작",
	Long: `대기 중이거나 중단된 시뮬레이션 Job을 폴링하여 실행합니다.

API 서버와 별도 프로세스로 띄울 수 있습니다. 이미 완료된 세션은
건너뛰므로 동일 Job을 여러 번 집어도 안전합니다.

Example:
  go run ./cmd/arena worker
  go run ./cmd/arena worker --interval 30s`,
	RunE: runWorker,
}

var workerInterval time.Duration

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().DurationVar(&workerInterval, "interval", 15*time.Second, "폴링 간격")
}

func runWorker(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Arena Job Worker ===")

	s, err := newStack(false)
	if err != nil {
		return err
	}
	defer s.Close()

	log := s.Logger
	log.WithField("interval", workerInterval).Info("Worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			log.Info("Worker stopping")
			return nil

		case <-ticker.C:
			if err := pickupJobs(ctx, s); err != nil {
				log.WithError(err).Error("Job pickup failed")
			}
		}
	}
}

// pickupJobs runs every resumable job among the recent ones, oldest
// first. Sequential on purpose: one engine run at a time per process.
func pickupJobs(ctx context.Context, s *stack) error {
	jobs, err := s.Jobs.List(ctx, 50)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	for i := len(jobs) - 1; i >= 0; i-- {
		job := jobs[i]
		if !simulation.IsResumable(job.Status) {
			continue
		}
		s.Logger.WithFields(map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		}).Info("Picking up job")

		if err := s.Worker.Run(ctx, job.ID); err != nil {
			s.Logger.WithError(err).WithField("job_id", job.ID).Error("Job run failed")
		}
	}
	return nil
}
