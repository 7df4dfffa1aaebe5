package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Job 상태 조회",
	Long: `최근 Job 목록 또는 특정 Job의 상세 상태를 출력합니다.

Example:
  go run ./cmd/arena status
  go run ./cmd/arena status 6f47ac10-58cc-4372-a567-0e02b2c3d479`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := newStack(true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()

	if len(args) == 1 {
		return printJobDetail(ctx, s, args[0])
	}

	jobs, err := s.Jobs.List(ctx, 20)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s  %-16s  %-6s  %-6s  %s\n", "ID", "STATUS", "DATES", "MODELS", "CREATED")
	for _, job := range jobs {
		fmt.Printf("%-36s  %-16s  %-6d  %-6d  %s\n",
			job.ID, job.Status, len(job.Dates), len(job.Models),
			job.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func printJobDetail(ctx context.Context, s *stack, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job:     %s\n", job.ID)
	fmt.Printf("Status:  %s\n", job.Status)
	fmt.Printf("Models:  %v\n", job.Models)
	fmt.Printf("Cash:    %.2f\n", job.InitialCash)
	fmt.Printf("Created: %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.Error != "" {
		fmt.Printf("Error:   %s\n", job.Error)
	}
	for _, w := range job.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	days, err := s.Days.ListByJob(ctx, id)
	if err != nil {
		return fmt.Errorf("list model-days: %w", err)
	}

	fmt.Printf("\n%-12s  %-24s  %-10s  %s\n", "DATE", "MODEL", "STATUS", "ERROR")
	for _, d := range days {
		fmt.Printf("%-12s  %-24s  %-10s  %s\n",
			d.Date.Format("2006-01-02"), d.ModelID, d.Status, d.Error)
	}
	return nil
}
