package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/arena/backend/internal/api"
	"github.com/wonny/arena/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 시뮬레이션 Job 제출/조회 엔드포인트 제공
- WebSocket으로 Job 진행 상황 스트리밍

Endpoints:
  GET  /health                   - Health check
  POST /api/jobs                 - 시뮬레이션 Job 제출
  GET  /api/jobs                 - Job 목록 조회
  GET  /api/jobs/{id}            - Job 상세 조회
  GET  /api/jobs/{id}/positions  - 포지션 원장 조회
  GET  /api/jobs/{id}/watch      - 진행 상황 WebSocket

Example:
  go run ./cmd/arena api
  go run ./cmd/arena api --port 8090`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Arena API Server ===")

	s, err := newStack(false)
	if err != nil {
		return err
	}
	defer s.Close()

	if apiPort != "" {
		s.Config.Port = apiPort
	}

	log := s.Logger
	log.WithFields(map[string]interface{}{
		"port": s.Config.Port,
		"env":  s.Config.Env,
	}).Info("Initializing API server")

	jobHandler := handlers.NewJobHandler(s.Jobs, s.Days, s.Ledger, s.Worker, s.Config.Sim, log)
	watchHandler := handlers.NewWatchHandler(s.Jobs, s.Days, log)

	router := api.NewRouter(jobHandler, watchHandler, log)
	server := api.New(s.Config, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", s.Config.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/jobs")
	fmt.Println("  GET  /api/jobs")
	fmt.Println("  GET  /api/jobs/{id}")
	fmt.Println("  GET  /api/jobs/{id}/positions")
	fmt.Println("  GET  /api/jobs/{id}/watch")
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
