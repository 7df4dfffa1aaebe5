package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Arena - LLM 트레이딩 시뮬레이션 엔진",
	Long: `Arena Unified CLI

여러 LLM 모델이 같은 시장에서 경쟁하는 일일 트레이딩 시뮬레이션.
날짜별 세션을 순차 실행하고 모델별 포지션 원장을 기록합니다.

Usage:
  go run ./cmd/arena [command]

Examples:
  go run ./cmd/arena api
  go run ./cmd/arena run --dates 2025-01-06,2025-01-07
  go run ./cmd/arena status
  go run ./cmd/arena test-db`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
