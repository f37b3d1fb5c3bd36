package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/aura/backend/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "Aura relationship counselor backend",
	Long: `Aura serves the counselor sessions over HTTP, SSE and WebSocket.

Running without a subcommand starts the server.

Examples:
  aura
  aura serve
  aura sessions list
  aura sessions export > sessions.json
  aura sessions purge --yes`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig 先加载 .env，再从环境变量读取配置。
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
