// Conveyor — движок task flows: приём заявок, взвешенные очереди,
// пул воркеров и реестр коннекторов.
//
// Использование:
//
//	conveyor [--config FILE]               запуск демона
//	conveyor check-config [--config FILE]  проверка конфигурации
//	conveyor sample-config                 пример конфигурации
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — task flow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONVEYOR_CONFIG"), "Path to TOML config file")

	rootCmd.AddCommand(
		newCheckConfigCmd(&configPath),
		newSampleConfigCmd(),
	)
	return rootCmd
}

func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queues: %d, workers: %d, flows: %d, schedules: %d\n",
				len(cfg.Queues), len(cfg.Workers), len(cfg.Flows), len(cfg.Schedules))
			fmt.Fprintf(out, "database: %t, rabbitmq: %t, router: %s\n",
				cfg.Database.Enabled, cfg.RabbitMQ.Enabled, cfg.Engine.Router)
			return nil
		},
	}
}

func newSampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config",
		Short: "Print a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.Sample())
			return err
		},
	}
}

// serve запускает демон до SIGINT/SIGTERM.
func serve(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting conveyor", "version", version)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		return err
	}

	logger.Info("stopped")
	return nil
}
