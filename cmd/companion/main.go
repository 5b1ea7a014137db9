// Command companion runs single assistant operations from the terminal,
// using the same configuration as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/voice-companion/internal/config"
	"github.com/lexiqai/voice-companion/internal/observability"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "companion",
		Short:         "Voice companion tools",
		Long:          "companion asks the assistant, renders speech and manages local assistant data.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newSayCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newHistoryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and initializes the logger on stderr.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	observability.InitLoggerTo(os.Stderr, level, true)
	return cfg, observability.GetLogger(), nil
}
