package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/voice-companion/internal/app"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the TTS clip cache",
	}

	var maxAgeDays int
	clean := &cobra.Command{
		Use:   "clean",
		Short: "Remove cached clips older than the maximum age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			clips, err := app.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			if maxAgeDays <= 0 {
				maxAgeDays = cfg.CacheMaxAgeDays
			}
			removed := clips.EvictOlderThan(time.Duration(maxAgeDays) * 24 * time.Hour)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d clip(s) from %s\n", removed, clips.Dir())
			return nil
		},
	}
	clean.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "maximum clip age in days (default from CACHE_MAX_AGE_DAYS)")

	cmd.AddCommand(clean)
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the conversation log",
	}

	var limit int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the most recent messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenHistory(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("conversation history is disabled; set HISTORY_DB_PATH")
			}
			defer store.Close()

			msgs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %s\n", m.CreatedAt.Local().Format(time.DateTime), m.Speaker, m.Text)
			}
			return nil
		},
	}
	show.Flags().IntVarP(&limit, "limit", "n", 20, "number of messages to show")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every logged message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenHistory(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("conversation history is disabled; set HISTORY_DB_PATH")
			}
			defer store.Close()
			return store.Clear(cmd.Context())
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}
