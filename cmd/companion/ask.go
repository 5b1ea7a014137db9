package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiqai/voice-companion/internal/app"
	"github.com/lexiqai/voice-companion/internal/conversation"
)

func newAskCmd() *cobra.Command {
	var withHistory bool

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask the assistant a single question",
		Example: `  companion ask "what's a good name for a cat?"
  companion ask --history "and for a dog?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")

			var contextText string
			if withHistory {
				store, err := app.OpenHistory(cfg)
				if err != nil {
					return err
				}
				if store == nil {
					return fmt.Errorf("--history needs HISTORY_DB_PATH")
				}
				defer store.Close()
				recent, err := store.List(cmd.Context(), cfg.HistoryContextMessages)
				if err != nil {
					return err
				}
				contextText = conversation.RenderContext(recent)
			}

			reply, err := app.NewGenerator(cfg, logger).GetResponse(cmd.Context(), prompt, contextText)
			if err != nil {
				logger.Debug().Err(err).Msg("Chat request failed")
				return errors.New(conversation.HumanMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withHistory, "history", false, "include recent conversation history as context")
	return cmd
}
