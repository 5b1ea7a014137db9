package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiqai/voice-companion/internal/app"
	"github.com/lexiqai/voice-companion/internal/tts"
)

func newSayCmd() *cobra.Command {
	var (
		voice  string
		speed  float64
		output string
	)

	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Render text to a WAV clip",
		Long:  "say synthesizes text through the clip cache and prints the cached clip path, or copies the clip to --output.",
		Example: `  companion say "Good morning!"
  companion say --voice child --speed 1.2 -o hello.wav "Hello there"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			clips, err := app.OpenCache(cfg, logger)
			if err != nil {
				return err
			}
			if voice == "" {
				voice = cfg.TTSDefaultVoice
			}
			if speed == 0 {
				speed = cfg.TTSSpeed
			}

			// Rendering only; nothing is played.
			synth := tts.NewSynthesizer(app.NewTTSService(cfg, logger), clips, nil, voice, speed, logger)
			clip, err := synth.Prepare(cmd.Context(), strings.Join(args, " "), voice, speed)
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), clip.Path)
				return nil
			}
			return copyFile(clip.Path, output)
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "voice: default, male, female or child (default from TTS_DEFAULT_VOICE)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "speaking speed, 0.5 to 2.0 (default from TTS_SPEED)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the clip to this file")
	return cmd
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
