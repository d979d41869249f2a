package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/askbot/internal/config"
	"github.com/memohai/askbot/internal/logger"
)

func newAskCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Run one prompt through the providers and print the merged reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runAsk(cmd, cfg, user, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli:local", "history key the prompt is recorded under")
	return cmd
}

func runAsk(cmd *cobra.Command, cfg config.Config, user, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("prompt is empty")
	}
	// Logs go to stderr so stdout carries only the reply.
	log := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	store, err := openStore(log, cfg)
	if err != nil {
		return err
	}
	dispatcher := newDispatcher(log, cfg, store, buildProviders(log, cfg.Providers))
	reply, err := dispatcher.Dispatch(cmd.Context(), user, prompt)
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), reply+"\n")
	return err
}
