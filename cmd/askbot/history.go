package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/memohai/askbot/internal/config"
	"github.com/memohai/askbot/internal/logger"
	"github.com/memohai/askbot/internal/memory"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [user-id]",
		Short: "Show stored prompts for a user, or list known users",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return printUsers(cmd.OutOrStdout(), store)
			}
			return printHistory(cmd.OutOrStdout(), store, args[0])
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <user-id>",
		Short: "Forget every stored prompt for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Clear(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared history for %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func loadStore(cmd *cobra.Command) (*memory.Store, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cmd.ErrOrStderr(), "warn", cfg.Log.Format)
	return openStore(log.With(slog.String("cmd", "history")), cfg)
}

func printUsers(w io.Writer, store *memory.Store) error {
	users := store.Users()
	if len(users) == 0 {
		_, err := fmt.Fprintln(w, "no history stored")
		return err
	}
	for _, user := range users {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", user, len(store.Get(user))); err != nil {
			return err
		}
	}
	return nil
}

func printHistory(w io.Writer, store *memory.Store, user string) error {
	prompts := store.Get(user)
	if len(prompts) == 0 {
		_, err := fmt.Fprintf(w, "no history for %s\n", user)
		return err
	}
	for i, prompt := range prompts {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, prompt); err != nil {
			return err
		}
	}
	return nil
}
