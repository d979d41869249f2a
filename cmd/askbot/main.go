package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/askbot/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "askbot",
		Short:         "Chat bot that asks several language models at once",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to config.toml (defaults to $CONFIG_PATH or ./config.toml)")
	root.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "askbot %s\n", version.String())
		},
	}
}

// configPath resolves --config, then CONFIG_PATH.
func configPath(cmd *cobra.Command) string {
	if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
		return path
	}
	return os.Getenv("CONFIG_PATH")
}
