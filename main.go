// deepgate - terminal chat client for DeepGate host and node servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	env         string
	baseURL     string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	chatOpts := &chatOptions{}

	rootCmd := &cobra.Command{
		Use:   "deepgate",
		Short: "Chat with models served by a DeepGate host or node",
		Long: `deepgate: terminal chat client for DeepGate servers.

Usage modes:
  deepgate             Start an interactive chat session
  deepgate <command>   Run a one-shot command (see below)

Sessions are saved after every completed reply and can be resumed with
/resume inside the chat or 'deepgate chat --resume <id>'.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags, chatOpts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default ~/.deepgate/config.toml)")
	pf.StringVar(&flags.env, "env", "", "Server environment: host or node")
	pf.StringVar(&flags.baseURL, "base-url", "", "DeepGate server URL")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	addChatFlags(rootCmd, chatOpts)

	rootCmd.AddCommand(
		chatCmd(flags),
		modelsCmd(flags),
		loadCmd(flags),
		historyCmd(flags),
		configCmd(flags),
	)
	return rootCmd
}
