// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/deepgate/internal/chat"
	"github.com/jeranaias/deepgate/internal/cli"
	"github.com/jeranaias/deepgate/internal/config"
	"github.com/jeranaias/deepgate/internal/deepgate"
	"github.com/jeranaias/deepgate/internal/export"
	"github.com/jeranaias/deepgate/internal/logging"
	"github.com/jeranaias/deepgate/internal/metrics"
	"github.com/jeranaias/deepgate/internal/model"
	"github.com/jeranaias/deepgate/internal/storage"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the components every command needs.
type app struct {
	cfg        *config.Config
	log        *logging.Logger
	client     *deepgate.Client
	store      storage.HistoryStore
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server
}

// setup loads configuration, applies flag overrides and opens the client,
// the history store and the optional metrics endpoint.
func setup(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.env != "" {
		cfg.Server.Environment = flags.env
	}
	if flags.baseURL != "" {
		cfg.Server.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	log, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, a.metrics, log.Component(logging.ComponentMetrics))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("metrics endpoint: %w", err)
		}
		a.metricsSrv = srv
	}

	a.client = deepgate.NewClientWithConfig(cfg.ClientConfig(log.Client(cfg.Server.Environment)))

	storeCfg, err := cfg.StorageConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	store, err := storage.Open(storeCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.store = store

	storeLog := log.Component(logging.ComponentStorage)
	storeLog.Debug().Str("backend", storeCfg.Backend).Str("path", storeCfg.Path).Msg("history store opened")
	return a, nil
}

// newOrchestrator builds an orchestrator over the app's client and store.
func (a *app) newOrchestrator(prompter chat.Prompter, defaultModel string, onChange model.Listener) (*chat.Orchestrator, error) {
	if defaultModel == "" {
		defaultModel = a.cfg.Chat.DefaultModel
	}
	chatLog := a.log.Component(logging.ComponentChat)
	return chat.New(chat.Options{
		Client:       a.client,
		Store:        a.store,
		Prompter:     prompter,
		Logger:       &chatLog,
		Metrics:      a.metrics,
		Environment:  a.cfg.Env(),
		SystemPrompt: a.cfg.Chat.DefaultSystemPrompt,
		DefaultModel: defaultModel,
		OnChange:     onChange,
	})
}

// Close releases everything setup opened.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Zerolog().Warn().Err(err).Msg("failed to close history store")
		}
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	_ = a.log.Close()
}

// oneShotPrompter reports failures on stderr and never retries.
func oneShotPrompter() chat.Prompter {
	return cli.NewTerminalPrompter(nil, os.Stderr)
}

// =============================================================================
// CHAT
// =============================================================================

type chatOptions struct {
	model  string
	kind   string
	resume string
	quiet  bool
}

func addChatFlags(cmd *cobra.Command, opts *chatOptions) {
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model for the session (overrides config)")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Session kind: chat, note or prompt")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "Resume the saved session with this id")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Minimal output")
}

func chatCmd(flags *globalFlags) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Example: `  deepgate chat
  deepgate chat --model llama3:8b
  deepgate --env node chat --resume 3f2a...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags, opts)
		},
	}
	addChatFlags(cmd, opts)
	return cmd
}

func runChat(ctx context.Context, flags *globalFlags, opts *chatOptions) error {
	a, err := setup(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_history")
	}
	editor := cli.NewLineEditor(historyFile)
	defer editor.Close()

	renderer := cli.NewStreamRenderer(os.Stdout)
	orch, err := a.newOrchestrator(cli.NewTerminalPrompter(editor.State(), os.Stdout), opts.model, renderer.OnChange)
	if err != nil {
		return err
	}
	defer orch.Close()

	switch {
	case opts.resume != "":
		conv, err := orch.Resume(ctx, opts.resume)
		if err != nil {
			return err
		}
		cli.PrintTranscript(os.Stdout, conv)
	case opts.kind != "":
		kind, err := model.ParseKind(opts.kind)
		if err != nil {
			return err
		}
		if _, err := orch.NewSession(ctx, kind); err != nil {
			return err
		}
	}

	replLog := a.log.Component(logging.ComponentCLI)
	repl := cli.NewREPL(cli.REPLConfig{
		Orchestrator: orch,
		Editor:       editor,
		Renderer:     renderer,
		Out:          os.Stdout,
		Logger:       &replLog,
		BaseURL:      a.client.BaseURL(),
		Quiet:        opts.quiet,
	})
	return repl.Run(ctx)
}

// =============================================================================
// ONE-SHOT COMMANDS
// =============================================================================

func modelsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.newOrchestrator(oneShotPrompter(), "", nil)
			if err != nil {
				return err
			}
			defer orch.Close()

			models, err := orch.RefreshModels(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(models)
			}
			cli.PrintModels(cmd.OutOrStdout(), models)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func loadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load <model>",
		Short: "Load a model on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.newOrchestrator(oneShotPrompter(), "", nil)
			if err != nil {
				return err
			}
			defer orch.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s...\n", cli.RenderStatus("loading"), args[0])
			start := time.Now()
			if err := orch.LoadModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Loaded %s in %s\n",
				cli.SuccessStyle.Render("[OK]"),
				cli.CommandStyle.Render(args[0]),
				time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func historyCmd(flags *globalFlags) *cobra.Command {
	var show, exportID, format, outDir string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show or export saved sessions",
		Example: `  deepgate history
  deepgate history --show 3f2a...
  deepgate history --export 3f2a... --format json --out ./exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if exportID != "" {
				exporter, err := export.ForFormat(format, nil)
				if err != nil {
					return err
				}
				conv, err := a.store.Load(cmd.Context(), exportID)
				if err != nil {
					return err
				}
				path, err := export.ExportToFile(conv, exporter, &export.Options{
					OutputDir:         outDir,
					IncludeTimestamps: true,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Exported to %s\n", cli.SuccessStyle.Render("[OK]"), path)
				return nil
			}

			if show != "" {
				conv, err := a.store.Load(cmd.Context(), show)
				if err != nil {
					return err
				}
				cli.PrintTranscript(cmd.OutOrStdout(), conv)
				return nil
			}

			sessions, err := a.store.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			cli.PrintHistory(cmd.OutOrStdout(), sessions)
			return nil
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "Print the session with this id")
	cmd.Flags().StringVar(&exportID, "export", "", "Export the session with this id to a file")
	cmd.Flags().StringVar(&format, "format", export.FormatMarkdown, "Export format: md or json")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for exported files")
	return cmd
}

// =============================================================================
// CONFIG
// =============================================================================

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configFilePath(flags)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List configuration keys",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.Keys(), "\n"))
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(flags.configPath)
				if err != nil {
					return err
				}
				v, err := cfg.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change a value in the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configFilePath(flags)
				if err != nil {
					return err
				}

				// Environment overrides are not written back.
				cfg := config.Default()
				if _, err := os.Stat(path); err == nil {
					if err := config.LoadTOML(cfg, path); err != nil {
						return err
					}
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}

				if err := cfg.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.Save(cfg, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", cli.SuccessStyle.Render("[OK]"), args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}

func configFilePath(flags *globalFlags) (string, error) {
	if flags.configPath != "" {
		return flags.configPath, nil
	}
	return config.ConfigPath()
}
