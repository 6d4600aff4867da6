package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shop-assistant/config"
	"shop-assistant/internal/logger"
	"shop-assistant/internal/server"
	"shop-assistant/internal/services"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "shop-assistant",
		Short:         "RAG chat assistant for the DEVENIR storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (yaml, json or toml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newClassifyCmd(opts),
	)
	return rootCmd
}

// setup loads configuration and the process logger
func setup(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.Init(cfg.Server.Env, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.NewApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			return server.Run(ctx, app)
		},
	}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var catalogPath string
	var concurrency int
	var noLLM bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a product catalog into the vector store",
		Example: `  shop-assistant ingest --catalog products.yaml
  shop-assistant ingest --catalog products.json --no-llm --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := services.LoadCatalog(catalogPath)
			if err != nil {
				return err
			}

			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync(log)
			if concurrency > 0 {
				cfg.Ingest.Concurrency = concurrency
			}
			if noLLM {
				cfg.Ingest.UseLLMProposals = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.NewApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Ping(ctx); err != nil {
				return fmt.Errorf("vector store %s is not reachable: %w", app.Store.Backend(), err)
			}

			report, err := app.Ingestion.IngestProducts(ctx, products)
			if report != nil {
				if encErr := writeJSON(cmd, report); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog file with a top-level products list (.json, .yaml)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "products indexed in parallel (default from config)")
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "build deterministic propositions only")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Print the intent a message is routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			if offline {
				classifier := services.NewIntentClassifier(nil, nil, nil)
				intent, confidence, _ := classifier.Heuristic(message)
				entities, _ := services.NewEntityExtractor().Extract(message)
				return writeJSON(cmd, services.Classification{
					Intent:     intent,
					Confidence: confidence,
					Source:     services.SourceHeuristic,
					Entities:   entities,
				})
			}

			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			app, err := server.NewApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			return writeJSON(cmd, app.Classifier.Classify(cmd.Context(), message, nil))
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use the keyword heuristic only, without config or LLM")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
