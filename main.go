package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"health-kb/api"
	"health-kb/config"
	"health-kb/db"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "healthkb",
		Short:        "Embedding-based health knowledge store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config.json", "Path to a JSON config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, fatal)")

	root.AddCommand(newServeCmd(), newAddCmd(), newSearchCmd(), newListCmd(), newClearCmd())
	return root
}

/*
loadConfig reads the config file when present, then .env and process
environment overrides, and configures logging
*/
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	// load the environment variables
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
		cfg = config.DefaultConfig()
	}
	config.ApplyEnv(cfg)
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Initialize logging
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.WarnLevel
	}
	log.SetLevel(level)

	return cfg, cfg.Validate()
}

func openStore(cmd *cobra.Command) (*db.Store, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return db.OpenFromConfig(cmd.Context(), cfg, log.StandardLogger())
}

func newServeCmd() *cobra.Command {
	var host, port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge store over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != "" {
				cfg.Server.Port = port
			}

			store, closeStore, err := db.OpenFromConfig(cmd.Context(), cfg, log.StandardLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			// Create and start API server
			apiServer := api.NewServer(store, log.WithField("component", "api"))
			errCh := make(chan error, 1)
			go func() {
				addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
				log.Info("Starting API server on ", addr)
				errCh <- apiServer.Start(addr)
			}()

			// Handle graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigChan:
				log.Info("Shutting down...")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := apiServer.Shutdown(ctx); err != nil {
				log.Error("Failed to shut down API server: ", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Host address")
	cmd.Flags().StringVar(&port, "port", "", "Port number")
	return cmd
}

func newAddCmd() *cobra.Command {
	var text string
	var meta []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			id, err := store.Add(cmd.Context(), text, metadata)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Document text")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata as key=value (repeatable)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var query string
	var topK int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the documents most similar to a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			results, err := store.Search(cmd.Context(), query, topK)
			if err != nil {
				return err
			}
			for _, r := range results {
				meta, _ := json.Marshal(r.Record.Metadata.Map())
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f\t%s\t%s\t%s\n", r.Score, r.Record.ID, meta, r.Record.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Query text")
	cmd.Flags().IntVar(&topK, "top-k", db.DefaultTopK, "Number of results")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents in insertion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, rec := range store.List() {
				meta, _ := json.Marshal(rec.Metadata.Map())
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.ID, meta, rec.Text)
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every document",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			store.Clear(cmd.Context())
			return nil
		},
	}
}

/*
parseMetadata turns key=value pairs into metadata. Values that parse as
booleans, finite numbers or RFC 3339 timestamps keep that type.
*/
func parseMetadata(pairs []string) (db.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(db.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		out[key] = parseValue(value)
	}
	return out, nil
}

func parseValue(s string) db.Value {
	switch s {
	case "true":
		return db.Bool(true)
	case "false":
		return db.Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return db.Number(f)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return db.Time(t)
	}
	return db.String(s)
}
