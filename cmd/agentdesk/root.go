/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tomoncle/agentdesk"
	"github.com/tomoncle/agentdesk/config"
	"github.com/tomoncle/agentdesk/database"
	"github.com/tomoncle/agentdesk/health"
	"github.com/tomoncle/agentdesk/utils"
)

var log = utils.NewLogger("AGENTDESK")

type options struct {
	configFile string
	envFiles   []string
	cfg        *config.Config
}

// NewRootCmd builds the agentdesk command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "agentdesk",
		Short:         "Bootstrap the agentdesk database and model registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			if err := loadEnvFiles(opts.envFiles); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			utils.ConfigureLogLevel(cfg.Log.Level)
			utils.ConfigureLogFormat(cfg.Log.Format)
			opts.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files loaded before the environment is read (default: .env when present)")
	flags.String("log-level", "", "log level (trace|debug|info|warn|error)")
	flags.String("log-format", "", "console log format (text|json)")
	flags.String("sql-dir", "", "root directory of the seed SQL files")

	root.AddCommand(newModelsCmd(opts), newMigrateCmd(opts), newSeedCmd(opts), newServeCmd(opts))
	return root
}

// loadEnvFiles loads the given dotenv files, or .env when none is given and
// it exists. Variables already set in the environment win.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", files, err)
	}
	return nil
}

func bootstrap(ctx context.Context, opts *options) (*database.DataStore, error) {
	return agentdesk.Bootstrap(ctx, &opts.cfg.Database)
}

func newModelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Bootstrap and print the model registry with its associations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := store.Models()
			out := cmd.OutOrStdout()
			for _, model := range registry.Models() {
				fmt.Fprintf(out, "%-8s table=%s priority=%d\n", model.Name(), model.Table(), model.Priority())
				for _, a := range registry.AssociationsOf(model.Name()) {
					fmt.Fprintf(out, "  %s\n", a)
				}
			}
			return nil
		},
	}
}

func newMigrateCmd(opts *options) *cobra.Command {
	var foreignKeys, dropForeignKeys bool
	var exportFile string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and foreign key constraints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("foreign-keys") {
				opts.cfg.Database.DataMigrateConfig.EnableForeignKey = foreignKeys
			}
			store, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()

			if exportFile != "" {
				if err := database.ExportForeignKeyFile(exportFile, store.Models().ForeignKeys()); err != nil {
					return err
				}
				log.Infof("foreign keys exported to %s", exportFile)
			}
			if dropForeignKeys {
				if err := store.DropForeignKeys(cmd.Context()); err != nil {
					return err
				}
				log.Info("foreign keys dropped")
				return nil
			}
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("migration completed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&foreignKeys, "foreign-keys", true, "add foreign key constraints derived from associations")
	cmd.Flags().BoolVar(&dropForeignKeys, "drop-fk", false, "drop the derived foreign key constraints instead of migrating")
	cmd.Flags().StringVar(&exportFile, "export-fk", "", "write the derived foreign keys to this YAML file")
	return cmd
}

func newSeedCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Execute the seed SQL files for an environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.Seed(cmd.Context(), opts.cfg.Database.DataInitConfig.Environment)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(results); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().String("seed-env", "", "environment directory under the SQL root (default: prod)")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /healthz, /stats and /models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			server := &http.Server{
				Addr:              opts.cfg.HTTP.Addr,
				Handler:           health.NewRouter(store, opts.cfg.HTTP.Mode),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Infof("listening on %s", server.Addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info("shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("http-addr", "", "listen address (default :8080)")
	return cmd
}
