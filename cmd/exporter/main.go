// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This package is the Strava to Google Drive export command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nmiodice/strava-drive-export/internal/backend"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "strava-export",
	Short: "Export Strava activities to Google Drive as JSON records",
	Long: `strava-export lists the athlete's Strava activities, normalizes each one
into a JSON record and writes it to Google Drive (or Azure Blob Storage),
replacing records exported by earlier runs.

Run "strava-export authorize strava" and "strava-export authorize google"
once to create the credential files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFile)
	},
	RunE: runExport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	addRunFlags(rootCmd)
	rootCmd.AddCommand(newRunCmd(), newListCmd(), newAuthorizeCmd())
}

// loadEnvFile loads dotenv values without overriding the real environment.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func setup(ctx context.Context) (*backend.Config, *logrus.Logger, error) {
	config, err := backend.GetConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading configuration: %w", err)
	}
	log, err := backend.NewLogger(config.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return config, log, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
