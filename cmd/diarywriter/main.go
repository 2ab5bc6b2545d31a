/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"diarywriter/internal/config"
	"diarywriter/internal/crash"
	"diarywriter/internal/editor"
	"diarywriter/internal/imagepipe"
	applog "diarywriter/internal/log"
	"diarywriter/internal/storage"
)

// app is the state shared by commands of one invocation.
type app struct {
	cfg     config.AppConfig
	secrets config.Secrets
	store   *storage.Tiered
	closeFn func() error
	session *editor.Session
}

var state = &app{}

func main() {
	defer crash.Recover(crashDir(), state.crashFlush)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func crashDir() string {
	if dir := os.Getenv(config.EnvCacheDir); dir != "" {
		return dir
	}
	dir, _ := config.DefaultCacheDir()
	return dir
}

// crashFlush writes the open report straight to the cache tier.
func (a *app) crashFlush() (string, error) {
	if a.session == nil || a.store == nil || a.store.Cache == nil {
		return "", fmt.Errorf("no open report")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := storage.Encode(a.session.Model().Snapshot())
	if err := a.store.Cache.Put(ctx, p); err != nil {
		return "", err
	}
	return a.cfg.Store.CacheDir, nil
}

var rootCmd = &cobra.Command{
	Use:           "diarywriter",
	Short:         "Construction diary report editor",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, sec, err := config.Load()
		if err != nil {
			return err
		}
		state.cfg, state.secrets = cfg, sec
		applog.Init(applog.Options{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.Source,
			File:      cfg.Logging.File,
		})
		applog.WithComponent("cli").Debug("start", slog.String("cmd", cmd.CommandPath()))
		return nil
	},
}

// openReport opens id through the configured tiers. The caller must call closeReport.
func openReport(ctx context.Context, id string, picker imagepipe.FilePicker) (*editor.Session, error) {
	store, closeFn, err := storage.NewTieredFromConfig(ctx, state.cfg.Store, state.secrets)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}
	s, err := editor.Open(ctx, id, store, editor.Options{
		Picker:        picker,
		AutosaveDelay: state.cfg.Store.AutosaveDelay(),
		Outcome: func(o imagepipe.Outcome) {
			if !o.Applied {
				fmt.Fprintf(os.Stderr, "image for page %d slot %d discarded: %s\n", o.Commit.Page, o.Commit.Slot, o.Reason)
			}
		},
	})
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	state.store, state.closeFn, state.session = store, closeFn, s
	return s, nil
}

// closeReport saves and releases the open report and prints where it went.
func closeReport(ctx context.Context) error {
	s := state.session
	if s == nil {
		return nil
	}
	ack, err := s.Close(ctx)
	state.session = nil
	if cerr := state.closeFn(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	switch {
	case ack.PrimaryErr != nil:
		fmt.Fprintf(os.Stderr, "saved to local cache only: %v\n", ack.PrimaryErr)
	case ack.CacheErr != nil:
		fmt.Fprintf(os.Stderr, "saved remotely, local cache failed: %v\n", ack.CacheErr)
	}
	if !ack.Verified {
		fmt.Fprintln(os.Stderr, "warning: save could not be verified")
	}
	return nil
}

// withReport opens args[0], runs fn and saves.
func withReport(cmd *cobra.Command, id string, picker imagepipe.FilePicker, fn func(s *editor.Session) error) error {
	ctx := cmd.Context()
	s, err := openReport(ctx, id, picker)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		_ = closeReport(ctx)
		return err
	}
	return closeReport(ctx)
}

func parsePages(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page number %q", a)
		}
		out = append(out, n)
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(initCmd, showCmd, layoutCmd, addTextCmd, addDiaryCmd, deleteCmd, listCmd,
		setTextCmd, setHeaderCmd, attachCmd, lockCmd, unlockCmd, exportCmd, printCmd, serveCmd, versionCmd)
	exportCmd.AddCommand(exportPDFCmd, exportPNGCmd, exportZipCmd, exportPresetCmd)

	initCmd.Flags().StringP("title", "t", "", "Report title")
	initCmd.Flags().String("id", "", "Report id (default: a new UUID)")

	addTextCmd.Flags().IntP("count", "n", 1, "Number of pages")
	addDiaryCmd.Flags().IntP("count", "n", 1, "Number of pages")
	addGridFlags(addDiaryCmd)
	addGridFlags(layoutCmd)
	addDiaryCmd.Flags().String("header", "", "Header text of the new pages")

	setTextCmd.Flags().String("html", "", "HTML content")
	setTextCmd.Flags().String("file", "", "Read HTML content from file")

	for _, c := range []*cobra.Command{exportPDFCmd, exportPNGCmd, exportZipCmd, exportPresetCmd} {
		c.Flags().IntSlice("pages", nil, "Pages to export (default all)")
	}
	exportPNGCmd.Flags().Int("dpi", 0, "Raster resolution (default from config)")
	exportZipCmd.Flags().Int("dpi", 0, "Raster resolution (default from config)")
	exportPresetCmd.Flags().StringSlice("formats", nil, "Formats: pdf, png, html, zip (default per preset)")
	exportPresetCmd.Flags().Int("dpi", 0, "Override the preset's raster resolution")
	exportPresetCmd.Flags().StringP("out", "o", "", "Output directory (default from config)")
	exportPDFCmd.Flags().Bool("borders", false, "Outline grid cells")

	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().String("db", "", "PostgreSQL URL; in-memory when empty")
}
