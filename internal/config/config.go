/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
	"diarywriter/internal/pagemodel"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides at runtime. Secrets never appear here;
// they live in the OS keyring.
//
// config_version: bump when the structure changes in a backward-incompatible way.

// StoreConfig selects the remote primary and the local cache tier.
// Remote is a tagged union: "http", "s3" or "none" decides which fields apply.
type StoreConfig struct {
	Remote    string `yaml:"remote"`
	BaseURL   string `yaml:"base_url,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms"`

	// S3-specific fields (only used when Remote == "s3")
	S3Bucket      string `yaml:"s3_bucket,omitempty"`
	S3Prefix      string `yaml:"s3_prefix,omitempty"`
	S3Region      string `yaml:"s3_region,omitempty"`
	S3Endpoint    string `yaml:"s3_endpoint,omitempty"`
	S3AccessKeyID string `yaml:"s3_access_key_id,omitempty"`

	Cache        string `yaml:"cache"` // "file" or "sqlite"
	CacheDir     string `yaml:"cache_dir,omitempty"`
	LoadAttempts int    `yaml:"load_attempts"`
	BackoffMs    int    `yaml:"backoff_ms"`
	AutosaveMs   int    `yaml:"autosave_ms"`
	Precedence   string `yaml:"precedence"` // "primary" or "newest"
}

// DiaryConfig holds the defaults for new image-grid pages.
type DiaryConfig struct {
	gridlayout.Params `yaml:",inline"`
	Fit               string `yaml:"fit"`
	Header            string `yaml:"header,omitempty"`
}

type ExportConfig struct {
	DPI    int    `yaml:"dpi"`
	OutDir string `yaml:"out_dir,omitempty"`
	Preset string `yaml:"preset"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Store         StoreConfig   `yaml:"store"`
	Diary         DiaryConfig   `yaml:"diary"`
	Export        ExportConfig  `yaml:"export"`
	Logging       LoggingConfig `yaml:"logging"`
	Server        ServerConfig  `yaml:"server"`
}

// Secrets are the values kept in the OS keyring.
type Secrets struct {
	RemoteToken  string
	S3SecretKey  string
	ServerSecret string
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Store: StoreConfig{
			Remote:       "none",
			BaseURL:      "http://localhost:8080",
			TimeoutMs:    15000,
			S3Prefix:     "reports",
			Cache:        "file",
			LoadAttempts: 3,
			BackoffMs:    200,
			AutosaveMs:   1000,
			Precedence:   "primary",
		},
		Diary:   DiaryConfig{Params: gridlayout.DefaultParams(), Fit: string(domain.FitContain)},
		Export:  ExportConfig{DPI: 150, Preset: "print"},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "CDW_CONFIG"
	EnvStoreRemote    = "CDW_STORE_REMOTE"
	EnvStoreURL       = "CDW_STORE_URL"
	EnvStoreTimeoutMs = "CDW_STORE_TIMEOUT_MS"
	EnvS3Bucket       = "CDW_S3_BUCKET"
	EnvS3Region       = "CDW_S3_REGION"
	EnvS3Endpoint     = "CDW_S3_ENDPOINT"
	EnvCache          = "CDW_CACHE"
	EnvCacheDir       = "CDW_CACHE_DIR"
	EnvExportDPI      = "CDW_EXPORT_DPI"
	EnvServerAddr     = "CDW_SERVER_ADDR"
	EnvDatabaseURL    = "CDW_DATABASE_URL"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "CDW_LOG_LEVEL"
	EnvLogFormat = "CDW_LOG_FORMAT"
	EnvLogSource = "CDW_LOG_SOURCE"
	EnvLogFile   = "CDW_LOG_FILE"
	// secrets, for hosts without a keyring
	EnvRemoteToken  = "CDW_TOKEN"
	EnvS3SecretKey  = "CDW_S3_SECRET_KEY"
	EnvServerSecret = "CDW_SERVER_SECRET"
)

// Service/keys for OS keyring.
const (
	keyringService      = "DiaryWriter"
	keyringToken        = "remote_token"
	keyringS3Secret     = "s3_secret_key"
	keyringServerSecret = "server_secret"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// ConfigPath returns the per-user config file path. CDW_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	base, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DefaultCacheDir is where the local cache tier lives unless configured.
func DefaultCacheDir() (string, error) {
	base, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cache"), nil
}

func appDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "DiaryWriter")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "DiaryWriter")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "diarywriter")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "diarywriter")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. Secrets come from the keyring, or the environment
// when the keyring has nothing.
func Load() (AppConfig, Secrets, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, Secrets{}, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, Secrets{}, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	if cfg.Store.CacheDir == "" {
		if dir, err := DefaultCacheDir(); err == nil {
			cfg.Store.CacheDir = dir
		}
	}
	return cfg, loadSecrets(), nil
}

func loadSecrets() Secrets {
	get := func(key, env string) string {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
		v, _ := tokenStore.Get(keyringService, key)
		return v
	}
	return Secrets{
		RemoteToken:  get(keyringToken, EnvRemoteToken),
		S3SecretKey:  get(keyringS3Secret, EnvS3SecretKey),
		ServerSecret: get(keyringServerSecret, EnvServerSecret),
	}
}

// Save writes the user config YAML and persists non-empty secrets into the OS keyring.
func Save(cfg AppConfig, s Secrets) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	for key, v := range map[string]string{
		keyringToken:        s.RemoteToken,
		keyringS3Secret:     s.S3SecretKey,
		keyringServerSecret: s.ServerSecret,
	} {
		if v == "" {
			continue
		}
		if err := tokenStore.Set(keyringService, key, v); err != nil {
			return fmt.Errorf("store %s in keyring: %w", key, err)
		}
	}
	return nil
}

// ClearSecrets removes every stored secret from the keyring.
func ClearSecrets() error {
	var errs []error
	for _, key := range []string{keyringToken, keyringS3Secret, keyringServerSecret} {
		if err := tokenStore.Delete(keyringService, key); err != nil && !errors.Is(err, ErrSecretNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	mergeStore(&dst.Store, &src.Store)

	// a diary section is taken whole once it names a grid
	if src.Diary.ImagesPerPage != 0 {
		fit := dst.Diary.Fit
		dst.Diary = src.Diary
		if dst.Diary.Fit == "" {
			dst.Diary.Fit = fit
		}
	} else if src.Diary.Fit != "" {
		dst.Diary.Fit = src.Diary.Fit
	}
	if src.Diary.Header != "" {
		dst.Diary.Header = src.Diary.Header
	}

	if src.Export.DPI != 0 {
		dst.Export.DPI = src.Export.DPI
	}
	if src.Export.OutDir != "" {
		dst.Export.OutDir = src.Export.OutDir
	}
	if src.Export.Preset != "" {
		dst.Export.Preset = src.Export.Preset
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.DatabaseURL != "" {
		dst.Server.DatabaseURL = src.Server.DatabaseURL
	}
}

func mergeStore(dst, src *StoreConfig) {
	str := func(d *string, s string) {
		if s = strings.TrimSpace(s); s != "" {
			*d = s
		}
	}
	num := func(d *int, s int) {
		if s != 0 {
			*d = s
		}
	}
	str(&dst.Remote, strings.ToLower(src.Remote))
	str(&dst.BaseURL, src.BaseURL)
	num(&dst.TimeoutMs, src.TimeoutMs)
	str(&dst.S3Bucket, src.S3Bucket)
	str(&dst.S3Prefix, src.S3Prefix)
	str(&dst.S3Region, src.S3Region)
	str(&dst.S3Endpoint, src.S3Endpoint)
	str(&dst.S3AccessKeyID, src.S3AccessKeyID)
	str(&dst.Cache, strings.ToLower(src.Cache))
	str(&dst.CacheDir, src.CacheDir)
	num(&dst.LoadAttempts, src.LoadAttempts)
	num(&dst.BackoffMs, src.BackoffMs)
	num(&dst.AutosaveMs, src.AutosaveMs)
	str(&dst.Precedence, strings.ToLower(src.Precedence))
}

func applyEnvOverrides(cfg *AppConfig) {
	strs := []struct {
		env string
		dst *string
	}{
		{EnvStoreRemote, &cfg.Store.Remote},
		{EnvStoreURL, &cfg.Store.BaseURL},
		{EnvS3Bucket, &cfg.Store.S3Bucket},
		{EnvS3Region, &cfg.Store.S3Region},
		{EnvS3Endpoint, &cfg.Store.S3Endpoint},
		{EnvCache, &cfg.Store.Cache},
		{EnvCacheDir, &cfg.Store.CacheDir},
		{EnvServerAddr, &cfg.Server.Addr},
		{EnvDatabaseURL, &cfg.Server.DatabaseURL},
		{EnvLogFile, &cfg.Logging.File},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(os.Getenv(s.env)); v != "" {
			*s.dst = v
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportDPI)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Export.DPI = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"store.remote":        EnvStoreRemote,
		"store.base_url":      EnvStoreURL,
		"store.timeout_ms":    EnvStoreTimeoutMs,
		"store.s3_bucket":     EnvS3Bucket,
		"store.s3_region":     EnvS3Region,
		"store.s3_endpoint":   EnvS3Endpoint,
		"store.cache":         EnvCache,
		"store.cache_dir":     EnvCacheDir,
		"export.dpi":          EnvExportDPI,
		"server.addr":         EnvServerAddr,
		"server.database_url": EnvDatabaseURL,
		"logging.level":       EnvLogLevel,
		"logging.format":      EnvLogFormat,
		"logging.source":      EnvLogSource,
		"logging.file":        EnvLogFile,
	}[key]
	if env != "" && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Timeout returns the remote request timeout.
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return time.Duration(Defaults().Store.TimeoutMs) * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Backoff returns the first retry delay of a load.
func (s StoreConfig) Backoff() time.Duration {
	return time.Duration(s.BackoffMs) * time.Millisecond
}

// AutosaveDelay returns the debounce interval of autosave.
func (s StoreConfig) AutosaveDelay() time.Duration {
	return time.Duration(s.AutosaveMs) * time.Millisecond
}

// GridSpec returns the spec for new diary pages, validated by the layout engine.
func (d DiaryConfig) GridSpec() (pagemodel.GridSpec, error) {
	if res := gridlayout.Compute(d.Params); !res.IsValid {
		return pagemodel.GridSpec{}, fmt.Errorf("diary defaults: %w", res.Err())
	}
	return pagemodel.GridSpec{Params: d.Params, Fit: domain.FitMode(d.Fit).Normalize(), Header: d.Header}, nil
}
