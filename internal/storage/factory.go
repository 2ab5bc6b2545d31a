/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"diarywriter/internal/config"
)

// NewPrimaryFromConfig creates the remote tier named by cfg.Remote. "none"
// yields a nil store, which makes the session cache-only.
func NewPrimaryFromConfig(ctx context.Context, cfg config.StoreConfig, sec config.Secrets) (PrimaryStore, error) {
	switch cfg.Remote {
	case "", "none":
		return nil, nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http store requires base_url to be set")
		}
		return NewHTTPStore(cfg.BaseURL, sec.RemoteToken, cfg.Timeout()), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
		}
		s, err := NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: sec.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown remote store type: %s", cfg.Remote)
	}
}

// NewCacheFromConfig creates the local tier named by cfg.Cache. The returned
// close function releases it.
func NewCacheFromConfig(cfg config.StoreConfig) (CacheStore, func() error, error) {
	if cfg.CacheDir == "" {
		return nil, nil, fmt.Errorf("cache requires cache_dir to be set")
	}
	switch cfg.Cache {
	case "", "file":
		c, err := NewFileCache(cfg.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { return nil }, nil
	case "sqlite":
		c, err := OpenSQLiteCache(filepath.Join(cfg.CacheDir, "reports.db"))
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Cache)
	}
}

// NewTieredFromConfig wires both tiers and the retry policy from cfg.
func NewTieredFromConfig(ctx context.Context, cfg config.StoreConfig, sec config.Secrets) (*Tiered, func() error, error) {
	primary, err := NewPrimaryFromConfig(ctx, cfg, sec)
	if err != nil {
		return nil, nil, err
	}
	cache, closeFn, err := NewCacheFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	t := NewTiered(primary, cache)
	if cfg.LoadAttempts > 0 {
		t.Attempts = cfg.LoadAttempts
	}
	if cfg.BackoffMs > 0 {
		t.Backoff = cfg.Backoff()
	}
	switch Precedence(cfg.Precedence) {
	case PreferPrimary, PreferNewest:
		t.Precedence = Precedence(cfg.Precedence)
	case "":
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("unknown precedence: %s", cfg.Precedence)
	}
	return t, closeFn, nil
}
