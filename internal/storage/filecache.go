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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "diarywriter/internal/log"
)

const (
	BackupsDirName = "backups"
	reportExt      = ".json"
	// DefaultKeepBackups bounds the number of timestamped backups kept per report.
	DefaultKeepBackups = 5
)

// FileCache stores one JSON file per report under Dir. Every write is
// transactional (temp file plus rename) and the previous version is copied to a
// timestamped backup first. Reads fall back to the newest backup when the
// current file is unreadable.
type FileCache struct {
	Dir         string
	KeepBackups int
}

func NewFileCache(dir string) (*FileCache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{Dir: dir, KeepBackups: DefaultKeepBackups}, nil
}

func (c *FileCache) path(id string) string { return filepath.Join(c.Dir, id+reportExt) }

func (c *FileCache) Get(_ context.Context, id string) (*Payload, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "file_get").With(slog.String("doc", id))
	b, err := os.ReadFile(c.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if p, berr := c.latestBackup(id); berr == nil {
				l.Warn("report file missing; restored from backup")
				return p, nil
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cached report: %w", err)
	}
	p, perr := Unmarshal(b)
	if perr != nil {
		bp, berr := c.latestBackup(id)
		if berr != nil {
			return nil, fmt.Errorf("parse cached report: %w; backup attempt: %v", perr, berr)
		}
		l.Warn("cached report unreadable; restored from backup", slog.Any("err", perr))
		return bp, nil
	}
	return p, nil
}

func (c *FileCache) Put(_ context.Context, p *Payload) error {
	if p == nil || !ValidID(p.ID) {
		return ErrInvalidID
	}
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	bdir := filepath.Join(c.Dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	target := c.path(p.ID)
	if _, statErr := os.Stat(target); statErr == nil {
		stamp := time.Now().UTC().Format("20060102-150405.000000000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s%s.%s.bak", p.ID, reportExt, stamp))
		if cerr := copyFile(target, bpath); cerr != nil {
			return fmt.Errorf("backup cached report: %w", cerr)
		}
		c.pruneBackups(p.ID)
	}

	temp := filepath.Join(c.Dir, fmt.Sprintf(".%s.tmp-%d-%d", p.ID, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp report: %w", werr)
	}
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if rerr := os.Rename(temp, target); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace cached report: %w", rerr)
	}
	return nil
}

func (c *FileCache) List(_ context.Context) ([]string, error) {
	ents, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	var ids []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, reportExt) {
			continue
		}
		if id := strings.TrimSuffix(name, reportExt); ValidID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *FileCache) backups(id string) []string {
	bdir := filepath.Join(c.Dir, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil
	}
	prefix := id + reportExt + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	// timestamp in name yields lexicographic order
	sort.Strings(out)
	return out
}

func (c *FileCache) pruneBackups(id string) {
	keep := c.KeepBackups
	if keep <= 0 {
		return
	}
	all := c.backups(id)
	for len(all) > keep {
		_ = os.Remove(all[0])
		all = all[1:]
	}
}

func (c *FileCache) latestBackup(id string) (*Payload, error) {
	candidates := c.backups(id)
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	return Unmarshal(b)
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
