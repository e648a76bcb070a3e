// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package driverbase

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogNamePrefix = "xdbc"
	defaultFileSizeMaxKb = int64(1024)
	defaultFileCountMax  = 100
	traceFileExt         = ".jsonl"
)

type rotatingConfig struct {
	folder    string
	prefix    string
	sizeMaxKb int64
	countMax  int
}

// RotatingFileOption configures a RotatingFileWriter.
type RotatingFileOption func(*rotatingConfig)

// WithTracingFolderPath sets the folder trace files are written to.
// Defaults to <user config dir>/.xdbc/traces.
func WithTracingFolderPath(path string) RotatingFileOption {
	return func(c *rotatingConfig) { c.folder = path }
}

func WithLogNamePrefix(prefix string) RotatingFileOption {
	return func(c *rotatingConfig) { c.prefix = prefix }
}

// WithFileSizeMaxKb sets the size after which a new file is started. Values
// below the default are raised to it.
func WithFileSizeMaxKb(kb int64) RotatingFileOption {
	return func(c *rotatingConfig) { c.sizeMaxKb = kb }
}

// WithFileCountMax sets how many files are kept. Values below the default
// are raised to it.
func WithFileCountMax(n int) RotatingFileOption {
	return func(c *rotatingConfig) { c.countMax = n }
}

// RotatingFileWriter appends to "<prefix>-<UTC timestamp>.jsonl" files in a
// folder, starting a new file once the current one reaches the size limit
// and deleting the oldest files beyond the count limit.
type RotatingFileWriter struct {
	mu      sync.Mutex
	cfg     rotatingConfig
	current *os.File
}

func NewRotatingFileWriter(opts ...RotatingFileOption) (*RotatingFileWriter, error) {
	cfg := rotatingConfig{
		prefix:    defaultLogNamePrefix,
		sizeMaxKb: defaultFileSizeMaxKb,
		countMax:  defaultFileCountMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.folder) == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.folder = filepath.Join(dir, ".xdbc", "traces")
	}
	if strings.TrimSpace(cfg.prefix) == "" {
		cfg.prefix = defaultLogNamePrefix
	}
	cfg.sizeMaxKb = max(cfg.sizeMaxKb, defaultFileSizeMaxKb)
	cfg.countMax = max(cfg.countMax, defaultFileCountMax)

	if err := os.MkdirAll(cfg.folder, 0o755); err != nil {
		return nil, err
	}
	// fail early if the folder is not writable
	tmp, err := os.CreateTemp(cfg.folder, cfg.prefix)
	if err != nil {
		return nil, err
	}
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())

	return &RotatingFileWriter{cfg: cfg}, nil
}

func (w *RotatingFileWriter) Folder() string   { return w.cfg.folder }
func (w *RotatingFileWriter) Prefix() string   { return w.cfg.prefix }
func (w *RotatingFileWriter) SizeMaxKb() int64 { return w.cfg.sizeMaxKb }
func (w *RotatingFileWriter) CountMax() int    { return w.cfg.countMax }

func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfFull(); err != nil {
		return 0, err
	}
	if w.current == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	return w.current.Write(p)
}

func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

// Files lists the trace files of this writer, oldest first.
func (w *RotatingFileWriter) Files() ([]string, error) {
	return filepath.Glob(filepath.Join(w.cfg.folder, w.cfg.prefix+"*"+traceFileExt))
}

func (w *RotatingFileWriter) limit() int64 { return w.cfg.sizeMaxKb * 1024 }

func (w *RotatingFileWriter) rotateIfFull() error {
	if w.current == nil {
		return nil
	}
	info, err := w.current.Stat()
	if err != nil {
		return err
	}
	if info.Size() < w.limit() {
		return nil
	}
	if err := w.current.Close(); err != nil {
		return err
	}
	w.current = nil
	return w.prune()
}

// open resumes the newest file if it still has room, otherwise starts one.
func (w *RotatingFileWriter) open() error {
	files, err := w.Files()
	if err == nil && len(files) > 0 {
		last := files[len(files)-1]
		if info, err := os.Stat(last); err == nil && info.Size() < w.limit() {
			if f, err := os.OpenFile(last, os.O_APPEND|os.O_WRONLY, 0o666); err == nil {
				w.current = f
				return nil
			}
		}
	}

	name := w.cfg.prefix + "-" + time.Now().UTC().Format("2006-01-02-15-04-05.000000000") + traceFileExt
	f, err := os.OpenFile(filepath.Join(w.cfg.folder, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	w.current = f
	return nil
}

func (w *RotatingFileWriter) prune() error {
	files, err := w.Files()
	if err != nil || len(files) <= w.cfg.countMax {
		return nil
	}
	for _, path := range files[:len(files)-w.cfg.countMax] {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
