// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Cache is a local BadgerDB store for decoded patch content, keyed by
// reference URL. Patch artifacts are immutable, so entries never
// expire; list and detail documents are live data and are never
// cached here.
type Cache struct {
	db *badger.DB
}

// CacheConfig holds configuration for the patch content cache.
type CacheConfig struct {
	// Path is the cache directory. Required unless InMemory is true.
	Path string

	// InMemory keeps the cache in memory only. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. The cache is rebuilt from
	// the feed on a miss, so this defaults off.
	SyncWrites bool

	// Logger receives BadgerDB's internal diagnostics.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultCacheConfig returns the persistent-cache defaults.
//
// Inputs:
//
//	path - Directory for cache files. Created if it doesn't exist.
//
// Outputs:
//
//	CacheConfig - Ready-to-use configuration
func DefaultCacheConfig(path string) CacheConfig {
	return CacheConfig{Path: path}
}

// InMemoryCacheConfig returns configuration for testing.
func InMemoryCacheConfig() CacheConfig {
	return CacheConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenCache opens the patch content cache.
//
// Description:
//
//	Opens a BadgerDB store at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist.
//
// Inputs:
//
//	cfg - Cache configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Cache - The opened cache. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the store cannot be opened.
//
// Thread Safety: The returned *Cache is safe for concurrent use.
func OpenCache(cfg CacheConfig) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get looks up cached content for a reference URL.
//
// Outputs:
//
//	[]byte - The cached content, nil on a miss
//	bool - Whether the reference was present
//	error - Non-nil on a store failure (a miss is not an error)
func (c *Cache) Get(ref string) ([]byte, bool, error) {
	var content []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ref))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", ref, err)
	}
	return content, true, nil
}

// Put stores decoded content under a reference URL, replacing any
// previous entry.
func (c *Cache) Put(ref string, content []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(ref), content)
	})
	if err != nil {
		return fmt.Errorf("cache write %s: %w", ref, err)
	}
	return nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}
