// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ownercache

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/ipcodec"
)

const (
	category      = "owner"
	schemaKey     = "meta:schema"
	schemaVersion = 1
)

// Entry is a cached ownership answer for one address
type Entry struct {
	ASN       int
	OwnerName string
	FetchedAt time.Time
}

// Lookup converts the entry into a lookup result. The prefix is not cached.
func (e *Entry) Lookup() *model.OwnershipLookup {
	return &model.OwnershipLookup{ASN: e.ASN, OwnerName: e.OwnerName}
}

// DB wraps a LevelDB instance holding ownership answers keyed by address
type DB struct {
	db     *leveldb.DB
	mu     sync.RWMutex
	path   string
	closed bool
}

// Open opens or creates a cache database at the specified path
func Open(path string) (*DB, error) {
	opts := &opt.Options{
		Compression: opt.SnappyCompression,
	}

	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	d := &DB{db: db, path: path}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initSchema() error {
	value, err := d.db.Get([]byte(schemaKey), nil)
	if err == leveldb.ErrNotFound {
		return d.db.Put([]byte(schemaKey), []byte(strconv.Itoa(schemaVersion)), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if v, err := strconv.Atoi(string(value)); err != nil || v != schemaVersion {
		return fmt.Errorf("unsupported cache schema version %q", value)
	}
	return nil
}

// Close closes the database
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	d.closed = true
	return d.db.Close()
}

// IsClosed returns true if the database is closed
func (d *DB) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Path returns the database path
func (d *DB) Path() string {
	return d.path
}

// Get returns the cached entry for an address, or nil if there is none
func (d *DB) Get(address string) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, model.ErrDatabaseClosed
	}

	value, err := d.db.Get(ipcodec.CacheKey(category, address), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return decodeEntry(value)
}

// Put stores the entry for an address
func (d *DB) Put(address string, entry *Entry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	value, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return d.db.Put(ipcodec.CacheKey(category, address), value, nil)
}

// Delete removes the entry for an address
func (d *DB) Delete(address string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return model.ErrDatabaseClosed
	}

	return d.db.Delete(ipcodec.CacheKey(category, address), nil)
}

// Prune removes entries fetched before the cutoff and returns how many
// were removed
func (d *DB) Prune(cutoff time.Time) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, model.ErrDatabaseClosed
	}

	iter := d.db.NewIterator(util.BytesPrefix(ipcodec.CacheKey(category, "")), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		entry, err := decodeEntry(iter.Value())
		if err != nil || entry.FetchedAt.Before(cutoff) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iteration failed: %w", err)
	}

	if err := d.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return batch.Len(), nil
}

// encodeEntry serializes an Entry to msgpack
func encodeEntry(e *Entry) ([]byte, error) {
	data := struct {
		ASN       int
		OwnerName string
		FetchedAt int64 // Unix timestamp
	}{
		ASN:       e.ASN,
		OwnerName: e.OwnerName,
		FetchedAt: e.FetchedAt.Unix(),
	}
	return msgpack.Marshal(data)
}

// decodeEntry deserializes an Entry from msgpack
func decodeEntry(data []byte) (*Entry, error) {
	var stored struct {
		ASN       int
		OwnerName string
		FetchedAt int64
	}
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &Entry{
		ASN:       stored.ASN,
		OwnerName: stored.OwnerName,
		FetchedAt: time.Unix(stored.FetchedAt, 0),
	}, nil
}
