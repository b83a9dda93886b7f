// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ownercache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerdnscout/pkg/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		if !db.IsClosed() {
			db.Close()
		}
	})
	return db
}

func TestOpenClose(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, db.Path())
	assert.False(t, db.IsClosed())

	require.NoError(t, db.Close())
	assert.True(t, db.IsClosed())
	assert.ErrorIs(t, db.Close(), model.ErrDatabaseClosed)

	// Reopening an existing cache keeps the schema
	db, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestPutGet(t *testing.T) {
	db := openTestDB(t)
	fetched := time.Unix(1700000000, 0)

	require.NoError(t, db.Put("192.0.2.1", &Entry{ASN: 64500, OwnerName: "EXAMPLE-AS", FetchedAt: fetched}))

	got, err := db.Get("192.0.2.1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 64500, got.ASN)
	assert.Equal(t, "EXAMPLE-AS", got.OwnerName)
	assert.True(t, got.FetchedAt.Equal(fetched))
	assert.Equal(t, &model.OwnershipLookup{ASN: 64500, OwnerName: "EXAMPLE-AS"}, got.Lookup())

	missing, err := db.Get("192.0.2.2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.Delete("192.0.2.1"))
	gone, err := db.Get("192.0.2.1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	require.NoError(t, db.Put("192.0.2.1", &Entry{ASN: 1, FetchedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, db.Put("192.0.2.2", &Entry{ASN: 2, FetchedAt: now}))

	removed, err := db.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	old, err := db.Get("192.0.2.1")
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := db.Get("192.0.2.2")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestClosedDB(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())

	_, err := db.Get("192.0.2.1")
	assert.ErrorIs(t, err, model.ErrDatabaseClosed)
	assert.ErrorIs(t, db.Put("192.0.2.1", &Entry{}), model.ErrDatabaseClosed)
}
