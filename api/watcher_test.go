package api

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logging"
	"github.com/warp/ledger-engine/store/jsonfile"
)

func TestChangeWatcher_DetectsRewrites(t *testing.T) {
	// GIVEN: A book directory and a watcher with its baseline taken
	dir := t.TempDir()
	books, err := jsonfile.New(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, books.Replace(ctx, "cashbook", []ledger.RawRecord{{"CR": 1}}))

	cache, _ := newTestCache(t)
	w := NewChangeWatcher(books, cache, logging.SetupWithOutput("error", "text", io.Discard))

	changed, err := w.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)
	before, err := cache.Version(ctx)
	require.NoError(t, err)

	// WHEN: Nothing changes
	changed, err = w.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)

	// WHEN: The book is rewritten and another one appears
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "cashbook.json"), later, later))
	require.NoError(t, books.Replace(ctx, "ledger", []ledger.RawRecord{}))

	changed, err = w.Check(ctx)
	require.NoError(t, err)

	// THEN: Both are reported and the cache version moves
	assert.ElementsMatch(t, []string{"cashbook", "ledger"}, changed)
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestChangeWatcher_DetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	books, err := jsonfile.New(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, books.Replace(ctx, "invoices", []ledger.RawRecord{}))

	w := NewChangeWatcher(books, nil, logging.SetupWithOutput("error", "text", io.Discard))
	_, err = w.Check(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "invoices.json")))
	changed, err := w.Check(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"invoices"}, changed)
}

func TestChangeWatcher_StartStop(t *testing.T) {
	books, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)

	w := NewChangeWatcher(books, nil, logging.SetupWithOutput("error", "text", io.Discard))
	w.CheckInterval = 10 * time.Millisecond
	w.Start()
	w.Start()
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop()
}
