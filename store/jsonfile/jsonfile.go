/*
Package jsonfile provides a flat-file implementation of ledger.Store.

Each book is one JSON array of objects in <dir>/<book>.json. This is the
format the distributor's desktop software exports, so the directory can be
pointed straight at an export folder.

PURPOSE:
  - Load re-reads the file on every call; nothing is cached here
  - A missing file, or one that is not a JSON array, is a SourceError
  - An array element that is not an object loads as a nil record,
    which the engine skips; Append keeps such elements untouched
  - Numbers are decoded as json.Number so amounts keep their digits
  - Appends to one book are serialized and written atomically
    (temp file then rename), so readers never see a half-written file

USAGE:
  s, err := jsonfile.New("/var/lib/ledger/books")
  raw, err := s.Load(ctx, "cashbook")
*/
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/ledger-engine/ledger"
)

const ext = ".json"

// Store reads and writes books in a directory.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New opens a book directory, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create book directory: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the book directory.
func (s *Store) Dir() string { return s.dir }

// =============================================================================
// READ
// =============================================================================

// Load reads every record of a book.
func (s *Store) Load(ctx context.Context, book string) ([]ledger.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(book)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ledger.SourceError{Book: book, Err: err}
	}
	records, err := decode(data)
	if err != nil {
		return nil, &ledger.SourceError{Book: book, Err: err}
	}
	return records, nil
}

// Books lists the books present in the directory, in name order.
func (s *Store) Books(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// ModTimes returns the modification time of every book file.
func (s *Store) ModTimes(ctx context.Context) (map[string]time.Time, error) {
	names, err := s.Books(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(s.dir, name+ext))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out[name] = info.ModTime()
	}
	return out, nil
}

func decode(data []byte) ([]ledger.RawRecord, error) {
	elems, err := decodeElements(data)
	if err != nil {
		return nil, err
	}
	records := make([]ledger.RawRecord, len(elems))
	for i, elem := range elems {
		records[i] = decodeRecord(elem)
	}
	return records, nil
}

// decodeElements splits a book into its array elements without
// interpreting them.
func decodeElements(data []byte) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	if elems == nil {
		// "null" decoded to nothing
		return nil, errors.New("decode book: not a JSON array")
	}
	return elems, nil
}

// decodeRecord returns nil for an element that is not an object. The engine
// skips nil records and counts them.
func decodeRecord(elem json.RawMessage) ledger.RawRecord {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var r ledger.RawRecord
	if err := dec.Decode(&r); err != nil {
		return nil
	}
	return r
}

// =============================================================================
// WRITE
// =============================================================================

// Append adds records to the end of a book, creating the file if needed.
func (s *Store) Append(ctx context.Context, book string, records []ledger.RawRecord) error {
	for _, r := range records {
		if r == nil {
			return ledger.ErrInvalidRecord
		}
	}
	path, err := s.path(book)
	if err != nil {
		return err
	}

	lock := s.lock(book)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	existing := []json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if existing, err = decodeElements(data); err != nil {
			return &ledger.SourceError{Book: book, Err: err}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &ledger.SourceError{Book: book, Err: err}
	}

	for _, r := range records {
		elem, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		existing = append(existing, elem)
	}
	return writeAtomic(path, existing)
}

// Replace overwrites a book with records.
func (s *Store) Replace(ctx context.Context, book string, records []ledger.RawRecord) error {
	path, err := s.path(book)
	if err != nil {
		return err
	}
	lock := s.lock(book)
	lock.Lock()
	defer lock.Unlock()

	if records == nil {
		records = []ledger.RawRecord{}
	}
	return writeAtomic(path, records)
}

func writeAtomic(path string, book any) error {
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace book: %w", err)
	}
	return nil
}

func (s *Store) lock(book string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[book]
	if !ok {
		l = &sync.Mutex{}
		s.locks[book] = l
	}
	return l
}

// path maps a book name to its file, refusing names that would escape dir.
func (s *Store) path(book string) (string, error) {
	if book == "" || book != filepath.Base(book) || strings.HasPrefix(book, ".") {
		return "", fmt.Errorf("%w: %q", ledger.ErrUnknownBook, book)
	}
	return filepath.Join(s.dir, book+ext), nil
}
