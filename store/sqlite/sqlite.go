/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Keeps the distributor's books in one database file instead of a folder
  of JSON exports. Records are stored as their original JSON payload, so
  the same schemas normalize them whichever store they came from.

KEY TABLES:
  books:     Known book names
  records:   Raw records, ordered by (book, seq); seq is the source order
  accounts:  Account master, one row per party code
  revision:  Single-row write counter for cache invalidation

THE ACCOUNTS BOOK:
  Loading the "accounts" book reads the accounts table and returns it in
  the account master record shape (C_CODE, C_NAME, SUBGROUP, OP_BAL,
  OP_TYPE). Appending to it upserts accounts.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, with WAL mode so readers don't
  block each other.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  raw, err := store.Load(ctx, "cashbook")

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Source and Writer interfaces
  - store/jsonfile: Flat-file implementation
*/
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/ledger-engine/books"
	"github.com/warp/ledger-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		book TEXT NOT NULL REFERENCES books(name) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_book_seq
		ON records(book, seq);

	CREATE TABLE IF NOT EXISTS accounts (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		subgroup TEXT NOT NULL DEFAULT '',
		opening TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_subgroup
		ON accounts(subgroup);

	CREATE TABLE IF NOT EXISTS revision (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO revision (id, value) VALUES (1, 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SOURCE (ledger.Source interface)
// =============================================================================

// Load returns every record of a book in source order.
func (s *Store) Load(ctx context.Context, book string) ([]ledger.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if book == books.BookAccounts {
		return s.loadAccounts(ctx)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books WHERE name = ?", book).Scan(&exists)
	if err != nil {
		return nil, &ledger.SourceError{Book: book, Err: err}
	}
	if exists == 0 {
		return nil, &ledger.SourceError{Book: book}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM records WHERE book = ? ORDER BY seq ASC", book)
	if err != nil {
		return nil, &ledger.SourceError{Book: book, Err: err}
	}
	defer rows.Close()

	records := []ledger.RawRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &ledger.SourceError{Book: book, Err: err}
		}
		rec, err := decodePayload(payload)
		if err != nil {
			return nil, &ledger.SourceError{Book: book, Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &ledger.SourceError{Book: book, Err: err}
	}
	return records, nil
}

// Books lists the stored books in name order. The accounts book is listed
// once any account exists.
func (s *Store) Books(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM books
		UNION
		SELECT ? WHERE EXISTS (SELECT 1 FROM accounts)
		ORDER BY 1`, books.BookAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func decodePayload(payload string) (ledger.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var rec ledger.RawRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

// =============================================================================
// WRITER (ledger.Writer interface)
// =============================================================================

// Append adds records to the end of a book atomically.
func (s *Store) Append(ctx context.Context, book string, records []ledger.RawRecord) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.Append(ctx, book, records)
	})
}

// ImportBook replaces a book with the contents of the same book in src.
// Elements src could not read as records (nil) are left out.
func (s *Store) ImportBook(ctx context.Context, src ledger.Source, book string) (int, error) {
	loaded, err := src.Load(ctx, book)
	if err != nil {
		return 0, err
	}
	raw := make([]ledger.RawRecord, 0, len(loaded))
	for _, r := range loaded {
		if r != nil {
			raw = append(raw, r)
		}
	}
	err = s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.Clear(ctx, book); err != nil {
			return err
		}
		return tx.Append(ctx, book, raw)
	})
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

func (s *Store) appendRecords(ctx context.Context, db execer, book string, records []ledger.RawRecord) error {
	for _, r := range records {
		if r == nil {
			return ledger.ErrInvalidRecord
		}
	}

	if book == books.BookAccounts {
		accounts, skipped := books.ParseAccounts(records)
		if skipped > 0 {
			return fmt.Errorf("%w: %d account records without a code", ledger.ErrInvalidRecord, skipped)
		}
		for _, a := range accounts {
			if err := s.saveAccount(ctx, db, a); err != nil {
				return err
			}
		}
		return bumpRevision(ctx, db)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO books (name, created_at) VALUES (?, ?)", book, now); err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}

	var next int64
	if err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM records WHERE book = ?", book).Scan(&next); err != nil {
		return fmt.Errorf("failed to read book position: %w", err)
	}

	for i, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidRecord, err)
		}
		_, err = db.ExecContext(ctx,
			"INSERT INTO records (id, book, seq, payload, created_at) VALUES (?, ?, ?, ?, ?)",
			uuid.NewString(), book, next+int64(i), string(payload), now)
		if err != nil {
			return fmt.Errorf("failed to append record: %w", err)
		}
	}
	return bumpRevision(ctx, db)
}

func bumpRevision(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx, "UPDATE revision SET value = value + 1 WHERE id = 1")
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// Tx is a write scope over one database transaction.
type Tx struct {
	tx     *sql.Tx
	parent *Store
}

// Append adds records to a book within the transaction.
func (t *Tx) Append(ctx context.Context, book string, records []ledger.RawRecord) error {
	return t.parent.appendRecords(ctx, t.tx, book, records)
}

// Clear removes all records of a book within the transaction.
func (t *Tx) Clear(ctx context.Context, book string) error {
	if book == books.BookAccounts {
		_, err := t.tx.ExecContext(ctx, "DELETE FROM accounts")
		return err
	}
	_, err := t.tx.ExecContext(ctx, "DELETE FROM records WHERE book = ?", book)
	return err
}

// SaveAccount upserts an account within the transaction.
func (t *Tx) SaveAccount(ctx context.Context, a books.Account) error {
	if err := t.parent.saveAccount(ctx, t.tx, a); err != nil {
		return err
	}
	return bumpRevision(ctx, t.tx)
}

// WithTx executes fn within a database transaction. Nothing fn wrote is
// kept if it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// SaveAccount inserts or updates an account.
func (s *Store) SaveAccount(ctx context.Context, a books.Account) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.SaveAccount(ctx, a)
	})
}

func (s *Store) saveAccount(ctx context.Context, db execer, a books.Account) error {
	code := ledger.NormalizeCode(a.Code)
	if code == "" {
		return fmt.Errorf("%w: account code required", ledger.ErrInvalidRecord)
	}
	query := `
		INSERT INTO accounts (code, name, subgroup, opening, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			subgroup = excluded.subgroup,
			opening = excluded.opening,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		code,
		a.Name,
		ledger.NormalizeCode(a.Subgroup),
		a.Opening.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// ListAccounts returns all accounts ordered by code.
func (s *Store) ListAccounts(ctx context.Context) ([]books.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAccounts(ctx)
}

// GetAccount returns one account.
func (s *Store) GetAccount(ctx context.Context, code string) (*books.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		a       books.Account
		opening string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT code, name, subgroup, opening FROM accounts WHERE code = ?",
		ledger.NormalizeCode(code),
	).Scan(&a.Code, &a.Name, &a.Subgroup, &opening)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Opening = parseOpening(opening)
	return &a, nil
}

// ErrAccountNotFound is returned by GetAccount for an unknown code.
var ErrAccountNotFound = errors.New("account not found")

func (s *Store) listAccounts(ctx context.Context) ([]books.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT code, name, subgroup, opening FROM accounts ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []books.Account{}
	for rows.Next() {
		var (
			a       books.Account
			opening string
		)
		if err := rows.Scan(&a.Code, &a.Name, &a.Subgroup, &opening); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Opening = parseOpening(opening)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// loadAccounts serves the accounts table as account master records.
func (s *Store) loadAccounts(ctx context.Context) ([]ledger.RawRecord, error) {
	accounts, err := s.listAccounts(ctx)
	if err != nil {
		return nil, &ledger.SourceError{Book: books.BookAccounts, Err: err}
	}
	records := make([]ledger.RawRecord, 0, len(accounts))
	for _, a := range accounts {
		opType := ledger.BalanceTypeOf(a.Opening)
		if a.Opening.IsZero() {
			opType = ledger.BalanceDR
		}
		records = append(records, ledger.RawRecord{
			"C_CODE":   a.Code,
			"C_NAME":   a.Name,
			"SUBGROUP": a.Subgroup,
			"OP_BAL":   a.Opening.Abs().String(),
			"OP_TYPE":  string(opType),
		})
	}
	return records, nil
}

func parseOpening(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// ADMIN
// =============================================================================

// Version returns a counter that changes on every write.
func (s *Store) Version(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM revision WHERE id = 1").Scan(&v)
	return v, err
}

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"records", "books", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return bumpRevision(ctx, s.db)
}
