/*
store.go - Storage boundary for book records

PURPOSE:
  The engine never reads files. A Source hands it the raw records of one
  book, already deserialized; a Writer appends new records. Records are
  re-read for every report; nothing is cached at this layer.

CONTRACT:
  - Load returns the records of a book in source order
  - Load returns an error wrapping ErrSourceUnavailable when the book as a
    whole cannot be obtained (missing file, unreadable JSON, unknown table)
  - Load of an existing but empty book returns a non-nil empty slice

IMPLEMENTATIONS:
  - store/jsonfile: one JSON array file per book (the production layout)
  - store/sqlite:   SQLite tables with atomic appends
  - ledger/store:   in-memory, for tests and development

SEE ALSO:
  - compute.go: Consumes the loaded records
*/
package ledger

import "context"

// Source loads the raw records of a book.
type Source interface {
	Load(ctx context.Context, book string) ([]RawRecord, error)
	Books(ctx context.Context) ([]string, error)
}

// Writer appends raw records to a book. Appends of a batch are all or nothing.
type Writer interface {
	Append(ctx context.Context, book string, records []RawRecord) error
}

// Store is a Source that can also be written to.
type Store interface {
	Source
	Writer
}

// Load fetches a book and runs ComputeLedger over it.
func Load(ctx context.Context, src Source, book string, opts Options) (*Report, error) {
	raw, err := src.Load(ctx, book)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &SourceError{Book: book}
	}
	return ComputeLedger(raw, opts)
}
