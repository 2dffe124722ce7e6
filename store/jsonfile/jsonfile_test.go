package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeBook(t *testing.T, s *Store, book, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), book+".json"), []byte(body), 0o644))
}

func TestLoad_KeepsNumbersExact(t *testing.T) {
	s := newStore(t)
	writeBook(t, s, "cashbook", `[{"DATE":"2024-04-01","CR":1000.10,"NARRATION":"sale"}]`)

	raw, err := s.Load(context.Background(), "cashbook")

	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, json.Number("1000.10"), raw[0]["CR"])
	assert.Equal(t, "1000.1", ledger.ParseAmount(raw[0]["CR"]).String())
}

func TestLoad_SourceUnavailable(t *testing.T) {
	s := newStore(t)
	writeBook(t, s, "broken", `{"not":"an array"}`)
	writeBook(t, s, "null", `null`)
	writeBook(t, s, "blank", ``)

	for _, book := range []string{"missing", "broken", "null", "blank"} {
		_, err := s.Load(context.Background(), book)
		assert.True(t, ledger.IsSourceUnavailable(err), book)
	}
}

func TestLoad_NonObjectElementsAreSkipped(t *testing.T) {
	// GIVEN: A book with one good record and one stray string
	s := newStore(t)
	writeBook(t, s, "cashbook", `[{"DATE":"2024-04-01","CR":100,"SERIES":"A"}, "garbage", 7, [1]]`)
	ctx := context.Background()

	// WHEN: Loading it
	raw, err := s.Load(ctx, "cashbook")

	// THEN: The stray elements come back as nil records
	require.NoError(t, err)
	require.Len(t, raw, 4)
	assert.Equal(t, json.Number("100"), raw[0]["CR"])
	assert.Nil(t, raw[1])
	assert.Nil(t, raw[2])
	assert.Nil(t, raw[3])

	// THEN: The engine computes the book and counts them as skipped
	opts := ledger.Options{Criteria: ledger.Criteria{Range: ledger.DateRange{To: ledger.MustParseDate("2024-04-30")}}}
	report, err := ledger.Load(ctx, s, "cashbook", opts)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Diagnostics.Skipped)
	assert.Equal(t, "100", report.Totals.Credit.String())
}

func TestLoad_EmptyArrayIsNotAnError(t *testing.T) {
	s := newStore(t)
	writeBook(t, s, "cashbook", `[]`)

	raw, err := s.Load(context.Background(), "cashbook")

	require.NoError(t, err)
	assert.NotNil(t, raw)
	assert.Empty(t, raw)
}

func TestLoad_RejectsPathEscape(t *testing.T) {
	s := newStore(t)

	_, err := s.Load(context.Background(), "../etc/passwd")

	assert.ErrorIs(t, err, ledger.ErrUnknownBook)
}

func TestLoad_SeesExternalChanges(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	writeBook(t, s, "ledger", `[{"DATE":"2024-04-01","CR":1}]`)
	first, err := s.Load(ctx, "ledger")
	require.NoError(t, err)

	writeBook(t, s, "ledger", `[{"DATE":"2024-04-01","CR":1},{"DATE":"2024-04-02","CR":2}]`)
	second, err := s.Load(ctx, "ledger")
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}

func TestAppend_CreatesAndExtends(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "cashbook", []ledger.RawRecord{{"DATE": "2024-04-01", "CR": 10}}))
	require.NoError(t, s.Append(ctx, "cashbook", []ledger.RawRecord{{"DATE": "2024-04-02", "DR": 4}}))

	raw, err := s.Load(ctx, "cashbook")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, "2024-04-02", raw[1]["DATE"])

	books, err := s.Books(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cashbook"}, books)
}

func TestAppend_RefusesCorruptBook(t *testing.T) {
	s := newStore(t)
	writeBook(t, s, "cashbook", `garbage`)

	err := s.Append(context.Background(), "cashbook", []ledger.RawRecord{{"CR": 1}})

	assert.True(t, ledger.IsSourceUnavailable(err))
	data, _ := os.ReadFile(filepath.Join(s.Dir(), "cashbook.json"))
	assert.Equal(t, "garbage", string(data))
}

func TestAppend_KeepsNonObjectElements(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	writeBook(t, s, "cashbook", `[{"DATE":"2024-04-01","CR":100}, "garbage"]`)

	require.NoError(t, s.Append(ctx, "cashbook", []ledger.RawRecord{{"DATE": "2024-04-02", "DR": 4}}))

	raw, err := s.Load(ctx, "cashbook")
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Nil(t, raw[1])
	assert.Equal(t, "2024-04-02", raw[2]["DATE"])

	data, err := os.ReadFile(filepath.Join(s.Dir(), "cashbook.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"garbage"`)
}

func TestAppend_ConcurrentWritersLoseNothing(t *testing.T) {
	// GIVEN: Many goroutines appending to the same book
	// THEN: Every record is present afterwards

	s := newStore(t)
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := ledger.RawRecord{"DATE": "2024-04-01", "R_NO": fmt.Sprintf("R%02d", i)}
			assert.NoError(t, s.Append(ctx, "cashbook", []ledger.RawRecord{rec}))
		}(i)
	}
	wg.Wait()

	raw, err := s.Load(ctx, "cashbook")
	require.NoError(t, err)
	assert.Len(t, raw, writers)
}

func TestReplaceAndModTimes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, "accounts", nil))
	require.NoError(t, s.Replace(ctx, "ledger", []ledger.RawRecord{{"CR": 1}}))

	raw, err := s.Load(ctx, "accounts")
	require.NoError(t, err)
	assert.Empty(t, raw)

	times, err := s.ModTimes(ctx)
	require.NoError(t, err)
	assert.Len(t, times, 2)
	assert.False(t, times["ledger"].IsZero())
}
