package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

func TestParseDateValue_Formats(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value any
		loc   *time.Location
		want  ledger.Date
		ok    bool
	}{
		{"iso date", "2024-04-01", time.UTC, april(1), true},
		{"iso timestamp utc", "2024-04-01T10:15:00Z", time.UTC, april(1), true},
		{"iso timestamp shifts into location", "2024-04-01T19:00:00Z", ist, april(2), true},
		{"iso without zone", "2024-04-03 08:00:00", ist, april(3), true},
		{"day first", "05-04-2024", time.UTC, april(5), true},
		{"day first slashes", "5/4/2024", time.UTC, april(5), true},
		{"year first slashes", "2024/04/06", time.UTC, april(6), true},
		{"epoch millis", float64(time.Date(2024, 4, 7, 12, 0, 0, 0, time.UTC).UnixMilli()), time.UTC, april(7), true},
		{"epoch seconds", float64(time.Date(2024, 4, 8, 12, 0, 0, 0, time.UTC).Unix()), time.UTC, april(8), true},
		{"epoch json number", json.Number("1712664000000"), time.UTC, april(9), true},
		{"epoch string", "1712664000000", time.UTC, april(9), true},
		{"invalid calendar day", "31-02-2024", time.UTC, ledger.Date{}, false},
		{"month out of range", "2024-13-01", time.UTC, ledger.Date{}, false},
		{"garbage", "next tuesday", time.UTC, ledger.Date{}, false},
		{"blank", "  ", time.UTC, ledger.Date{}, false},
		{"zero epoch", 0.0, time.UTC, ledger.Date{}, false},
		{"epoch millis past year 275760", 9e15, time.UTC, ledger.Date{}, false},
		{"epoch overflows int64", 1e19, time.UTC, ledger.Date{}, false},
		{"epoch string past year 275760", "9000000000000000", time.UTC, ledger.Date{}, false},
		{"bool", true, time.UTC, ledger.Date{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ledger.ParseDateValue(tt.value, tt.loc)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseAmount_ParseFloatSemantics(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, "0"},
		{"", "0"},
		{"abc", "0"},
		{"12.5abc", "12.5"},
		{"1,00,000.25", "100000.25"},
		{" 42 ", "42"},
		{"-7.1", "-7.1"},
		{".5", "0.5"},
		{"1e3", "1000"},
		{250.75, "250.75"},
		{int64(9), "9"},
		{json.Number("18.30"), "18.3"},
		{true, "0"},
	}
	for _, tt := range tests {
		assertAmount(t, tt.want, ledger.ParseAmount(tt.value), "value %v", tt.value)
	}
}

func TestNormalizer_SchemaVariance(t *testing.T) {
	// GIVEN: Upper-case legacy field names with mixed value types
	// WHEN: Normalizing with the default schema
	// THEN: Fields land in the canonical shape, codes upper-cased

	n := ledger.Normalizer{}
	tx, ok := n.Normalize(ledger.RawRecord{
		"DATE":      "01-04-2024",
		"CR":        "1,500.00",
		"Narration": "  cash sale ",
		"C_CODE":    " sg001",
		"series":    "a",
		"VR":        "cr01",
		"R_NO":      float64(1001),
		"DEL":       "N",
	})
	require.True(t, ok)
	assert.Equal(t, april(1), tx.Date)
	assertAmount(t, "1500", tx.Credit)
	assertAmount(t, "0", tx.Debit)
	assert.Equal(t, "cash sale", tx.Narration)
	assert.Equal(t, "SG001", tx.PartyCode)
	assert.Equal(t, "A", tx.Series)
	assert.Equal(t, "CR01", tx.BookCode)
	assert.Equal(t, "1001", tx.Reference)
	assert.False(t, tx.Deleted)
}

func TestNormalizer_CaseCollidingKeysAreStable(t *testing.T) {
	// GIVEN: A record carrying both CR and cr
	raw := ledger.RawRecord{"DATE": "2024-04-01", "CR": "100", "cr": "999"}
	n := ledger.Normalizer{}

	// WHEN: Normalizing it many times
	// THEN: The key spelled as the schema lists it wins every time
	for i := 0; i < 200; i++ {
		tx, ok := n.Normalize(raw)
		require.True(t, ok)
		assertAmount(t, "100", tx.Credit)
	}
}

func TestField_FallsBackToSortedCaseInsensitiveMatch(t *testing.T) {
	raw := ledger.RawRecord{"Cr": "5", "cR": "7", "Narration": nil, "NARRATION": "sale"}

	for i := 0; i < 100; i++ {
		v, ok := ledger.Field(raw, []string{"cr"})
		require.True(t, ok)
		assert.Equal(t, "5", v)

		v, ok = ledger.Field(raw, []string{"narration"})
		require.True(t, ok)
		assert.Equal(t, "sale", v)
	}

	_, ok := ledger.Field(raw, []string{"debit"})
	assert.False(t, ok)
}

func TestNormalizer_MissingDateSkips(t *testing.T) {
	n := ledger.Normalizer{}
	_, ok := n.Normalize(ledger.RawRecord{"credit": 10.0})
	assert.False(t, ok)

	_, ok = n.Normalize(nil)
	assert.False(t, ok)

	txs, skipped := n.NormalizeAll([]ledger.RawRecord{
		{"credit": 10.0},
		{"date": "2024-04-01"},
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, txs, 1)
	assert.Equal(t, 1, txs[0].Seq)
}

func TestNormalizer_CustomSchema(t *testing.T) {
	n := ledger.NewNormalizer(ledger.Schema{
		Date:   []string{"BILL_DT"},
		Credit: []string{"AMT"},
		Debit:  []string{"RECD"},
		Party:  []string{"CUST"},
	}, time.UTC)

	tx, ok := n.Normalize(ledger.RawRecord{"bill_dt": "2024-04-02", "amt": 300.0, "recd": "120", "cust": "aa001"})
	require.True(t, ok)
	assertAmount(t, "300", tx.Credit)
	assertAmount(t, "120", tx.Debit)
	assert.Equal(t, "AA001", tx.PartyCode)

	// default names are not consulted by a custom schema
	_, ok = n.Normalize(ledger.RawRecord{"date": "2024-04-02"})
	assert.False(t, ok)
}
