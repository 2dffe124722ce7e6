package api

import (
	"errors"
	"net/url"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ledger-engine/ledger"
)

func TestParseReportQuery_Lists(t *testing.T) {
	values, err := url.ParseQuery("to=2024-04-30&party=SG001,SG002&party=RK001&series=A,%20B&opening=1,500.50")
	require.NoError(t, err)

	q, err := parseReportQuery(validator.New(), values)
	require.NoError(t, err)

	assert.Equal(t, []string{"SG001", "SG002", "RK001"}, q.Parties)
	assert.Equal(t, []string{"A", "B"}, q.Series)
	assert.Equal(t, "1500.50", q.Opening)

	req, err := q.Request()
	require.NoError(t, err)
	assert.Equal(t, ledger.MustParseDate("2024-04-30"), req.To)
	assert.True(t, req.From.IsZero())
	assert.True(t, decimal.RequireFromString("1500.5").Equal(req.Opening))
	assert.Nil(t, req.BlankSeries)
}

func TestParseReportQuery_BlankSeries(t *testing.T) {
	q, err := parseReportQuery(validator.New(), url.Values{"to": {"2024-04-30"}, "blank_series": {"Exclude"}})
	require.NoError(t, err)

	req, err := q.Request()
	require.NoError(t, err)
	require.NotNil(t, req.BlankSeries)
	assert.Equal(t, ledger.BlankSeriesExclude, *req.BlankSeries)
}

func TestParseReportQuery_Invalid(t *testing.T) {
	_, err := parseReportQuery(validator.New(), url.Values{"from": {"2024/04/01"}, "opening": {"1e5x"}})

	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "datetime", qerr.Fields["from"])
	assert.Equal(t, "numeric", qerr.Fields["opening"])
	assert.True(t, errors.Is(err, ledger.ErrInvalidCriteria))
	assert.True(t, ledger.IsClientError(err))
}

func TestReportQuery_FingerprintIsCanonical(t *testing.T) {
	v := validator.New()
	a, err := parseReportQuery(v, url.Values{"to": {"2024-04-30"}, "party": {"sg002,SG001"}})
	require.NoError(t, err)
	b, err := parseReportQuery(v, url.Values{"party": {"SG001", "sg002"}, "to": {"2024-04-30"}})
	require.NoError(t, err)
	c, err := parseReportQuery(v, url.Values{"party": {"SG001"}, "to": {"2024-04-30"}})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFormatBalance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00 CR"},
		{"600", "600.00 DR"},
		{"-40", "40.00 CR"},
		{"1234.565", "1,234.57 DR"},
		{"-99999.994", "99,999.99 CR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBalance(decimal.RequireFromString(tt.in)), tt.in)
	}
}
