package record_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-etl/pkg/record"
	"github.com/askiada/go-etl/pkg/stream"
)

func apply(t *testing.T, transform stream.Transform[record.Record], rec record.Record) (record.Record, bool, error) {
	t.Helper()

	return transform(context.Background(), rec)
}

func TestContains(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		rec      record.Record
		expected bool
	}{
		"match":         {rec: record.Record{"line": "2024 ERROR disk full"}, expected: true},
		"no match":      {rec: record.Record{"line": "2024 INFO ok"}, expected: false},
		"missing field": {rec: record.Record{"other": "ERROR"}, expected: false},
		"number":        {rec: record.Record{"line": 42}, expected: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, keep, err := apply(t, record.Contains("line", "ERROR"), tc.rec)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, keep)
		})
	}
}

func TestEquals(t *testing.T) {
	t.Parallel()

	_, keep, err := apply(t, record.Equals("status", "ACTIVE"), record.Record{"status": "ACTIVE"})
	require.NoError(t, err)
	assert.True(t, keep)

	_, keep, err = apply(t, record.Equals("id", 3), record.Record{"id": "3"})
	require.NoError(t, err)
	assert.True(t, keep)

	_, keep, err = apply(t, record.Equals("status", "ACTIVE"), record.Record{})
	require.NoError(t, err)
	assert.False(t, keep)
}

func TestGreaterThan(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		rec      record.Record
		expected bool
		err      error
	}{
		"positive":       {rec: record.Record{"amount": 100.0}, expected: true},
		"negative":       {rec: record.Record{"amount": -10.0}, expected: false},
		"zero":           {rec: record.Record{"amount": 0}, expected: false},
		"numeric string": {rec: record.Record{"amount": "12.5"}, expected: true},
		"missing":        {rec: record.Record{}, expected: false},
		"not a number":   {rec: record.Record{"amount": "abc"}, err: record.ErrInvalidField},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, keep, err := apply(t, record.GreaterThan("amount", 0), tc.rec)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, keep)
		})
	}
}

func TestUpperAndTrim(t *testing.T) {
	t.Parallel()

	in := record.Record{"method": "   credit_card  "}

	out, keep, err := apply(t, record.Trim("method"), in)
	require.NoError(t, err)
	require.True(t, keep)

	out, keep, err = apply(t, record.Upper("method"), out)
	require.NoError(t, err)
	require.True(t, keep)

	assert.Equal(t, "CREDIT_CARD", out["method"])
	assert.Equal(t, "   credit_card  ", in["method"])

	out, _, err = apply(t, record.Upper("missing"), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTax(t *testing.T) {
	t.Parallel()

	in := record.Record{"id": 4, "amount": 80.25}

	out, keep, err := apply(t, record.Tax("amount", "tax", "total", record.DefaultTaxRate), in)
	require.NoError(t, err)
	require.True(t, keep)

	assert.InDelta(t, 10.43, out["tax"], 0.0001)
	assert.InDelta(t, 90.68, out["total"], 0.0001)
	assert.NotContains(t, in, "tax")
	assert.NotContains(t, in, "total")

	_, _, err = apply(t, record.Tax("amount", "tax", "total", record.DefaultTaxRate), record.Record{})
	require.ErrorIs(t, err, record.ErrMissingField)
}

func TestRenameDropDefault(t *testing.T) {
	t.Parallel()

	in := record.Record{"id": 1, "name": "Leanne", "phone": "1-770"}

	out, _, err := apply(t, record.Rename("id", "user_id"), in)
	require.NoError(t, err)
	out, _, err = apply(t, record.Drop("phone"), out)
	require.NoError(t, err)
	out, _, err = apply(t, record.Default("payment", "UNSPECIFIED"), out)
	require.NoError(t, err)

	assert.Equal(t, record.Record{"user_id": 1, "name": "Leanne", "payment": "UNSPECIFIED"}, out)
	assert.Equal(t, record.Record{"id": 1, "name": "Leanne", "phone": "1-770"}, in)

	out, _, err = apply(t, record.Default("name", "nobody"), in)
	require.NoError(t, err)
	assert.Equal(t, "Leanne", out["name"])
}

func TestNilRecord(t *testing.T) {
	t.Parallel()

	var nilRec record.Record
	assert.Equal(t, record.Record{}, nilRec.Clone())

	tcs := map[string]struct {
		transform stream.Transform[record.Record]
		want      record.Record
	}{
		"default": {transform: record.Default("status", "new"), want: record.Record{"status": "new"}},
		"rename":  {transform: record.Rename("a", "b")},
		"drop":    {transform: record.Drop("a"), want: record.Record{}},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var rec record.Record
			out, keep, err := apply(t, tc.transform, rec)
			require.NoError(t, err)
			assert.True(t, keep)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestSalesPipeline(t *testing.T) {
	t.Parallel()

	sales := []record.Record{
		{"id": 1, "status": "ACTIVE", "amount": 100.00},
		{"id": 2, "status": "INACTIVE", "amount": 50.00},
		{"id": 3, "status": "ACTIVE", "amount": -10.00},
		{"id": 4, "status": "ACTIVE", "amount": 250.50},
	}

	src := stream.SourceFunc[record.Record](func(context.Context) (stream.Reader[record.Record], error) {
		return &sliceReader{records: sales}, nil
	})

	got, err := stream.New("sales", src).
		Then("active", record.Equals("status", "ACTIVE")).
		Then("positive", record.GreaterThan("amount", 0)).
		Then("tax", record.Tax("amount", "tax", "total", record.DefaultTaxRate)).
		Collect(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 1, got[0]["id"])
	assert.InDelta(t, 13.0, got[0]["tax"], 0.0001)
	assert.InDelta(t, 113.0, got[0]["total"], 0.0001)
	assert.Equal(t, 4, got[1]["id"])
	assert.NotContains(t, sales[0], "tax")
}

type sliceReader struct {
	records []record.Record
	idx     int
}

func (r *sliceReader) Read(context.Context) (record.Record, error) {
	if r.idx >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.idx]
	r.idx++

	return rec, nil
}

func (r *sliceReader) Close() error {
	return nil
}
