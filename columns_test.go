package h5export

import (
	"testing"

	"github.com/scigolib/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5export/broker"
)

func TestEncodeColumn(t *testing.T) {
	tests := []struct {
		name     string
		dtype    string
		values   []any
		wantType hdf5.Datatype
		wantDims []uint64
		wantData interface{}
	}{
		{"number", broker.DtypeNumber, []any{1.5, 2, int64(3)}, hdf5.Float64, []uint64{3}, []float64{1.5, 2, 3}},
		{"integer", broker.DtypeInteger, []any{1, float64(2), uint64(3)}, hdf5.Int64, []uint64{3}, []int64{1, 2, 3}},
		{"boolean", broker.DtypeBoolean, []any{true, false}, hdf5.Uint8, []uint64{2}, []uint8{1, 0}},
		{"string", broker.DtypeString, []any{"a", "abc"}, hdf5.String, []uint64{2}, []string{"a", "abc"}},
		{"array", broker.DtypeArray, []any{[]any{1.0, 2.0}, []float64{3, 4}}, hdf5.Float64, []uint64{2, 2}, []float64{1, 2, 3, 4}},
		{"inferred number", "", []any{0.5}, hdf5.Float64, []uint64{1}, []float64{0.5}},
		{"inferred integer", "weird", []any{7}, hdf5.Int64, []uint64{1}, []int64{7}},
		{"inferred string", "", []any{"x"}, hdf5.String, []uint64{1}, []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := encodeColumn(broker.DataKey{Dtype: tt.dtype}, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, p.dtype)
			assert.Equal(t, tt.wantDims, p.dims)
			assert.Equal(t, tt.wantData, p.data)
		})
	}
}

func TestEncodeColumn_Errors(t *testing.T) {
	tests := []struct {
		name   string
		dtype  string
		values []any
	}{
		{"empty", broker.DtypeNumber, nil},
		{"number from string", broker.DtypeNumber, []any{"x"}},
		{"fractional integer", broker.DtypeInteger, []any{1.5}},
		{"integer overflow", broker.DtypeInteger, []any{uint64(1 << 63)}},
		{"boolean from number", broker.DtypeBoolean, []any{1}},
		{"string from number", broker.DtypeString, []any{1}},
		{"ragged array", broker.DtypeArray, []any{[]float64{1}, []float64{1, 2}}},
		{"empty array", broker.DtypeArray, []any{[]float64{}}},
		{"uninferable", "", []any{struct{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encodeColumn(broker.DataKey{Dtype: tt.dtype}, tt.values)
			require.ErrorIs(t, err, ErrUnsupportedValue)
		})
	}
}

func TestEncodeStrings_SizedToLongest(t *testing.T) {
	p, err := encodeStrings([]any{"", "four"})
	require.NoError(t, err)
	require.Len(t, p.opts, 1)
	require.False(t, p.numeric)

	p, err = encodeStrings([]any{""})
	require.NoError(t, err)
	require.Len(t, p.opts, 1, "empty strings still get a size of one")
}

func TestWithStorage(t *testing.T) {
	numeric := &payload{dims: []uint64{5000}, numeric: true}

	require.Len(t, numeric.withStorage(newExportConfig(nil)), 3, "chunk, gzip and fletcher32")
	require.Empty(t, numeric.withStorage(newExportConfig([]Option{WithoutCompression()})))
	require.Len(t, numeric.withStorage(newExportConfig([]Option{WithCompression(9)})), 3)

	text := &payload{dims: []uint64{4}, opts: []hdf5.DatasetOption{hdf5.WithStringSize(4)}}
	require.Len(t, text.withStorage(newExportConfig(nil)), 1)
}
