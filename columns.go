package h5export

import (
	"fmt"
	"math"

	"github.com/scigolib/hdf5"

	"github.com/scigolib/h5export/broker"
)

// payload is one dataset ready to be created and written.
type payload struct {
	dtype   hdf5.Datatype
	dims    []uint64
	data    interface{}
	opts    []hdf5.DatasetOption
	numeric bool
}

// encodeColumn converts a field's samples to a dataset payload according to
// the field's dtype. An empty or unknown dtype is inferred from the first
// sample.
func encodeColumn(key broker.DataKey, values []any) (*payload, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no samples: %w", ErrUnsupportedValue)
	}

	dtype := key.Dtype
	switch dtype {
	case broker.DtypeNumber, broker.DtypeInteger, broker.DtypeString,
		broker.DtypeBoolean, broker.DtypeArray:
	default:
		dtype = inferDtype(values[0])
	}

	switch dtype {
	case broker.DtypeNumber:
		return encodeNumbers(values)
	case broker.DtypeInteger:
		return encodeIntegers(values)
	case broker.DtypeBoolean:
		return encodeBooleans(values)
	case broker.DtypeString:
		return encodeStrings(values)
	case broker.DtypeArray:
		return encodeArrays(values)
	}
	return nil, fmt.Errorf("cannot infer dtype from %T: %w", values[0], ErrUnsupportedValue)
}

func inferDtype(v any) string {
	switch v.(type) {
	case float64, float32:
		return broker.DtypeNumber
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return broker.DtypeInteger
	case bool:
		return broker.DtypeBoolean
	case string:
		return broker.DtypeString
	case []any, []float64, []int64, []int:
		return broker.DtypeArray
	}
	return ""
}

func encodeNumbers(values []any) (*payload, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("sample %d: number expected, got %T: %w", i, v, ErrUnsupportedValue)
		}
		out[i] = f
	}
	return &payload{dtype: hdf5.Float64, dims: []uint64{uint64(len(out))}, data: out, numeric: true}, nil
}

func encodeIntegers(values []any) (*payload, error) {
	out := make([]int64, len(values))
	for i, v := range values {
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("sample %d: integer expected, got %v (%T): %w", i, v, v, ErrUnsupportedValue)
		}
		out[i] = n
	}
	return &payload{dtype: hdf5.Int64, dims: []uint64{uint64(len(out))}, data: out, numeric: true}, nil
}

func encodeBooleans(values []any) (*payload, error) {
	out := make([]uint8, len(values))
	for i, v := range values {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("sample %d: boolean expected, got %T: %w", i, v, ErrUnsupportedValue)
		}
		if b {
			out[i] = 1
		}
	}
	return &payload{dtype: hdf5.Uint8, dims: []uint64{uint64(len(out))}, data: out, numeric: true}, nil
}

// encodeStrings stores fixed-length strings sized to the longest sample.
func encodeStrings(values []any) (*payload, error) {
	out := make([]string, len(values))
	size := 1
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("sample %d: string expected, got %T: %w", i, v, ErrUnsupportedValue)
		}
		out[i] = s
		if len(s) > size {
			size = len(s)
		}
	}
	return &payload{
		dtype: hdf5.String,
		dims:  []uint64{uint64(len(out))},
		data:  out,
		opts:  []hdf5.DatasetOption{hdf5.WithStringSize(uint32(size))}, //nolint:gosec // bounded by sample length
	}, nil
}

// encodeArrays stores equal-length numeric arrays as a 2-D [n, m] dataset.
func encodeArrays(values []any) (*payload, error) {
	var width int
	var flat []float64
	for i, v := range values {
		row, ok := asFloatSlice(v)
		if !ok {
			return nil, fmt.Errorf("sample %d: numeric array expected, got %T: %w", i, v, ErrUnsupportedValue)
		}
		if i == 0 {
			width = len(row)
			if width == 0 {
				return nil, fmt.Errorf("sample 0: empty array: %w", ErrUnsupportedValue)
			}
			flat = make([]float64, 0, width*len(values))
		}
		if len(row) != width {
			return nil, fmt.Errorf("sample %d: array length %d, want %d: %w", i, len(row), width, ErrUnsupportedValue)
		}
		flat = append(flat, row...)
	}
	return &payload{
		dtype:   hdf5.Float64,
		dims:    []uint64{uint64(len(values)), uint64(width)},
		data:    flat,
		numeric: true,
	}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		// JSON-backed stores decode every number as float64.
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asFloatSlice(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []int64:
		out := make([]float64, len(s))
		for i, n := range s {
			out[i] = float64(n)
		}
		return out, true
	case []int:
		out := make([]float64, len(s))
		for i, n := range s {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// withStorage adds chunked GZIP and Fletcher32 options to numeric payloads
// when compression is enabled.
func (p *payload) withStorage(cfg *exportConfig) []hdf5.DatasetOption {
	opts := append([]hdf5.DatasetOption(nil), p.opts...)
	if !p.numeric || cfg.compression <= 0 {
		return opts
	}
	chunk := make([]uint64, len(p.dims))
	copy(chunk, p.dims)
	if chunk[0] > maxChunkRows {
		chunk[0] = maxChunkRows
	}
	opts = append(opts, hdf5.WithChunkDims(chunk), hdf5.WithGZIPCompression(cfg.compression))
	if cfg.fletcher32 {
		opts = append(opts, hdf5.WithFletcher32())
	}
	return opts
}
