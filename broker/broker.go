// Package broker defines the run, descriptor and event records that the
// exporter reads, together with the store interfaces that serve them.
//
// A run ("header") is a start document, a stop document and an ordered list
// of descriptors. Each descriptor declares the data keys (fields) recorded
// in its events. Stores in this package and its subpackages are read-only
// inputs to the export: nothing here is mutated once inserted.
package broker

import (
	"context"
	"errors"
	"sort"
)

// Data key dtypes understood by the exporter.
const (
	DtypeNumber  = "number"
	DtypeInteger = "integer"
	DtypeString  = "string"
	DtypeBoolean = "boolean"
	DtypeArray   = "array"
)

var (
	// ErrNotFound is returned when a uid is unknown to the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDocument is returned when an inserted document is malformed
	// or references an unknown parent.
	ErrInvalidDocument = errors.New("invalid document")
)

// Document is a metadata mapping (run start, run stop).
type Document map[string]any

// UID returns the "uid" entry, or "" if absent.
func (d Document) UID() string {
	s, _ := d["uid"].(string)
	return s
}

// Time returns the "time" entry as float64 seconds.
func (d Document) Time() float64 {
	f, _ := toFloat(d["time"])
	return f
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// DataKey describes one measured quantity.
type DataKey struct {
	Source string `json:"source" cbor:"source"`
	Dtype  string `json:"dtype" cbor:"dtype"`
	Shape  []int  `json:"shape,omitempty" cbor:"shape,omitempty"`
	Units  string `json:"units,omitempty" cbor:"units,omitempty"`
}

// Descriptor is one schema of fields recorded during a run.
type Descriptor struct {
	UID      string             `json:"uid" cbor:"uid"`
	RunStart string             `json:"run_start" cbor:"run_start"`
	Name     string             `json:"name,omitempty" cbor:"name,omitempty"`
	Time     float64            `json:"time" cbor:"time"`
	DataKeys map[string]DataKey `json:"data_keys" cbor:"data_keys"`
}

// Fields returns the descriptor's data key names in sorted order.
func (d *Descriptor) Fields() []string {
	out := make([]string, 0, len(d.DataKeys))
	for k := range d.DataKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Header is one experiment run.
type Header struct {
	Start       Document
	Stop        Document
	Descriptors []Descriptor
}

// UID returns the run start uid.
func (h *Header) UID() string {
	return h.Start.UID()
}

// ScanID returns the run's scan_id, if it has an integral one.
func (h *Header) ScanID() (int64, bool) {
	v, ok := h.Start["scan_id"]
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Fields returns the union of all descriptor fields, sorted.
func (h *Header) Fields() []string {
	seen := make(map[string]struct{})
	for i := range h.Descriptors {
		for k := range h.Descriptors[i].DataKeys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Event is one reading against a descriptor. A field missing from Data (or
// nil in it) was not sampled in this event.
type Event struct {
	UID        string             `json:"uid" cbor:"uid"`
	Descriptor string             `json:"descriptor" cbor:"descriptor"`
	SeqNum     int64              `json:"seq_num" cbor:"seq_num"`
	Time       float64            `json:"time" cbor:"time"`
	Data       map[string]any     `json:"data" cbor:"data"`
	Timestamps map[string]float64 `json:"timestamps" cbor:"timestamps"`
}

// EventSource serves the events recorded against a descriptor.
type EventSource interface {
	Events(ctx context.Context, descriptorUID string) ([]Event, error)
}

// Source serves complete runs.
type Source interface {
	EventSource

	// Header returns the run whose start uid is uid.
	Header(ctx context.Context, uid string) (*Header, error)

	// Headers returns every run ordered by start time.
	Headers(ctx context.Context) ([]*Header, error)
}

// Sink records runs.
type Sink interface {
	InsertRunStart(ctx context.Context, start Document) error
	InsertDescriptor(ctx context.Context, desc Descriptor) error
	InsertEvent(ctx context.Context, ev Event) error
	InsertRunStop(ctx context.Context, runStart string, stop Document) error
}

// Store is a Source and a Sink.
type Store interface {
	Source
	Sink
	Close() error
}

// Last returns the n most recent headers from src, oldest first.
func Last(ctx context.Context, src Source, n int) ([]*Header, error) {
	all, err := src.Headers(ctx)
	if err != nil {
		return nil, err
	}
	if n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// SortHeaders orders headers by start time, then uid.
func SortHeaders(hs []*Header) {
	sort.SliceStable(hs, func(i, j int) bool {
		ti, tj := hs[i].Start.Time(), hs[j].Start.Time()
		if ti != tj {
			return ti < tj
		}
		return hs[i].UID() < hs[j].UID()
	})
}

func toFloat(v any) (float64, bool) {
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
