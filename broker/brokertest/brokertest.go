// Package brokertest holds the conformance checks shared by every
// broker.Store implementation.
package brokertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5export/broker"
)

// Factory returns a fresh, empty store. The store is closed by Run.
type Factory func(t *testing.T) broker.Store

// Run exercises a store implementation against the broker contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore) })
	t.Run("HeadersOrdered", func(t *testing.T) { testHeadersOrdered(t, newStore) })
	t.Run("EventsSorted", func(t *testing.T) { testEventsSorted(t, newStore) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore) })
	t.Run("InvalidDocuments", func(t *testing.T) { testInvalidDocuments(t, newStore) })
}

func open(t *testing.T, newStore Factory) broker.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRun(t *testing.T, s broker.Store, uid string, startTime float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertRunStart(ctx, broker.Document{
		"uid":         uid,
		"time":        startTime,
		"scan_id":     int64(7),
		"beamline_id": "example",
	}))
	require.NoError(t, s.InsertDescriptor(ctx, broker.Descriptor{
		UID:      uid + "-d1",
		RunStart: uid,
		Name:     "primary",
		Time:     startTime + 0.5,
		DataKeys: map[string]broker.DataKey{
			"Tsam": {Source: "PV:ES:Tsam", Dtype: broker.DtypeNumber},
		},
	}))
	require.NoError(t, s.InsertDescriptor(ctx, broker.Descriptor{
		UID:      uid + "-d2",
		RunStart: uid,
		Time:     startTime + 0.6,
		DataKeys: map[string]broker.DataKey{
			"point_det": {Source: "PV:ES:PointDet", Dtype: broker.DtypeNumber},
			"label":     {Source: "SIM", Dtype: broker.DtypeString},
		},
	}))
	require.NoError(t, s.InsertRunStop(ctx, uid, broker.Document{
		"uid":         uid + "-stop",
		"run_start":   uid,
		"time":        startTime + 10,
		"exit_status": "success",
	}))
}

func testRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	seedRun(t, s, "run-a", 100)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertEvent(ctx, broker.Event{
			UID:        "ev-" + string(rune('a'+i)),
			Descriptor: "run-a-d1",
			SeqNum:     int64(i + 1),
			Time:       101 + float64(i),
			Data:       map[string]any{"Tsam": 20.5 + float64(i)},
			Timestamps: map[string]float64{"Tsam": 101.1 + float64(i)},
		}))
	}

	h, err := s.Header(ctx, "run-a")
	require.NoError(t, err)
	require.Equal(t, "run-a", h.UID())
	require.Equal(t, "example", h.Start["beamline_id"])
	require.Equal(t, "success", h.Stop["exit_status"])
	scanID, ok := h.ScanID()
	require.True(t, ok)
	require.Equal(t, int64(7), scanID)

	require.Len(t, h.Descriptors, 2)
	require.Equal(t, "run-a-d1", h.Descriptors[0].UID)
	require.Equal(t, "primary", h.Descriptors[0].Name)
	require.Equal(t, "run-a-d2", h.Descriptors[1].UID)
	require.Equal(t, broker.DtypeString, h.Descriptors[1].DataKeys["label"].Dtype)
	require.Equal(t, []string{"Tsam", "label", "point_det"}, h.Fields())

	evs, err := s.Events(ctx, "run-a-d1")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		require.Equal(t, int64(i+1), ev.SeqNum)
		require.InDelta(t, 20.5+float64(i), ev.Data["Tsam"], 1e-12)
		require.InDelta(t, 101.1+float64(i), ev.Timestamps["Tsam"], 1e-12)
	}

	evs, err = s.Events(ctx, "run-a-d2")
	require.NoError(t, err)
	require.Empty(t, evs)
}

func testHeadersOrdered(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	seedRun(t, s, "late", 300)
	seedRun(t, s, "early", 100)
	seedRun(t, s, "middle", 200)

	hs, err := s.Headers(ctx)
	require.NoError(t, err)
	require.Len(t, hs, 3)
	require.Equal(t, "early", hs[0].UID())
	require.Equal(t, "middle", hs[1].UID())
	require.Equal(t, "late", hs[2].UID())

	last, err := broker.Last(ctx, s, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	require.Equal(t, "middle", last[0].UID())
	require.Equal(t, "late", last[1].UID())
}

func testEventsSorted(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	seedRun(t, s, "run-b", 100)

	times := []float64{105, 103, 104}
	for i, tm := range times {
		require.NoError(t, s.InsertEvent(ctx, broker.Event{
			UID:        "e" + string(rune('0'+i)),
			Descriptor: "run-b-d2",
			SeqNum:     int64(i + 1),
			Time:       tm,
			Data:       map[string]any{"point_det": tm * 2},
			Timestamps: map[string]float64{"point_det": tm},
		}))
	}

	evs, err := s.Events(ctx, "run-b-d2")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	require.Equal(t, 103.0, evs[0].Time)
	require.Equal(t, 104.0, evs[1].Time)
	require.Equal(t, 105.0, evs[2].Time)
}

func testNotFound(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	_, err := s.Header(ctx, "missing")
	require.ErrorIs(t, err, broker.ErrNotFound)

	_, err = s.Events(ctx, "missing")
	require.ErrorIs(t, err, broker.ErrNotFound)

	hs, err := s.Headers(ctx)
	require.NoError(t, err)
	require.Empty(t, hs)
}

func testInvalidDocuments(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)

	err := s.InsertRunStart(ctx, broker.Document{"time": 1.0})
	require.ErrorIs(t, err, broker.ErrInvalidDocument)

	err = s.InsertDescriptor(ctx, broker.Descriptor{UID: "d", RunStart: "nope"})
	require.ErrorIs(t, err, broker.ErrInvalidDocument)

	err = s.InsertEvent(ctx, broker.Event{UID: "e", Descriptor: "nope"})
	require.ErrorIs(t, err, broker.ErrInvalidDocument)

	err = s.InsertRunStop(ctx, "nope", broker.Document{"uid": "s"})
	require.ErrorIs(t, err, broker.ErrInvalidDocument)
}
