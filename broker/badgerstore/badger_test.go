package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5export/broker"
	"github.com/scigolib/h5export/broker/brokertest"
)

func TestStore_Conformance(t *testing.T) {
	brokertest.Run(t, func(t *testing.T) broker.Store {
		s, err := Open("")
		require.NoError(t, err)
		return s
	})
}

func TestStore_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.InsertRunStart(ctx, broker.Document{
		"uid":  "disk-run",
		"time": 5.0,
		"plan": map[string]any{"name": "count", "num": 3},
	}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	h, err := s.Header(ctx, "disk-run")
	require.NoError(t, err)
	plan, ok := h.Start["plan"].(map[string]any)
	require.True(t, ok, "nested documents decode as map[string]any, got %T", h.Start["plan"])
	require.Equal(t, "count", plan["name"])
}
