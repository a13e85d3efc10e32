package h5export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5export/broker"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "Tsam", false},
		{"dotted", "det.x", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateName(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidName)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestHeaderGroupName(t *testing.T) {
	h := &broker.Header{Start: broker.Document{"uid": "run-1", "scan_id": float64(12)}}

	name, err := headerGroupName(h, true)
	require.NoError(t, err)
	require.Equal(t, "run-1", name)

	name, err = headerGroupName(h, false)
	require.NoError(t, err)
	require.Equal(t, "data_12", name)

	h.Start["scan_id"] = 1.5
	_, err = headerGroupName(h, false)
	require.ErrorIs(t, err, ErrMissingScanID)

	_, err = headerGroupName(&broker.Header{Start: broker.Document{"uid": "a/b"}}, true)
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestDescriptorGroupName(t *testing.T) {
	d := &broker.Descriptor{UID: "desc-1"}

	name, err := descriptorGroupName(d, true)
	require.NoError(t, err)
	require.Equal(t, "desc-1", name)

	_, err = descriptorGroupName(d, false)
	require.ErrorIs(t, err, ErrDescriptorName)

	d.Name = "primary"
	name, err = descriptorGroupName(d, false)
	require.NoError(t, err)
	require.Equal(t, "primary", name)
}

func TestJoinPath(t *testing.T) {
	require.Equal(t, "/run", joinPath("run"))
	require.Equal(t, "/run/desc/data", joinPath("run", "desc", DataGroup))
}
