package h5tree

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/scigolib/hdf5"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "sample.h5")

	fw, err := hdf5.CreateForWrite(file, hdf5.CreateTruncate)
	require.NoError(t, err)

	run, err := fw.CreateGroup("/run")
	require.NoError(t, err)
	require.NoError(t, run.WriteAttribute("start", `{"uid":"run"}`))
	_, err = fw.CreateGroup("/run/desc")
	require.NoError(t, err)

	dw, err := fw.CreateDataset("/run/desc/values", hdf5.Float64, []uint64{3})
	require.NoError(t, err)
	require.NoError(t, dw.Write([]float64{1.5, 2.5, 3.5}))
	require.NoError(t, dw.Close())

	sw, err := fw.CreateDataset("/run/desc/labels", hdf5.String, []uint64{2}, hdf5.WithStringSize(3))
	require.NoError(t, err)
	require.NoError(t, sw.Write([]string{"ab", "cde"}))
	require.NoError(t, sw.Close())

	require.NoError(t, fw.Close())
	return file
}

func TestTree(t *testing.T) {
	tree, err := Open(writeSample(t))
	require.NoError(t, err)
	defer func() { _ = tree.Close() }()

	require.Equal(t, []string{"/", "/run", "/run/desc", "/run/desc/labels", "/run/desc/values"}, tree.Paths())
	require.Equal(t, []string{"run"}, tree.Children("/"))
	require.Equal(t, []string{"labels", "values"}, tree.Children("run/desc"))
	require.True(t, tree.Has("/run/desc/values"))
	require.False(t, tree.Has("/run/other"))

	n, ok := tree.Lookup("/run")
	require.True(t, ok)
	require.True(t, n.IsGroup())

	values, err := tree.ReadFloat64("/run/desc/values")
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2.5, 3.5}, values)

	labels, err := tree.ReadStrings("/run/desc/labels")
	require.NoError(t, err)
	require.Equal(t, []string{"ab", "cde"}, labels)

	_, err = tree.ReadFloat64("/run")
	require.Error(t, err)
}

func TestTree_Attributes(t *testing.T) {
	tree, err := Open(writeSample(t))
	require.NoError(t, err)
	defer func() { _ = tree.Close() }()

	names, err := tree.GroupAttributeNames("/run")
	require.NoError(t, err)
	require.Equal(t, []string{"start"}, names)

	v, err := tree.GroupAttribute("/run", "start")
	require.NoError(t, err)
	require.Equal(t, `{"uid":"run"}`, v)

	_, err = tree.GroupAttribute("/run", "stop")
	require.Error(t, err)
	_, err = tree.GroupAttribute("/run/desc/values", "start")
	require.Error(t, err)
}

func TestTree_Print(t *testing.T) {
	tree, err := Open(writeSample(t))
	require.NoError(t, err)
	defer func() { _ = tree.Close() }()

	var buf bytes.Buffer
	require.NoError(t, tree.Print(&buf, false))
	require.Equal(t, "/\nrun/\n  desc/\n    labels\n    values\n", buf.String())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.h5"))
	require.Error(t, err)
}
