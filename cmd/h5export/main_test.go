package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/h5export/internal/h5tree"
)

func TestParseArgs_Export(t *testing.T) {
	args, err := parseArgs([]string{
		"--config", "h5export.yaml",
		"--logLevel", "debug",
		"export", "run-1", "run-2",
		"-o", "out.h5",
		"--field", "Tsam",
		"--field", "point_det",
		"--naming", "scan",
		"--stream", "detector",
		"--compression", "0",
		"--append",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, cmdExport, args.command)
	assert.Equal(t, "h5export.yaml", args.configPath)
	assert.Equal(t, "debug", args.logLevel)
	assert.Equal(t, []string{"run-1", "run-2"}, args.uids)
	assert.Equal(t, "out.h5", args.output)
	assert.Equal(t, []string{"Tsam", "point_det"}, args.fields)
	assert.Nil(t, args.exclude)
	assert.Equal(t, "scan", args.naming)
	assert.Equal(t, "detector", args.stream)
	assert.Equal(t, 0, args.compression)
	assert.True(t, args.appendMode)
}

func TestParseArgs_Defaults(t *testing.T) {
	args, err := parseArgs([]string{"export"}, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, args.compression)
	assert.Empty(t, args.uids)

	args, err = parseArgs([]string{"seed"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, args.runs)
	assert.Equal(t, int64(1), args.scanID)
	assert.Equal(t, 23, args.points)
}

func TestParseArgs_NoCommand(t *testing.T) {
	_, err := parseArgs(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command not specified")
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"field and exclude", []string{"export", "--field", "a", "--exclude", "b"}},
		{"last with uids", []string{"export", "--last", "1", "run-1"}},
		{"negative last", []string{"fields", "--last=-1"}},
		{"compression range", []string{"export", "--compression", "10"}},
		{"negative compression", []string{"export", "--compression=-5"}},
		{"bad naming", []string{"export", "--naming", "name"}},
		{"zero runs", []string{"seed", "--runs", "0"}},
		{"missing file", []string{"ls", filepath.Join(t.TempDir(), "absent.h5")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, nil)
			require.Error(t, err)
		})
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	a, err := parseArgs(args, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, a.execute(context.Background(), &out))
	return out.String()
}

func TestCommands_SQLite(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.h5")
	metrics := filepath.Join(dir, "h5export.prom")
	configPath := filepath.Join(dir, "h5export.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
broker:
  backend: sqlite
  path: `+filepath.Join(dir, "runs.db")+`
export:
  output: `+output+`
logging:
  level: error
metrics:
  textfile: `+metrics+`
`), 0o600))

	uids := strings.Fields(run(t, "-c", configPath, "seed", "--runs", "2", "--named"))
	require.Len(t, uids, 2)

	assert.Equal(t, "Tsam\n", run(t, "-c", configPath, "fields", "--exclude", "point_det"))
	assert.Equal(t, "point_det\n", run(t, "-c", configPath, "fields", uids[0], "--exclude", "Tsam"))

	msg := run(t, "-c", configPath, "export", "--last", "1", "--naming", "scan")
	assert.Equal(t, "exported 1 run(s) to "+output+"\n", msg)

	tree, err := h5tree.Open(output)
	require.NoError(t, err)
	assert.Equal(t, []string{"data_2"}, tree.Children("/"))
	assert.True(t, tree.Has("/data_2/temperature/data/Tsam"))
	assert.True(t, tree.Has("/data_2/detector/data/point_det"))
	require.NoError(t, tree.Close())

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "h5export_headers_exported_total 1")

	listing := run(t, "ls", output)
	assert.True(t, strings.HasPrefix(listing, "/\ndata_2/\n"), listing)

	dump := run(t, "dump", output, "--length", "8")
	assert.Contains(t, dump, "00000000: 89 48 44 46 0d 0a 1a 0a")
}

func TestCommands_ExportExcludeByUID(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.h5")
	t.Setenv("H5EXPORT_BROKER_BACKEND", "badger")
	t.Setenv("H5EXPORT_BROKER_PATH", filepath.Join(dir, "badger"))
	t.Setenv("H5EXPORT_LOG_LEVEL", "error")

	uids := strings.Fields(run(t, "seed"))
	require.Len(t, uids, 1)

	run(t, "export", uids[0], "-o", output, "--exclude", "Tsam", "--compression", "0")

	tree, err := h5tree.Open(output)
	require.NoError(t, err)
	defer func() { _ = tree.Close() }()

	descs := tree.Children("/" + uids[0])
	require.Len(t, descs, 2)
	var fields []string
	for _, d := range descs {
		fields = append(fields, tree.Children("/"+uids[0]+"/"+d+"/data")...)
	}
	assert.Equal(t, []string{"point_det"}, fields)
}

func TestCommands_UnknownRun(t *testing.T) {
	t.Setenv("H5EXPORT_BROKER_BACKEND", "memory")
	t.Setenv("H5EXPORT_BROKER_PATH", "")
	t.Setenv("H5EXPORT_LOG_LEVEL", "error")

	a, err := parseArgs([]string{"export", "nope", "-o", filepath.Join(t.TempDir(), "x.h5")}, nil)
	require.NoError(t, err)
	require.Error(t, a.execute(context.Background(), &bytes.Buffer{}))

	a, err = parseArgs([]string{"export", "-o", filepath.Join(t.TempDir(), "x.h5")}, nil)
	require.NoError(t, err)
	err = a.execute(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runs to export")
}

func TestDumpHex(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bytes.bin")
	require.NoError(t, os.WriteFile(file, []byte("0123456789abcdefXYZ"), 0o600))

	var out bytes.Buffer
	require.NoError(t, dumpHex(&out, file, 16, 128))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Dumping 3 bytes at offset 0x10 (16)")
	assert.True(t, strings.HasPrefix(lines[1], "00000010: 58 59 5a"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], "|XYZ|"), lines[1])

	require.Error(t, dumpHex(&out, file, 19, 1))
}
