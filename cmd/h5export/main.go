// h5export exports data-acquisition runs from a broker store into HDF5
// files. It can also seed a store with synthetic runs, list the contents of
// an exported file, and hex-dump raw file bytes.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	cmdExport = "export"
	cmdFields = "fields"
	cmdLs     = "ls"
	cmdSeed   = "seed"
	cmdDump   = "dump"
)

// arguments is the parsed command line.
type arguments struct {
	command    string
	configPath string
	logLevel   string

	// export, fields
	uids        []string
	last        int
	output      string
	fields      []string
	exclude     []string
	naming      string
	stream      string
	compression int
	appendMode  bool

	// seed
	runs   int
	scanID int64
	named  bool
	points int

	// ls, dump
	file   string
	info   bool
	offset int64
	length int
}

// parseArgs parses args. terminate is called after --help or usage output;
// nil keeps the process running so Parse returns the error instead.
func parseArgs(args []string, terminate func(int)) (*arguments, error) {
	app := kingpin.New("h5export", "Export data-acquisition runs to HDF5 files.").Terminate(terminate)
	configPath := app.Flag("config", "YAML configuration file.").Short('c').String()
	logLevel := app.Flag("logLevel", "Override the configured log level.").Enum("debug", "info", "warn", "error")

	export := app.Command(cmdExport, "Export runs to an HDF5 file.")
	exportUIDs := export.Arg("uid", "Run uids to export (default: every run).").Strings()
	exportLast := export.Flag("last", "Export only the N most recent runs.").Int()
	exportOutput := export.Flag("output", "Destination file (default from config).").Short('o').String()
	exportFields := export.Flag("field", "Export only this field (repeatable).").Strings()
	exportExclude := export.Flag("exclude", "Skip this field (repeatable).").Strings()
	exportNaming := export.Flag("naming", "Group naming: uid, or scan for data_<scan_id> and stream names.").Enum("uid", "scan")
	exportStream := export.Flag("stream", "Export only descriptors of this stream.").String()
	exportCompression := export.Flag("compression", "GZIP level for numeric datasets, 0 disables (default from config).").Default("-1").Int()
	exportAppend := export.Flag("append", "Add to an existing file instead of truncating it.").Bool()

	fields := app.Command(cmdFields, "List the fields of runs, minus excluded ones.")
	fieldsUIDs := fields.Arg("uid", "Run uids (default: every run).").Strings()
	fieldsLast := fields.Flag("last", "Use only the N most recent runs.").Int()
	fieldsExclude := fields.Flag("exclude", "Field to leave out (repeatable).").Strings()

	ls := app.Command(cmdLs, "List the groups and datasets of an HDF5 file.")
	lsFile := ls.Arg("file", "HDF5 file.").Required().ExistingFile()
	lsInfo := ls.Flag("info", "Show dataset types and shapes.").Bool()

	seed := app.Command(cmdSeed, "Record synthetic temperature-ramp runs into the store.")
	seedRuns := seed.Flag("runs", "Number of runs.").Default("1").Int()
	seedScanID := seed.Flag("scanID", "Scan id of the first run.").Default("1").Int64()
	seedNamed := seed.Flag("named", "Give descriptors stream names.").Bool()
	seedPoints := seed.Flag("points", "Ramp steps per run.").Default("23").Int()

	dump := app.Command(cmdDump, "Hex-dump raw bytes of a file.")
	dumpFile := dump.Arg("file", "File to dump.").Required().ExistingFile()
	dumpOffset := dump.Flag("offset", "Offset in file to start dumping from.").Default("0").Int64()
	dumpLength := dump.Flag("length", "Number of bytes to dump.").Default("128").Int()

	command, err := app.Parse(args)
	if err != nil {
		return nil, err
	}

	a := &arguments{
		command:    command,
		configPath: *configPath,
		logLevel:   *logLevel,
	}
	switch command {
	case cmdExport:
		a.uids = *exportUIDs
		a.last = *exportLast
		a.output = *exportOutput
		a.fields = *exportFields
		a.exclude = *exportExclude
		a.naming = *exportNaming
		a.stream = *exportStream
		a.compression = *exportCompression
		a.appendMode = *exportAppend
	case cmdFields:
		a.uids = *fieldsUIDs
		a.last = *fieldsLast
		a.exclude = *fieldsExclude
	case cmdLs:
		a.file = *lsFile
		a.info = *lsInfo
	case cmdSeed:
		a.runs = *seedRuns
		a.scanID = *seedScanID
		a.named = *seedNamed
		a.points = *seedPoints
	case cmdDump:
		a.file = *dumpFile
		a.offset = *dumpOffset
		a.length = *dumpLength
	}

	switch {
	case a.fields != nil && a.exclude != nil:
		return nil, errors.Errorf("cannot set both --field and --exclude")
	case a.last < 0:
		return nil, errors.Errorf("--last must not be negative")
	case a.last > 0 && len(a.uids) > 0:
		return nil, errors.Errorf("cannot combine --last with explicit uids")
	case a.compression < -1 || a.compression > 9:
		return nil, errors.Errorf("--compression must be between 0 and 9")
	case command == cmdSeed && a.runs < 1:
		return nil, errors.Errorf("--runs must be at least 1")
	case command == cmdDump && a.length < 1:
		return nil, errors.Errorf("invalid length: %d", a.length)
	}
	return a, nil
}

func main() {
	kingpin.Version("0.1.0")
	args, err := parseArgs(os.Args[1:], os.Exit)
	if err != nil {
		kingpin.Fatalf("failed to parse arguments, %s, try --help", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := args.execute(ctx, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr)
		kingpin.Fatalf("%s", err)
	}
}

func (a *arguments) execute(ctx context.Context, out io.Writer) error {
	switch a.command {
	case cmdLs:
		return listFile(out, a.file, a.info)
	case cmdDump:
		return dumpHex(out, a.file, a.offset, a.length)
	}

	env, err := newEnvironment(ctx, a)
	if err != nil {
		return err
	}
	defer env.close()

	switch a.command {
	case cmdExport:
		err = a.runExport(ctx, env, out)
	case cmdFields:
		err = a.runFields(ctx, env, out)
	case cmdSeed:
		err = a.runSeed(ctx, env, out)
	default:
		err = errors.Errorf("unknown command %q", a.command)
	}
	if ferr := env.flushMetrics(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
