package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scigolib/h5export"
	"github.com/scigolib/h5export/broker"
	"github.com/scigolib/h5export/internal/h5tree"
	"github.com/scigolib/h5export/sampledata"
)

// selectHeaders resolves the runs named on the command line.
func (a *arguments) selectHeaders(ctx context.Context, src broker.Source) ([]*broker.Header, error) {
	if len(a.uids) > 0 {
		out := make([]*broker.Header, 0, len(a.uids))
		for _, uid := range a.uids {
			h, err := src.Header(ctx, uid)
			if err != nil {
				return nil, errors.WithMessagef(err, "could not load run %s", uid)
			}
			out = append(out, h)
		}
		return out, nil
	}
	if a.last > 0 {
		return broker.Last(ctx, src, a.last)
	}
	return src.Headers(ctx)
}

// exportOptions merges the configured export defaults with flags.
func (a *arguments) exportOptions(env *environment, headers []*broker.Header) []h5export.Option {
	cfg := env.cfg.Export
	opts := []h5export.Option{
		h5export.WithLogger(env.logger),
		h5export.WithMetrics(env.metrics),
		h5export.WithUID(*cfg.UseUID),
		h5export.WithTimestamps(*cfg.Timestamps),
		h5export.WithAppend(cfg.Append || a.appendMode),
	}

	switch a.naming {
	case "uid":
		opts = append(opts, h5export.WithUID(true))
	case "scan":
		opts = append(opts, h5export.WithUID(false))
	}

	stream := cfg.Stream
	if a.stream != "" {
		stream = a.stream
	}
	if stream != "" {
		opts = append(opts, h5export.WithStream(stream))
	}

	level := *cfg.Compression
	if a.compression >= 0 {
		level = a.compression
	}
	if level == 0 {
		opts = append(opts, h5export.WithoutCompression())
	} else {
		opts = append(opts, h5export.WithCompression(level))
	}

	fields, exclude := cfg.Fields, cfg.Exclude
	if a.fields != nil || a.exclude != nil {
		fields, exclude = a.fields, a.exclude
	}
	switch {
	case fields != nil:
		opts = append(opts, h5export.WithFields(fields...))
	case exclude != nil:
		opts = append(opts, h5export.WithFields(h5export.FilterFields(headers, exclude)...))
	}
	return opts
}

func (a *arguments) runExport(ctx context.Context, env *environment, out io.Writer) error {
	headers, err := a.selectHeaders(ctx, env.store)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		return errors.Errorf("no runs to export")
	}

	output := env.cfg.Export.Output
	if a.output != "" {
		output = a.output
	}
	if err := h5export.Export(ctx, env.store, headers, output, a.exportOptions(env, headers)...); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "exported %d run(s) to %s\n", len(headers), output)
	return err
}

func (a *arguments) runFields(ctx context.Context, env *environment, out io.Writer) error {
	headers, err := a.selectHeaders(ctx, env.store)
	if err != nil {
		return err
	}
	exclude := a.exclude
	if exclude == nil {
		exclude = env.cfg.Export.Exclude
	}
	fields := h5export.FilterFields(headers, exclude)
	if len(fields) == 0 {
		return nil
	}
	_, err = fmt.Fprintln(out, strings.Join(fields, "\n"))
	return err
}

func (a *arguments) runSeed(ctx context.Context, env *environment, out io.Writer) error {
	for i := 0; i < a.runs; i++ {
		uid, err := sampledata.TemperatureRamp(ctx, env.store, sampledata.Options{
			ScanID:       a.scanID + int64(i),
			NamedStreams: a.named,
			Points:       a.points,
		})
		if err != nil {
			return errors.WithMessagef(err, "could not record run %d", i+1)
		}
		env.logger.Info("run recorded", zap.String("uid", uid), zap.Int64("scan_id", a.scanID+int64(i)))
		if _, err := fmt.Fprintln(out, uid); err != nil {
			return err
		}
	}
	return nil
}

func listFile(out io.Writer, file string, info bool) error {
	tree, err := h5tree.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = tree.Close() }()
	return tree.Print(out, info)
}
