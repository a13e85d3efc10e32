package h5export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scigolib/hdf5"
	"go.uber.org/zap"

	"github.com/scigolib/h5export/broker"
	"github.com/scigolib/h5export/internal/utils"
)

// Attribute names written on run and descriptor groups.
const (
	AttrStart    = "start"
	AttrStop     = "stop"
	AttrUID      = "uid"
	AttrName     = "name"
	AttrTime     = "time"
	AttrDataKeys = "data_keys"
)

// Link names inside a descriptor group.
const (
	TimeDataset     = "time"
	DataGroup       = "data"
	TimestampsGroup = "timestamps"
)

// attributeWriter is the part of the HDF5 group writer the exporter needs.
type attributeWriter interface {
	WriteAttribute(name string, value interface{}) error
}

// ExportHeader exports a single run. See Export.
func ExportHeader(ctx context.Context, src broker.EventSource, h *broker.Header, path string, opts ...Option) error {
	return Export(ctx, src, []*broker.Header{h}, path, opts...)
}

// Export writes headers into the HDF5 file at path. Events are read from src.
//
// Layout, for each run:
//
//	/<run>                         attrs: start, stop (JSON)
//	/<run>/<descriptor>            attrs: uid, name, time, data_keys
//	/<run>/<descriptor>/time       event times
//	/<run>/<descriptor>/data/<f>        non-missing samples of field f
//	/<run>/<descriptor>/timestamps/<f>  their timestamps, strictly increasing
//
// <run> is the run uid, or data_<scan_id> with WithUID(false). <descriptor>
// is the descriptor uid, or its stream name with WithUID(false).
//
// The file is created (truncated) unless WithAppend is given. It is closed
// on every return path; a failed export may leave a partial file behind.
func Export(ctx context.Context, src broker.EventSource, headers []*broker.Header, path string, opts ...Option) (err error) {
	cfg := newExportConfig(opts)
	started := time.Now()
	defer func() {
		cfg.metrics.exportDone(err, time.Since(started))
	}()

	fw, err := openFile(path, cfg.appendMode)
	if err != nil {
		return utils.WrapError("open", path, err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = utils.WrapError("close", path, cerr)
		}
	}()

	e := &exporter{
		fw:     fw,
		src:    src,
		cfg:    cfg,
		logger: cfg.logger.With(zap.String("file", path)),
		groups: make(map[string]string),
	}
	for _, h := range headers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.exportHeader(ctx, h); err != nil {
			return err
		}
	}

	e.logger.Info("export complete",
		zap.Int("headers", len(headers)),
		zap.Int("datasets", e.datasets),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func openFile(path string, appendMode bool) (*hdf5.FileWriter, error) {
	if appendMode {
		return hdf5.OpenForWrite(path, hdf5.OpenReadWrite)
	}
	return hdf5.CreateForWrite(path, hdf5.CreateTruncate)
}

// exporter carries the state of one Export call.
type exporter struct {
	fw     *hdf5.FileWriter
	src    broker.EventSource
	cfg    *exportConfig
	logger *zap.Logger

	groups   map[string]string // run group name -> run uid
	datasets int
}

func (e *exporter) exportHeader(ctx context.Context, h *broker.Header) error {
	name, err := headerGroupName(h, e.cfg.useUID)
	if err != nil {
		return utils.WrapError("export header", h.UID(), err)
	}
	if prev, ok := e.groups[name]; ok {
		return utils.WrapError("export header", h.UID(),
			fmt.Errorf("group %q already holds run %s: %w", name, prev, ErrDuplicateGroup))
	}
	e.groups[name] = h.UID()

	groupPath := joinPath(name)
	group, err := e.fw.CreateGroup(groupPath)
	if err != nil {
		return utils.WrapError("create group", groupPath, err)
	}
	if err := writeJSONAttribute(group, AttrStart, h.Start); err != nil {
		return utils.WrapError("write attribute", groupPath, err)
	}
	if err := writeJSONAttribute(group, AttrStop, h.Stop); err != nil {
		return utils.WrapError("write attribute", groupPath, err)
	}

	if len(h.Descriptors) == 0 {
		e.logger.Warn("run has no descriptors", zap.String("run", h.UID()))
	}

	seen := make(map[string]string, len(h.Descriptors))
	for i := range h.Descriptors {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := &h.Descriptors[i]
		if e.cfg.stream != "" && d.Name != e.cfg.stream {
			continue
		}
		descName, err := descriptorGroupName(d, e.cfg.useUID)
		if err != nil {
			return utils.WrapError("export descriptor", groupPath, err)
		}
		if prev, ok := seen[descName]; ok {
			return utils.WrapError("export descriptor", groupPath,
				fmt.Errorf("group %q already holds descriptor %s: %w", descName, prev, ErrDuplicateGroup))
		}
		seen[descName] = d.UID

		if err := e.exportDescriptor(ctx, name, descName, d); err != nil {
			return err
		}
	}

	e.cfg.metrics.headerDone()
	e.logger.Debug("run exported", zap.String("run", h.UID()), zap.String("group", groupPath))
	return nil
}

func (e *exporter) exportDescriptor(ctx context.Context, runGroup, descGroup string, d *broker.Descriptor) error {
	groupPath := joinPath(runGroup, descGroup)
	group, err := e.fw.CreateGroup(groupPath)
	if err != nil {
		return utils.WrapError("create group", groupPath, err)
	}
	if err := writeDescriptorAttributes(group, d); err != nil {
		return utils.WrapError("write attribute", groupPath, err)
	}

	events, err := e.src.Events(ctx, d.UID)
	if err != nil {
		return utils.WrapError("read events", groupPath, err)
	}
	if len(events) == 0 {
		e.logger.Debug("descriptor has no events", zap.String("descriptor", d.UID))
		return nil
	}
	broker.SortEvents(events)
	table := broker.BuildTable(events)

	times := make([]float64, len(events))
	for i := range events {
		times[i] = events[i].Time
	}
	if err := e.writeDataset(joinPath(runGroup, descGroup, TimeDataset), kindTime, &payload{
		dtype:   hdf5.Float64,
		dims:    []uint64{uint64(len(times))},
		data:    times,
		numeric: true,
	}); err != nil {
		return err
	}

	dataPath := joinPath(runGroup, descGroup, DataGroup)
	if _, err := e.fw.CreateGroup(dataPath); err != nil {
		return utils.WrapError("create group", dataPath, err)
	}
	tsPath := joinPath(runGroup, descGroup, TimestampsGroup)
	if e.cfg.timestamps {
		if _, err := e.fw.CreateGroup(tsPath); err != nil {
			return utils.WrapError("create group", tsPath, err)
		}
	}

	for _, field := range d.Fields() {
		if !e.cfg.allowed(field) {
			continue
		}
		if err := validateName(field); err != nil {
			return utils.WrapError("export field", dataPath, err)
		}
		col := table[field]
		if col == nil || col.Len() == 0 {
			e.logger.Debug("field has no samples",
				zap.String("descriptor", d.UID), zap.String("field", field))
			continue
		}
		if err := checkIncreasing(col.Timestamps); err != nil {
			return utils.WrapError("export field", dataPath+"/"+field, err)
		}

		p, err := encodeColumn(d.DataKeys[field], col.Values)
		if err != nil {
			return utils.WrapError("encode field", dataPath+"/"+field, err)
		}
		if err := e.writeDataset(dataPath+"/"+field, kindData, p); err != nil {
			return err
		}
		if e.cfg.timestamps {
			if err := e.writeDataset(tsPath+"/"+field, kindTimestamps, &payload{
				dtype:   hdf5.Float64,
				dims:    []uint64{uint64(len(col.Timestamps))},
				data:    col.Timestamps,
				numeric: true,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *exporter) writeDataset(path, kind string, p *payload) error {
	dw, err := e.fw.CreateDataset(path, p.dtype, p.dims, p.withStorage(e.cfg)...)
	if err != nil {
		return utils.WrapError("create dataset", path, err)
	}
	if err := dw.Write(p.data); err != nil {
		_ = dw.Close()
		return utils.WrapError("write dataset", path, err)
	}
	if err := dw.Close(); err != nil {
		return utils.WrapError("close dataset", path, err)
	}
	e.datasets++
	e.cfg.metrics.datasetDone(kind, int(p.dims[0]))
	return nil
}

// checkIncreasing verifies ts is strictly increasing.
func checkIncreasing(ts []float64) error {
	for i := 1; i < len(ts); i++ {
		if !(ts[i] > ts[i-1]) {
			return fmt.Errorf("sample %d at %v follows %v: %w", i, ts[i], ts[i-1], ErrTimestampOrder)
		}
	}
	return nil
}

// writeJSONAttribute stores doc as a JSON string attribute. A nil document
// is written as "{}".
func writeJSONAttribute(w attributeWriter, name string, doc any) error {
	if d, ok := doc.(broker.Document); ok && d == nil {
		doc = broker.Document{}
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.WriteAttribute(name, string(buf))
}

func writeDescriptorAttributes(w attributeWriter, d *broker.Descriptor) error {
	if err := w.WriteAttribute(AttrUID, d.UID); err != nil {
		return err
	}
	if d.Name != "" {
		if err := w.WriteAttribute(AttrName, d.Name); err != nil {
			return err
		}
	}
	if err := w.WriteAttribute(AttrTime, d.Time); err != nil {
		return err
	}
	keys := d.DataKeys
	if keys == nil {
		keys = map[string]broker.DataKey{}
	}
	return writeJSONAttribute(w, AttrDataKeys, keys)
}
