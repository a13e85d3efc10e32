// Package sampledata records synthetic runs into a broker, for demos and
// tests.
package sampledata

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/scigolib/h5export/broker"
)

// Stream names used when Options.NamedStreams is set.
const (
	TemperatureStream = "temperature"
	DetectorStream    = "detector"
)

// Options configures TemperatureRamp.
type Options struct {
	// ScanID is written to the run start. Default: 1.
	ScanID int64

	// NamedStreams gives each descriptor a stream name.
	NamedStreams bool

	// Start is the run start time in epoch seconds. Default: time.Now.
	Start float64

	// Points is the number of ramp steps. Default: 23.
	Points int

	// Deadband is the minimum temperature change recorded. Default: 0.9.
	Deadband float64
}

func (o *Options) applyDefaults() {
	if o.ScanID == 0 {
		o.ScanID = 1
	}
	if o.Start == 0 {
		o.Start = float64(time.Now().UnixNano()) / 1e9
	}
	if o.Points <= 0 {
		o.Points = 23
	}
	if o.Deadband <= 0 {
		o.Deadband = 0.9
	}
}

// TemperatureRamp records one run with two descriptors: a deadband-filtered
// sample temperature "Tsam" and a point detector "point_det" that tracks it.
// Within each field timestamps strictly increase. It returns the run uid.
func TemperatureRamp(ctx context.Context, sink broker.Sink, opts Options) (string, error) {
	opts.applyDefaults()

	runUID := uuid.NewString()
	t0 := opts.Start
	if err := sink.InsertRunStart(ctx, broker.Document{
		"uid":         runUID,
		"time":        t0,
		"scan_id":     opts.ScanID,
		"beamline_id": "example",
		"owner":       "sampledata",
		"plan_name":   "temperature_ramp",
	}); err != nil {
		return "", fmt.Errorf("insert run start: %w", err)
	}

	tempDesc := broker.Descriptor{
		UID:      uuid.NewString(),
		RunStart: runUID,
		Time:     t0 + 0.01,
		DataKeys: map[string]broker.DataKey{
			"Tsam": {Source: "PV:ES:Tsam", Dtype: broker.DtypeNumber, Units: "K"},
		},
	}
	detDesc := broker.Descriptor{
		UID:      uuid.NewString(),
		RunStart: runUID,
		Time:     t0 + 0.02,
		DataKeys: map[string]broker.DataKey{
			"point_det": {Source: "PV:ES:PointDet", Dtype: broker.DtypeNumber},
		},
	}
	if opts.NamedStreams {
		tempDesc.Name = TemperatureStream
		detDesc.Name = DetectorStream
	}
	for _, d := range []broker.Descriptor{tempDesc, detDesc} {
		if err := sink.InsertDescriptor(ctx, d); err != nil {
			return "", fmt.Errorf("insert descriptor: %w", err)
		}
	}

	const (
		low, high = 273.0, 300.0
		step      = 0.2
	)
	span := high - low
	lastTemp := math.Inf(-1)
	var tempSeq, detSeq int64
	for i := 0; i < opts.Points; i++ {
		frac := float64(i) / float64(opts.Points-1+boolToInt(opts.Points == 1))
		temp := low + span*frac + 0.3*math.Sin(float64(i))
		tick := t0 + 1 + float64(i)*step

		if math.Abs(temp-lastTemp) > opts.Deadband {
			tempSeq++
			if err := sink.InsertEvent(ctx, broker.Event{
				UID:        uuid.NewString(),
				Descriptor: tempDesc.UID,
				SeqNum:     tempSeq,
				Time:       tick,
				Data:       map[string]any{"Tsam": temp},
				Timestamps: map[string]float64{"Tsam": tick - 0.01},
			}); err != nil {
				return "", fmt.Errorf("insert Tsam event: %w", err)
			}
			lastTemp = temp
		}

		detSeq++
		det := 1000 * math.Exp(-math.Pow((temp-286)/4, 2))
		if err := sink.InsertEvent(ctx, broker.Event{
			UID:        uuid.NewString(),
			Descriptor: detDesc.UID,
			SeqNum:     detSeq,
			Time:       tick + step/2,
			Data:       map[string]any{"point_det": det},
			Timestamps: map[string]float64{"point_det": tick + step/2 - 0.01},
		}); err != nil {
			return "", fmt.Errorf("insert point_det event: %w", err)
		}
	}

	if err := sink.InsertRunStop(ctx, runUID, broker.Document{
		"uid":         uuid.NewString(),
		"run_start":   runUID,
		"time":        t0 + 2 + float64(opts.Points)*step,
		"exit_status": "success",
	}); err != nil {
		return "", fmt.Errorf("insert run stop: %w", err)
	}
	return runUID, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
