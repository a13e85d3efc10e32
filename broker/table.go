package broker

import (
	"context"
	"fmt"
	"sort"
)

// Column is the time-ordered, non-missing samples of one field.
type Column struct {
	Values     []any
	Timestamps []float64
	// Times holds the owning event's time for each sample.
	Times []float64
}

// Len returns the number of samples.
func (c *Column) Len() int {
	return len(c.Values)
}

// Table maps field name to its column.
type Table map[string]*Column

// SortEvents orders events by time, then sequence number.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		return events[i].SeqNum < events[j].SeqNum
	})
}

// BuildTable collects every field's samples from events in time order.
// events itself is left untouched. Fields absent from an event, or nil in
// it, are dropped rather than padded.
func BuildTable(events []Event) Table {
	events = append([]Event(nil), events...)
	SortEvents(events)

	t := make(Table)
	for i := range events {
		ev := &events[i]
		for key, v := range ev.Data {
			if v == nil {
				continue
			}
			col, ok := t[key]
			if !ok {
				col = &Column{}
				t[key] = col
			}
			ts, ok := ev.Timestamps[key]
			if !ok {
				ts = ev.Time
			}
			col.Values = append(col.Values, v)
			col.Timestamps = append(col.Timestamps, ts)
			col.Times = append(col.Times, ev.Time)
		}
	}
	return t
}

// GetTable builds one table across every descriptor of h.
func GetTable(ctx context.Context, src EventSource, h *Header) (Table, error) {
	var all []Event
	for i := range h.Descriptors {
		evs, err := src.Events(ctx, h.Descriptors[i].UID)
		if err != nil {
			return nil, fmt.Errorf("events for descriptor %s: %w", h.Descriptors[i].UID, err)
		}
		all = append(all, evs...)
	}
	return BuildTable(all), nil
}
