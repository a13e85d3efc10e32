package broker

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Store. The zero value is not usable; call NewMemory.
type Memory struct {
	mu          sync.RWMutex
	starts      map[string]Document
	stops       map[string]Document
	descriptors map[string][]Descriptor // by run start uid, insertion order
	descByUID   map[string]string       // descriptor uid -> run start uid
	events      map[string][]Event      // by descriptor uid
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		starts:      make(map[string]Document),
		stops:       make(map[string]Document),
		descriptors: make(map[string][]Descriptor),
		descByUID:   make(map[string]string),
		events:      make(map[string][]Event),
	}
}

// InsertRunStart records a run start document. It must carry a uid.
func (m *Memory) InsertRunStart(_ context.Context, start Document) error {
	uid := start.UID()
	if uid == "" {
		return fmt.Errorf("run start without uid: %w", ErrInvalidDocument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.starts[uid]; ok {
		return fmt.Errorf("run start %s already recorded: %w", uid, ErrInvalidDocument)
	}
	m.starts[uid] = start.Clone()
	return nil
}

// InsertDescriptor records a descriptor for an existing run.
func (m *Memory) InsertDescriptor(_ context.Context, desc Descriptor) error {
	if desc.UID == "" {
		return fmt.Errorf("descriptor without uid: %w", ErrInvalidDocument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.starts[desc.RunStart]; !ok {
		return fmt.Errorf("descriptor %s: unknown run start %q: %w", desc.UID, desc.RunStart, ErrInvalidDocument)
	}
	if _, ok := m.descByUID[desc.UID]; ok {
		return fmt.Errorf("descriptor %s already recorded: %w", desc.UID, ErrInvalidDocument)
	}
	m.descriptors[desc.RunStart] = append(m.descriptors[desc.RunStart], desc)
	m.descByUID[desc.UID] = desc.RunStart
	return nil
}

// InsertEvent records an event for an existing descriptor.
func (m *Memory) InsertEvent(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.descByUID[ev.Descriptor]; !ok {
		return fmt.Errorf("event %s: unknown descriptor %q: %w", ev.UID, ev.Descriptor, ErrInvalidDocument)
	}
	m.events[ev.Descriptor] = append(m.events[ev.Descriptor], ev)
	return nil
}

// InsertRunStop records the stop document of an existing run.
func (m *Memory) InsertRunStop(_ context.Context, runStart string, stop Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.starts[runStart]; !ok {
		return fmt.Errorf("run stop: unknown run start %q: %w", runStart, ErrInvalidDocument)
	}
	m.stops[runStart] = stop.Clone()
	return nil
}

// Header returns the run whose start uid is uid.
func (m *Memory) Header(_ context.Context, uid string) (*Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.header(uid)
}

func (m *Memory) header(uid string) (*Header, error) {
	start, ok := m.starts[uid]
	if !ok {
		return nil, fmt.Errorf("header %s: %w", uid, ErrNotFound)
	}
	descs := make([]Descriptor, len(m.descriptors[uid]))
	copy(descs, m.descriptors[uid])
	return &Header{
		Start:       start.Clone(),
		Stop:        m.stops[uid].Clone(),
		Descriptors: descs,
	}, nil
}

// Headers returns every run ordered by start time.
func (m *Memory) Headers(_ context.Context) ([]*Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Header, 0, len(m.starts))
	for uid := range m.starts {
		h, err := m.header(uid)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	SortHeaders(out)
	return out, nil
}

// Events returns a copy of the descriptor's events in time order.
func (m *Memory) Events(_ context.Context, descriptorUID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.descByUID[descriptorUID]; !ok {
		return nil, fmt.Errorf("descriptor %s: %w", descriptorUID, ErrNotFound)
	}
	out := make([]Event, len(m.events[descriptorUID]))
	copy(out, m.events[descriptorUID])
	SortEvents(out)
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
