// Package badgerstore implements broker.Store on an embedded Badger key-value
// database. Records are CBOR-encoded under prefixed keys:
//
//	start/<run uid>                  run start document
//	stop/<run uid>                   run stop document
//	desc/<run uid>/<position>        descriptor, in insertion order
//	descidx/<descriptor uid>         owning run uid
//	event/<descriptor uid>/<uid>     event
package badgerstore

import (
	"context"
	"fmt"
	"reflect"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/scigolib/h5export/broker"
)

func startKey(uid string) []byte { return []byte("start/" + uid) }
func stopKey(uid string) []byte  { return []byte("stop/" + uid) }
func descPrefix(run string) []byte {
	return []byte("desc/" + run + "/")
}
func descKey(run string, pos int) []byte {
	return []byte(fmt.Sprintf("desc/%s/%08d", run, pos))
}
func descIndexKey(uid string) []byte { return []byte("descidx/" + uid) }
func eventPrefix(desc string) []byte { return []byte("event/" + desc + "/") }
func eventKey(desc, uid string) []byte {
	return []byte("event/" + desc + "/" + uid)
}

// Store is a broker.Store backed by Badger.
type Store struct {
	db  *badger.DB
	dec cbor.DecMode
}

var _ broker.Store = (*Store)(nil)

// Open opens the database in dirPath. An empty dirPath keeps everything in
// memory.
func Open(dirPath string) (*Store, error) {
	var badgerOpts badger.Options
	if dirPath == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dirPath).WithSyncWrites(false).WithTruncate(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open backing db")
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "could not build cbor decoder")
	}

	return &Store{db: db, dec: dec}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return s.dec.Unmarshal(val, v)
	})
}

func has(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func set(txn *badger.Txn, key []byte, v any) error {
	buf, err := cbor.Marshal(v)
	if err != nil {
		return errors.WithMessagef(err, "could not encode %s", key)
	}
	return txn.Set(key, buf)
}

// InsertRunStart records a run start document.
func (s *Store) InsertRunStart(_ context.Context, start broker.Document) error {
	uid := start.UID()
	if uid == "" {
		return errors.Wrap(broker.ErrInvalidDocument, "run start without uid")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ok, err := has(txn, startKey(uid))
		if err != nil {
			return err
		}
		if ok {
			return errors.Wrapf(broker.ErrInvalidDocument, "run start %s already recorded", uid)
		}
		return set(txn, startKey(uid), map[string]any(start))
	})
}

// InsertDescriptor records a descriptor for an existing run.
func (s *Store) InsertDescriptor(_ context.Context, desc broker.Descriptor) error {
	if desc.UID == "" {
		return errors.Wrap(broker.ErrInvalidDocument, "descriptor without uid")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ok, err := has(txn, startKey(desc.RunStart))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(broker.ErrInvalidDocument, "descriptor %s: unknown run start %q", desc.UID, desc.RunStart)
		}
		ok, err = has(txn, descIndexKey(desc.UID))
		if err != nil {
			return err
		}
		if ok {
			return errors.Wrapf(broker.ErrInvalidDocument, "descriptor %s already recorded", desc.UID)
		}

		pos := 0
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := descPrefix(desc.RunStart)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pos++
		}
		it.Close()

		if err := set(txn, descKey(desc.RunStart, pos), desc); err != nil {
			return err
		}
		return txn.Set(descIndexKey(desc.UID), []byte(desc.RunStart))
	})
}

// InsertEvent records an event for an existing descriptor.
func (s *Store) InsertEvent(_ context.Context, ev broker.Event) error {
	return s.db.Update(func(txn *badger.Txn) error {
		ok, err := has(txn, descIndexKey(ev.Descriptor))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(broker.ErrInvalidDocument, "event %s: unknown descriptor %q", ev.UID, ev.Descriptor)
		}
		return set(txn, eventKey(ev.Descriptor, ev.UID), ev)
	})
}

// InsertRunStop records the stop document of an existing run.
func (s *Store) InsertRunStop(_ context.Context, runStart string, stop broker.Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		ok, err := has(txn, startKey(runStart))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(broker.ErrInvalidDocument, "run stop: unknown run start %q", runStart)
		}
		return set(txn, stopKey(runStart), map[string]any(stop))
	})
}

func (s *Store) header(txn *badger.Txn, uid string) (*broker.Header, error) {
	h := &broker.Header{}
	var start map[string]any
	if err := s.get(txn, startKey(uid), &start); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, errors.Wrapf(broker.ErrNotFound, "header %s", uid)
		}
		return nil, errors.WithMessagef(err, "could not read run start %s", uid)
	}
	h.Start = start

	var stop map[string]any
	switch err := s.get(txn, stopKey(uid), &stop); err {
	case nil:
		h.Stop = stop
	case badger.ErrKeyNotFound:
	default:
		return nil, errors.WithMessagef(err, "could not read run stop of %s", uid)
	}

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	prefix := descPrefix(uid)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var d broker.Descriptor
		err := it.Item().Value(func(val []byte) error {
			return s.dec.Unmarshal(val, &d)
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "could not decode descriptor of %s", uid)
		}
		h.Descriptors = append(h.Descriptors, d)
	}
	return h, nil
}

// Header returns the run whose start uid is uid.
func (s *Store) Header(_ context.Context, uid string) (*broker.Header, error) {
	var h *broker.Header
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = s.header(txn, uid)
		return err
	})
	return h, err
}

// Headers returns every run ordered by start time.
func (s *Store) Headers(_ context.Context) ([]*broker.Header, error) {
	var out []*broker.Header
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := []byte("start/")
		var uids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			uids = append(uids, string(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, uid := range uids {
			h, err := s.header(txn, uid)
			if err != nil {
				return err
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	broker.SortHeaders(out)
	return out, nil
}

// Events returns the descriptor's events in time order.
func (s *Store) Events(_ context.Context, descriptorUID string) ([]broker.Event, error) {
	out := []broker.Event{}
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := has(txn, descIndexKey(descriptorUID))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(broker.ErrNotFound, "descriptor %s", descriptorUID)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := eventPrefix(descriptorUID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev broker.Event
			err := it.Item().Value(func(val []byte) error {
				return s.dec.Unmarshal(val, &ev)
			})
			if err != nil {
				return errors.WithMessagef(err, "could not decode event of %s", descriptorUID)
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	broker.SortEvents(out)
	return out, nil
}
