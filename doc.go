// Package h5export writes experiment runs held by a data-acquisition broker
// into HDF5 files.
//
// A run ("header") is a start document, a stop document and an ordered list
// of descriptors; each descriptor declares the fields recorded in its
// events. Export lays each run out as a group holding the run metadata as
// attributes, one subgroup per descriptor, and one data and one timestamps
// dataset per field:
//
//	store := broker.NewMemory()
//	uid, _ := sampledata.TemperatureRamp(ctx, store, sampledata.Options{})
//	h, _ := store.Header(ctx, uid)
//
//	err := h5export.ExportHeader(ctx, store, h, "run.h5",
//	    h5export.WithFields("Tsam"))
//
// FilterFields computes a field allow-list from the fields a set of runs
// declares minus an excluded set.
//
// HDF5 encoding is done by github.com/scigolib/hdf5. Export is synchronous
// and single-threaded; concurrent writers to one file are not supported.
package h5export
