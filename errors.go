package h5export

import "errors"

var (
	// ErrTimestampOrder is returned when a field's timestamps within a
	// descriptor are not strictly increasing.
	ErrTimestampOrder = errors.New("timestamps not strictly increasing")

	// ErrDescriptorName is returned for name-based grouping when a
	// descriptor has no stream name.
	ErrDescriptorName = errors.New("descriptor has no name")

	// ErrMissingScanID is returned for name-based grouping when a run start
	// carries no integral scan_id.
	ErrMissingScanID = errors.New("run start has no scan_id")

	// ErrDuplicateGroup is returned when two objects would share one group.
	ErrDuplicateGroup = errors.New("duplicate group name")

	// ErrInvalidName is returned for a group or dataset name that cannot be
	// used as an HDF5 link name.
	ErrInvalidName = errors.New("invalid HDF5 name")

	// ErrUnsupportedValue is returned when a field value cannot be stored
	// with the field's dtype.
	ErrUnsupportedValue = errors.New("unsupported field value")
)
