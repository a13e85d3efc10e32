package h5export

import (
	"fmt"
	"strings"

	"github.com/scigolib/h5export/broker"
)

// validateName checks that name can be used as a single HDF5 link name.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("name %q contains '/': %w", name, ErrInvalidName)
	}
	if strings.Trim(name, ".") == "" {
		return fmt.Errorf("name %q: %w", name, ErrInvalidName)
	}
	return nil
}

// headerGroupName returns the top-level group name for h.
func headerGroupName(h *broker.Header, useUID bool) (string, error) {
	var name string
	if useUID {
		name = h.UID()
	} else {
		id, ok := h.ScanID()
		if !ok {
			return "", fmt.Errorf("run %s: %w", h.UID(), ErrMissingScanID)
		}
		name = fmt.Sprintf("data_%d", id)
	}
	if err := validateName(name); err != nil {
		return "", fmt.Errorf("run group: %w", err)
	}
	return name, nil
}

// descriptorGroupName returns the group name for d under its run group.
func descriptorGroupName(d *broker.Descriptor, useUID bool) (string, error) {
	name := d.UID
	if !useUID {
		if d.Name == "" {
			return "", fmt.Errorf("descriptor %s: %w", d.UID, ErrDescriptorName)
		}
		name = d.Name
	}
	if err := validateName(name); err != nil {
		return "", fmt.Errorf("descriptor group: %w", err)
	}
	return name, nil
}

// joinPath builds an absolute HDF5 path from link names.
func joinPath(parts ...string) string {
	return "/" + strings.Join(parts, "/")
}
