// Package h5tree indexes an HDF5 file by absolute object path, for reading
// exported files back in tests and for the ls command.
package h5tree

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/scigolib/hdf5"
)

// Node is one group or dataset.
type Node struct {
	Path    string
	Group   *hdf5.Group   // nil for datasets
	Dataset *hdf5.Dataset // nil for groups
}

// IsGroup reports whether the node is a group.
func (n *Node) IsGroup() bool {
	return n.Group != nil
}

// Tree is an opened HDF5 file indexed by path.
type Tree struct {
	file  *hdf5.File
	nodes map[string]*Node
}

// Open reads the structure of the file at filename.
func Open(filename string) (*Tree, error) {
	f, err := hdf5.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	t := &Tree{file: f, nodes: make(map[string]*Node)}
	t.index(f.Root(), "/")
	return t, nil
}

// index records g at p and recurses. Child names are reduced to their last
// path element because the reader may report either form.
func (t *Tree) index(g *hdf5.Group, p string) {
	t.nodes[p] = &Node{Path: p, Group: g}
	for _, child := range g.Children() {
		name := path.Base(strings.TrimSuffix(child.Name(), "/"))
		childPath := path.Join(p, name)
		switch obj := child.(type) {
		case *hdf5.Group:
			t.index(obj, childPath)
		case *hdf5.Dataset:
			t.nodes[childPath] = &Node{Path: childPath, Dataset: obj}
		}
	}
}

// Close closes the underlying file.
func (t *Tree) Close() error {
	return t.file.Close()
}

func clean(p string) string {
	return path.Join("/", p)
}

// Lookup returns the node at p.
func (t *Tree) Lookup(p string) (*Node, bool) {
	n, ok := t.nodes[clean(p)]
	return n, ok
}

// Has reports whether an object exists at p.
func (t *Tree) Has(p string) bool {
	_, ok := t.Lookup(p)
	return ok
}

// Paths returns every object path in sorted order.
func (t *Tree) Paths() []string {
	out := make([]string, 0, len(t.nodes))
	for p := range t.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Children returns the sorted link names directly under the group at p.
func (t *Tree) Children(p string) []string {
	p = clean(p)
	var out []string
	for q := range t.nodes {
		if q != "/" && path.Dir(q) == p {
			out = append(out, path.Base(q))
		}
	}
	sort.Strings(out)
	return out
}

// GroupAttribute reads the named attribute of the group at p.
func (t *Tree) GroupAttribute(p, name string) (interface{}, error) {
	n, ok := t.Lookup(p)
	if !ok || !n.IsGroup() {
		return nil, fmt.Errorf("group %q not found", p)
	}
	attrs, err := n.Group.Attributes()
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", p, err)
	}
	for _, a := range attrs {
		if a.Name == name {
			return a.ReadValue()
		}
	}
	return nil, fmt.Errorf("attribute %q not found on %s", name, p)
}

// GroupAttributeNames lists the attribute names of the group at p.
func (t *Tree) GroupAttributeNames(p string) ([]string, error) {
	n, ok := t.Lookup(p)
	if !ok || !n.IsGroup() {
		return nil, fmt.Errorf("group %q not found", p)
	}
	attrs, err := n.Group.Attributes()
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", p, err)
	}
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a.Name)
	}
	sort.Strings(out)
	return out, nil
}

func (t *Tree) dataset(p string) (*hdf5.Dataset, error) {
	n, ok := t.Lookup(p)
	if !ok || n.IsGroup() {
		return nil, fmt.Errorf("dataset %q not found", p)
	}
	return n.Dataset, nil
}

// ReadFloat64 reads a numeric dataset, converted to float64.
func (t *Tree) ReadFloat64(p string) ([]float64, error) {
	ds, err := t.dataset(p)
	if err != nil {
		return nil, err
	}
	return ds.Read()
}

// ReadStrings reads a fixed-length string dataset.
func (t *Tree) ReadStrings(p string) ([]string, error) {
	ds, err := t.dataset(p)
	if err != nil {
		return nil, err
	}
	return ds.ReadStrings()
}

// Print writes an indented listing of the tree. With info set, datasets
// are followed by their type and shape.
func (t *Tree) Print(w io.Writer, info bool) error {
	if _, err := fmt.Fprintln(w, "/"); err != nil {
		return err
	}
	return t.print(w, "/", 0, info)
}

func (t *Tree) print(w io.Writer, p string, depth int, info bool) error {
	for _, name := range t.Children(p) {
		childPath := path.Join(p, name)
		n := t.nodes[childPath]
		line := strings.Repeat("  ", depth) + name
		if n.IsGroup() {
			line += "/"
		} else if info {
			if desc, err := n.Dataset.Info(); err == nil {
				line += "  " + strings.Join(strings.Fields(desc), " ")
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if n.IsGroup() {
			if err := t.print(w, childPath, depth+1, info); err != nil {
				return err
			}
		}
	}
	return nil
}
