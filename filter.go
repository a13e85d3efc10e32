package h5export

import (
	"sort"

	"github.com/scigolib/h5export/broker"
)

// FilterFields returns the sorted names of every field declared by the
// descriptors of headers, minus those in excluded.
//
// Example: for a run with fields {point_det, Tsam},
//
//	FilterFields(hs, []string{"point_det"}) // ["Tsam"]
func FilterFields(headers []*broker.Header, excluded []string) []string {
	drop := make(map[string]struct{}, len(excluded))
	for _, f := range excluded {
		drop[f] = struct{}{}
	}

	keep := make(map[string]struct{})
	for _, h := range headers {
		for i := range h.Descriptors {
			for field := range h.Descriptors[i].DataKeys {
				if _, ok := drop[field]; !ok {
					keep[field] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(keep))
	for f := range keep {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
