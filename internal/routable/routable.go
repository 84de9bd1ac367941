// Package routable defines the item flowing through the router and the
// tagged scalar value type the rule language computes over.
//
// A Routable is one message for one pass over the rule program: typically a
// file path handed to the CLI or surfaced by the directory watcher, but any
// text can be routed. The rule program reads and mutates its fields through
// the session environment's reserved names.
package routable

import (
	"fmt"
	"sort"
	"strings"
)

// Routable is a single item to be routed. It is created by the driver for
// each input, mutated only through the environment's reserved names, and
// discarded after the routing pass.
type Routable struct {
	// Src identifies where the message came from.
	Src string
	// Dst is where the source thinks the message should be routed.
	Dst string

	// Data is the thing being routed. OriginalData is an immutable
	// snapshot of Data at ingestion.
	Data         Value
	OriginalData Value

	// Type is "text", "file", "dir", or caller-supplied.
	Type string

	// Wdir is the working directory for resolving a relative Data path.
	// Nil-kind when unset.
	Wdir Value

	// Attr carries free-form string attributes. Serialized form is
	// comma-joined k=v pairs.
	Attr map[string]string
}

// AttrString renders the attribute map as "k1=v1,k2=v2" in sorted key order.
func (r *Routable) AttrString() string {
	if len(r.Attr) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Attr))
	for k := range r.Attr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, r.Attr[k]))
	}
	return strings.Join(pairs, ",")
}

// SetAttrString replaces the attribute map from the serialized "k=v,k=v"
// form. A pair with no "=" maps the whole token to the empty string.
func (r *Routable) SetAttrString(s string) {
	attr := map[string]string{}
	if s != "" {
		for _, pair := range strings.Split(s, ",") {
			k, v, _ := strings.Cut(pair, "=")
			attr[k] = v
		}
	}
	r.Attr = attr
}
