package mime

import (
	"sort"
	"strings"

	"github.com/tiihttp/tii/internal/qvalue"
)

// AcceptEntry is one weighted entry of a parsed Accept header.
type AcceptEntry struct {
	Type MediaType
	Q    qvalue.QValue
}

// Accept is a parsed Accept header: entries sorted by q-value descending,
// stable on ties (spec data model: "parsed Accept list (sorted by q-value
// descending, stable)").
type Accept []AcceptEntry

// DefaultAccept is used when a request declares no Accept header: "*/*"
// at q=1.0 (spec §4.2 step 7).
func DefaultAccept() Accept {
	return Accept{{Type: Wildcard, Q: qvalue.Max}}
}

// ParseAccept parses a full Accept header value: a comma-separated list
// of media ranges, each optionally followed by ";q=value" (and other
// ignored parameters).
func ParseAccept(raw string) (Accept, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAccept(), true
	}
	var out Accept
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segs := strings.Split(part, ";")
		mt, ok := Parse(strings.TrimSpace(segs[0]))
		if !ok {
			return nil, false
		}
		q := qvalue.Max
		for _, param := range segs[1:] {
			param = strings.TrimSpace(param)
			name, val, found := strings.Cut(param, "=")
			if !found || strings.TrimSpace(name) != "q" {
				continue
			}
			parsed, ok := qvalue.Parse(strings.TrimSpace(val))
			if !ok {
				return nil, false
			}
			q = parsed
		}
		out = append(out, AcceptEntry{Type: mt, Q: q})
	}
	if len(out) == 0 {
		return nil, false
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Q > out[j].Q })
	return out, true
}

// BestQuality returns the highest q-value among entries in a that permit
// produced, and whether any entry permitted it at all (spec §4.4: "find
// the maximum q-value over Accept × produces where accept entry permits
// a produced type").
func (a Accept) BestQuality(produces []MediaType) (qvalue.QValue, bool) {
	best := qvalue.Zero
	found := false
	for _, entry := range a {
		for _, p := range produces {
			if entry.Type.Permits(p) {
				if !found || entry.Q > best {
					best = entry.Q
					found = true
				}
			}
		}
	}
	return best, found
}

// BestType returns the entry of produces with the highest q-value among
// entries in a that permit it, and whether any entry permitted one at
// all. Where BestQuality only reports the winning weight, BestType also
// reports which concrete type won, for a caller (entity-body content
// negotiation) that has to pick exactly one of several producible types
// to actually serialize into. Ties keep the earlier entry in produces.
func (a Accept) BestType(produces []MediaType) (MediaType, bool) {
	var bestType MediaType
	best := qvalue.Zero
	found := false
	for _, entry := range a {
		for _, p := range produces {
			if entry.Type.Permits(p) {
				if !found || entry.Q > best {
					best = entry.Q
					bestType = p
					found = true
				}
			}
		}
	}
	return bestType, found
}

// String renders the Accept header back to wire form.
func (a Accept) String() string {
	parts := make([]string, 0, len(a))
	for _, e := range a {
		if e.Q == qvalue.Max {
			parts = append(parts, e.Type.String())
			continue
		}
		parts = append(parts, e.Type.String()+";q="+e.Q.String())
	}
	return strings.Join(parts, ", ")
}
