package patterns

import (
	"fmt"
)

// Catalog resolves the markers to search for. It is immutable once built and
// is passed explicitly to every extraction, so concurrent requests with
// different overrides never see each other's patterns.
type Catalog struct {
	defaults  Set
	overrides Set
}

// NewCatalog builds a catalog over the built-in defaults. overrides may be
// nil or partial; any (view, section) it defines replaces the default list
// wholesale.
func NewCatalog(overrides *Set) *Catalog {
	c := &Catalog{defaults: Defaults(), overrides: NewSet()}
	if overrides != nil {
		c.overrides = overrides.Clone()
	}
	return c
}

// NewCatalogFrom builds a catalog over a caller-provided base table instead
// of the built-in one. Used when the base itself comes from configuration.
func NewCatalogFrom(base Set, overrides *Set) *Catalog {
	c := &Catalog{defaults: base.Clone(), overrides: NewSet()}
	if overrides != nil {
		c.overrides = overrides.Clone()
	}
	return c
}

// Default returns a catalog with no overrides.
func Default() *Catalog {
	return NewCatalog(nil)
}

// Markers returns the candidates for (view, section): the override verbatim
// when one is defined, otherwise the default list. The two are never merged.
func (c *Catalog) Markers(view View, section Section) Markers {
	if m, ok := c.overrides.Lookup(view, section); ok {
		return m.Clone()
	}
	m, _ := c.defaults.Lookup(view, section)
	return m.Clone()
}

// Overridden reports whether (view, section) resolves to an override.
func (c *Catalog) Overridden(view View, section Section) bool {
	_, ok := c.overrides.Lookup(view, section)
	return ok
}

// SliceStart returns the markers that open the answer-key or explanation
// region, with the same replace-not-merge rule as Markers.
func (c *Catalog) SliceStart(view View) []string {
	if list := c.overrides.SliceStart[view]; len(list) > 0 {
		return cloneStrings(list)
	}
	return cloneStrings(c.defaults.SliceStart[view])
}

// Effective returns the fully resolved table this catalog searches with.
func (c *Catalog) Effective() Set {
	out := NewSet()
	for _, v := range Views {
		for _, sec := range Sections {
			out.Put(v, sec, c.Markers(v, sec))
		}
	}
	for _, v := range []View{ViewAnswerKeys, ViewExplanations} {
		out.PutSliceStart(v, c.SliceStart(v))
	}
	return out
}

// Overrides returns a copy of the override layer.
func (c *Catalog) Overrides() Set {
	return c.overrides.Clone()
}

// MarkerKind selects the start or end list of a section.
type MarkerKind string

const (
	MarkerStart MarkerKind = "start"
	MarkerEnd   MarkerKind = "end"
)

// WithPrepended returns a new catalog where pattern is the highest-priority
// candidate of the chosen list. The receiver is left untouched. The change is
// recorded in the override layer so it applies even when the section was
// previously resolved from the defaults.
func (c *Catalog) WithPrepended(view View, section Section, kind MarkerKind, pattern string) (*Catalog, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern for %s/%s/%s", view, section, kind)
	}
	m := c.Markers(view, section)
	switch kind {
	case MarkerStart:
		m.Start = append([]string{pattern}, m.Start...)
	case MarkerEnd:
		m.End = append([]string{pattern}, m.End...)
	default:
		return nil, fmt.Errorf("invalid marker kind %q (use start or end)", kind)
	}

	next := &Catalog{defaults: c.defaults.Clone(), overrides: c.overrides.Clone()}
	next.overrides.Put(view, section, m)
	return next, nil
}
