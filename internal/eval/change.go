package eval

import (
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// ChangeFilter turns raw row modifications into the change documents a
// filtered feed would emit.
type ChangeFilter struct {
	// Predicates must all hold; none passes every document.
	Predicates   []core.Term
	IncludeTypes bool
}

// NewChangeFilter extracts the predicate and options from a changes query.
// Stacked filters must all match.
func NewChangeFilter(c *core.Changes) ChangeFilter {
	var preds []core.Term
	for t := c.Source; t != nil; {
		f, ok := t.(*core.Filter)
		if !ok {
			break
		}
		preds = append(preds, f.Predicate)
		t = f.Source
	}

	return ChangeFilter{
		Predicates:   preds,
		IncludeTypes: c.Options.Bool("include_types", core.ChangesOptions),
	}
}

// Apply filters one modification. oldVal is nil for inserts and newVal is
// nil for deletes. A side that does not match the predicate is dropped; ok
// is false when neither side survives.
func (f ChangeFilter) Apply(oldVal, newVal any) (doc map[string]any, ok bool, err error) {
	if len(f.Predicates) > 0 {
		if oldVal != nil {
			match, err := f.match(oldVal)
			if err != nil {
				return nil, false, err
			}
			if !match {
				oldVal = nil
			}
		}
		if newVal != nil {
			match, err := f.match(newVal)
			if err != nil {
				return nil, false, err
			}
			if !match {
				newVal = nil
			}
		}
	}
	if oldVal == nil && newVal == nil {
		return nil, false, nil
	}

	doc = map[string]any{"old_val": oldVal, "new_val": newVal}
	if f.IncludeTypes {
		doc["type"] = ResultType(oldVal, newVal)
	}
	return doc, true, nil
}

// Initial builds the document emitted for an existing row when the feed
// asks for include_initial. ok is false when the row does not match.
func (f ChangeFilter) Initial(val any) (doc map[string]any, ok bool, err error) {
	if len(f.Predicates) > 0 {
		match, err := f.match(val)
		if err != nil || !match {
			return nil, false, err
		}
	}
	doc = map[string]any{"new_val": val}
	if f.IncludeTypes {
		doc["type"] = core.ResultInitial
	}
	return doc, true, nil
}

func (f ChangeFilter) match(doc any) (bool, error) {
	for _, p := range f.Predicates {
		m, err := Match(p, doc)
		if err != nil || !m {
			return false, err
		}
	}
	return true, nil
}

// ResultType names a modification by which sides are present.
func ResultType(oldVal, newVal any) string {
	switch {
	case oldVal == nil:
		return core.ResultAdd
	case newVal == nil:
		return core.ResultRemove
	default:
		return core.ResultChange
	}
}
