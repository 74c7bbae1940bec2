// Package format renders query trees as human-readable ReQL chains.
package format

import (
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Format renders a query tree with one chained call per line.
func Format(t core.Term) string {
	p := newPrinter(true)
	p.formatTerm(t)
	return p.String()
}

// Inline renders a query tree on a single line.
func Inline(t core.Term) string {
	p := newPrinter(false)
	p.formatTerm(t)
	return p.String()
}
