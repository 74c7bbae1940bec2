package format

import "strings"

// chainIndent prefixes each chained call in multi-line output.
const chainIndent = "  "

// printer accumulates rendered ReQL. Chained calls after the root term
// start a new indented line when multiline is set.
type printer struct {
	b         strings.Builder
	multiline bool
}

func newPrinter(multiline bool) *printer {
	return &printer{multiline: multiline}
}

// String returns the rendering; multi-line output ends in a newline.
func (p *printer) String() string {
	if p.multiline {
		return p.b.String() + "\n"
	}
	return p.b.String()
}

func (p *printer) write(s string) {
	p.b.WriteString(s)
}

// chainBreak starts the next chained call.
func (p *printer) chainBreak() {
	if p.multiline {
		p.b.WriteString("\n" + chainIndent)
	}
}

// writeList writes n items separated by ", ".
func (p *printer) writeList(n int, item func(i int)) {
	for i := range n {
		if i > 0 {
			p.write(", ")
		}
		item(i)
	}
}
