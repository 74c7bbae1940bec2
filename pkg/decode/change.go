package decode

import "github.com/leapstack-labs/changefeed/pkg/core"

// NewChangeDecoder decodes change documents. A message must be an object
// carrying old_val or new_val whose values agree with its result type
// (core.Change.Validate); state documents such as {"state":"ready"} and
// anything else become Unexpected.
func NewChangeDecoder[T any](opts ...Option) (*Decoder[core.Change[T]], error) {
	opts = append([]Option{WithAnyOfKeys("old_val", "new_val")}, opts...)
	return New[core.Change[T]](opts...)
}

// DecodeChange decodes a single change document with default options.
func DecodeChange[T any](raw []byte) core.Document[core.Change[T]] {
	d, _ := NewChangeDecoder[T]()
	return d.Decode(raw)
}
