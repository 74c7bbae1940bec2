package core

// DocumentKind tags a decoded Document.
type DocumentKind int

// DocumentKind constants.
const (
	DocExpected DocumentKind = iota
	DocUnexpected
	DocEnd
)

func (k DocumentKind) String() string {
	switch k {
	case DocExpected:
		return "expected"
	case DocUnexpected:
		return "unexpected"
	case DocEnd:
		return "end"
	}
	return "unknown"
}

// Document is one decoded unit of a response stream: Expected(T),
// Unexpected(raw) when the message did not fit T, or End.
type Document[T any] struct {
	kind   DocumentKind
	value  T
	raw    []byte
	reason error
}

// Expected wraps a successfully decoded value.
func Expected[T any](v T) Document[T] {
	return Document[T]{kind: DocExpected, value: v}
}

// Unexpected wraps a raw message that did not decode into T.
func Unexpected[T any](raw []byte, reason error) Document[T] {
	return Document[T]{kind: DocUnexpected, raw: raw, reason: reason}
}

// End marks stream closure.
func End[T any]() Document[T] {
	return Document[T]{kind: DocEnd}
}

// Kind returns the variant tag.
func (d Document[T]) Kind() DocumentKind { return d.kind }

// IsEnd reports whether d marks stream closure.
func (d Document[T]) IsEnd() bool { return d.kind == DocEnd }

// Value returns the decoded value for Expected documents.
func (d Document[T]) Value() (T, bool) {
	return d.value, d.kind == DocExpected
}

// Raw returns the undecoded message for Unexpected documents.
func (d Document[T]) Raw() ([]byte, bool) {
	return d.raw, d.kind == DocUnexpected
}

// Reason explains why an Unexpected document did not decode.
func (d Document[T]) Reason() error { return d.reason }

// Match calls exactly one of the handlers depending on the variant.
// All three are required so callers cannot forget a branch.
func (d Document[T]) Match(expected func(T), unexpected func(raw []byte, reason error), end func()) {
	switch d.kind {
	case DocExpected:
		expected(d.value)
	case DocUnexpected:
		unexpected(d.raw, d.reason)
	default:
		end()
	}
}
