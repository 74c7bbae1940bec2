// Package decode turns raw response messages into typed documents.
//
// A message that does not fit the target type never fails the stream: it
// becomes an Unexpected document carrying the raw bytes and the reason.
// Only transport failures end a Stream with an error.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

// Validator is implemented by target types that check their own invariants
// after unmarshalling. A non-nil error turns the document into Unexpected.
type Validator interface {
	Validate() error
}

// Option configures a Decoder.
type Option func(*options)

type options struct {
	schema    *gojsonschema.Schema
	schemaErr error
	strict    bool
	anyOfKeys []string
}

// WithJSONSchema validates every message against a JSON schema document
// before unmarshalling.
func WithJSONSchema(schema []byte) Option {
	return func(o *options) {
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
		if err != nil {
			o.schemaErr = fmt.Errorf("compile json schema: %w", err)
			return
		}
		o.schema = s
	}
}

// WithSchema uses an already compiled schema.
func WithSchema(s *gojsonschema.Schema) Option {
	return func(o *options) { o.schema = s }
}

// WithStrictFields rejects objects carrying fields the target type does not declare.
func WithStrictFields() Option {
	return func(o *options) { o.strict = true }
}

// WithAnyOfKeys requires the message to be an object holding at least one of keys.
func WithAnyOfKeys(keys ...string) Option {
	return func(o *options) { o.anyOfKeys = append(o.anyOfKeys, keys...) }
}

// Decoder interprets raw messages as T.
type Decoder[T any] struct {
	opts     options
	nullable bool
}

// New creates a decoder for T. It fails only when a supplied JSON schema
// does not compile.
func New[T any](opts ...Option) (*Decoder[T], error) {
	d := &Decoder[T]{}
	for _, o := range opts {
		o(&d.opts)
	}
	if d.opts.schemaErr != nil {
		return nil, d.opts.schemaErr
	}
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		d.nullable = true
	}
	return d, nil
}

// MustNew is New for options known to be valid.
func MustNew[T any](opts ...Option) *Decoder[T] {
	d, err := New[T](opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Decode interprets raw as T with default options.
func Decode[T any](raw []byte) core.Document[T] {
	return MustNew[T]().Decode(raw)
}

// Decode interprets raw as T. It never panics and never returns an error:
// anything that does not fit T is returned as Unexpected.
func (d *Decoder[T]) Decode(raw []byte) core.Document[T] {
	msg := bytes.Clone(raw)
	trimmed := bytes.TrimSpace(msg)

	if len(trimmed) == 0 {
		return core.Unexpected[T](msg, core.NewDecodeError("empty message", nil))
	}
	if !json.Valid(trimmed) {
		return core.Unexpected[T](msg, core.NewDecodeError("message is not valid JSON", nil))
	}
	if bytes.Equal(trimmed, []byte("null")) && !d.nullable {
		return core.Unexpected[T](msg, core.NewDecodeError("null document", nil))
	}

	if len(d.opts.anyOfKeys) > 0 {
		if err := requireAnyKey(trimmed, d.opts.anyOfKeys); err != nil {
			return core.Unexpected[T](msg, err)
		}
	}

	if d.opts.schema != nil {
		if err := validateSchema(d.opts.schema, trimmed); err != nil {
			return core.Unexpected[T](msg, err)
		}
	}

	var v T
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if d.opts.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&v); err != nil {
		return core.Unexpected[T](msg, core.NewDecodeError(fmt.Sprintf("does not fit %s", typeName[T]()), err))
	}

	if err := validate(&v); err != nil {
		return core.Unexpected[T](msg, core.NewDecodeError("validation failed", err))
	}
	return core.Expected(v)
}

func validate[T any](v *T) error {
	if val, ok := any(v).(Validator); ok {
		return val.Validate()
	}
	if val, ok := any(*v).(Validator); ok {
		return val.Validate()
	}
	return nil
}

func requireAnyKey(msg []byte, keys []string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(msg, &obj); err != nil || obj == nil {
		return core.NewDecodeError("message is not an object", err)
	}
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return nil
		}
	}
	return core.NewDecodeError(fmt.Sprintf("message has none of %s", strings.Join(keys, ", ")), nil)
}

func validateSchema(schema *gojsonschema.Schema, msg []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(msg))
	if err != nil {
		return core.NewDecodeError("schema validation", err)
	}
	if res.Valid() {
		return nil
	}
	errs := make([]error, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		errs = append(errs, errors.New(e.String()))
	}
	return core.NewDecodeError("schema mismatch", errors.Join(errs...))
}

func typeName[T any]() string {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return "any"
	}
	return t.String()
}
