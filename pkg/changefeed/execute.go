package changefeed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/decode"
	"github.com/leapstack-labs/changefeed/pkg/query"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

// Option configures Execute, ToChangeStream and Watch.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	decodeOpts []decode.Option
	wireOpts   []wire.Option
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// WithLogger sets the logger for stream and feed diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDecodeOptions passes options to the change decoder.
func WithDecodeOptions(opts ...decode.Option) Option {
	return func(c *config) { c.decodeOpts = append(c.decodeOpts, opts...) }
}

// WithWireOptions passes options to the serializer used by Watch.
func WithWireOptions(opts ...wire.Option) Option {
	return func(c *config) { c.wireOpts = append(c.wireOpts, opts...) }
}

// Execute submits q on conn and returns the decoded response stream.
// The caller keeps ownership of conn; closing the stream closes only the
// query's cursor.
func Execute[T any](ctx context.Context, conn core.Conn, q core.WireQuery, opts ...Option) (*decode.Stream[core.Change[T]], error) {
	cfg := newConfig(opts)

	dec, err := decode.NewChangeDecoder[T](cfg.decodeOpts...)
	if err != nil {
		return nil, err
	}

	cfg.logger.Debug("running query", "bytes", len(q))
	cursor, err := conn.Run(ctx, q)
	if err != nil {
		var cerr *core.Error
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, core.NewTransportError("run", err)
	}
	return decode.NewStream(cursor, dec, cfg.logger), nil
}

// Watch builds, serializes and executes a change query, returning the feed.
// Build and serialization errors are returned before conn is touched.
func Watch[T any](ctx context.Context, conn core.Conn, term query.Term, opts ...Option) (*Feed[T], error) {
	cfg := newConfig(opts)

	node, err := term.Build()
	if err != nil {
		return nil, err
	}
	wireOpts := cfg.wireOpts
	if fields := term.Fields(); fields != nil {
		wireOpts = append([]wire.Option{wire.WithFields(fields)}, wireOpts...)
	}
	q, err := wire.Serialize(node, wireOpts...)
	if err != nil {
		return nil, err
	}

	stream, err := Execute[T](ctx, conn, q, opts...)
	if err != nil {
		return nil, err
	}
	return ToChangeStream(stream, opts...), nil
}
