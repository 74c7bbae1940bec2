package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
)

// listener receives notifications on one dedicated connection.
type listener interface {
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type pgxListener struct {
	conn *pgx.Conn
}

func (l *pgxListener) Listen(ctx context.Context, channel string) error {
	_, err := l.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	return err
}

func (l *pgxListener) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return l.conn.WaitForNotification(ctx)
}

func (l *pgxListener) Close(ctx context.Context) error { return l.conn.Close(ctx) }

// Adapter implements adapter.Adapter and adapter.Installer for PostgreSQL.
// Snapshot reads and trigger installation go through database/sql; every
// feed holds its own pgx connection for LISTEN.
type Adapter struct {
	adapter.SQLConn

	dial func(ctx context.Context) (listener, error)

	mu    sync.Mutex
	feeds map[*feed]struct{}
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Adapter{
		SQLConn: adapter.SQLConn{Logger: logger},
		feeds:   make(map[*feed]struct{}),
	}
	a.dial = a.dialListener
	return a
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return core.NewTransportError("connect", fmt.Errorf("failed to open postgres connection: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return core.NewTransportError("connect", fmt.Errorf("failed to ping postgres: %w", err))
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

func (a *Adapter) dialListener(ctx context.Context) (listener, error) {
	conn, err := pgx.Connect(ctx, buildPostgresDSN(a.Cfg))
	if err != nil {
		return nil, err
	}
	return &pgxListener{conn: conn}, nil
}

// schemaFor maps a database name onto a schema. The default database
// ("test" or the configured one) is the public schema.
func (a *Adapter) schemaFor(db string) string {
	if db == "" || db == "test" || db == a.Cfg.Database {
		return "public"
	}
	return db
}

// channelFor names the notification channel of schema.table.
func channelFor(schema, table string) string {
	return "changefeed_" + schema + "_" + table
}

// Run implements core.Conn. Feeds subscribe before snapshotting so that
// include_initial cannot miss a concurrent write.
func (a *Adapter) Run(ctx context.Context, q core.WireQuery) (core.Cursor, error) {
	if !a.Connected() {
		return nil, &core.Error{Kind: core.KindTransport, Code: core.CodeClosed, Op: "run", Msg: "database connection not established"}
	}
	plan, err := adapter.PlanFeed(q, a.Cfg.Database)
	if err != nil {
		return nil, err
	}
	schema := a.schemaFor(plan.DB)
	if !adapter.ValidIdentifier(schema) || !adapter.ValidIdentifier(plan.Table) {
		return nil, core.NewServerError("run", fmt.Sprintf("invalid table name %s.%s", schema, plan.Table))
	}

	if !plan.IsFeed() {
		readCtx, cancel := context.WithCancel(context.Background())
		cur := adapter.NewChanCursor(0, cancel)
		go func() {
			defer cancel()
			err := a.snapshot(readCtx, schema, plan, cur, false)
			if err != nil {
				cur.Fail(err)
				return
			}
			cur.Finish()
		}()
		return cur, nil
	}
	return a.subscribe(ctx, schema, plan)
}

// snapshot streams the current rows of a table into cur.
func (a *Adapter) snapshot(ctx context.Context, schema string, plan *adapter.FeedPlan, cur *adapter.ChanCursor, initial bool) error {
	stmt := fmt.Sprintf("SELECT row_to_json(t)::text FROM %s.%s t", schema, plan.Table)
	rows, err := a.DB.QueryContext(ctx, stmt)
	if err != nil {
		return core.NewServerError("run", err.Error())
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return core.NewTransportError("scan", err)
		}
		var row any
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return core.NewTransportError("scan", err)
		}
		doc, ok, err := plan.Filter.Initial(row)
		if err != nil {
			a.Logger.Warn("predicate failed", slog.String("table", plan.Key()), slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		var out any = row
		if initial {
			out = doc
		}
		msg, err := json.Marshal(out)
		if err != nil {
			return err
		}
		if err := cur.Push(ctx, msg); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return core.NewTransportError("scan", err)
	}
	return nil
}

// Close ends every open feed and closes the database handle.
func (a *Adapter) Close() error {
	a.mu.Lock()
	feeds := make([]*feed, 0, len(a.feeds))
	for f := range a.feeds {
		feeds = append(feeds, f)
	}
	a.mu.Unlock()

	for _, f := range feeds {
		f.stop()
	}
	return a.CloseDB()
}
