package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// ErrNotConnected is returned by SQL helpers before Connect succeeded.
var ErrNotConnected = errors.New("database connection not established")

// SQLConn holds the database/sql handle of transports that read snapshots
// and manage server-side objects (functions, triggers) over SQL.
type SQLConn struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Connected reports whether Connect has set a database handle.
func (c *SQLConn) Connected() bool {
	return c.DB != nil
}

// Exec runs one statement that returns no rows.
func (c *SQLConn) Exec(ctx context.Context, stmt string, args ...any) error {
	if c.DB == nil {
		return ErrNotConnected
	}
	if _, err := c.DB.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// ExecTx runs stmts in a single transaction. The first failing statement
// rolls the whole batch back.
func (c *SQLConn) ExecTx(ctx context.Context, stmts ...string) (err error) {
	if c.DB == nil {
		return ErrNotConnected
	}
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CloseDB closes and forgets the database handle. It is a no-op when not
// connected.
func (c *SQLConn) CloseDB() error {
	if c.DB == nil {
		return nil
	}
	if c.Logger != nil {
		c.Logger.Debug("closing database connection", slog.String("type", c.Cfg.Type))
	}
	err := c.DB.Close()
	c.DB = nil
	return err
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be spliced into SQL unquoted.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

// QualifiedName joins schema and table after checking both are plain
// identifiers.
func QualifiedName(schema, table string) (string, error) {
	if !ValidIdentifier(schema) || !ValidIdentifier(table) {
		return "", fmt.Errorf("invalid table name %q", schema+"."+table)
	}
	return schema + "." + table, nil
}
