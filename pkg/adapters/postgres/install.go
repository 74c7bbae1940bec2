package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/changefeed/pkg/adapter"
)

// notifyFunction publishes every row change on the table's channel.
// NOTIFY payloads are limited to 8000 bytes; larger rows fail the write.
const notifyFunction = `CREATE OR REPLACE FUNCTION changefeed_notify() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify(
    'changefeed_' || TG_TABLE_SCHEMA || '_' || TG_TABLE_NAME,
    json_build_object(
      'old_val', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END,
      'new_val', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END
    )::text
  );
  RETURN NULL;
END;
$$ LANGUAGE plpgsql`

// Install creates the notify function and a trigger on each table. Tables
// may be qualified as schema.table; unqualified names use public. Every
// name is checked before anything is executed, and each table's trigger
// is replaced in its own transaction.
func (a *Adapter) Install(ctx context.Context, tables []string) error {
	if !a.Connected() {
		return adapter.ErrNotConnected
	}

	type target struct{ qualified, trigger string }
	targets := make([]target, 0, len(tables))
	for _, name := range tables {
		schema, table := "public", name
		if s, t, ok := strings.Cut(name, "."); ok {
			schema, table = s, t
		}
		qualified, err := adapter.QualifiedName(schema, table)
		if err != nil {
			return err
		}
		targets = append(targets, target{qualified: qualified, trigger: "changefeed_" + table})
	}

	if err := a.Exec(ctx, notifyFunction); err != nil {
		return err
	}
	for _, t := range targets {
		err := a.ExecTx(ctx,
			fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", t.trigger, t.qualified),
			fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION changefeed_notify()",
				t.trigger, t.qualified),
		)
		if err != nil {
			return fmt.Errorf("installing trigger on %s: %w", t.qualified, err)
		}
		a.Logger.Info("installed change trigger", slog.String("table", t.qualified))
	}
	return nil
}
