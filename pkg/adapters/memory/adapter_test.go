package memory

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/internal/testutil"
	"github.com/leapstack-labs/changefeed/pkg/adapter"
	"github.com/leapstack-labs/changefeed/pkg/core"
	"github.com/leapstack-labs/changefeed/pkg/query"
	"github.com/leapstack-labs/changefeed/pkg/wire"
)

func numberFeed(t *testing.T, opts core.Options) core.WireQuery {
	t.Helper()
	node, err := query.Table("test").
		Filter(query.Row.HasFields("test").And(query.Row.Field("test").TypeOf().Eq("NUMBER"))).
		Changes(opts).Build()
	require.NoError(t, err)
	return wire.MustSerialize(node)
}

func next(t *testing.T, c core.Cursor) map[string]any {
	t.Helper()
	msg, err := c.Next(context.Background())
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg, &out))
	return out
}

func TestAdapter_FilteredFeed(t *testing.T) {
	a := New(testutil.NewTestLogger(t))
	require.NoError(t, a.Connect(context.Background(), adapter.Config{Type: "memory"}))

	cur, err := a.Run(context.Background(), numberFeed(t, core.Options{"include_types": true}))
	require.NoError(t, err)
	defer cur.Close()
	assert.Equal(t, 1, a.Subscribers("test"))

	require.NoError(t, a.Insert("test", map[string]any{"id": 1.0, "test": 1.0}))
	require.NoError(t, a.Insert("test", map[string]any{"id": 2.0, "test": "x"}))
	require.NoError(t, a.Replace("test", 1.0, map[string]any{"id": 1.0, "test": "y"}))

	add := next(t, cur)
	assert.Equal(t, "add", add["type"])
	assert.Nil(t, add["old_val"])

	rm := next(t, cur)
	assert.Equal(t, "remove", rm["type"])
	assert.Equal(t, 1.0, rm["old_val"].(map[string]any)["test"])
	assert.Nil(t, rm["new_val"])
}

func TestAdapter_DeleteAndEnd(t *testing.T) {
	a := New(nil)
	cur, err := a.Run(context.Background(), numberFeed(t, nil))
	require.NoError(t, err)

	require.NoError(t, a.Insert("test", map[string]any{"id": "a", "test": 2.0}))
	require.NoError(t, a.Delete("test", "a"))
	a.EndFeeds("test")

	ins := next(t, cur)
	_, typed := ins["type"]
	assert.False(t, typed)
	del := next(t, cur)
	assert.Nil(t, del["new_val"])

	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	assert.Error(t, a.Delete("test", "a"))
}

func TestAdapter_EndedFeedsAreUnsubscribed(t *testing.T) {
	a := New(nil)
	ended, err := a.Run(context.Background(), numberFeed(t, nil))
	require.NoError(t, err)
	defer ended.Close()
	failed, err := a.Run(context.Background(), numberFeed(t, core.Options{"changefeed_queue_size": 1}))
	require.NoError(t, err)
	defer failed.Close()

	a.EndFeeds("test")
	assert.Equal(t, 0, a.Subscribers("test"))

	require.NoError(t, a.Insert("test", map[string]any{"id": 1.0, "test": 1.0}))
	a.Inject("test", []byte(`late`))

	_, err = ended.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF, "writes after the end are not delivered")
	_, err = failed.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestAdapter_OverflowedFeedIsUnsubscribed(t *testing.T) {
	a := New(nil)
	cur, err := a.Run(context.Background(), numberFeed(t, core.Options{"changefeed_queue_size": 1}))
	require.NoError(t, err)
	defer cur.Close()

	require.NoError(t, a.Insert("test", map[string]any{"id": 1.0, "test": 1.0}))
	require.NoError(t, a.Insert("test", map[string]any{"id": 2.0, "test": 2.0}))
	assert.Equal(t, 0, a.Subscribers("test"))

	require.NoError(t, a.Insert("test", map[string]any{"id": 3.0, "test": 3.0}))
	assert.Equal(t, 1.0, next(t, cur)["new_val"].(map[string]any)["id"])
	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrServer)
}

func TestAdapter_FailFeeds(t *testing.T) {
	a := New(nil)
	cur, err := a.Run(context.Background(), numberFeed(t, nil))
	require.NoError(t, err)
	defer cur.Close()

	a.FailFeeds("test", core.NewTransportError("read", io.ErrUnexpectedEOF))
	assert.Equal(t, 0, a.Subscribers("test"))
	require.NoError(t, a.Insert("test", map[string]any{"id": 1.0, "test": 1.0}))

	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestAdapter_IncludeInitialAndStates(t *testing.T) {
	a := New(nil)
	require.NoError(t, a.Insert("test", map[string]any{"id": 1.0, "test": 5.0}))
	require.NoError(t, a.Insert("test", map[string]any{"id": 2.0, "test": "no"}))

	cur, err := a.Run(context.Background(), numberFeed(t, core.Options{
		"include_initial": true,
		"include_states":  true,
		"include_types":   true,
	}))
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, "initializing", next(t, cur)["state"])
	initial := next(t, cur)
	assert.Equal(t, "initial", initial["type"])
	assert.Equal(t, 5.0, initial["new_val"].(map[string]any)["test"])
	assert.Equal(t, "ready", next(t, cur)["state"])
}

func TestAdapter_QueueOverflowFailsFeed(t *testing.T) {
	a := New(nil)
	cur, err := a.Run(context.Background(), numberFeed(t, core.Options{"changefeed_queue_size": 1}))
	require.NoError(t, err)

	require.NoError(t, a.Insert("test", map[string]any{"id": 1.0, "test": 1.0}))
	require.NoError(t, a.Insert("test", map[string]any{"id": 2.0, "test": 2.0}))

	next(t, cur)
	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, core.ErrServer)
}

func TestAdapter_InjectAndClose(t *testing.T) {
	a := New(nil)
	cur, err := a.Run(context.Background(), numberFeed(t, nil))
	require.NoError(t, err)

	a.Inject("test", []byte(`not json`))
	msg, err := cur.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not json", string(msg))

	require.NoError(t, cur.Close())
	assert.Equal(t, 0, a.Subscribers("test"))

	require.NoError(t, a.Close())
	_, err = a.Run(context.Background(), numberFeed(t, nil))
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Len(t, a.Queries(), 1)
}

func TestAdapter_ReadAndSeed(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(`{"test":[{"id":1,"test":1},{"id":2,"test":"s"}],"other.t":[{"id":3}]}`), 0o644))

	a := New(nil)
	require.NoError(t, a.Connect(context.Background(), adapter.Config{Path: seed, Database: "test"}))

	node, err := query.Table("test").Filter(query.Row.Field("test").TypeOf().Eq("NUMBER")).Build()
	require.NoError(t, err)
	cur, err := a.Run(context.Background(), wire.MustSerialize(node))
	require.NoError(t, err)

	row := next(t, cur)
	assert.Equal(t, 1.0, row["id"])
	_, err = cur.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	node, err = query.DB("other").Table("t").Build()
	require.NoError(t, err)
	cur, err = a.Run(context.Background(), wire.MustSerialize(node))
	require.NoError(t, err)
	assert.Equal(t, 3.0, next(t, cur)["id"])
}

func TestAdapter_RejectsNonStart(t *testing.T) {
	a := New(nil)
	_, err := a.Run(context.Background(), wire.ContinueQuery())
	assert.ErrorIs(t, err, core.ErrServer)
}

func TestRegistered(t *testing.T) {
	assert.True(t, adapter.IsRegistered("memory"))
}
