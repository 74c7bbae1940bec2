// Package testutil holds fixtures and assertions for CLI tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/changefeed/internal/cli/output"
)

// seedProject is a memory-target project with a typed "test" table holding
// one row that matches the schema and one that does not.
var seedProject = map[string]string{
	"changefeed.yaml": "target:\n  type: memory\n  path: seed.json\nschema_file: schema.yaml\n",
	"seed.json":       `{"test": [{"id": 1, "test": 5}, {"id": 2, "test": "five"}]}`,
	"schema.yaml":     "tables:\n  test:\n    fields:\n      id: NUMBER\n      test: NUMBER\n",
}

// SetupTestProject writes the seeded memory project into a temp dir and
// returns the dir.
func SetupTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range seedProject {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

// TestRenderer is a Renderer writing into buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

func newTestRenderer(mode output.OutputMode) *TestRenderer {
	var out, errOut bytes.Buffer
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(&out, &errOut, false, mode),
		Out:      &out,
		ErrOut:   &errOut,
	}
}

// NewTestRendererMarkdown returns a non-terminal markdown renderer.
func NewTestRendererMarkdown() *TestRenderer { return newTestRenderer(output.ModeMarkdown) }

// NewTestRendererJSON returns a non-terminal JSON renderer.
func NewTestRendererJSON() *TestRenderer { return newTestRenderer(output.ModeJSON) }

// Output returns everything written to stdout.
func (tr *TestRenderer) Output() string { return tr.Out.String() }

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI fails when s carries terminal escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	assert.NotRegexp(t, ansiPattern, s, "output contains ANSI escape codes")
}

// AssertValidMarkdown checks that code fences are balanced and no heading
// is empty.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()
	assert.Zero(t, strings.Count(md, "```")%2, "unbalanced code fences")
	for i, line := range strings.Split(md, "\n") {
		heading := strings.TrimSpace(line)
		if strings.HasPrefix(heading, "#") {
			assert.NotEmpty(t, strings.TrimLeft(heading, "# "), "empty heading at line %d", i+1)
		}
	}
}
