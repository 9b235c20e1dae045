package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/teamflow/internal/template"
	"github.com/hugo-lorenzo-mato/teamflow/internal/testutil"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchWorkflowFile_RevalidatesOnChange(t *testing.T) {
	path := testutil.TempFile(t, t.TempDir(), "launch.yaml", testutil.WorkflowYAML)

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- watchWorkflowFile(ctx, &out, template.Default(), path)
	}()

	testutil.Eventually(t, 2*time.Second, func() bool {
		return strings.Contains(out.String(), "Watching")
	}, "watcher did not start")

	bad := strings.Replace(testutil.WorkflowYAML, "agent: seo-specialist", "agent: nobody", 1)
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	testutil.Eventually(t, 5*time.Second, func() bool {
		s := out.String()
		return strings.Contains(s, "changed") && strings.Contains(s, "✗")
	}, "change was not re-validated")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestValidateWorkflowFile_PrintsOrder(t *testing.T) {
	path := testutil.TempFile(t, t.TempDir(), "launch.yaml", testutil.WorkflowYAML)
	var out bytes.Buffer
	require.NoError(t, validateWorkflowFile(&out, template.Default(), path))

	s := out.String()
	require.Contains(t, s, "order: ")
	order := s[strings.Index(s, "order: "):]
	// The strategy node has no predecessors and comes first.
	require.True(t, strings.HasPrefix(order, "order: "+firstLabel(t)), "unexpected order line %q", order)
}

func firstLabel(t *testing.T) string {
	t.Helper()
	g, err := template.Default().Build(mustParse(t, testutil.WorkflowYAML))
	require.NoError(t, err)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	n, ok := g.Node(order[0])
	require.True(t, ok)
	return n.Label
}

func mustParse(t *testing.T, doc string) *template.Template {
	t.Helper()
	tmpl, err := template.Parse([]byte(doc))
	require.NoError(t, err)
	return tmpl
}
