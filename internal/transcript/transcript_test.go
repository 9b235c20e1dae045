package transcript

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

func TestTranscript_AppendAssignsSeqAndTime(t *testing.T) {
	tr := New()
	fixed := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	first := tr.Append(core.NewSystemEvent("r1", "", "run started"))
	second := tr.Append(core.RunEvent{Seq: 99, AgentLabel: "SEO", Kind: core.EventKindMessage, Content: "done"})

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, fixed, first.Timestamp)
	assert.Equal(t, 2, tr.Len())
}

func TestTranscript_SnapshotIsRestartableAndFrozen(t *testing.T) {
	tr := New()
	tr.Append(core.NewSystemEvent("r1", "", "a"))
	tr.Append(core.NewSystemEvent("r1", "", "b"))

	snap := tr.Snapshot()
	tr.Append(core.NewSystemEvent("r1", "", "c"))

	var first, second []string
	for e := range snap {
		first = append(first, e.Content)
	}
	for e := range snap {
		second = append(second, e.Content)
	}
	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, first, second)

	// Early break is honoured.
	count := 0
	for range tr.Snapshot() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestTranscript_ClearRestartsNumbering(t *testing.T) {
	tr := New()
	tr.Append(core.NewSystemEvent("r1", "", "a"))
	tr.Clear()
	assert.Equal(t, 0, tr.Len())
	e := tr.Append(core.NewSystemEvent("r2", "", "b"))
	assert.Equal(t, 1, e.Seq)
}

func TestTranscript_LoadContinuesNumbering(t *testing.T) {
	tr := New()
	tr.Load([]core.RunEvent{{Seq: 1, Content: "a"}, {Seq: 2, Content: "b"}})
	e := tr.Append(core.NewSystemEvent("r1", "", "c"))
	assert.Equal(t, 3, e.Seq)
}

func TestTranscript_OnEvent(t *testing.T) {
	tr := New()
	var got []string
	unsubscribe := tr.OnEvent(func(e core.RunEvent) {
		// Reading from the callback must not deadlock.
		_ = tr.Len()
		got = append(got, e.Content)
	})
	var order []string
	tr.OnEvent(func(e core.RunEvent) { order = append(order, "second:"+e.Content) })

	tr.Append(core.NewSystemEvent("r1", "", "one"))
	unsubscribe()
	unsubscribe()
	tr.Append(core.NewSystemEvent("r1", "", "two"))

	assert.Equal(t, []string{"one"}, got)
	assert.Equal(t, []string{"second:one", "second:two"}, order)
}

func TestTranscript_ConcurrentAppendKeepsSeqUnique(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Append(core.NewSystemEvent("r1", "", "x"))
			}
		}()
	}
	wg.Wait()

	events := tr.Events()
	require.Len(t, events, 400)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestRender(t *testing.T) {
	tr := New()
	ts := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	tr.Append(core.RunEvent{AgentLabel: core.SystemLabel, Kind: core.EventKindSystem, Content: "run started", Timestamp: ts})
	tr.Append(core.RunEvent{AgentLabel: "Strategy", Kind: core.EventKindMessage, Content: "Plan:\n- grow", Timestamp: ts})

	plain := tr.Text(RenderOptions{})
	assert.Equal(t, "[09:30:00] System: run started\n[09:30:00] Strategy: Plan: - grow\n", plain)

	md := tr.Text(RenderOptions{Markdown: true, Title: "Launch"})
	assert.True(t, strings.HasPrefix(md, "# Launch\n\n> _09:30:00 System: run started_\n\n"))
	assert.Contains(t, md, "### Strategy\n_09:30:00_\n\nPlan:\n- grow\n\n")
}
