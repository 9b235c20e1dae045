package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/testutil"
)

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2024-01-15")
	t.Cleanup(func() { SetVersion("", "", "") })

	out, _, err := executeCommand(t, "version")
	require.NoError(t, err)

	assert.Contains(t, out, "teamflow v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2024-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"agents", "config", "run", "serve", "templates", "transcript", "validate", "version", "workflows"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestAgentsCommand(t *testing.T) {
	t.Run("lists catalog", func(t *testing.T) {
		out, _, err := executeCommand(t, "agents")
		require.NoError(t, err)
		assert.Contains(t, out, "ID")
		for _, id := range []string{"strategy-lead", "content-writer", "seo-specialist", "ads-specialist"} {
			assert.Contains(t, out, id)
		}
	})

	t.Run("filters by query", func(t *testing.T) {
		out, _, err := executeCommand(t, "agents", "seo")
		require.NoError(t, err)
		assert.Contains(t, out, "seo-specialist")
		assert.NotContains(t, out, "email-marketer")
	})

	t.Run("no match", func(t *testing.T) {
		out, _, err := executeCommand(t, "agents", "zzzzqqq")
		require.NoError(t, err)
		assert.Contains(t, out, "No agents match")
	})
}

func TestTemplatesCommands(t *testing.T) {
	cfg := writeTestConfig(t)

	t.Run("list", func(t *testing.T) {
		out, _, err := executeCommand(t, "--config", cfg, "templates", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "content-marketing")
		assert.Contains(t, out, "COMPLEXITY")
	})

	t.Run("show", func(t *testing.T) {
		out, _, err := executeCommand(t, "--config", cfg, "templates", "show", "content-marketing")
		require.NoError(t, err)
		assert.Contains(t, out, "id: content-marketing")
		assert.Contains(t, out, "agents:")
	})

	t.Run("show unknown", func(t *testing.T) {
		_, _, err := executeCommand(t, "--config", cfg, "templates", "show", "does-not-exist")
		require.Error(t, err)
		assert.True(t, core.IsCategory(err, core.ErrCatNotFound), "expected not found, got %v", err)
	})

	t.Run("search requires query", func(t *testing.T) {
		_, _, err := executeCommand(t, "--config", cfg, "templates", "search")
		require.Error(t, err)
	})
}

func TestValidateCommand(t *testing.T) {
	cfg := writeTestConfig(t)
	dir := t.TempDir()

	t.Run("valid workflow", func(t *testing.T) {
		path := testutil.TempFile(t, dir, "ok.yaml", testutil.WorkflowYAML)
		out, _, err := executeCommand(t, "--config", cfg, "validate", "-f", path)
		require.NoError(t, err)
		assert.Contains(t, out, `"Launch brief" is valid (3 nodes, 2 edges)`)
		assert.Contains(t, out, "order: ")
	})

	t.Run("unknown agent", func(t *testing.T) {
		bad := strings.Replace(testutil.WorkflowYAML, "agent: seo-specialist", "agent: nobody", 1)
		path := testutil.TempFile(t, dir, "bad.yaml", bad)
		out, _, err := executeCommand(t, "--config", cfg, "validate", "-f", path)
		require.Error(t, err)
		assert.Contains(t, out, "✗")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := executeCommand(t, "--config", cfg, "validate", "-f", filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file flag required", func(t *testing.T) {
		_, _, err := executeCommand(t, "--config", cfg, "validate")
		require.Error(t, err)
	})
}

func TestRunCommand_Plain(t *testing.T) {
	cfg := writeTestConfig(t)
	path := testutil.TempFile(t, t.TempDir(), "launch.yaml", testutil.WorkflowYAML)

	out, _, err := executeCommand(t, "--config", cfg, "--no-color", "run", "-f", path)
	require.NoError(t, err)

	assert.Contains(t, out, "System: run started")
	assert.Contains(t, out, "run completed: 3 succeeded, 0 failed, 0 skipped")
	assert.Less(t, strings.Index(out, "run started"), strings.Index(out, "run completed"))
}

func TestRunCommand_JSON(t *testing.T) {
	cfg := writeTestConfig(t)

	out, _, err := executeCommand(t, "--config", cfg, "run", "--template", "content-marketing", "--json")
	require.NoError(t, err)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.Workflow)
	assert.Equal(t, core.RunStateCompleted, res.Summary.State)
	assert.Empty(t, res.Summary.Failed)
	assert.Len(t, res.Summary.Succeeded, len(res.Summary.Order))
	require.NotEmpty(t, res.Transcript)
	assert.Equal(t, "run started", res.Transcript[0].Content)
}

func TestRunCommand_FlagValidation(t *testing.T) {
	cfg := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"run"}},
		{"both sources", []string{"run", "--template", "content-marketing", "-f", "x.yaml"}},
		{"tui and json", []string{"run", "--template", "content-marketing", "--tui", "--json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, append([]string{"--config", cfg}, tt.args...)...)
			require.Error(t, err)
		})
	}
}

func TestRunCommand_UnknownTemplate(t *testing.T) {
	cfg := writeTestConfig(t)
	_, _, err := executeCommand(t, "--config", cfg, "run", "--template", "nope")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestRunSave_WorkflowsAndTranscript(t *testing.T) {
	cfg := writeTestConfig(t)
	path := testutil.TempFile(t, t.TempDir(), "launch.yaml", testutil.WorkflowYAML)

	out, _, err := executeCommand(t, "--config", cfg, "run", "-f", path, "--json", "--save")
	require.NoError(t, err)
	var res runResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	out, _, err = executeCommand(t, "--config", cfg, "workflows")
	require.NoError(t, err)
	assert.Contains(t, out, string(res.Workflow))
	assert.Contains(t, out, "Launch brief")
	assert.Contains(t, out, "completed")

	out, _, err = executeCommand(t, "--config", cfg, "transcript", string(res.Workflow), "--markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Launch brief")
	assert.Contains(t, out, "run completed: 3 succeeded, 0 failed, 0 skipped")

	out, _, err = executeCommand(t, "--config", cfg, "workflows", "delete", string(res.Workflow))
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted workflow")

	out, _, err = executeCommand(t, "--config", cfg, "workflows")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved workflows.")
}

func TestWorkflows_Empty(t *testing.T) {
	cfg := writeTestConfig(t)
	out, _, err := executeCommand(t, "--config", cfg, "workflows")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved workflows.")
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".teamflow", "config.yaml")

	out, _, err := executeCommand(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default config")
	require.FileExists(t, path)

	out, _, err = executeCommand(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, _, err = executeCommand(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default config")

	t.Setenv("TEAMFLOW_CAPABILITY_TOKEN", "s3cret")
	out, _, err = executeCommand(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# loaded from "+path)
	assert.Contains(t, out, "backend: sqlite")
	assert.NotContains(t, out, "s3cret")
}

func TestConfig_InvalidFileFailsCommands(t *testing.T) {
	path := testutil.TempFile(t, t.TempDir(), "config.yaml", "events:\n  buffer_size: 0\n")
	_, _, err := executeCommand(t, "--config", path, "templates", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.buffer_size")
}
