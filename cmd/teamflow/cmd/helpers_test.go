package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/teamflow/internal/config"
	"github.com/hugo-lorenzo-mato/teamflow/internal/testutil"
)

// resetFlags restores every flag of c and its subcommands to its default so
// runs of the shared command tree don't leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the root command with args and returns its stdout and
// stderr.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeTestConfig writes a config that keeps state, logs and templates
// inside a temp dir and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("TEAMFLOW_OUTPUT", "")
	dir := t.TempDir()
	return testutil.TempFile(t, dir, "config.yaml", `log:
  level: error
  file: `+filepath.Join(dir, "teamflow.log")+`
state:
  backend: json
  path: `+filepath.Join(dir, "state")+`
run:
  node_timeout: 10s
capability:
  mode: local
`)
}

// loadTestConfig loads the config written by writeTestConfig.
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewLoaderWithViper(viper.New()).WithConfigFile(writeTestConfig(t)).Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}
