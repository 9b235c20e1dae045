package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/fsutil"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service"
	"github.com/hugo-lorenzo-mato/teamflow/internal/template"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a workflow file",
	Long: `Check that a workflow file parses, references known agents, carries
valid node configurations and forms an acyclic graph. Prints the execution
order on success.

With --watch the file is re-validated every time it changes.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

var (
	validateFile  string
	validateWatch bool
)

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 150 * time.Millisecond

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "",
		"workflow file to validate")
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false,
		"re-validate on every change")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	lib, err := loadLibrary()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = validateWorkflowFile(out, lib, validateFile)
	if !validateWatch {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchWorkflowFile(ctx, out, lib, validateFile)
}

// validateWorkflowFile reports on one workflow file and returns the
// validation error, if any.
func validateWorkflowFile(w io.Writer, lib *template.Library, path string) error {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", path, err)
		return fmt.Errorf("reading workflow file: %w", err)
	}

	g, err := service.ParseWorkflow(lib, data)
	if err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", path, err)
		for _, f := range core.FieldErrorsOf(err) {
			fmt.Fprintf(w, "    - %s\n", f)
		}
		return err
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		fmt.Fprintf(w, "✗ %s: %v\n", path, err)
		return err
	}

	fmt.Fprintf(w, "✓ %s: %q is valid (%d nodes, %d edges)\n", path, g.Name(), g.Len(), len(g.Edges()))
	labels := make([]string, 0, len(order))
	for _, id := range order {
		if n, ok := g.Node(id); ok {
			labels = append(labels, n.Label)
		}
	}
	if len(labels) > 0 {
		fmt.Fprintf(w, "  order: %s\n", strings.Join(labels, " → "))
	}
	return nil
}

// watchWorkflowFile re-validates path whenever it is written until ctx is
// done. The parent directory is watched so editors that save by rename are
// still seen.
func watchWorkflowFile(ctx context.Context, w io.Writer, lib *template.Library, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	fmt.Fprintf(w, "Watching %s for changes (Ctrl+C to stop)\n", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "watch error: %v\n", err)

		case <-pending:
			pending = nil
			fmt.Fprintf(w, "\n[%s] %s changed\n", time.Now().Format("15:04:05"), path)
			_ = validateWorkflowFile(w, lib, path)
		}
	}
}
