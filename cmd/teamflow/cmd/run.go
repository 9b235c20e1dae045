package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/teamflow/internal/clip"
	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
	"github.com/hugo-lorenzo-mato/teamflow/internal/logging"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service"
	"github.com/hugo-lorenzo-mato/teamflow/internal/transcript"
	"github.com/hugo-lorenzo-mato/teamflow/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workflow",
	Long: `Run a workflow from a template or a workflow file and stream its
transcript.

Output mode:
  - plain transcript lines (default, and whenever stdout is not a terminal)
  - an interactive run view with --tui
  - a single JSON document with --json (or TEAMFLOW_OUTPUT=json)

The command exits non-zero when any node failed.

Examples:
  teamflow run --template content-marketing
  teamflow run -f launch.yaml --tui --render-markdown
  teamflow run -f launch.yaml --json --save`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runTemplate       string
	runFile           string
	runTUI            bool
	runJSON           bool
	runCopy           bool
	runRenderMarkdown bool
	runSave           bool
)

// errNodesFailed is returned when a run completes with failed nodes.
var errNodesFailed = errors.New("workflow completed with failed nodes")

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTemplate, "template", "t", "",
		"template id to instantiate and run")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "",
		"workflow file to run")
	runCmd.Flags().BoolVar(&runTUI, "tui", false,
		"show the interactive run view")
	runCmd.Flags().BoolVar(&runJSON, "json", false,
		"print the run summary and transcript as JSON")
	runCmd.Flags().BoolVar(&runCopy, "copy", false,
		"copy the markdown transcript to the clipboard when done")
	runCmd.Flags().BoolVar(&runRenderMarkdown, "render-markdown", false,
		"render agent output as markdown in the run view")
	runCmd.Flags().BoolVar(&runSave, "save", false,
		"persist the workflow and its transcript in the configured store")
	runCmd.MarkFlagsMutuallyExclusive("template", "file")
	runCmd.MarkFlagsOneRequired("template", "file")
	runCmd.MarkFlagsMutuallyExclusive("tui", "json")
}

// runResult is the --json output.
type runResult struct {
	Workflow   core.GraphID    `json:"workflow_id"`
	Name       string          `json:"name"`
	Summary    core.RunSummary `json:"summary"`
	Transcript []core.RunEvent `json:"transcript"`
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	bus := events.New(cfg.Events.BufferSize)
	defer bus.Close()

	var store core.WorkflowStore
	if runSave {
		if store, err = openStore(cfg); err != nil {
			return err
		}
	}
	ws, err := newWorkspace(cfg, logger, bus, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return err
	}
	defer ws.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := openWorkflow(ctx, ws)
	if err != nil {
		return err
	}

	detector := tui.NewDetector().NoColor(noColor)
	mode := detector.Detect(runTUI)
	if runJSON {
		mode = tui.ModeJSON
	}
	logger.Debug("running workflow", "workflow_id", g.ID(), "mode", mode.String())

	switch mode {
	case tui.ModeTUI:
		err = runInteractive(ctx, ws, bus, g)
	case tui.ModeJSON:
		err = runWithJSON(ctx, cmd.OutOrStdout(), ws, g)
	default:
		err = runPlain(ctx, cmd.OutOrStdout(), ws, bus, g, detector.ShouldUseColor())
	}

	if runCopy {
		copyTranscript(ctx, cmd.ErrOrStderr(), ws, g, logger)
	}
	return err
}

// openWorkflow instantiates --template or imports --file.
func openWorkflow(ctx context.Context, ws *service.Workspace) (*core.Graph, error) {
	if runTemplate != "" {
		return ws.InstantiateTemplate(ctx, runTemplate)
	}
	return ws.LoadGraphFile(ctx, runFile)
}

func runPlain(ctx context.Context, w io.Writer, ws *service.Workspace, bus *events.EventBus, g *core.Graph, useColor bool) error {
	ch := bus.SubscribeWorkflow(string(g.ID()), events.TypeTranscriptAppended, events.TypeRunStateChanged)
	out := tui.NewPlainOutput(w, useColor)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out.Follow(ctx, ch)
	}()

	summary, err := ws.Run(ctx, g.ID())
	bus.Unsubscribe(ch)
	<-done
	if err != nil {
		return err
	}
	return summaryError(summary)
}

func runWithJSON(ctx context.Context, w io.Writer, ws *service.Workspace, g *core.Graph) error {
	summary, err := ws.Run(ctx, g.ID())
	if err != nil {
		return err
	}
	evs, err := ws.Transcript(ctx, g.ID())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(runResult{Workflow: g.ID(), Name: g.Name(), Summary: summary, Transcript: evs}); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return summaryError(summary)
}

// workspaceResetter lets the run view reset through the workspace so a
// persisted transcript is cleared too.
type workspaceResetter struct {
	ws *service.Workspace
	id core.GraphID
}

func (r workspaceResetter) Reset() error {
	return r.ws.Reset(context.Background(), r.id)
}

func runInteractive(ctx context.Context, ws *service.Workspace, bus *events.EventBus, g *core.Graph) error {
	order, err := ws.Order(ctx, g.ID())
	if err != nil {
		return err
	}
	nodes := make([]tui.NodeView, 0, len(order))
	for _, n := range order {
		nodes = append(nodes, tui.NodeView{ID: n.ID, Label: n.Label, AgentType: n.AgentType})
	}

	_, err = tui.Run(ctx, tui.Options{
		Title:    g.Name(),
		Nodes:    nodes,
		State:    g.RunState(),
		Adapter:  tui.NewEventBusAdapter(bus, g.ID()),
		Resetter: workspaceResetter{ws: ws, id: g.ID()},
		Start: func() error {
			_, err := ws.Activate(ctx, g.ID())
			return err
		},
		RenderMarkdown: runRenderMarkdown,
	})
	return err
}

func summaryError(summary core.RunSummary) error {
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%w: %d failed, %d skipped", errNodesFailed, len(summary.Failed), len(summary.Skipped))
	}
	return nil
}

// copyTranscript puts the markdown transcript on the clipboard. Failures
// are reported but do not fail the run.
func copyTranscript(ctx context.Context, w io.Writer, ws *service.Workspace, g *core.Graph, logger *logging.Logger) {
	evs, err := ws.Transcript(ctx, g.ID())
	if err != nil {
		logger.Warn("reading transcript for copy", "error", err)
		return
	}
	if len(evs) == 0 {
		fmt.Fprintln(w, "Transcript is empty, nothing copied.")
		return
	}

	var buf bytes.Buffer
	if err := transcript.RenderEvents(&buf, slices.Values(evs), transcript.RenderOptions{
		Markdown: true,
		Title:    g.Name(),
	}); err != nil {
		logger.Warn("rendering transcript", "error", err)
		return
	}
	res, err := clip.WriteAll(buf.String())
	if err != nil {
		fmt.Fprintf(w, "Copy failed: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Transcript %s\n", res)
}
