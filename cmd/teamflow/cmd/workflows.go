package cmd

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/service"
	"github.com/hugo-lorenzo-mato/teamflow/internal/transcript"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List saved workflows",
	Long: `List the workflows in the configured store, most recently updated first.
Workflows are saved by 'teamflow run --save' and by the API server.`,
	Args: cobra.NoArgs,
	RunE: runWorkflowsList,
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <workflow-id>",
	Short: "Print the transcript of a saved workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscript,
}

var workflowsDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a saved workflow and its transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsDelete,
}

var transcriptMarkdown bool

func init() {
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(transcriptCmd)
	workflowsCmd.AddCommand(workflowsDeleteCmd)

	transcriptCmd.Flags().BoolVar(&transcriptMarkdown, "markdown", false,
		"render as markdown")
}

// withStoredWorkspace runs fn against a workspace backed by the configured
// store.
func withStoredWorkspace(fn func(ws *service.Workspace) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	ws, err := newWorkspace(cfg, logger, nil, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer ws.Close()
	return fn(ws)
}

func runWorkflowsList(cmd *cobra.Command, _ []string) error {
	return withStoredWorkspace(func(ws *service.Workspace) error {
		list, err := ws.ListGraphs(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved workflows.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tNODES\tUPDATED\tNAME")
		fmt.Fprintln(w, "--\t-----\t-----\t-------\t----")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				s.ID, s.RunState, s.NodeCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Name)
		}
		return w.Flush()
	})
}

func runTranscript(cmd *cobra.Command, args []string) error {
	id := core.GraphID(args[0])
	return withStoredWorkspace(func(ws *service.Workspace) error {
		g, err := ws.Graph(cmd.Context(), id)
		if err != nil {
			return err
		}
		evs, err := ws.Transcript(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Workflow %s has no transcript.\n", id)
			return nil
		}
		return transcript.RenderEvents(cmd.OutOrStdout(), slices.Values(evs), transcript.RenderOptions{
			Markdown: transcriptMarkdown,
			Title:    g.Name(),
		})
	})
}

func runWorkflowsDelete(cmd *cobra.Command, args []string) error {
	id := core.GraphID(args[0])
	return withStoredWorkspace(func(ws *service.Workspace) error {
		if err := ws.DeleteGraph(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted workflow %s\n", id)
		return nil
	})
}
