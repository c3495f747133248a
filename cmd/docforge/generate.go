package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	apihttp "github.com/fyrsmithlabs/docforge/internal/http"
	"github.com/fyrsmithlabs/docforge/internal/monitor"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/spf13/cobra"
)

var (
	generateProfile   string
	generateDocuments []string
	generateWatch     bool
	generateFollow    bool
)

// generateCmd starts a project
var generateCmd = &cobra.Command{
	Use:   "generate <idea>",
	Short: "Start a document generation project",
	Long: `Start a project for an idea. The documents are generated in the background;
use --follow to print progress or --watch to open the dashboard.

Examples:
  # Everything in the team profile
  docforge generate "A habit tracker for remote teams"

  # Only the API docs and what they depend on, printing progress
  docforge generate "Payments gateway" --profile individual --doc api_documentation --follow`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateProfile, "profile", "p", "", "catalog profile (default: team)")
	generateCmd.Flags().StringSliceVarP(&generateDocuments, "doc", "d", nil, "limit generation to these documents and their dependencies")
	generateCmd.Flags().BoolVarP(&generateWatch, "watch", "w", false, "open the progress dashboard")
	generateCmd.Flags().BoolVarP(&generateFollow, "follow", "f", false, "print progress events until the project finishes")
	generateCmd.MarkFlagsMutuallyExclusive("watch", "follow")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	client := newClient()
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	created, err := client.CreateProject(ctx, apihttp.CreateProjectRequest{
		Idea:      strings.Join(args, " "),
		Profile:   generateProfile,
		Documents: generateDocuments,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	switch {
	case generateWatch:
		return watchProject(cmd.Context(), client, created.ProjectID, client)
	case generateFollow:
		fmt.Fprintf(out, "project %s (%s): %s\n", created.ProjectID, created.Profile, strings.Join(created.Documents, ", "))
		return follow(cmd.Context(), client, created.ProjectID, out)
	}

	if jsonOutput {
		return printJSON(out, created)
	}
	fmt.Fprintf(out, "Project %s started with profile %s\n", created.ProjectID, created.Profile)
	fmt.Fprintf(out, "Documents: %s\n", strings.Join(created.Documents, ", "))
	fmt.Fprintf(out, "Follow it with: docforge watch %s\n", created.ProjectID)
	return nil
}

// follow prints one line per progress event. It fails when the project
// fails, so scripts can rely on the exit status.
func follow(ctx context.Context, sub progress.Subscriber, id string, out io.Writer) error {
	events, stop, err := sub.Subscribe(ctx, id)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stop()

	for e := range events {
		if jsonOutput {
			if err := printJSON(out, e); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, formatEvent(e))
		}
		if e.Type.IsTerminal() {
			if e.Status == string(store.StatusFailed) {
				return fmt.Errorf("project %s failed: %s", id, e.Error)
			}
			return nil
		}
	}
	return fmt.Errorf("event stream for %s ended before the project finished", id)
}

func formatEvent(e progress.Event) string {
	ts := e.Timestamp.Format("15:04:05")
	switch e.Type {
	case progress.EventPhase:
		return fmt.Sprintf("%s phase      %s", ts, e.Phase)
	case progress.EventStarted:
		return fmt.Sprintf("%s started    %s via %s", ts, e.DocumentID, e.Provider)
	case progress.EventSucceeded:
		line := fmt.Sprintf("%s succeeded  %s in %s score %s", ts, e.DocumentID, monitor.FormatMillis(e.DurationMS), monitor.FormatScore(e.Score))
		if e.Improved {
			line += " (improved)"
		}
		return line
	case progress.EventFailed:
		return fmt.Sprintf("%s failed     %s: %s", ts, e.DocumentID, e.Error)
	case progress.EventSkipped:
		if e.Cause != "" {
			return fmt.Sprintf("%s skipped    %s (after %s)", ts, e.DocumentID, e.Cause)
		}
		return fmt.Sprintf("%s skipped    %s: %s", ts, e.DocumentID, e.Error)
	case progress.EventComplete:
		line := fmt.Sprintf("%s %s %d documents", ts, e.Status, len(e.Completed))
		if e.Error != "" {
			line += ": " + e.Error
		}
		return line
	}
	return fmt.Sprintf("%s %s %s", ts, e.Type, e.DocumentID)
}
