package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/monitor"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// statusCmd shows one project
var statusCmd = &cobra.Command{
	Use:   "status <project-id>",
	Short: "Show a project's status and quality assessments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		p, err := newClient().Project(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, p)
		}

		fmt.Fprintf(out, "Project:  %s\n", p.ID)
		fmt.Fprintf(out, "Idea:     %s\n", p.Idea)
		fmt.Fprintf(out, "Profile:  %s\n", p.Profile)
		fmt.Fprintf(out, "Status:   %s", p.Status)
		if p.Phase != "" {
			fmt.Fprintf(out, " (%s)", p.Phase)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Elapsed:  %s\n", monitor.FormatElapsed(p.UpdatedAt.Sub(p.CreatedAt)))
		if p.Error != "" {
			fmt.Fprintf(out, "Error:    %s\n", p.Error)
		}

		scores := make(map[string]quality.Assessment, len(p.Assessments))
		for _, a := range p.Assessments {
			scores[a.DocumentID] = a
		}
		tw := newTable(out, table.Row{"Document", "Done", "Score", "Initial", "Improved"})
		for _, doc := range p.Selected {
			done := ""
			if slices.Contains(p.Completed, doc) {
				done = "yes"
			}
			score, initial, improved := "", "", ""
			if a, ok := scores[doc]; ok {
				if a.Unscored {
					score = "unscored"
				} else {
					score = fmt.Sprintf("%d/%d", a.Score, a.Threshold)
					initial = fmt.Sprintf("%d", a.InitialScore)
				}
				if a.Improved {
					improved = fmt.Sprintf("%+d", a.Delta)
				}
			}
			tw.AppendRow(table.Row{doc, done, score, initial, improved})
		}
		tw.Render()

		if m := p.Execution; m != nil {
			fmt.Fprintf(out, "Secondary phase: %s wall, %.2fx speedup\n", m.Wall, m.Speedup)
		}
		return nil
	},
}

// listCmd lists projects
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		projects, err := newClient().Projects(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, projects)
		}
		tw := newTable(out, table.Row{"ID", "Status", "Profile", "Documents", "Created", "Idea"})
		for _, p := range projects {
			tw.AppendRow(table.Row{
				p.ID,
				p.Status,
				p.Profile,
				fmt.Sprintf("%d/%d", len(p.Completed), len(p.Selected)),
				p.CreatedAt.Local().Format(time.DateTime),
				truncate(p.Idea, 40),
			})
		}
		tw.Render()
		return nil
	},
}

// cancelCmd stops a running project
var cancelCmd = &cobra.Command{
	Use:   "cancel <project-id>",
	Short: "Cancel a running project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		if err := newClient().Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelling %s\n", args[0])
		return nil
	},
}

var getOutput string

// getCmd prints or saves one document
var getCmd = &cobra.Command{
	Use:   "get <project-id> <document>",
	Short: "Print a generated document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		doc, err := newClient().Document(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), doc)
		}
		if getOutput != "" {
			if err := os.WriteFile(getOutput, []byte(doc.Content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", getOutput, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", getOutput)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), doc.Content)
		return nil
	},
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "write the document to this file")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
