package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docforge/internal/monitor"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// statsCmd shows server-wide counters
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show project counts and rate gate statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		s, err := newClient().Stats(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, s)
		}

		tw := newTable(out, table.Row{"Projects", "Count"})
		tw.AppendRows([]table.Row{
			{"total", s.Projects.Total},
			{"created", s.Projects.Created},
			{"running", s.Projects.Running},
			{"complete", s.Projects.Complete},
			{"  with failures", s.Projects.Degraded},
			{"failed", s.Projects.Failed},
		})
		tw.Render()

		if g := s.Gate; g != nil {
			gw := newTable(out, table.Row{"Rate gate", "Value"})
			gw.AppendRows([]table.Row{
				{"window", monitor.FormatRate(g.RequestsInWindow, g.MaxRate, g.Period)},
				{"configured max", g.OriginalMaxRate},
				{"utilization", monitor.FormatPercentage(g.UtilizationPercent)},
				{"waiting", g.Waiting},
				{"granted", g.TotalGranted},
				{"cached responses", g.CacheSize},
			})
			gw.Render()
		}
		return nil
	},
}

var catalogProfile string

// catalogCmd lists the documents the server can generate
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the document catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		c, err := newClient().Catalog(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, c)
		}

		profiles := make([]string, 0, len(c.Profiles))
		for _, p := range c.Profiles {
			profiles = append(profiles, p.ID)
		}
		fmt.Fprintf(out, "Profiles: %s\n", strings.Join(profiles, ", "))

		tw := newTable(out, table.Row{"Document", "Phase", "Depends on", "Profiles"})
		for _, d := range c.Documents {
			if catalogProfile != "" && !d.InProfile(catalogProfile) {
				continue
			}
			tw.AppendRow(table.Row{d.ID, d.Phase, strings.Join(d.DependsOn, ", "), strings.Join(d.Profiles, ", ")})
		}
		tw.Render()
		return nil
	},
}

func init() {
	catalogCmd.Flags().StringVarP(&catalogProfile, "profile", "p", "", "only documents in this profile")
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check docforged health",
	Long: `Check the health status of the docforged HTTP server.

Examples:
  # Check health
  docforge health

  # Check health on a different server
  docforge health --server http://localhost:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		h, err := newClient().Health(ctx)
		if err != nil {
			return fmt.Errorf("docforged at %s is unreachable: %w", serverURL, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), h)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\nRunning projects: %d\n", h.Status, h.Running)
		return nil
	},
}
