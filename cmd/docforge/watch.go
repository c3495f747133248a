package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/monitor"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	watchNATSURL  string
	watchPrefix   string
	watchInterval time.Duration
)

// watchCmd opens the progress dashboard
var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Open the live progress dashboard for a project",
	Long: `Open a terminal dashboard that follows a project's documents, quality scores
and the shared rate gate.

Events come from the server's SSE stream, or straight from NATS with --nats.

Examples:
  docforge watch 6f1c...
  docforge watch 6f1c... --nats nats://127.0.0.1:4222`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var sub progress.Subscriber = client
		if watchNATSURL != "" {
			nc, err := nats.Connect(watchNATSURL, nats.Name("docforge-watch"))
			if err != nil {
				return fmt.Errorf("connect to NATS at %s: %w", watchNATSURL, err)
			}
			defer nc.Close()
			sub = progress.NewNATSSubscriber(nc, watchPrefix, logging.NewNop())
		}
		return watchProject(cmd.Context(), client, args[0], sub)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchNATSURL, "nats", "", "read events from this NATS server instead of SSE")
	watchCmd.Flags().StringVar(&watchPrefix, "subject-prefix", progress.DefaultSubjectPrefix, "NATS subject prefix")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "gate statistics refresh interval")
}

// watchProject runs the dashboard until the user quits. It returns an error
// when the project ended in failure.
func watchProject(ctx context.Context, src monitor.Source, id string, sub progress.Subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, stop, err := sub.Subscribe(ctx, id)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer stop()

	interval := watchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	final, err := tea.NewProgram(monitor.NewModel(id, src, events, interval), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if m, ok := final.(monitor.Model); ok {
		if e := m.Complete(); e != nil && e.Status == string(store.StatusFailed) {
			return fmt.Errorf("project %s failed: %s", id, e.Error)
		}
	}
	return nil
}
