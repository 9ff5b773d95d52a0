package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/client"
	"github.com/alfredjeanlab/budgets/internal/events"
	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/ui"
)

// watchPayload is the subset of every event payload the watch view prints.
type watchPayload struct {
	Event   *model.BudgetEvent `json:"event"`
	Warning string             `json:"warning,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream budget changes as they happen",
	GroupID: "views",
	Long: `Stream budget changes as they happen.

Subscribes to NATS directly when a NATS URL is known (--nats, BUDGETS_NATS_URL
or the active remote); otherwise follows the server's SSE stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		cycleID, _ := cmd.Flags().GetString("cycle")
		topics, _ := cmd.Flags().GetStringSlice("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if natsURL != "" {
			return watchNATS(ctx, natsURL, topics, cycleID)
		}
		hc, err := httpClient()
		if err != nil {
			return fmt.Errorf("watch without NATS needs the HTTP transport: %w", err)
		}
		return watchSSE(ctx, hc, topics, cycleID)
	},
}

func defaultNATSURL() string {
	if s := os.Getenv("BUDGETS_NATS_URL"); s != "" {
		return s
	}
	return activeRemoteNATSURL()
}

// watchNATS prints every event published on the given subjects until ctx is
// done.
func watchNATS(ctx context.Context, natsURL string, topics []string, cycleID string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()
	defer func() {
		if n := sub.Dropped(); n > 0 {
			log.Printf("nats: %d events dropped while the terminal fell behind", n)
		}
	}()

	if len(topics) == 0 {
		topics = []string{events.TopicAll}
	}
	merged := make(chan events.Message, 64)
	for _, t := range topics {
		ch, cancel, err := sub.Subscribe(t)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", t, err)
		}
		defer cancel()
		go func() {
			for m := range ch {
				select {
				case merged <- m:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-merged:
			if line, ok := formatWatchLine(m.Topic, m.Data, cycleID); ok {
				fmt.Fprintln(stdout, line)
			}
		}
	}
}

func watchSSE(ctx context.Context, hc *client.HTTPClient, topics []string, cycleID string) error {
	err := hc.StreamEvents(ctx, topics, cycleID, func(e client.StreamEvent) error {
		if line, ok := formatWatchLine(e.Topic, e.Data, cycleID); ok {
			fmt.Fprintln(stdout, line)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// formatWatchLine renders one event. It reports false when the event belongs
// to a cycle other than cycleID.
func formatWatchLine(topic string, data []byte, cycleID string) (string, bool) {
	var p watchPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Event == nil {
		return fmt.Sprintf("%s  %s", ui.RenderAccent(topic), string(data)), cycleID == ""
	}
	ev := p.Event
	if cycleID != "" && ev.CycleID != cycleID && ev.EntityID != cycleID {
		return "", false
	}
	line := fmt.Sprintf("%s  %s  %s by %s",
		ui.RenderMuted(ev.CreatedAt.Local().Format(time.TimeOnly)),
		ui.RenderAccent(ev.Action),
		ev.EntityID,
		ev.Actor,
	)
	if ev.EstimatedImpactCents != 0 {
		line += "  impact " + dollars(ev.EstimatedImpactCents)
	}
	if p.Warning != "" {
		w := budget.WarningLevel(p.Warning)
		line += "  " + ui.RenderWarning(w, w.String())
	}
	if ev.Notes != "" {
		line += "  " + ui.RenderMuted(ev.Notes)
	}
	return line, true
}

func init() {
	watchCmd.Flags().String("nats", defaultNATSURL(), "NATS URL to subscribe to directly")
	watchCmd.Flags().String("cycle", "", "only events of this cycle")
	watchCmd.Flags().StringSlice("topic", nil, "subjects to follow (default budgets.>)")
}
