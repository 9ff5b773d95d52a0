package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/budgets/internal/model"
	"github.com/alfredjeanlab/budgets/internal/store"
)

// configNamespaces are the config namespaces included in a snapshot.
var configNamespaces = []string{"throttle"}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version           string    `json:"version"`
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	CycleCount        int       `json:"cycle_count"`
	SegmentCount      int       `json:"segment_count"`
	SegmentCycleCount int       `json:"segment_cycle_count"`
	EventCount        int       `json:"event_count"`
	ConfigCount       int       `json:"config_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every budget record in the store as JSONL to w: a
// header, then cycles, segments (deleted ones included), segment cycles,
// configs and the audit log. Records of each type are sorted by ID so two
// exports of the same state differ only in the header timestamp.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, now time.Time) error {
	cycles, err := s.ListCycles(ctx, 0)
	if err != nil {
		return fmt.Errorf("list cycles: %w", err)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].ID < cycles[j].ID })

	segments, err := s.ListSegments(ctx, true)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })

	var segCycles []*model.SegmentCycle
	for _, c := range cycles {
		scs, err := s.ListSegmentCycles(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("list segment cycles for %s: %w", c.ID, err)
		}
		segCycles = append(segCycles, scs...)
	}
	sort.Slice(segCycles, func(i, j int) bool { return segCycles[i].ID < segCycles[j].ID })

	var configs []*model.Config
	for _, ns := range configNamespaces {
		cs, err := s.ListConfigs(ctx, ns)
		if err != nil {
			return fmt.Errorf("list %s configs: %w", ns, err)
		}
		configs = append(configs, cs...)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Key < configs[j].Key })

	events, err := s.ListEvents(ctx, model.EventFilter{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:           "1",
		Type:              "header",
		Timestamp:         now.UTC(),
		CycleCount:        len(cycles),
		SegmentCount:      len(segments),
		SegmentCycleCount: len(segCycles),
		EventCount:        len(events),
		ConfigCount:       len(configs),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, c := range cycles {
		if err := enc.Encode(record{Type: "cycle", Data: c}); err != nil {
			return fmt.Errorf("encode cycle %s: %w", c.ID, err)
		}
	}
	for _, seg := range segments {
		if err := enc.Encode(record{Type: "segment", Data: seg}); err != nil {
			return fmt.Errorf("encode segment %s: %w", seg.ID, err)
		}
	}
	for _, sc := range segCycles {
		if err := enc.Encode(record{Type: "segment_cycle", Data: sc}); err != nil {
			return fmt.Errorf("encode segment cycle %s: %w", sc.ID, err)
		}
	}
	for _, c := range configs {
		if err := enc.Encode(record{Type: "config", Data: c}); err != nil {
			return fmt.Errorf("encode config %s: %w", c.Key, err)
		}
	}
	for _, ev := range events {
		if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
			return fmt.Errorf("encode event %d: %w", ev.ID, err)
		}
	}
	return nil
}
