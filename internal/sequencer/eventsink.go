package sequencer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adwhq/adw-orchestrator/internal/phaseproto"
	"github.com/adwhq/adw-orchestrator/pkg/console"
)

// DefaultSink is the EventSink every real launch path wires into
// sequencer.Run: each TokenUsageEvent is appended as one JSON line to a
// per-run JSONL file (never rewritten, matching TokenUsageEvent's
// append-only invariant) and accumulated in memory for a final console
// table printed once the run terminates.
type DefaultSink struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	events []phaseproto.TokenUsageEvent
}

// NewDefaultSink opens (creating if necessary) a JSONL file named
// "<runID>.jsonl" under dir, ready to accept Record calls. The caller must
// call Close once the run has finished to release the file handle; Summary
// reads the in-memory events and works before or after Close.
func NewDefaultSink(dir, runID string) (*DefaultSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create token event log dir: %w", err)
	}
	path := filepath.Join(dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open token event log %s: %w", path, err)
	}
	return &DefaultSink{file: f, enc: json.NewEncoder(f)}, nil
}

// Record implements phaseproto.EventSink: it appends e to the JSONL file and
// keeps it for the closing Summary table. A write failure is logged, not
// returned — EventSink.Record has no error return, and the in-memory record
// is the one Summary reads.
func (s *DefaultSink) Record(e phaseproto.TokenUsageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if err := s.enc.Encode(e); err != nil {
		log.Printf("append token event to log: %v", err)
	}
}

// Close releases the underlying file handle. Safe to call once; subsequent
// calls are no-ops.
func (s *DefaultSink) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// Summary renders the accumulated events as a console table, one row per
// recorded event, with a totals row across input/output/cache tokens and cost.
func (s *DefaultSink) Summary() string {
	s.mu.Lock()
	events := append([]phaseproto.TokenUsageEvent(nil), s.events...)
	s.mu.Unlock()

	if len(events) == 0 {
		return ""
	}

	rows := make([][]string, 0, len(events))
	var totalIn, totalOut, totalCacheRead, totalCacheCreate int64
	var totalCost float64
	for _, e := range events {
		rows = append(rows, []string{
			console.TruncateString(e.Phase, 24),
			e.Agent,
			console.FormatNumber(int(e.InputTokens)),
			console.FormatNumber(int(e.OutputTokens)),
			console.FormatNumberOrEmpty(int(e.CacheReadTokens)),
			console.FormatNumberOrEmpty(int(e.CacheCreationTokens)),
			console.FormatCostOrEmpty(e.CostUSD),
		})
		totalIn += e.InputTokens
		totalOut += e.OutputTokens
		totalCacheRead += e.CacheReadTokens
		totalCacheCreate += e.CacheCreationTokens
		totalCost += e.CostUSD
	}

	return console.RenderTable(console.TableConfig{
		Title:     "Token usage",
		Headers:   []string{"Phase", "Agent", "Input", "Output", "Cache read", "Cache write", "Cost"},
		Rows:      rows,
		ShowTotal: true,
		TotalRow: []string{
			"total", "",
			console.FormatNumber(int(totalIn)),
			console.FormatNumber(int(totalOut)),
			console.FormatNumberOrEmpty(int(totalCacheRead)),
			console.FormatNumberOrEmpty(int(totalCacheCreate)),
			console.FormatCostOrEmpty(totalCost),
		},
	})
}

var _ phaseproto.EventSink = (*DefaultSink)(nil)
