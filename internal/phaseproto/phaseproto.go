// Package phaseproto implements the phase-script stdout protocol: free-form
// log lines interleaved with TOKEN_EVENT:<json> lines carrying structured
// usage accounting. It is the wire format shared between a phase subprocess
// (in any language) and the Go sequencer that drives it.
package phaseproto

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var log = logger.New("phaseproto")

// TokenEventPrefix is the fixed prefix a phase script writes before a JSON
// TokenUsageEvent on its stdout.
const TokenEventPrefix = "TOKEN_EVENT:"

// TokenUsageEvent is the structured accounting record a phase emits for each
// model call it makes.
type TokenUsageEvent struct {
	RunID               string    `json:"adw_id"`
	Phase               string    `json:"phase"`
	Agent               string    `json:"agent"`
	InputTokens         int64     `json:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens"`
	CostUSD             float64   `json:"cost_usd"`
	Timestamp           time.Time `json:"timestamp"`
}

// EventSink receives TokenUsageEvent records as they are parsed off a phase's
// stdout. Implementations must not block the scan loop for long; the sink is
// called synchronously, in order, once per parsed TOKEN_EVENT: line.
type EventSink interface {
	Record(TokenUsageEvent)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(TokenUsageEvent)

// Record implements EventSink.
func (f EventSinkFunc) Record(e TokenUsageEvent) { f(e) }

// ScanStdout reads lines from r, forwarding TOKEN_EVENT: lines to sink (after
// parsing and stripping the prefix) and all other lines to logOut unchanged.
// Malformed TOKEN_EVENT: JSON is logged to the phaseproto diagnostic stream
// and otherwise ignored — a parse failure on one line must never stop the
// scan of the rest of the stream.
func ScanStdout(r io.Reader, sink EventSink, logOut io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, TokenEventPrefix)
		if !ok {
			if logOut != nil {
				_, _ = io.WriteString(logOut, line+"\n")
			}
			continue
		}

		var event TokenUsageEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("discarding malformed TOKEN_EVENT line: %v", err)
			continue
		}
		if sink != nil {
			sink.Record(event)
		}
	}
	return scanner.Err()
}
